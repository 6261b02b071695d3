package submission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/notify"
)

const reasonLimit = 100

func money(v float64) string { return "$" + strconv.FormatFloat(v, 'f', 2, 64) }

func portalLink(base string) []notify.Action {
	if base == "" {
		return nil
	}
	return []notify.Action{notify.OpenURI("Abrir UCEHub", base)}
}

func orderCard(o *models.Order, base string) notify.Card {
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return notify.Card{
		Title: "🍽️ Nueva Orden de Cafetería",
		Text:  fmt.Sprintf("%s realizó un pedido", o.UserName),
		Facts: []notify.Fact{
			{Name: "Orden", Value: o.ID},
			{Name: "Cliente", Value: o.UserName},
			{Name: "Email", Value: o.UserEmail},
			{Name: "Productos", Value: strings.Join(items, ", ")},
			{Name: "Total", Value: money(o.TotalPrice)},
			{Name: "Entrega", Value: o.DeliveryTime},
			{Name: "Pago", Value: o.PaymentMethod},
		},
		Actions: portalLink(base),
	}
}

func ticketCard(t *models.Ticket, base string) notify.Card {
	return notify.Card{
		Title: "🎫 Nuevo Ticket de Soporte",
		Text:  t.Subject,
		Facts: []notify.Fact{
			{Name: "Ticket", Value: t.ID},
			{Name: "Usuario", Value: t.UserName},
			{Name: "Email", Value: t.UserEmail},
			{Name: "Categoría", Value: t.Category},
			{Name: "Prioridad", Value: t.Priority},
			{Name: "Descripción", Value: notify.Truncate(t.Description, reasonLimit)},
		},
		Actions: portalLink(base),
	}
}

func justificationCard(j *models.Justification, base string) notify.Card {
	period := j.StartDate
	if j.EndDate != "" && j.EndDate != j.StartDate {
		period = j.StartDate + " - " + j.EndDate
	}
	c := notify.Card{
		Title: "📋 Nueva Justificación de Ausencia",
		Text:  fmt.Sprintf("%s envió una justificación", j.UserName),
		Facts: []notify.Fact{
			{Name: "Justificación", Value: j.ID},
			{Name: "Estudiante", Value: j.UserName},
			{Name: "Email", Value: j.UserEmail},
			{Name: "ID Estudiante", Value: j.StudentID},
			{Name: "Fecha", Value: period},
			{Name: "Motivo", Value: notify.Truncate(j.Reason, reasonLimit)},
		},
	}
	if j.Attachment != nil {
		c.Facts = append(c.Facts, notify.Fact{Name: "Documento", Value: j.Attachment.FileName})
		c.Actions = append(c.Actions, notify.OpenURI("Ver Documento", j.Attachment.URL))
	}
	if base != "" {
		body := map[string]string{"justificationId": j.ID}
		c.Actions = append(c.Actions,
			notify.HTTPPost("Aprobar", base+"/justifications/approve", body),
			notify.HTTPPost("Rechazar", base+"/justifications/reject", body),
		)
	}
	return c
}

func certificateCard(c *models.Certificate) notify.Card {
	facts := []notify.Fact{
		{Name: "Solicitud", Value: c.ID},
		{Name: "Tipo", Value: c.Tipo},
		{Name: "Precio", Value: money(c.Precio)},
		{Name: "Estado", Value: c.Estado},
	}
	if c.UserName != "" {
		facts = append(facts, notify.Fact{Name: "Solicitante", Value: c.UserName})
	}
	card := notify.Card{Title: "📄 Nueva Solicitud de Certificado", Text: c.Tipo, Facts: facts}
	if c.Attachment != nil {
		card.Actions = []notify.Action{notify.OpenURI("Ver Documento", c.Attachment.URL)}
	}
	return card
}

func reservationCard(r *models.Reservation) notify.Card {
	facts := []notify.Fact{
		{Name: "Reserva", Value: r.ID},
		{Name: "Libro", Value: r.Titulo},
		{Name: "Código", Value: r.LibroID},
		{Name: "Devolución", Value: r.FechaDevolucion},
	}
	if r.UserName != "" {
		facts = append(facts, notify.Fact{Name: "Usuario", Value: r.UserName})
	}
	return notify.Card{Title: "📚 Nueva Reserva de Biblioteca", Text: r.Titulo, Facts: facts}
}

var transitionTitles = map[string]string{
	models.Approve.Name: "✅ Justificación Aprobada",
	models.Reject.Name:  "❌ Justificación Rechazada",
	models.Resolve.Name: "✔️ Ticket Resuelto",
}

func transitionCard(kind models.Kind, id string, t models.Transition) notify.Card {
	return notify.Card{
		Title: transitionTitles[t.Name],
		Text:  fmt.Sprintf("%s %s", id, t.To),
		Facts: []notify.Fact{
			{Name: "ID", Value: id},
			{Name: "Tipo", Value: string(kind)},
			{Name: "Estado", Value: string(t.To)},
		},
	}
}
