package submission

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/notify"
	"github.com/kylejryan/ucehub-portal/internal/validate"
)

// Payload is a decoded submission for one kind. The unexported methods keep
// the set of kinds closed to this package.
type Payload interface {
	Kind() models.Kind
	missing() []string
	draft(o Options, now time.Time) draft
}

// draft is a record ready to be stamped and persisted, plus the closures that
// describe it once it has an id.
type draft struct {
	rec    models.Record
	upload *upload
	attach func(*models.Attachment)
	card   func(o Options) notify.Card
	ack    func() Ack
}

// Decode parses a JSON body into the payload type for kind.
func Decode(kind models.Kind, body []byte) (Payload, error) {
	var p Payload
	switch kind {
	case models.KindOrder:
		p = &OrderRequest{}
	case models.KindTicket:
		p = &TicketRequest{}
	case models.KindJustification:
		p = &JustificationRequest{}
	case models.KindCertificate:
		p = &CertificateRequest{}
	case models.KindReservation:
		p = &ReservationRequest{}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// ---- Orders ----

// OrderRequest is the body of POST /cafeteria/order. Both totalPrice and
// total are accepted; totalPrice wins when both are present.
type OrderRequest struct {
	UserName      string             `json:"userName"`
	UserEmail     string             `json:"userEmail"`
	Items         []models.OrderItem `json:"items"`
	TotalPrice    *float64           `json:"totalPrice"`
	Total         *float64           `json:"total"`
	DeliveryTime  string             `json:"deliveryTime"`
	Notes         string             `json:"notes"`
	PaymentMethod string             `json:"paymentMethod"`
}

// OrderAck is returned for a created order.
type OrderAck struct {
	OrderID       string        `json:"orderId"`
	Status        models.Status `json:"status"`
	EstimatedTime string        `json:"estimatedTime"`
	TotalPrice    float64       `json:"totalPrice"`
}

func (r *OrderRequest) Kind() models.Kind { return models.KindOrder }

func (r *OrderRequest) missing() []string {
	return validate.Missing(
		validate.NotBlank("userName", r.UserName),
		validate.NotBlank("userEmail", r.UserEmail),
		validate.NotEmpty("items", len(r.Items)),
	)
}

func (r *OrderRequest) draft(o Options, _ time.Time) draft {
	rec := &models.Order{
		UserName:      strings.TrimSpace(r.UserName),
		UserEmail:     strings.TrimSpace(r.UserEmail),
		Items:         r.Items,
		TotalPrice:    firstFloat(r.TotalPrice, r.Total),
		DeliveryTime:  orDefault(r.DeliveryTime, o.DefaultDeliveryTime),
		Notes:         r.Notes,
		PaymentMethod: orDefault(r.PaymentMethod, "Efectivo"),
	}
	return draft{
		rec:  rec,
		card: func(o Options) notify.Card { return orderCard(rec, o.PublicBaseURL) },
		ack: func() Ack {
			return Ack{
				Success: true,
				Message: "Orden creada exitosamente",
				ID:      rec.ID,
				Status:  rec.Status,
				Data:    OrderAck{OrderID: rec.ID, Status: rec.Status, EstimatedTime: rec.DeliveryTime, TotalPrice: rec.TotalPrice},
			}
		},
	}
}

// ---- Support tickets ----

// TicketRequest is the body of POST /support/ticket.
type TicketRequest struct {
	UserName    string `json:"userName"`
	UserEmail   string `json:"userEmail"`
	Category    string `json:"category"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// TicketAck is returned for a created ticket.
type TicketAck struct {
	TicketID string        `json:"ticketId"`
	Status   models.Status `json:"status"`
}

func (r *TicketRequest) Kind() models.Kind { return models.KindTicket }

func (r *TicketRequest) missing() []string {
	return validate.Missing(
		validate.NotBlank("userName", r.UserName),
		validate.NotBlank("userEmail", r.UserEmail),
		validate.NotBlank("subject", r.Subject),
		validate.NotBlank("description", r.Description),
	)
}

func (r *TicketRequest) draft(_ Options, _ time.Time) draft {
	rec := &models.Ticket{
		UserName:    strings.TrimSpace(r.UserName),
		UserEmail:   strings.TrimSpace(r.UserEmail),
		Category:    orDefault(r.Category, "general"),
		Subject:     r.Subject,
		Description: r.Description,
		Priority:    orDefault(r.Priority, "medium"),
	}
	return draft{
		rec:  rec,
		card: func(o Options) notify.Card { return ticketCard(rec, o.PublicBaseURL) },
		ack: func() Ack {
			return Ack{
				Success: true,
				Message: "Ticket creado exitosamente",
				ID:      rec.ID,
				Status:  rec.Status,
				Data:    TicketAck{TicketID: rec.ID, Status: rec.Status},
			}
		},
	}
}

// ---- Absence justifications ----

// JustificationRequest is the body of POST /justifications/submit. Either
// date or startDate (with an optional endDate) identifies the absence.
type JustificationRequest struct {
	UserName       string `json:"userName"`
	UserEmail      string `json:"userEmail"`
	StudentID      string `json:"studentId"`
	Reason         string `json:"reason"`
	Date           string `json:"date"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	DocumentBase64 string `json:"documentBase64"`
	DocumentName   string `json:"documentName"`
}

// JustificationAck is returned for a submitted justification. DocumentURL is
// null when no document was stored.
type JustificationAck struct {
	JustificationID string        `json:"justificationId"`
	Status          models.Status `json:"status"`
	DocumentURL     *string       `json:"documentUrl"`
}

func (r *JustificationRequest) Kind() models.Kind { return models.KindJustification }

func (r *JustificationRequest) missing() []string {
	return validate.Missing(
		validate.NotBlank("userName", r.UserName),
		validate.NotBlank("userEmail", r.UserEmail),
		validate.NotBlank("reason", r.Reason),
		validate.Present("date", strings.TrimSpace(r.Date) != "" || strings.TrimSpace(r.StartDate) != ""),
	)
}

func (r *JustificationRequest) draft(_ Options, _ time.Time) draft {
	start := orDefault(r.StartDate, r.Date)
	rec := &models.Justification{
		UserName:  strings.TrimSpace(r.UserName),
		UserEmail: strings.TrimSpace(r.UserEmail),
		StudentID: orDefault(r.StudentID, "N/A"),
		Reason:    r.Reason,
		StartDate: start,
		EndDate:   orDefault(r.EndDate, start),
	}
	return draft{
		rec:    rec,
		upload: newUpload(r.DocumentBase64, r.DocumentName),
		attach: func(a *models.Attachment) { rec.Attachment = a },
		card:   func(o Options) notify.Card { return justificationCard(rec, o.PublicBaseURL) },
		ack: func() Ack {
			return Ack{
				Success: true,
				Message: "Justificación enviada exitosamente",
				ID:      rec.ID,
				Status:  rec.Status,
				Data:    JustificationAck{JustificationID: rec.ID, Status: rec.Status, DocumentURL: attachmentURL(rec.Attachment)},
			}
		},
	}
}

// ---- Certificates ----

// CertificateRequest is the body of POST /certificados/solicitar.
type CertificateRequest struct {
	Tipo           string   `json:"tipo"`
	Precio         *float64 `json:"precio"`
	UserName       string   `json:"userName"`
	UserEmail      string   `json:"userEmail"`
	DocumentBase64 string   `json:"documentBase64"`
	DocumentName   string   `json:"documentName"`
}

// CertificateAck is returned for a certificate request.
type CertificateAck struct {
	ID          string        `json:"id"`
	Tipo        string        `json:"tipo"`
	Precio      float64       `json:"precio"`
	Estado      string        `json:"estado"`
	Status      models.Status `json:"status"`
	Fecha       string        `json:"fecha"`
	DocumentURL *string       `json:"documentUrl"`
}

func (r *CertificateRequest) Kind() models.Kind { return models.KindCertificate }

func (r *CertificateRequest) missing() []string {
	return validate.Missing(
		validate.NotBlank("tipo", r.Tipo),
		validate.Present("precio", r.Precio != nil),
	)
}

func (r *CertificateRequest) draft(_ Options, _ time.Time) draft {
	rec := &models.Certificate{
		Tipo:      strings.TrimSpace(r.Tipo),
		Precio:    firstFloat(r.Precio),
		Estado:    models.EstadoEnProceso,
		UserName:  strings.TrimSpace(r.UserName),
		UserEmail: strings.TrimSpace(r.UserEmail),
	}
	return draft{
		rec:    rec,
		upload: newUpload(r.DocumentBase64, r.DocumentName),
		attach: func(a *models.Attachment) { rec.Attachment = a },
		card:   func(o Options) notify.Card { return certificateCard(rec) },
		ack: func() Ack {
			return Ack{
				Success: true,
				Message: "Certificado solicitado exitosamente",
				ID:      rec.ID,
				Status:  rec.Status,
				Data: CertificateAck{
					ID: rec.ID, Tipo: rec.Tipo, Precio: rec.Precio, Estado: rec.Estado,
					Status: rec.Status, Fecha: rec.CreatedAtISO, DocumentURL: attachmentURL(rec.Attachment),
				},
			}
		},
	}
}

// ---- Library reservations ----

// ReservationRequest is the body of POST /biblioteca/reservar.
type ReservationRequest struct {
	LibroID   string `json:"libroId"`
	Titulo    string `json:"titulo"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// ReservationAck is returned for a reservation.
type ReservationAck struct {
	ID              string        `json:"id"`
	LibroID         string        `json:"libroId"`
	Titulo          string        `json:"titulo"`
	Status          models.Status `json:"status"`
	FechaReserva    string        `json:"fechaReserva"`
	FechaDevolucion string        `json:"fechaDevolucion"`
}

func (r *ReservationRequest) Kind() models.Kind { return models.KindReservation }

func (r *ReservationRequest) missing() []string {
	return validate.Missing(
		validate.NotBlank("libroId", r.LibroID),
		validate.NotBlank("titulo", r.Titulo),
	)
}

func (r *ReservationRequest) draft(o Options, now time.Time) draft {
	rec := &models.Reservation{
		LibroID:         strings.TrimSpace(r.LibroID),
		Titulo:          strings.TrimSpace(r.Titulo),
		FechaReserva:    now.UTC().Format(time.RFC3339),
		FechaDevolucion: now.Add(o.ReservationPeriod).UTC().Format(time.RFC3339),
		UserName:        strings.TrimSpace(r.UserName),
		UserEmail:       strings.TrimSpace(r.UserEmail),
	}
	return draft{
		rec:  rec,
		card: func(o Options) notify.Card { return reservationCard(rec) },
		ack: func() Ack {
			return Ack{
				Success: true,
				Message: "Libro reservado exitosamente",
				ID:      rec.ID,
				Status:  rec.Status,
				Data: ReservationAck{
					ID: rec.ID, LibroID: rec.LibroID, Titulo: rec.Titulo, Status: rec.Status,
					FechaReserva: rec.FechaReserva, FechaDevolucion: rec.FechaDevolucion,
				},
			}
		},
	}
}

// ---- helpers ----

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func firstFloat(vs ...*float64) float64 {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

func attachmentURL(a *models.Attachment) *string {
	if a == nil {
		return nil
	}
	u := a.URL
	return &u
}
