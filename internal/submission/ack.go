package submission

import "github.com/kylejryan/ucehub-portal/internal/models"

// Ack is the client acknowledgement of a submission or transition.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	ID     string        `json:"-"`
	Status models.Status `json:"-"`
}

// TransitionAck is the data of a transition acknowledgement.
type TransitionAck struct {
	ID        string        `json:"id"`
	Status    models.Status `json:"status"`
	UpdatedAt int64         `json:"updatedAt"`
}

var transitionMessages = map[string]string{
	models.Approve.Name: "Justificación aprobada",
	models.Reject.Name:  "Justificación rechazada",
	models.Resolve.Name: "Ticket resuelto",
}

// TransitionAcked builds the acknowledgement for an applied transition.
func TransitionAcked(t models.Transition, h *models.Header) Ack {
	return Ack{
		Success: true,
		Message: transitionMessages[t.Name],
		ID:      h.ID,
		Status:  h.Status,
		Data:    TransitionAck{ID: h.ID, Status: h.Status, UpdatedAt: h.UpdatedAt},
	}
}
