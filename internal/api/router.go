package api

import (
	"net/http"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/submission"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps are the collaborators of the router.
type Deps struct {
	Service    *submission.Service
	Log        *zap.Logger
	AuthSecret string
	Now        func() time.Time // defaults to time.Now
}

// NewRouter builds the HTTP surface. Every route is served both at the root
// and under /api, which is where the Teams front-end calls it.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handler{svc: d.Service, log: d.Log, authSecret: d.AuthSecret, now: d.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(limitBody)
	r.Use(subject)

	r.Get("/health", h.health)
	r.Group(h.routes)
	r.Route("/api", h.routes)
	return r
}

func (h *handler) routes(r chi.Router) {
	r.Post("/auth/login", h.login)

	// Cafeteria
	r.Get("/cafeteria/menu", h.menu)
	r.Post("/cafeteria/order", h.submit(models.KindOrder))
	r.Get("/cafeteria/orders", h.list(models.KindOrder))

	// Support
	r.Post("/support/ticket", h.submit(models.KindTicket))
	r.Get("/support/tickets", h.list(models.KindTicket))
	r.Post("/support/tickets/resolve", h.transition(models.KindTicket, "ticketId", models.Resolve))

	// Justifications
	r.Post("/justifications/submit", h.submit(models.KindJustification))
	r.Get("/justifications/list", h.list(models.KindJustification))
	r.Post("/justifications/approve", h.transition(models.KindJustification, "justificationId", models.Approve))
	r.Post("/justifications/reject", h.transition(models.KindJustification, "justificationId", models.Reject))

	// Certificates
	r.Post("/certificados/solicitar", h.submit(models.KindCertificate))
	r.Get("/certificados", h.list(models.KindCertificate))

	// Library
	r.Post("/biblioteca/reservar", h.submit(models.KindReservation))
	r.Get("/biblioteca/reservas", h.list(models.KindReservation))

	// Records and documents
	r.Get("/records/{id}", h.record)
	r.Get("/documents/presigned/{id}/{fileName}", h.documentLink)
	r.Get("/documents/download/{id}/{fileName}", h.download)
	r.Post("/documents/upload-url", h.uploadURL)
}
