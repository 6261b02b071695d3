// Package models defines the records persisted by the portal.
package models

import (
	"strings"
	"time"
)

// Kind discriminates record types. It selects validation rules, the table,
// the identifier prefix and the attachment namespace.
type Kind string

// Supported record kinds.
const (
	KindOrder         Kind = "order"
	KindTicket        Kind = "ticket"
	KindJustification Kind = "justification"
	KindCertificate   Kind = "certificate"
	KindReservation   Kind = "reservation"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindOrder, KindTicket, KindJustification, KindCertificate, KindReservation}

var kindPrefix = map[Kind]string{
	KindOrder:         "ORD",
	KindTicket:        "TICK",
	KindJustification: "JUST",
	KindCertificate:   "CERT",
	KindReservation:   "RES",
}

var kindNamespace = map[Kind]string{
	KindOrder:         "orders",
	KindTicket:        "tickets",
	KindJustification: "justifications",
	KindCertificate:   "certificates",
	KindReservation:   "reservations",
}

// Prefix returns the identifier prefix for the kind, e.g. "ORD".
func (k Kind) Prefix() string { return kindPrefix[k] }

// Namespace returns the plural name used for storage keys and cache keys.
func (k Kind) Namespace() string { return kindNamespace[k] }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindPrefix[k]
	return ok
}

// KindFromNamespace maps a storage namespace back to its kind.
func KindFromNamespace(ns string) (Kind, bool) {
	for k, v := range kindNamespace {
		if v == ns {
			return k, true
		}
	}
	return "", false
}

// KindFromID infers the kind from a prefixed identifier such as "JUST-01H...".
func KindFromID(id string) (Kind, bool) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return "", false
	}
	for k, p := range kindPrefix {
		if p == prefix {
			return k, true
		}
	}
	return "", false
}

// Status is the lifecycle tag of a record.
type Status string

// Possible values for Status
const (
	StatusPending  Status = "pending"
	StatusOpen     Status = "open"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusResolved Status = "resolved"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusResolved
}

// InitialStatus is the status a freshly submitted record of kind k starts in.
func InitialStatus(k Kind) Status {
	if k == KindTicket {
		return StatusOpen
	}
	return StatusPending
}

// Transition describes a one-way status change.
type Transition struct {
	Name  string
	To    Status
	From  []Status
	Stamp string // attribute holding the transition time in epoch millis
}

// Supported transitions.
var (
	Approve = Transition{Name: "approve", To: StatusApproved, From: []Status{StatusPending}, Stamp: "approvedAt"}
	Reject  = Transition{Name: "reject", To: StatusRejected, From: []Status{StatusPending}, Stamp: "rejectedAt"}
	Resolve = Transition{Name: "resolve", To: StatusResolved, From: []Status{StatusOpen}, Stamp: "resolvedAt"}
)

var kindTransitions = map[Kind][]Transition{
	KindJustification: {Approve, Reject},
	KindTicket:        {Resolve},
}

// Allows reports whether kind k exposes transition t.
func (k Kind) Allows(t Transition) bool {
	for _, c := range kindTransitions[k] {
		if c.Name == t.Name {
			return true
		}
	}
	return false
}

// Header carries the fields every record shares. It is embedded in each
// record type and flattened into the stored item.
type Header struct {
	ID           string `dynamodbav:"id" json:"id"`
	Kind         Kind   `dynamodbav:"kind" json:"kind"`
	Status       Status `dynamodbav:"status" json:"status"`
	CreatedAt    int64  `dynamodbav:"createdAt" json:"createdAt"`       // epoch millis
	CreatedAtISO string `dynamodbav:"createdAtISO" json:"createdAtISO"` // RFC3339 UTC
	UpdatedAt    int64  `dynamodbav:"updatedAt" json:"updatedAt"`
	SubmittedBy  string `dynamodbav:"submittedBy,omitempty" json:"submittedBy,omitempty"`
}

// Head returns the shared header so generic code can stamp it.
func (h *Header) Head() *Header { return h }

// Stamp sets id, kind, status and both timestamps for a new record.
func (h *Header) Stamp(id string, k Kind, now time.Time) {
	h.ID = id
	h.Kind = k
	h.Status = InitialStatus(k)
	h.CreatedAt = now.UnixMilli()
	h.CreatedAtISO = now.UTC().Format(time.RFC3339)
	h.UpdatedAt = h.CreatedAt
}

// Record is implemented by every persisted record type.
type Record interface {
	Head() *Header
}

// Attachment references a stored document.
type Attachment struct {
	Key          string `dynamodbav:"key" json:"key"`
	FileName     string `dynamodbav:"fileName" json:"fileName"`
	ContentType  string `dynamodbav:"contentType" json:"contentType"`
	URL          string `dynamodbav:"url" json:"url"`
	URLExpiresAt int64  `dynamodbav:"urlExpiresAt" json:"urlExpiresAt"`
	SizeBytes    int64  `dynamodbav:"sizeBytes,omitempty" json:"sizeBytes,omitempty"` // set by indexer
	ETag         string `dynamodbav:"etag,omitempty" json:"etag,omitempty"`
	UploadedAt   string `dynamodbav:"uploadedAt,omitempty" json:"uploadedAt,omitempty"`
}

// OrderItem is one line of a cafeteria order.
type OrderItem struct {
	ID       string  `dynamodbav:"id,omitempty" json:"id,omitempty"`
	Name     string  `dynamodbav:"name" json:"name"`
	Price    float64 `dynamodbav:"price" json:"price"`
	Quantity int     `dynamodbav:"quantity" json:"quantity"`
}

// Order is a cafeteria order.
type Order struct {
	Header
	UserName      string      `dynamodbav:"userName" json:"userName"`
	UserEmail     string      `dynamodbav:"userEmail" json:"userEmail"`
	Items         []OrderItem `dynamodbav:"items" json:"items"`
	TotalPrice    float64     `dynamodbav:"totalPrice" json:"totalPrice"`
	DeliveryTime  string      `dynamodbav:"deliveryTime" json:"deliveryTime"`
	Notes         string      `dynamodbav:"notes" json:"notes"`
	PaymentMethod string      `dynamodbav:"paymentMethod" json:"paymentMethod"`
}

// Ticket is a support ticket.
type Ticket struct {
	Header
	UserName    string `dynamodbav:"userName" json:"userName"`
	UserEmail   string `dynamodbav:"userEmail" json:"userEmail"`
	Category    string `dynamodbav:"category" json:"category"`
	Subject     string `dynamodbav:"subject" json:"subject"`
	Description string `dynamodbav:"description" json:"description"`
	Priority    string `dynamodbav:"priority" json:"priority"`
	ResolvedAt  int64  `dynamodbav:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}

// Justification is an absence justification, optionally with a document.
type Justification struct {
	Header
	UserName   string      `dynamodbav:"userName" json:"userName"`
	UserEmail  string      `dynamodbav:"userEmail" json:"userEmail"`
	StudentID  string      `dynamodbav:"studentId" json:"studentId"`
	Reason     string      `dynamodbav:"reason" json:"reason"`
	StartDate  string      `dynamodbav:"startDate" json:"startDate"`
	EndDate    string      `dynamodbav:"endDate" json:"endDate"`
	Attachment *Attachment `dynamodbav:"attachment" json:"attachment"`
	ApprovedAt int64       `dynamodbav:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	RejectedAt int64       `dynamodbav:"rejectedAt,omitempty" json:"rejectedAt,omitempty"`
}

// Certificate is a request for an academic certificate.
type Certificate struct {
	Header
	Tipo       string      `dynamodbav:"tipo" json:"tipo"`
	Precio     float64     `dynamodbav:"precio" json:"precio"`
	Estado     string      `dynamodbav:"estado" json:"estado"`
	UserName   string      `dynamodbav:"userName,omitempty" json:"userName,omitempty"`
	UserEmail  string      `dynamodbav:"userEmail,omitempty" json:"userEmail,omitempty"`
	Attachment *Attachment `dynamodbav:"attachment" json:"attachment"`
}

// Reservation is a library book reservation.
type Reservation struct {
	Header
	LibroID         string `dynamodbav:"libroId" json:"libroId"`
	Titulo          string `dynamodbav:"titulo" json:"titulo"`
	FechaReserva    string `dynamodbav:"fechaReserva" json:"fechaReserva"`
	FechaDevolucion string `dynamodbav:"fechaDevolucion" json:"fechaDevolucion"`
	UserName        string `dynamodbav:"userName,omitempty" json:"userName,omitempty"`
	UserEmail       string `dynamodbav:"userEmail,omitempty" json:"userEmail,omitempty"`
}

// EstadoEnProceso is the display label of a pending certificate request.
const EstadoEnProceso = "En proceso"

// MenuItem is a cafeteria menu entry.
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Available   bool    `json:"available"`
}

// Menu is the static cafeteria menu.
var Menu = []MenuItem{
	{ID: "1", Name: "Almuerzo Ejecutivo", Description: "Sopa del día + Segundo + Jugo natural", Price: 3.50, Category: "almuerzos", Available: true},
	{ID: "2", Name: "Desayuno Continental", Description: "Café + Pan artesanal + Huevos revueltos", Price: 2.50, Category: "desayunos", Available: true},
	{ID: "3", Name: "Snack Saludable", Description: "Bowl de frutas + Yogurt griego + Granola", Price: 2.00, Category: "snacks", Available: true},
	{ID: "4", Name: "Café Americano", Description: "Café de especialidad 100% arábica", Price: 1.00, Category: "bebidas", Available: true},
	{ID: "5", Name: "Jugo Natural", Description: "Naranja, Mora, Piña o Maracuyá", Price: 1.50, Category: "bebidas", Available: true},
	{ID: "6", Name: "Sandwich Integral", Description: "Pan integral + Pollo + Vegetales frescos", Price: 2.75, Category: "snacks", Available: true},
	{ID: "7", Name: "Ensalada César", Description: "Lechuga romana + Pollo grillado + Aderezo", Price: 3.00, Category: "almuerzos", Available: true},
	{ID: "8", Name: "Batido Proteico", Description: "Leche + Banano + Proteína + Avena", Price: 2.25, Category: "bebidas", Available: true},
}
