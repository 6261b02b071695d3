package submission

import (
	"errors"
	"strings"

	"github.com/kylejryan/ucehub-portal/internal/models"
)

// Errors returned by Service. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrMalformed         = errors.New("invalid json")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDependency        = errors.New("dependency failure")
)

// ValidationError lists the required fields that were absent or empty.
type ValidationError struct {
	Kind   models.Kind
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Message is the client-facing text for the error.
func (e *ValidationError) Message() string {
	return "Datos incompletos. Se requiere: " + strings.Join(e.Fields, ", ")
}
