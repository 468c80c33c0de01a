package records

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("records: validation failed")

// Keyed is implemented by every value that can live in a Collection.
type Keyed interface {
	Key() int
}

// Record is a validated user entity.
type Record struct {
	ID        int    `json:"id" validate:"gt=0"`
	FirstName string `json:"firstName" validate:"required,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
	Age       int    `json:"age" validate:"gte=1,lte=120"`
	Email     string `json:"email" validate:"required,email,strictemail,emaildomain"`
	Phone     string `json:"phone" validate:"required,phone"`
	BirthDate string `json:"birthDate" validate:"required,isodate,notfuture"`
}

// Key returns the record identifier.
func (r Record) Key() int {
	return r.ID
}

// FullName joins first and last name for user-facing messages.
func (r Record) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Raw is the string form of a Record as captured by a form.
type Raw struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Age       string `json:"age"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birthDate"`
}

// Serialize converts a Record back into its raw form representation.
func Serialize(r Record) Raw {
	return Raw{
		ID:        strconv.Itoa(r.ID),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Age:       strconv.Itoa(r.Age),
		Email:     r.Email,
		Phone:     r.Phone,
		BirthDate: r.BirthDate,
	}
}

// FieldErrors maps a field name to the message of its first violated rule.
type FieldErrors map[string]string

// ValidationError carries per-field messages. No partial Record accompanies it.
// Cause is set when the messages were derived from a server rejection.
type ValidationError struct {
	Fields FieldErrors
	Cause  error
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports ErrValidation equivalence.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Messages returns the field messages in field-name order.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	messages := make([]string, 0, len(names))
	for _, name := range names {
		messages = append(messages, e.Fields[name])
	}
	return messages
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: message}}
}

// Product is a read-only catalogue entry.
type Product struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating"`
	Stock       int     `json:"stock"`
	Description string  `json:"description"`
}

// Key returns the product identifier.
func (p Product) Key() int {
	return p.ID
}

const missingText = "N/A"

// Normalize fills blank text fields with the catalogue placeholder.
func (p Product) Normalize() Product {
	p.Title = orPlaceholder(p.Title)
	p.Brand = orPlaceholder(p.Brand)
	p.Category = orPlaceholder(p.Category)
	p.Description = orPlaceholder(p.Description)
	return p
}

func orPlaceholder(value string) string {
	if strings.TrimSpace(value) == "" {
		return missingText
	}
	return value
}
