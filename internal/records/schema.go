package records

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	isoDateLayout = "2006-01-02"

	fieldID  = "id"
	fieldAge = "age"
)

var (
	strictEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern       = regexp.MustCompile(`^(\+\d{1,3}[- ]?)?\(?\d{1,4}\)?[- ]?\d{1,4}[- ]?\d{1,9}$`)
	whitespace         = regexp.MustCompile(`\s`)
)

// messages is keyed by "<json field>.<validator tag>".
var messages = map[string]string{
	"id.gt":                   "ID must be greater than 0",
	"firstName.required":      "First name is required",
	"firstName.max":           "First name must be less than 50 characters",
	"lastName.required":       "Last name is required",
	"lastName.max":            "Last name must be less than 50 characters",
	"age.gte":                 "Age must be greater than 0",
	"age.lte":                 "Age must be less than 120",
	"email.required":          "Email is required",
	"email.email":             "Invalid email format",
	"email.strictemail":       "Please enter a valid email address",
	"email.emaildomain":       "Email must have a valid domain",
	"phone.required":          "Phone number is required",
	"phone.phone":             "Please enter a valid phone number (e.g., +1 123 456 7890 or +94 77 123 4567)",
	"birthDate.required":      "Birth date is required",
	"birthDate.isodate":       "Birth date must be a valid date",
	"birthDate.notfuture":     "Birth date cannot be in the future",
	"name.required":           "Name is required",
	"name.max":                "Name must be less than 50 characters",
	"password.required":       "Password is required",
	"password.min":            "Password must be at least 6 characters long",
	"confirmPassword.eqfield": "Passwords do not match",
}

const (
	messageIDNotNumber  = "ID must be a number"
	messageAgeNotNumber = "Age must be a number"
)

// Schema validates records against the user field rules.
type Schema struct {
	validate *validator.Validate
	clock    func() time.Time
}

// NewSchema constructs a Schema. The clock decides what "today" means for birth dates.
func NewSchema(clock func() time.Time) *Schema {
	if clock == nil {
		clock = time.Now
	}
	schema := &Schema{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    clock,
	}
	schema.validate.RegisterTagNameFunc(jsonFieldName)
	mustRegister(schema.validate, "strictemail", func(fl validator.FieldLevel) bool {
		return strictEmailPattern.MatchString(fl.Field().String())
	})
	mustRegister(schema.validate, "emaildomain", func(fl validator.FieldLevel) bool {
		_, domain, found := strings.Cut(fl.Field().String(), "@")
		return found && strings.Contains(domain, ".")
	})
	mustRegister(schema.validate, "phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(whitespace.ReplaceAllString(fl.Field().String(), ""))
	})
	mustRegister(schema.validate, "isodate", func(fl validator.FieldLevel) bool {
		_, err := schema.parseDate(fl.Field().String())
		return err == nil
	})
	mustRegister(schema.validate, "notfuture", func(fl validator.FieldLevel) bool {
		date, err := schema.parseDate(fl.Field().String())
		if err != nil {
			return false
		}
		return !date.After(schema.endOfToday())
	})
	return schema
}

// Validate assembles a Record from raw form values and validates it.
func (s *Schema) Validate(raw Raw) (Record, error) {
	fields := FieldErrors{}
	id, err := strconv.Atoi(strings.TrimSpace(raw.ID))
	if err != nil {
		fields[fieldID] = messageIDNotNumber
	}
	age, err := strconv.Atoi(strings.TrimSpace(raw.Age))
	if err != nil {
		fields[fieldAge] = messageAgeNotNumber
	}

	candidate := Record{
		ID:        id,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		Age:       age,
		Email:     raw.Email,
		Phone:     raw.Phone,
		BirthDate: raw.BirthDate,
	}
	record, err := s.ValidateRecord(candidate)
	if err == nil && len(fields) == 0 {
		return record, nil
	}
	var validationErr *ValidationError
	if err != nil && !errors.As(err, &validationErr) {
		return Record{}, err
	}
	if validationErr != nil {
		for name, message := range validationErr.Fields {
			if _, exists := fields[name]; !exists {
				fields[name] = message
			}
		}
	}
	return Record{}, &ValidationError{Fields: fields}
}

// ValidateRecord checks a typed Record. It returns the record unchanged on success.
func (s *Schema) ValidateRecord(record Record) (Record, error) {
	if err := s.check(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

type profileInput struct {
	Name string `json:"name" validate:"required,max=50"`
}

type accountInput struct {
	Name            string `json:"name" validate:"required,max=50"`
	Email           string `json:"email" validate:"required,strictemail"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
}

// ValidateProfileName applies the account display-name rules.
func (s *Schema) ValidateProfileName(name string) error {
	return s.check(profileInput{Name: strings.TrimSpace(name)})
}

// ValidateAccount applies the registration rules. An empty confirmation is not compared.
func (s *Schema) ValidateAccount(name, email, password, confirmPassword string) error {
	return s.check(accountInput{
		Name:            strings.TrimSpace(name),
		Email:           strings.TrimSpace(email),
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
}

func (s *Schema) check(value any) error {
	err := s.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := FieldErrors{}
	for _, fieldErr := range fieldErrs {
		name := fieldErr.Field()
		if _, exists := fields[name]; exists {
			continue
		}
		message, ok := messages[name+"."+fieldErr.Tag()]
		if !ok {
			message = fieldErr.Error()
		}
		fields[name] = message
	}
	return &ValidationError{Fields: fields}
}

func (s *Schema) parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	location := s.clock().Location()
	if date, err := time.ParseInLocation(isoDateLayout, trimmed, location); err == nil {
		return date, nil
	}
	return time.Parse(time.RFC3339, trimmed)
}

func (s *Schema) endOfToday() time.Time {
	now := s.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, int(999*time.Millisecond), now.Location())
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}
