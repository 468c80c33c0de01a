package records

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, time.June, 15, 9, 30, 0, 0, time.Local)
}

func validRecord() Record {
	return Record{
		ID:        7,
		FirstName: "Anna",
		LastName:  "Perera",
		Age:       31,
		Email:     "anna.perera@example.com",
		Phone:     "+94 77 123 4567",
		BirthDate: "1993-02-11",
	}
}

func TestValidateRoundTripsSerializedRecords(t *testing.T) {
	schema := NewSchema(fixedClock)
	samples := []Record{
		validRecord(),
		{ID: 1, FirstName: "Bob", LastName: "Stone", Age: 120, Email: "bob@mail.co", Phone: "(555) 123-4567", BirthDate: "1904-06-15"},
		{ID: 42, FirstName: strings.Repeat("x", 50), LastName: "Y", Age: 1, Email: "a_b+c@sub.domain.org", Phone: "+1-800-555-0199", BirthDate: "2024-06-15"},
	}
	for _, sample := range samples {
		got, err := schema.Validate(Serialize(sample))
		if err != nil {
			t.Fatalf("expected %+v to validate, got %v", sample, err)
		}
		if got != sample {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, sample)
		}
	}
}

func TestValidateReportsFirstViolatedRulePerField(t *testing.T) {
	schema := NewSchema(fixedClock)
	testCases := []struct {
		name    string
		mutate  func(*Raw)
		field   string
		message string
	}{
		{name: "zero-id", mutate: func(r *Raw) { r.ID = "0" }, field: "id", message: "ID must be greater than 0"},
		{name: "non-numeric-id", mutate: func(r *Raw) { r.ID = "abc" }, field: "id", message: "ID must be a number"},
		{name: "empty-first-name", mutate: func(r *Raw) { r.FirstName = "" }, field: "firstName", message: "First name is required"},
		{name: "long-last-name", mutate: func(r *Raw) { r.LastName = strings.Repeat("z", 51) }, field: "lastName", message: "Last name must be less than 50 characters"},
		{name: "age-zero", mutate: func(r *Raw) { r.Age = "0" }, field: "age", message: "Age must be greater than 0"},
		{name: "age-too-high", mutate: func(r *Raw) { r.Age = "121" }, field: "age", message: "Age must be less than 120"},
		{name: "age-text", mutate: func(r *Raw) { r.Age = "old" }, field: "age", message: "Age must be a number"},
		{name: "email-empty", mutate: func(r *Raw) { r.Email = "" }, field: "email", message: "Email is required"},
		{name: "email-malformed", mutate: func(r *Raw) { r.Email = "not-an-email" }, field: "email", message: "Invalid email format"},
		{name: "phone-empty", mutate: func(r *Raw) { r.Phone = "" }, field: "phone", message: "Phone number is required"},
		{name: "phone-letters", mutate: func(r *Raw) { r.Phone = "call me" }, field: "phone", message: "Please enter a valid phone number (e.g., +1 123 456 7890 or +94 77 123 4567)"},
		{name: "birth-date-empty", mutate: func(r *Raw) { r.BirthDate = "" }, field: "birthDate", message: "Birth date is required"},
		{name: "birth-date-garbage", mutate: func(r *Raw) { r.BirthDate = "11/02/1993" }, field: "birthDate", message: "Birth date must be a valid date"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			raw := Serialize(validRecord())
			testCase.mutate(&raw)
			record, err := schema.Validate(raw)
			if err == nil {
				t.Fatalf("expected validation failure")
			}
			if record != (Record{}) {
				t.Fatalf("expected no partial record, got %+v", record)
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is ErrValidation")
			}
			if len(validationErr.Fields) != 1 {
				t.Fatalf("expected exactly one field error, got %v", validationErr.Fields)
			}
			if validationErr.Fields[testCase.field] != testCase.message {
				t.Fatalf("unexpected message for %s: %q", testCase.field, validationErr.Fields[testCase.field])
			}
		})
	}
}

func TestValidateBirthDateBoundary(t *testing.T) {
	schema := NewSchema(fixedClock)
	today := fixedClock().Format("2006-01-02")
	tomorrow := fixedClock().AddDate(0, 0, 1).Format("2006-01-02")

	raw := Serialize(validRecord())
	raw.BirthDate = today
	if _, err := schema.Validate(raw); err != nil {
		t.Fatalf("expected today to be accepted, got %v", err)
	}

	raw.BirthDate = tomorrow
	_, err := schema.Validate(raw)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected tomorrow to be rejected, got %v", err)
	}
	if validationErr.Fields["birthDate"] != "Birth date cannot be in the future" {
		t.Fatalf("unexpected birth date message %q", validationErr.Fields["birthDate"])
	}
}

func TestValidateCollectsEveryInvalidField(t *testing.T) {
	schema := NewSchema(fixedClock)
	_, err := schema.Validate(Raw{})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"id", "firstName", "lastName", "age", "email", "phone", "birthDate"} {
		if validationErr.Fields[field] == "" {
			t.Fatalf("expected a message for %s, got %v", field, validationErr.Fields)
		}
	}
}

func TestValidateAccountRules(t *testing.T) {
	schema := NewSchema(fixedClock)
	if err := schema.ValidateAccount("Jane Doe", "jane@example.com", "secret1", "secret1"); err != nil {
		t.Fatalf("expected account to validate, got %v", err)
	}

	err := schema.ValidateAccount("", "jane@", "123", "456")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := FieldErrors{
		"name":            "Name is required",
		"email":           "Please enter a valid email address",
		"password":        "Password must be at least 6 characters long",
		"confirmPassword": "Passwords do not match",
	}
	for field, message := range want {
		if validationErr.Fields[field] != message {
			t.Fatalf("unexpected %s message %q", field, validationErr.Fields[field])
		}
	}

	if err := schema.ValidateProfileName(strings.Repeat("n", 51)); err == nil {
		t.Fatalf("expected long profile name to be rejected")
	}
}
