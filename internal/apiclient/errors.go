package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches any 401 response that is not an expiry.
	ErrUnauthorized = errors.New("apiclient: not authenticated")
	// ErrReadOnly is returned by mutations on read-only collections.
	ErrReadOnly = errors.New("apiclient: collection is read-only")
)

// NotFoundError reports a 404 for a single resource.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// DuplicateKeyError reports a uniqueness conflict on Field.
type DuplicateKeyError struct {
	Field   string
	Value   string
	Message string
}

func (e *DuplicateKeyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("duplicate %s %s", e.Field, e.Value)
}

// AuthExpiredError reports an expired session token.
type AuthExpiredError struct {
	Message string
}

func (e *AuthExpiredError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "session expired, please log in again"
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError carries any other non-success response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

// Is matches ErrUnauthorized for 401 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}
