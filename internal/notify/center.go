// Package notify collects user-facing error notifications until dismissed.
package notify

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MarcoPoloResearchLab/roster/internal/apiclient"
	"github.com/MarcoPoloResearchLab/roster/internal/cache"
	"github.com/MarcoPoloResearchLab/roster/internal/forms"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// Kind classifies a notification.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindDuplicate   Kind = "duplicate"
	KindNotFound    Kind = "not_found"
	KindAuthExpired Kind = "auth_expired"
	KindNetwork     Kind = "network"
	KindSavedLocal  Kind = "saved_locally"
	KindError       Kind = "error"
)

// Notification is one dismissible message.
type Notification struct {
	ID        string
	Kind      Kind
	Message   string
	CreatedAt time.Time
}

// Center stores notifications, oldest first.
type Center struct {
	mu      sync.Mutex
	clock   func() time.Time
	entropy *ulid.MonotonicEntropy
	items   []Notification
}

// NewCenter builds an empty Center. A nil clock uses time.Now.
func NewCenter(clock func() time.Time) *Center {
	if clock == nil {
		clock = time.Now
	}
	return &Center{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Publish records err and returns the notification. Nil errors are ignored.
func (c *Center) Publish(err error) (Notification, bool) {
	if err == nil {
		return Notification{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	notification := Notification{
		ID:        ulid.MustNew(ulid.Timestamp(now), c.entropy).String(),
		Kind:      Classify(err),
		Message:   err.Error(),
		CreatedAt: now,
	}
	c.items = append(c.items, notification)
	return notification, true
}

// Dismiss removes the notification with id and reports whether it existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for index, item := range c.items {
		if item.ID == id {
			c.items = append(c.items[:index:index], c.items[index+1:]...)
			return true
		}
	}
	return false
}

// List returns every pending notification, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

// Latest returns the newest pending notification.
func (c *Center) Latest() (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return Notification{}, false
	}
	return c.items[len(c.items)-1], true
}

// Classify maps an error onto a notification kind.
func Classify(err error) Kind {
	var (
		validationErr *records.ValidationError
		duplicateErr  *apiclient.DuplicateKeyError
		notFoundErr   *apiclient.NotFoundError
		expiredErr    *apiclient.AuthExpiredError
		networkErr    *apiclient.NetworkError
		fetchErr      *cache.FetchError
		fallbackErr   *forms.FallbackError
	)
	switch {
	case errors.As(err, &duplicateErr):
		return KindDuplicate
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &fallbackErr):
		return KindSavedLocal
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &expiredErr):
		return KindAuthExpired
	case errors.As(err, &networkErr):
		return KindNetwork
	case errors.As(err, &fetchErr):
		return KindNetwork
	default:
		return KindError
	}
}
