package cache

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// IntentKind names the mutation an Intent requests.
type IntentKind string

const (
	IntentCreate IntentKind = "create"
	IntentUpdate IntentKind = "update"
	IntentDelete IntentKind = "delete"
)

// Intent is a pending mutation. Record is used by create and update, ID by delete.
type Intent[T records.Keyed] struct {
	Kind   IntentKind
	Record T
	ID     int
}

// Outcome is how an Intent resolved.
type Outcome[T records.Keyed] struct {
	Confirmed bool
	Record    T
	ID        int
	Err       error
}

// Apply dispatches intent to the matching mutation.
func (c *Cache[T]) Apply(ctx context.Context, intent Intent[T]) Outcome[T] {
	switch intent.Kind {
	case IntentCreate:
		confirmed, err := c.Create(ctx, intent.Record)
		return outcomeOf(confirmed, intent.Record.Key(), err)
	case IntentUpdate:
		confirmed, err := c.Update(ctx, intent.Record)
		return outcomeOf(confirmed, intent.Record.Key(), err)
	case IntentDelete:
		err := c.Delete(ctx, intent.ID)
		return Outcome[T]{Confirmed: err == nil, ID: intent.ID, Err: err}
	default:
		return Outcome[T]{ID: intent.ID, Err: fmt.Errorf("cache: unknown intent %q", intent.Kind)}
	}
}

func outcomeOf[T records.Keyed](record T, id int, err error) Outcome[T] {
	if err != nil {
		return Outcome[T]{ID: id, Err: err}
	}
	return Outcome[T]{Confirmed: true, Record: record, ID: record.Key()}
}
