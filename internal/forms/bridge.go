// Package forms turns raw form input into validated records and routes them
// to the remote cache, falling back to local drafts when the server fails.
package forms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/apiclient"
	"github.com/MarcoPoloResearchLab/roster/internal/cache"
	"github.com/MarcoPoloResearchLab/roster/internal/drafts"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

var (
	errMissingSchema = errors.New("forms: schema is required")
	errMissingCache  = errors.New("forms: cache is required")
	errMissingDrafts = errors.New("forms: draft store is required")
)

// NextAvailableID returns the smallest positive id not used by collection.
func NextAvailableID[T records.Keyed](collection []T) int {
	ids := make([]int, 0, len(collection))
	for _, item := range collection {
		if item.Key() > 0 {
			ids = append(ids, item.Key())
		}
	}
	sort.Ints(ids)
	next := 1
	for _, id := range ids {
		if id > next {
			break
		}
		if id == next {
			next++
		}
	}
	return next
}

// FallbackError reports a remote failure after which the record was kept
// as a local draft.
type FallbackError struct {
	Record records.Record
	Err    error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("forms: kept %d locally: %v", e.Record.ID, e.Err)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// Bridge connects the record schema with the cache and draft store.
type Bridge struct {
	schema *records.Schema
	cache  *cache.Cache[records.Record]
	drafts *drafts.Store[records.Record]
	logger *zap.Logger
}

// BridgeConfig holds Bridge dependencies.
type BridgeConfig struct {
	Schema *records.Schema
	Cache  *cache.Cache[records.Record]
	Drafts *drafts.Store[records.Record]
	Logger *zap.Logger
}

// NewBridge validates cfg and builds a Bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Schema == nil {
		return nil, errMissingSchema
	}
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	if cfg.Drafts == nil {
		return nil, errMissingDrafts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{schema: cfg.Schema, cache: cfg.Cache, drafts: cfg.Drafts, logger: logger}, nil
}

// Submit validates raw and sends it to the server. New records without an
// id receive NextAvailableID(existing); edits keep raw.ID. A server
// rejection comes back as *records.ValidationError with the offending field
// set and nothing is stored locally. Any other remote failure keeps the
// record as a draft and returns *FallbackError.
func (b *Bridge) Submit(ctx context.Context, raw records.Raw, isEdit bool, existing []records.Record) (records.Record, error) {
	if !isEdit && strings.TrimSpace(raw.ID) == "" {
		raw.ID = strconv.Itoa(NextAvailableID(existing))
	}
	record, err := b.schema.Validate(raw)
	if err != nil {
		return records.Record{}, err
	}

	var confirmed records.Record
	if isEdit {
		confirmed, err = b.cache.Update(ctx, record)
	} else {
		confirmed, err = b.cache.Create(ctx, record)
	}
	if err != nil {
		if rejected := rejection(err); rejected != nil {
			return records.Record{}, rejected
		}
		return b.fallback(ctx, record, isEdit, err)
	}
	if _, err := b.drafts.Reconcile(ctx, []records.Record{confirmed}); err != nil {
		b.logger.Warn("failed to reconcile drafts",
			zap.Int("record_id", confirmed.ID),
			zap.Error(err))
	}
	return confirmed, nil
}

// rejection converts a server refusal into field errors. It returns nil for
// failures that should fall back to drafts.
func rejection(err error) error {
	var validationErr *records.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	var duplicateErr *apiclient.DuplicateKeyError
	if errors.As(err, &duplicateErr) {
		field := duplicateErr.Field
		if field == "" {
			field = "id"
		}
		return &records.ValidationError{
			Fields: records.FieldErrors{field: duplicateErr.Error()},
			Cause:  duplicateErr,
		}
	}
	return nil
}

func (b *Bridge) fallback(ctx context.Context, record records.Record, isEdit bool, remoteErr error) (records.Record, error) {
	b.logger.Warn("remote save failed, keeping draft",
		zap.Int("record_id", record.ID),
		zap.Bool("edit", isEdit),
		zap.Error(remoteErr))
	var err error
	if isEdit {
		err = b.drafts.Update(ctx, record)
	} else {
		err = b.drafts.Add(ctx, record)
	}
	if err != nil {
		return records.Record{}, errors.Join(remoteErr, err)
	}
	return record, &FallbackError{Record: record, Err: remoteErr}
}

// Delete removes a record from the server. When the server refuses and the
// id belongs to a local draft, the draft is removed instead and no error is
// returned.
func (b *Bridge) Delete(ctx context.Context, id int) error {
	remoteErr := b.cache.Delete(ctx, id)
	if remoteErr == nil {
		if _, err := b.drafts.Reconcile(ctx, []records.Record{{ID: id}}); err != nil {
			b.logger.Warn("failed to drop deleted draft", zap.Int("record_id", id), zap.Error(err))
		}
		return nil
	}
	if err := b.drafts.Remove(ctx, id); err != nil {
		return errors.Join(remoteErr, err)
	}
	if removed, ok := b.drafts.LastRemoved(); ok && removed.ID == id {
		return nil
	}
	return remoteErr
}
