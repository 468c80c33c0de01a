package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

var (
	errMissingDatabase = errors.New("users: database connection required")
	// ErrUserNotFound reports that no record carries the requested id.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrDuplicateUser matches every *DuplicateError via errors.Is.
	ErrDuplicateUser = errors.New("users: duplicate user")
)

const (
	fieldID    = "id"
	fieldEmail = "email"
)

// DuplicateError names the unique field a write collided on.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s %q already exists", ErrDuplicateUser.Error(), e.Field, e.Value)
}

// Is reports ErrDuplicateUser equivalence.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateUser
}

// ServiceError wraps failures with a stable "<operation>.<reason>" code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "users.service.new"
	opList       = "users.list"
	opGet        = "users.get"
	opCreate     = "users.create"
	opUpdate     = "users.update"
	opDelete     = "users.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the user record service.
type ServiceConfig struct {
	Database *gorm.DB
	Schema   *records.Schema
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service stores validated user records.
type Service struct {
	db     *gorm.DB
	schema *records.Schema
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the user record service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	schema := cfg.Schema
	if schema == nil {
		schema = records.NewSchema(clock)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, schema: schema, clock: clock, logger: logger}, nil
}

// List returns every record, newest first.
func (s *Service) List(ctx context.Context) ([]records.Record, error) {
	var rows []UserRecord
	err := s.db.WithContext(ctx).
		Order("created_at_ns DESC").
		Order("record_id DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	out := make([]records.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id int) (records.Record, error) {
	row, err := s.find(s.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return records.Record{}, newServiceError(opGet, "not_found", ErrUserNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Int("record_id", id))
		return records.Record{}, newServiceError(opGet, "query_failed", err)
	}
	return row.toRecord(), nil
}

// Create validates and stores a new record. Id and email must be unused.
func (s *Service) Create(ctx context.Context, record records.Record) (records.Record, error) {
	validated, err := s.schema.ValidateRecord(record)
	if err != nil {
		return records.Record{}, err
	}
	row := fromRecord(validated)
	now := s.clock().UnixNano()
	row.CreatedAtNanos = now
	row.UpdatedAtNanos = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUnique(tx, row, 0); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return records.Record{}, s.wrapWriteError(opCreate, err, row.RecordID)
	}
	s.logger.Info("user record created", zap.Int("record_id", row.RecordID))
	return row.toRecord(), nil
}

// Update replaces the record stored under id. A zero record.ID keeps id;
// a different one renames the record.
func (s *Service) Update(ctx context.Context, id int, record records.Record) (records.Record, error) {
	if record.ID == 0 {
		record.ID = id
	}
	validated, err := s.schema.ValidateRecord(record)
	if err != nil {
		return records.Record{}, err
	}
	row := fromRecord(validated)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(tx, id)
		if err != nil {
			return err
		}
		if err := s.ensureUnique(tx, row, id); err != nil {
			return err
		}
		row.CreatedAtNanos = existing.CreatedAtNanos
		row.UpdatedAtNanos = s.clock().UnixNano()
		if row.RecordID != id {
			if err := tx.Where("record_id = ?", id).Delete(&UserRecord{}).Error; err != nil {
				return err
			}
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return records.Record{}, s.wrapWriteError(opUpdate, err, id)
	}
	return row.toRecord(), nil
}

// Delete removes the record with id.
func (s *Service) Delete(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Where("record_id = ?", id).Delete(&UserRecord{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.Int("record_id", id))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "not_found", ErrUserNotFound)
	}
	return nil
}

func (s *Service) find(db *gorm.DB, id int) (UserRecord, error) {
	var row UserRecord
	err := db.Where("record_id = ?", id).Take(&row).Error
	return row, err
}

// ensureUnique checks id and email against every record except the one
// currently stored under self.
func (s *Service) ensureUnique(tx *gorm.DB, row UserRecord, self int) error {
	var count int64
	if row.RecordID != self {
		if err := tx.Model(&UserRecord{}).Where("record_id = ?", row.RecordID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &DuplicateError{Field: fieldID, Value: fmt.Sprint(row.RecordID)}
		}
	}
	if err := tx.Model(&UserRecord{}).
		Where("lower(email) = ? AND record_id <> ?", strings.ToLower(row.Email), self).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateError{Field: fieldEmail, Value: row.Email}
	}
	return nil
}

func (s *Service) wrapWriteError(operation string, err error, id int) error {
	var duplicateErr *DuplicateError
	switch {
	case errors.As(err, &duplicateErr):
		return newServiceError(operation, "duplicate_"+duplicateErr.Field, duplicateErr)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return newServiceError(operation, "not_found", ErrUserNotFound)
	default:
		s.logError(operation, "write_failed", err, zap.Int("record_id", id))
		return newServiceError(operation, "write_failed", err)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		base = append(base, zap.Error(err))
	}
	s.logger.Error("user record operation failed", append(base, fields...)...)
}
