// Package localstore implements the embedded, possibly-stale client store of
// transaction records. It is the only shared mutable resource between the
// UI-facing mutation API and the sync engine: both sides go through its
// operations, and all mutations serialize through a single mutex so a user
// write cannot race the sync engine's apply phase on the same record.
package localstore

import (
	"errors"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/uuid"
)

// Notifier receives a fire-and-forget signal after each successful
// user-facing mutation. The sync runner registers itself here so local writes
// schedule a best-effort sync without blocking the caller.
type Notifier interface {
	Trigger()
}

// Store is the embedded client-side record store. Open it once at process
// start and inject it into both the mutation API and the sync engine.
type Store struct {
	db       *gorm.DB
	mu       sync.Mutex
	notifier Notifier
	now      func() int64
}

// Open opens (or creates) the embedded database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return New(db)
}

// New wraps an existing GORM connection. Used by tests to run against an
// in-memory database.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.Transaction{}, &models.SyncCheckpoint{}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &Store{
		db:  db,
		now: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// SetNotifier registers the mutation notifier. Pass nil to disable.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// SetClock overrides the millisecond clock. Used by tests.
func (s *Store) SetClock(now func() int64) {
	s.now = now
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notify signals the registered notifier, if any. Called with s.mu held.
func (s *Store) notify() {
	if s.notifier != nil {
		s.notifier.Trigger()
	}
}

// CreateFields holds the caller-supplied fields for a new record. Amount is
// a pointer so an absent amount can be distinguished from an explicit zero.
type CreateFields struct {
	Amount      *int64
	Type        models.TransactionType
	Category    string
	Description string
	Date        string
	Tags        models.Tags
	Notes       string
}

// UpdateFields is the tagged set of mutable fields for Update. Only non-nil
// fields are merged; unknown fields cannot be expressed, so they are rejected
// at the API boundary by construction.
type UpdateFields struct {
	Amount      *int64
	Type        *models.TransactionType
	Category    *string
	Description *string
	Date        *string
	Tags        *models.Tags
	Notes       *string
}

// Create inserts a new record with a fresh id, local timestamps, sync status
// "created", and version 1. The record will reach the server on the next
// push.
func (s *Store) Create(userID string, fields CreateFields) (*models.Transaction, error) {
	if userID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "user id is required")
	}
	if fields.Amount == nil {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "amount is required")
	}
	if *fields.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "amount must not be negative")
	}
	if !models.ValidType(fields.Type) {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "type must be income or expense")
	}
	if fields.Category == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "category is required")
	}
	if fields.Date == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "date is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record := &models.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      *fields.Amount,
		Type:        fields.Type,
		Category:    fields.Category,
		Description: fields.Description,
		Date:        fields.Date,
		Tags:        fields.Tags,
		Notes:       fields.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  models.SyncStatusCreated,
		Version:     1,
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.notify()
	return record, nil
}

// Update merges the given fields into an existing record, bumps updated_at
// and version, and marks the record dirty. A record that is still "created"
// stays "created": it has never reached the server, so there is nothing to
// mark as updated there. Tombstoned records cannot be edited.
func (s *Store) Update(id string, fields UpdateFields) (*models.Transaction, error) {
	if fields.Amount != nil && *fields.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "amount must not be negative")
	}
	if fields.Type != nil && !models.ValidType(*fields.Type) {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "type must be income or expense")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.get(id)
	if err != nil {
		return nil, err
	}

	if fields.Amount != nil {
		record.Amount = *fields.Amount
	}
	if fields.Type != nil {
		record.Type = *fields.Type
	}
	if fields.Category != nil {
		record.Category = *fields.Category
	}
	if fields.Description != nil {
		record.Description = *fields.Description
	}
	if fields.Date != nil {
		record.Date = *fields.Date
	}
	if fields.Tags != nil {
		record.Tags = *fields.Tags
	}
	if fields.Notes != nil {
		record.Notes = *fields.Notes
	}

	record.UpdatedAt = s.now()
	record.Version++
	if record.SyncStatus != models.SyncStatusCreated {
		record.SyncStatus = models.SyncStatusUpdated
	}

	if err := s.db.Save(record).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.notify()
	return record, nil
}

// SoftDelete tombstones a record. The row stays in storage so the next push
// can propagate the deletion; user-facing queries stop returning it
// immediately.
func (s *Store) SoftDelete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.get(id)
	if err != nil {
		return err
	}

	record.UpdatedAt = s.now()
	record.Version++
	record.SyncStatus = models.SyncStatusDeleted

	if err := s.db.Save(record).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.notify()
	return nil
}

// Get returns a single record by id, excluding tombstones.
func (s *Store) Get(id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

// get looks up a live record by id. Called with s.mu held.
func (s *Store) get(id string) (*models.Transaction, error) {
	var record models.Transaction
	err := s.db.Where("id = ? AND sync_status <> ?", id, models.SyncStatusDeleted).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &record, nil
}

// VisibleByUser returns the user's records for display, excluding
// tombstones, newest date first.
func (s *Store) VisibleByUser(userID string) ([]models.Transaction, error) {
	var records []models.Transaction
	err := s.db.
		Where("user_id = ? AND sync_status <> ?", userID, models.SyncStatusDeleted).
		Order("date DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return records, nil
}

// AllByUser returns every record for the user including tombstones, in no
// particular order. The sync engine scans this to compute its delta.
func (s *Store) AllByUser(userID string) ([]models.Transaction, error) {
	var records []models.Transaction
	if err := s.db.Where("user_id = ?", userID).Find(&records).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return records, nil
}

// ApplyRemote upserts a pulled record verbatim. Remote state always
// overwrites local state during the apply phase; conflict resolution happens
// only on the server. Re-applying the same record is a no-op, which is what
// makes re-pulling a window after a failed push safe.
func (s *Store) ApplyRemote(record *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// RemovePulled hard-removes a record the server reports as deleted. The
// server retains the authoritative tombstone; keeping a local one would only
// re-push a deletion the server already knows about. Removing an absent id
// is a no-op.
func (s *Store) RemovePulled(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Delete(&models.Transaction{}, "id = ?", id).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// MarkSynced acknowledges a pushed record. A dirty record flips to synced
// only if its version still matches the version captured when the delta was
// computed; an edit made while the push was in flight keeps the record dirty
// for the next cycle. An acknowledged tombstone is removed outright.
func (s *Store) MarkSynced(id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record models.Transaction
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // already removed by a pulled deletion
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if record.Deleted() {
		if err := s.db.Delete(&record).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	}

	if record.Version != version {
		logger.Get().Debugw("record changed during push, leaving dirty",
			"id", id, "pushed_version", version, "current_version", record.Version)
		return nil
	}

	record.SyncStatus = models.SyncStatusSynced
	record.LastSyncedAt = s.now()
	if err := s.db.Save(&record).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// Checkpoint returns the user's last pull checkpoint, 0 if never synced.
func (s *Store) Checkpoint(userID string) (int64, error) {
	var cp models.SyncCheckpoint
	err := s.db.Where("user_id = ?", userID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return cp.LastPulledAt, nil
}

// SetCheckpoint advances the user's pull checkpoint. The checkpoint is
// monotonic: attempts to move it backwards are ignored.
func (s *Store) SetCheckpoint(userID string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.checkpointLocked(userID)
	if err != nil {
		return err
	}
	if ts < current {
		return nil
	}

	cp := models.SyncCheckpoint{UserID: userID, LastPulledAt: ts}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_pulled_at"}),
	}).Create(&cp).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func (s *Store) checkpointLocked(userID string) (int64, error) {
	var cp models.SyncCheckpoint
	err := s.db.Where("user_id = ?", userID).First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return cp.LastPulledAt, nil
}
