package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/uuid"
)

// syncService is the authoritative side of the sync protocol. It computes
// "changed since" sets for pulls and performs conflict-aware upserts for
// pushes. The server clock is the single source of truth for created_at,
// updated_at, and last_synced_at on the records it stores.
type syncService struct {
	db  *gorm.DB
	now func() int64
}

// NewSyncService creates a new SyncServicer.
func NewSyncService(db *gorm.DB) SyncServicer {
	return &syncService{
		db:  db,
		now: func() int64 { return time.Now().UnixMilli() },
	}
}

// ChangesSince returns all of the user's records with updated_at strictly
// greater than since, partitioned into the wire sets: created if the record
// was born inside the window, deleted if it is a tombstone, updated
// otherwise. The response carries the server's current time, which becomes
// the client's next checkpoint.
func (s *syncService) ChangesSince(userID string, since int64) (*models.PullResponse, error) {
	// Capture the timestamp before the query: a record written while the
	// query runs may show up in both this window and the next, and a
	// duplicate apply is a no-op, whereas a missed record would be lost.
	timestamp := s.now()

	var records []models.Transaction
	err := s.db.
		Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := &models.PullResponse{Timestamp: timestamp}
	tx := &resp.Changes.Transactions
	for _, rec := range records {
		switch {
		case rec.Deleted():
			tx.Deleted = append(tx.Deleted, rec.ID)
		case rec.CreatedAt > since:
			tx.Created = append(tx.Created, rec)
		default:
			tx.Updated = append(tx.Updated, rec)
		}
	}
	return resp, nil
}

// ApplyChanges applies a pushed changeset. Each record is upserted
// atomically; the count of records processed is returned, including writes
// discarded by conflict resolution (a discard is an outcome, not an error).
func (s *syncService) ApplyChanges(userID string, changes models.ChangeSet) (int, error) {
	tx := changes.Transactions
	pushed := 0

	for _, rec := range tx.Created {
		if err := s.upsertOne(userID, rec); err != nil {
			return pushed, err
		}
		pushed++
	}
	for _, rec := range tx.Updated {
		if err := s.upsertOne(userID, rec); err != nil {
			return pushed, err
		}
		pushed++
	}
	for _, id := range tx.Deleted {
		if err := s.deleteOne(userID, id); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

// upsertOne reconciles a single incoming record against the remote store.
//
// No existing row: insert with server-assigned timestamps; the client's
// created_at and updated_at are discarded. Existing row: last-write-wins by
// the client-reported modification time, not by arrival order — the incoming
// write is applied only if its updated_at is strictly greater than the
// stored one, and the losing write is silently dropped (the losing client
// will be overwritten locally on its next pull).
func (s *syncService) upsertOne(userID string, incoming models.Transaction) error {
	return s.db.Transaction(func(dbtx *gorm.DB) error {
		incoming.UserID = userID
		if incoming.ID == "" {
			incoming.ID = uuid.New()
		}

		var existing models.Transaction
		err := dbtx.Where("id = ?", incoming.ID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		now := s.now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			incoming.CreatedAt = now
			incoming.UpdatedAt = now
			incoming.LastSyncedAt = now
			incoming.SyncStatus = models.SyncStatusSynced
			if createErr := dbtx.Create(&incoming).Error; createErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, createErr)
			}
			return nil
		}

		if existing.UserID != userID {
			return apperrors.ErrForbidden
		}

		if incoming.UpdatedAt <= existing.UpdatedAt {
			logger.Get().Infow("conflict discarded",
				"id", incoming.ID,
				"user_id", userID,
				"incoming_updated_at", incoming.UpdatedAt,
				"existing_updated_at", existing.UpdatedAt,
			)
			return nil
		}

		existing.Amount = incoming.Amount
		existing.Type = incoming.Type
		existing.Category = incoming.Category
		existing.Description = incoming.Description
		existing.Date = incoming.Date
		existing.Tags = incoming.Tags
		existing.Notes = incoming.Notes
		existing.Version = incoming.Version
		existing.UpdatedAt = now
		existing.LastSyncedAt = now
		existing.SyncStatus = models.SyncStatusSynced

		if saveErr := dbtx.Save(&existing).Error; saveErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, saveErr)
		}
		return nil
	})
}

// deleteOne applies a pushed deletion as a tombstone upsert: the row is
// retained with status deleted so clients that have not yet pulled the
// deletion still receive it. A deletion for an id the server has never seen
// stores a bare tombstone.
func (s *syncService) deleteOne(userID, id string) error {
	return s.db.Transaction(func(dbtx *gorm.DB) error {
		now := s.now()

		var existing models.Transaction
		err := dbtx.Where("id = ?", id).First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			tombstone := models.Transaction{
				ID:           id,
				UserID:       userID,
				CreatedAt:    now,
				UpdatedAt:    now,
				LastSyncedAt: now,
				SyncStatus:   models.SyncStatusDeleted,
				Version:      1,
			}
			if createErr := dbtx.Create(&tombstone).Error; createErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, createErr)
			}
			return nil
		}

		if existing.UserID != userID {
			return apperrors.ErrForbidden
		}
		if existing.Deleted() {
			return nil
		}

		existing.SyncStatus = models.SyncStatusDeleted
		existing.UpdatedAt = now
		existing.LastSyncedAt = now
		existing.Version++

		if saveErr := dbtx.Save(&existing).Error; saveErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, saveErr)
		}
		return nil
	})
}
