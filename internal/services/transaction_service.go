package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/models"
	"fintrack/internal/pagination"
	"fintrack/internal/uuid"
)

// transactionService handles the server-side CRUD surface for transactions.
type transactionService struct {
	db  *gorm.DB
	now func() int64
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB) TransactionServicer {
	return &transactionService{
		db:  db,
		now: func() int64 { return time.Now().UnixMilli() },
	}
}

// CreateTransaction creates a new transaction directly on the server.
// Timestamps are server-assigned and the record is stored already synced.
func (s *transactionService) CreateTransaction(
	userID string,
	amount int64,
	transactionType models.TransactionType,
	category, description, date string,
	tags models.Tags,
	notes string,
) (*models.Transaction, error) {
	if amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "amount must not be negative")
	}
	if !models.ValidType(transactionType) {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "type must be income or expense")
	}
	if category == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "category is required")
	}
	if date == "" {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "date is required")
	}

	now := s.now()
	transaction := &models.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Type:         transactionType,
		Category:     category,
		Description:  description,
		Date:         date,
		Tags:         tags,
		Notes:        notes,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
		SyncStatus:   models.SyncStatusSynced,
		Version:      1,
	}

	if err := s.db.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return transaction, nil
}

// GetUserTransactions retrieves a paginated list of the user's transactions,
// newest date first. Tombstones are excluded from the user-facing listing.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	base := s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND sync_status <> ?", userID, models.SyncStatusDeleted)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Order("date DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetTransactionByID retrieves a transaction by ID for a specific user.
// Tombstones are not retrievable individually, only through bulk
// changed-since queries.
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	err := s.db.
		Where("id = ? AND user_id = ? AND sync_status <> ?", transactionID, userID, models.SyncStatusDeleted).
		First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// UpdateTransaction merges the given fields into an existing transaction and
// stamps it with fresh server timestamps.
func (s *transactionService) UpdateTransaction(userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error) {
	if fields.Amount != nil && *fields.Amount < 0 {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "amount must not be negative")
	}
	if fields.Type != nil && !models.ValidType(*fields.Type) {
		return nil, apperrors.WithMessage(apperrors.ErrValidation, "type must be income or expense")
	}

	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}

	if fields.Amount != nil {
		transaction.Amount = *fields.Amount
	}
	if fields.Type != nil {
		transaction.Type = *fields.Type
	}
	if fields.Category != nil {
		transaction.Category = *fields.Category
	}
	if fields.Description != nil {
		transaction.Description = *fields.Description
	}
	if fields.Date != nil {
		transaction.Date = *fields.Date
	}
	if fields.Tags != nil {
		transaction.Tags = *fields.Tags
	}
	if fields.Notes != nil {
		transaction.Notes = *fields.Notes
	}

	now := s.now()
	transaction.UpdatedAt = now
	transaction.LastSyncedAt = now
	transaction.Version++

	if err := s.db.Save(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return transaction, nil
}

// DeleteTransaction tombstones a transaction. The row is retained so clients
// that have not yet pulled the deletion can still receive it.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}

	now := s.now()
	transaction.SyncStatus = models.SyncStatusDeleted
	transaction.UpdatedAt = now
	transaction.LastSyncedAt = now
	transaction.Version++

	if err := s.db.Save(transaction).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// UpdatedSince returns the user's records with updated_at strictly greater
// than since, oldest first. Tombstones are included: bulk change queries are
// how deletions propagate.
func (s *transactionService) UpdatedSince(userID string, since int64) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := s.db.
		Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return transactions, nil
}
