package services

import (
	"fintrack/internal/models"
	"fintrack/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
}

// TransactionUpdateFields is the tagged set of mutable transaction fields.
// Only non-nil fields are applied; anything outside this set cannot be
// changed through the CRUD surface.
type TransactionUpdateFields struct {
	Amount      *int64
	Type        *models.TransactionType
	Category    *string
	Description *string
	Date        *string
	Tags        *models.Tags
	Notes       *string
}

// TransactionServicer defines the contract for the server-side CRUD surface.
// Server-side writes behave like an always-online client: records are stored
// already synced with server-assigned timestamps.
type TransactionServicer interface {
	CreateTransaction(userID string, amount int64, transactionType models.TransactionType, category, description, date string, tags models.Tags, notes string) (*models.Transaction, error)
	GetUserTransactions(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
	UpdatedSince(userID string, since int64) ([]models.Transaction, error)
}

// SyncServicer defines the contract for the reconciliation service: the
// authoritative side of the sync protocol and the single source of truth for
// created_at, updated_at, and last_synced_at.
type SyncServicer interface {
	ChangesSince(userID string, since int64) (*models.PullResponse, error)
	ApplyChanges(userID string, changes models.ChangeSet) (int, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
