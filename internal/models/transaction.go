package models

// TransactionType represents the sign semantics of a transaction amount.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// SyncStatus tracks a record's position in the sync lifecycle. The three
// dirty states (created, updated, deleted) mark local changes the server has
// not acknowledged; synced means the record matches server state as of
// LastSyncedAt.
type SyncStatus string

const (
	SyncStatusCreated SyncStatus = "created"
	SyncStatusUpdated SyncStatus = "updated"
	SyncStatusDeleted SyncStatus = "deleted"
	SyncStatusSynced  SyncStatus = "synced"
)

// Tags is an ordered list of tag strings, stored as JSON.
type Tags []string

// Transaction is the record shape shared by the local store, the remote
// store, and the sync wire format.
//
// CreatedAt, UpdatedAt, and LastSyncedAt are milliseconds since epoch and are
// managed by the sync protocol (the server clock is authoritative for the
// records it stores), so GORM's automatic timestamp tracking is disabled.
type Transaction struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string          `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"`
	Type         TransactionType `gorm:"not null" json:"type"`
	Category     string          `gorm:"not null" json:"category"`
	Description  string          `json:"description"`
	Date         string          `gorm:"not null" json:"date"`
	Tags         Tags            `gorm:"serializer:json" json:"tags"`
	Notes        string          `json:"notes"`
	CreatedAt    int64           `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt    int64           `gorm:"autoUpdateTime:false" json:"updated_at"`
	LastSyncedAt int64           `json:"last_synced_at"`
	SyncStatus   SyncStatus      `gorm:"index;not null" json:"sync_status"`
	Version      int64           `json:"version"`
}

// Deleted reports whether the record is a tombstone.
func (t *Transaction) Deleted() bool {
	return t.SyncStatus == SyncStatusDeleted
}

// ValidType reports whether the transaction type is a known value.
func ValidType(t TransactionType) bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}
