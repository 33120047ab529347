package models

// TransactionChanges is the per-table changeset of the sync wire format.
// Created and updated records travel in full; deletions travel as bare ids.
type TransactionChanges struct {
	Created []Transaction `json:"created"`
	Updated []Transaction `json:"updated"`
	Deleted []string      `json:"deleted"`
}

// Empty reports whether the changeset carries no changes.
func (c TransactionChanges) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Count returns the total number of changes in the set.
func (c TransactionChanges) Count() int {
	return len(c.Created) + len(c.Updated) + len(c.Deleted)
}

// ChangeSet groups changesets by table. Transactions is the only synced
// table.
type ChangeSet struct {
	Transactions TransactionChanges `json:"transactions"`
}

// PullResponse is the server's answer to a pull request: everything changed
// since the client's checkpoint, plus the server wall-clock at pull time,
// which becomes the client's next checkpoint.
type PullResponse struct {
	Changes   ChangeSet `json:"changes"`
	Timestamp int64     `json:"timestamp"`
}

// PushRequest carries the client's local delta to the server.
type PushRequest struct {
	Changes ChangeSet `json:"changes"`
}

// PushResponse acknowledges a push with the number of records processed.
type PushResponse struct {
	Pushed int `json:"pushed"`
}

// SyncCheckpoint persists the client-side pull checkpoint alongside the
// transaction table. LastPulledAt is 0 for a never-synced client.
type SyncCheckpoint struct {
	UserID       string `gorm:"type:uuid;primaryKey" json:"user_id"`
	LastPulledAt int64  `json:"last_pulled_at"`
}
