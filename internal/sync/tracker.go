// Package sync implements the client side of the synchronization protocol:
// delta tracking, the pull-then-push engine, and the single-flight background
// runner.
package sync

import "fintrack/internal/models"

// Delta is a computed local changeset together with each dirty record's
// version at computation time. The versions let the engine acknowledge a
// push without clobbering edits made while the push was in flight.
type Delta struct {
	Changes  models.ChangeSet
	versions map[string]int64
}

// Empty reports whether the delta carries no changes.
func (d *Delta) Empty() bool {
	return d.Changes.Transactions.Empty()
}

// Version returns the version recorded for id when the delta was computed.
func (d *Delta) Version(id string) int64 {
	return d.versions[id]
}

// ComputeDelta partitions the given records into the three wire sets.
// Classification is by sync status alone: tombstones go to deleted (ids
// only), never-synced records go to created, the rest of the dirty records
// go to updated. Synced records need no network action and appear nowhere.
func ComputeDelta(records []models.Transaction) *Delta {
	delta := &Delta{versions: make(map[string]int64)}
	tx := &delta.Changes.Transactions

	for _, rec := range records {
		switch rec.SyncStatus {
		case models.SyncStatusDeleted:
			tx.Deleted = append(tx.Deleted, rec.ID)
		case models.SyncStatusCreated:
			tx.Created = append(tx.Created, rec)
			delta.versions[rec.ID] = rec.Version
		case models.SyncStatusUpdated:
			tx.Updated = append(tx.Updated, rec)
			delta.versions[rec.ID] = rec.Version
		case models.SyncStatusSynced:
			// in sync with the server, nothing to transmit
		}
	}
	return delta
}
