package services

import (
	"testing"

	"gorm.io/gorm"

	"fintrack/internal/models"
	"fintrack/internal/testutil"
	"fintrack/internal/uuid"
)

func newSyncServiceAt(db *gorm.DB, now int64) *syncService {
	svc := NewSyncService(db).(*syncService)
	svc.now = func() int64 { return now }
	return svc
}

func TestChangesSince(t *testing.T) {
	t.Run("partitions_into_wire_sets", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)

		// Born before the window, updated inside it.
		older := testutil.CreateTestTransaction(t, db, user.ID, 1, 400)
		older.UpdatedAt = 600
		testutil.AssertNoError(t, db.Save(older).Error)

		created := testutil.CreateTestTransaction(t, db, user.ID, 2, 700)
		tomb := testutil.CreateTestTombstone(t, db, user.ID, 800)
		testutil.CreateTestTransaction(t, db, user.ID, 3, 100) // outside the window

		resp, err := svc.ChangesSince(user.ID, 500)
		testutil.AssertNoError(t, err)

		tx := resp.Changes.Transactions
		if len(tx.Updated) != 1 || tx.Updated[0].ID != older.ID {
			t.Errorf("expected %s in updated, got %+v", older.ID, tx.Updated)
		}
		if len(tx.Created) != 1 || tx.Created[0].ID != created.ID {
			t.Errorf("expected %s in created, got %+v", created.ID, tx.Created)
		}
		if len(tx.Deleted) != 1 || tx.Deleted[0] != tomb.ID {
			t.Errorf("expected %s in deleted, got %v", tomb.ID, tx.Deleted)
		}
		if resp.Timestamp != 10000 {
			t.Errorf("expected server timestamp, got %d", resp.Timestamp)
		}
	})

	t.Run("zero_since_returns_full_dataset", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewSyncService(db)
		user := testutil.CreateTestUser(t, db)

		testutil.CreateTestTransaction(t, db, user.ID, 1, 100)
		testutil.CreateTestTransaction(t, db, user.ID, 2, 200)

		resp, err := svc.ChangesSince(user.ID, 0)
		testutil.AssertNoError(t, err)
		if len(resp.Changes.Transactions.Created) != 2 {
			t.Errorf("expected full dataset as created, got %+v", resp.Changes.Transactions)
		}
	})

	t.Run("strictly_greater_boundary", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewSyncService(db)
		user := testutil.CreateTestUser(t, db)

		testutil.CreateTestTransaction(t, db, user.ID, 1, 500)

		resp, err := svc.ChangesSince(user.ID, 500)
		testutil.AssertNoError(t, err)
		if !resp.Changes.Transactions.Empty() {
			t.Error("record at exactly the checkpoint must not be returned")
		}
	})

	t.Run("scoped_to_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewSyncService(db)
		user1 := testutil.CreateTestUser(t, db)
		user2 := testutil.CreateTestUser(t, db)

		testutil.CreateTestTransaction(t, db, user1.ID, 1, 100)
		testutil.CreateTestTransaction(t, db, user2.ID, 2, 100)

		resp, err := svc.ChangesSince(user1.ID, 0)
		testutil.AssertNoError(t, err)
		if got := resp.Changes.Transactions.Count(); got != 1 {
			t.Errorf("expected only user1's changes, got %d", got)
		}
	})
}

func TestApplyChanges(t *testing.T) {
	t.Run("insert_discards_client_timestamps", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)

		clientID := uuid.New()
		var changes models.ChangeSet
		changes.Transactions.Created = []models.Transaction{{
			ID: clientID, Amount: 300, Type: models.TransactionTypeExpense,
			Category: "food", Date: "2026-03-05",
			CreatedAt: 123, UpdatedAt: 456, // client clock, untrusted
			SyncStatus: models.SyncStatusCreated, Version: 1,
		}}

		pushed, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)
		if pushed != 1 {
			t.Errorf("expected 1 pushed, got %d", pushed)
		}

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", clientID).First(&stored).Error)
		if stored.CreatedAt != 10000 || stored.UpdatedAt != 10000 {
			t.Errorf("expected server timestamps, got %d/%d", stored.CreatedAt, stored.UpdatedAt)
		}
		if stored.SyncStatus != models.SyncStatusSynced {
			t.Errorf("expected status synced, got %s", stored.SyncStatus)
		}
		if stored.UserID != user.ID {
			t.Errorf("expected record bound to pushing user, got %s", stored.UserID)
		}
	})

	t.Run("newer_write_wins", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestTransaction(t, db, user.ID, 100, 5000)

		var changes models.ChangeSet
		changes.Transactions.Updated = []models.Transaction{{
			ID: existing.ID, Amount: 999, Type: existing.Type,
			Category: "updated", Date: existing.Date,
			UpdatedAt: 6000, Version: 2,
		}}

		_, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", existing.ID).First(&stored).Error)
		if stored.Amount != 999 || stored.Category != "updated" {
			t.Errorf("expected newer write applied, got amount=%d category=%q", stored.Amount, stored.Category)
		}
		if stored.UpdatedAt != 10000 {
			t.Errorf("winning write gets a server timestamp, got %d", stored.UpdatedAt)
		}
	})

	t.Run("older_write_is_discarded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestTransaction(t, db, user.ID, 100, 5000)

		var changes models.ChangeSet
		changes.Transactions.Updated = []models.Transaction{{
			ID: existing.ID, Amount: 999, Type: existing.Type,
			Category: "stale", Date: existing.Date,
			UpdatedAt: 4000, Version: 2,
		}}

		pushed, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)
		if pushed != 1 {
			t.Errorf("discarded writes still count as processed, got %d", pushed)
		}

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", existing.ID).First(&stored).Error)
		if stored.Amount != 100 {
			t.Errorf("expected stale write discarded, got amount=%d", stored.Amount)
		}
	})

	t.Run("equal_timestamp_is_discarded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestTransaction(t, db, user.ID, 100, 5000)

		var changes models.ChangeSet
		changes.Transactions.Updated = []models.Transaction{{
			ID: existing.ID, Amount: 999, Type: existing.Type,
			Category: existing.Category, Date: existing.Date,
			UpdatedAt: 5000, Version: 2,
		}}

		_, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", existing.ID).First(&stored).Error)
		if stored.Amount != 100 {
			t.Error("incoming updated_at must be strictly greater to win")
		}
	})

	t.Run("deletion_tombstones_existing_record", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestTransaction(t, db, user.ID, 100, 5000)

		var changes models.ChangeSet
		changes.Transactions.Deleted = []string{existing.ID}

		_, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", existing.ID).First(&stored).Error)
		if stored.SyncStatus != models.SyncStatusDeleted {
			t.Errorf("expected tombstone, got %s", stored.SyncStatus)
		}
		if stored.UpdatedAt != 10000 {
			t.Errorf("expected deletion stamped with server time, got %d", stored.UpdatedAt)
		}
	})

	t.Run("deletion_of_unknown_id_stores_bare_tombstone", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		user := testutil.CreateTestUser(t, db)

		id := uuid.New()
		var changes models.ChangeSet
		changes.Transactions.Deleted = []string{id}

		pushed, err := svc.ApplyChanges(user.ID, changes)
		testutil.AssertNoError(t, err)
		if pushed != 1 {
			t.Errorf("expected 1 pushed, got %d", pushed)
		}

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", id).First(&stored).Error)
		if stored.SyncStatus != models.SyncStatusDeleted {
			t.Errorf("expected bare tombstone, got %s", stored.SyncStatus)
		}
	})

	t.Run("cannot_touch_another_users_record", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newSyncServiceAt(db, 10000)
		owner := testutil.CreateTestUser(t, db)
		attacker := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestTransaction(t, db, owner.ID, 100, 5000)

		var changes models.ChangeSet
		changes.Transactions.Updated = []models.Transaction{{
			ID: existing.ID, Amount: 0, Type: existing.Type,
			Category: "hijacked", Date: existing.Date,
			UpdatedAt: 9999, Version: 2,
		}}

		_, err := svc.ApplyChanges(attacker.ID, changes)
		testutil.AssertAppError(t, err, "FORBIDDEN")

		var stored models.Transaction
		testutil.AssertNoError(t, db.Where("id = ?", existing.ID).First(&stored).Error)
		if stored.Amount != 100 {
			t.Error("record must be untouched")
		}
	})
}

func TestPullPushRoundTrip(t *testing.T) {
	// A pushed change shows up in the next pull window so other devices
	// converge on the server's resolution.
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newSyncServiceAt(db, 10000)
	user := testutil.CreateTestUser(t, db)

	var changes models.ChangeSet
	changes.Transactions.Created = []models.Transaction{{
		ID: uuid.New(), Amount: 55, Type: models.TransactionTypeExpense,
		Category: "coffee", Date: "2026-03-08", UpdatedAt: 9000, Version: 1,
	}}
	_, err := svc.ApplyChanges(user.ID, changes)
	testutil.AssertNoError(t, err)

	resp, err := svc.ChangesSince(user.ID, 9500)
	testutil.AssertNoError(t, err)
	if len(resp.Changes.Transactions.Created) != 1 {
		t.Errorf("expected pushed record in the next pull window, got %+v", resp.Changes.Transactions)
	}
}
