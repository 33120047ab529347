package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"fintrack/internal/models"
	"fintrack/internal/uuid"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestTransaction creates a synced transaction with explicit timestamps
// (Unix milliseconds). Timestamps are taken as given so tests can control
// change windows and conflict ordering precisely.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, amount int64, updatedAt int64) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Type:         models.TransactionTypeExpense,
		Category:     fmt.Sprintf("category-%d", nextID()),
		Date:         "2026-01-15",
		CreatedAt:    updatedAt,
		UpdatedAt:    updatedAt,
		LastSyncedAt: updatedAt,
		SyncStatus:   models.SyncStatusSynced,
		Version:      1,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestTombstone creates a deleted transaction record with explicit
// timestamps.
func CreateTestTombstone(t *testing.T, db *gorm.DB, userID string, updatedAt int64) *models.Transaction {
	t.Helper()

	tx := CreateTestTransaction(t, db, userID, 100, updatedAt)
	tx.SyncStatus = models.SyncStatusDeleted
	tx.Version++
	if err := db.Save(tx).Error; err != nil {
		t.Fatalf("failed to tombstone test transaction: %v", err)
	}
	return tx
}
