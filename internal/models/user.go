package models

// User represents an account owner. Every transaction record belongs to
// exactly one user and all queries are scoped by it.
type User struct {
	Base
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}
