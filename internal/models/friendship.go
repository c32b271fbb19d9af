package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus represents the status of a friendship request.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending friendship request.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an accepted friendship request.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// Friendship represents a friend request and, once accepted, the friendship
// itself. Rejected requests and removed friendships are deleted outright, so
// at most one row exists per unordered user pair at any time; PairKey backs
// that invariant with a unique index.
type Friendship struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RequesterID uint             `gorm:"not null;index" json:"requester_id"`
	AddresseeID uint             `gorm:"not null;index" json:"addressee_id"`
	PairKey     string           `gorm:"not null;uniqueIndex" json:"-"`
	Status      FriendshipStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// Relationships
	Requester User `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Addressee User `gorm:"foreignKey:AddresseeID" json:"addressee,omitempty"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// BeforeCreate normalizes the pair key. Direction (requester vs addressee)
// is preserved in the dedicated columns.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	f.PairKey = PairKey(f.RequesterID, f.AddresseeID)
	return nil
}

// PairKey returns the canonical key for an unordered user pair.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
