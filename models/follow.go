// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// FollowStatus is the lifecycle state of a follow edge.
type FollowStatus string

const (
	// FollowStatusPending is a follow request awaiting the target's decision.
	// It grants no visibility into the target's content.
	FollowStatusPending FollowStatus = "pending"
	// FollowStatusAccepted grants the follower visibility into the
	// target's content, including private accounts.
	FollowStatusAccepted FollowStatus = "accepted"
)

// Follow is a directed edge from a follower to a followed user.
// The (follower_id, following_id) pair is unique; the database constraint is
// the only guard against duplicate edges under concurrent requests.
type Follow struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	FollowerID  uint         `gorm:"not null;uniqueIndex:idx_follower_following" json:"follower_id"`
	FollowingID uint         `gorm:"not null;uniqueIndex:idx_follower_following" json:"following_id"`
	Status      FollowStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Follower  User `gorm:"foreignKey:FollowerID" json:"follower,omitempty"`
	Following User `gorm:"foreignKey:FollowingID" json:"following,omitempty"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}
