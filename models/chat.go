// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation represents a direct-message thread between two users.
// UpdatedAt is bumped on every new message and drives inbox ordering.
type Conversation struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Participants []User         `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`
	Messages     []Message      `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	UnreadCount  int            `gorm:"-" json:"unread_count"`
}

// Message represents a chat message. IsRead flips to true in bulk when the
// other participant opens the conversation, never for the sender's own rows.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	Conversation   *Conversation  `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Sender         *User          `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	IsRead         bool           `gorm:"default:false" json:"is_read"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// ConversationParticipant is the join table backing the many2many
// relationship between conversations and users.
type ConversationParticipant struct {
	ConversationID uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
