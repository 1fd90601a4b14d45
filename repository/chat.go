package repository

import (
	"context"
	"errors"
	"time"

	"nodetalk/models"

	"gorm.io/gorm"
)

// ChatRepository defines the interface for conversation and message data operations
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	FindBetween(ctx context.Context, userA, userB uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error)
	AddParticipant(ctx context.Context, convID, userID uint) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, convID uint) ([]*models.Message, error)
	MarkReadForViewer(ctx context.Context, convID, viewerID uint) error
	UnreadCount(ctx context.Context, convID, viewerID uint) (int64, error)
	Touch(ctx context.Context, convID uint, at time.Time) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

// FindBetween returns the conversation both users participate in, if any.
// Two users never have more than one conversation; StartOrGet relies on this.
func (r *chatRepository) FindBetween(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants pa ON pa.conversation_id = conversations.id AND pa.user_id = ?", userA).
		Joins("JOIN conversation_participants pb ON pb.conversation_id = conversations.id AND pb.user_id = ?", userB).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

// ListForUser returns the user's conversations ordered by last activity,
// with participants and the most recent message preloaded.
func (r *chatRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON conversations.id = cp.conversation_id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		// Preload limits apply to the whole query, not per conversation, so
		// messages come back ordered and callers read index 0 as the latest.
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Preload("Messages.Sender").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return conversations, nil
}

func (r *chatRepository) AddParticipant(ctx context.Context, convID, userID uint) error {
	participant := models.ConversationParticipant{
		ConversationID: convID,
		UserID:         userID,
	}
	if err := r.db.WithContext(ctx).Create(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListMessages returns every message in the conversation in creation order,
// ties broken by insertion order as stored.
func (r *chatRepository) ListMessages(ctx context.Context, convID uint) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Preload("Sender").
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}

// MarkReadForViewer bulk-flips unread messages NOT sent by the viewer to
// read. The viewer's own messages are untouched.
func (r *chatRepository) MarkReadForViewer(ctx context.Context, convID, viewerID uint) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", convID, viewerID, false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) UnreadCount(ctx context.Context, convID, viewerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", convID, viewerID, false).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// Touch bumps the conversation's updated_at for inbox ordering.
func (r *chatRepository) Touch(ctx context.Context, convID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", convID).
		Update("updated_at", at).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
