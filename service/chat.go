package service

import (
	"context"
	"strings"
	"time"

	"nodetalk/models"
	"nodetalk/notifications"
	"nodetalk/repository"
)

// ChatService owns direct messaging: conversation lifecycle, read state and
// the real-time fan-out of new messages to other participants' channels.
type ChatService struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	hub      *notifications.Hub
	notifier *notifications.Notifier
}

// NewChatService creates a ChatService. hub and notifier may be nil; the
// service then persists messages without pushing events.
func NewChatService(chats repository.ChatRepository, users repository.UserRepository,
	hub *notifications.Hub, notifier *notifications.Notifier) *ChatService {
	return &ChatService{chats: chats, users: users, hub: hub, notifier: notifier}
}

// StartOrGet returns the conversation between the two users, creating it if
// none exists. Two users share at most one conversation.
func (s *ChatService) StartOrGet(ctx context.Context, myID, targetID uint) (*models.Conversation, bool, error) {
	if myID == targetID {
		return nil, false, models.NewValidationError("You cannot start a conversation with yourself")
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return nil, false, err
	}

	existing, err := s.chats.FindBetween(ctx, myID, targetID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := &models.Conversation{}
	if err := s.chats.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	if err := s.chats.AddParticipant(ctx, conv.ID, myID); err != nil {
		return nil, false, err
	}
	if err := s.chats.AddParticipant(ctx, conv.ID, targetID); err != nil {
		return nil, false, err
	}

	conv, err = s.chats.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// Inbox lists the user's conversations, most recently active first, with
// per-conversation unread counts.
func (s *ChatService) Inbox(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	conversations, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, conv := range conversations {
		unread, err := s.chats.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		conv.UnreadCount = int(unread)
	}
	return conversations, nil
}

// Open loads a conversation for viewing. As a side effect of the view-load,
// every unread message sent by the other participant is flipped to read;
// the viewer's own messages are never touched.
func (s *ChatService) Open(ctx context.Context, convID, viewerID uint) (*models.Conversation, []*models.Message, error) {
	conv, err := s.requireParticipant(ctx, convID, viewerID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.chats.MarkReadForViewer(ctx, convID, viewerID); err != nil {
		return nil, nil, err
	}

	messages, err := s.chats.ListMessages(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// Send persists a message, bumps the conversation's activity timestamp and
// publishes a new-message event to every other participant's channel.
// Delivery is fire-and-forget: no retry, no ack, no offline queue; a
// participant without connections simply receives nothing.
func (s *ChatService) Send(ctx context.Context, convID, senderID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}

	conv, err := s.requireParticipant(ctx, convID, senderID)
	if err != nil {
		return nil, err
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
	}
	if err := s.chats.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	message.Sender = sender

	if err := s.chats.Touch(ctx, convID, time.Now()); err != nil {
		return nil, err
	}

	payload := notifications.NewMessageEvent(convID, content, sender.Username)
	for i := range conv.Participants {
		if conv.Participants[i].ID == senderID {
			continue
		}
		s.publish(ctx, conv.Participants[i].ID, payload)
	}

	return message, nil
}

// publish pushes through Redis when available so other instances see the
// event, otherwise straight into the local hub. Failures are swallowed:
// realtime delivery must never fail the send.
func (s *ChatService) publish(ctx context.Context, userID uint, payload []byte) {
	if s.notifier != nil {
		if err := s.notifier.PublishUser(ctx, userID, payload); err == nil {
			return
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(userID, payload)
	}
}

func (s *ChatService) requireParticipant(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.chats.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.NewNotFoundError("Conversation", convID)
	}
	for i := range conv.Participants {
		if conv.Participants[i].ID == userID {
			return conv, nil
		}
	}
	return nil, models.NewForbiddenError("You are not a participant in this conversation")
}
