package server

import (
	"fmt"
	"strings"

	"nodetalk/models"

	"github.com/gofiber/fiber/v2"
)

// StartConversationRequest is the payload for opening a conversation.
type StartConversationRequest struct {
	UserID uint `json:"user_id"`
}

// SendMessageRequest is the payload for sending a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// GetInbox lists the viewer's conversations, most recently active first,
// each with its last message and the viewer's unread count.
func (s *Server) GetInbox(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	conversations, err := s.chatSvc.Inbox(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// StartConversation finds or creates the conversation between the viewer
// and the target user. Two users share at most one conversation; repeating
// the call returns the existing one.
func (s *Server) StartConversation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}
	if req.UserID == 0 {
		return models.RespondError(c, models.NewValidationError("user_id is required"))
	}

	conv, created, err := s.chatSvc.StartOrGet(c.Context(), userID, req.UserID)
	if err != nil {
		return models.RespondError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"conversation": conv})
}

// GetConversation opens a conversation: messages in chronological order,
// with every unread message from the other participant flipped to read as
// a side effect of the view.
func (s *Server) GetConversation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	convID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	conv, messages, err := s.chatSvc.Open(c.Context(), convID, userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversation": conv,
		"messages":     messages,
	})
}

// SendMessage persists a message and fans it out to the other participants'
// live connections. Delivery is fire-and-forget; the HTTP response only
// confirms persistence.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	convID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}

	message, err := s.chatSvc.Send(c.Context(), convID, userID, req.Content)
	if err != nil {
		return models.RespondError(c, err)
	}

	// Form posts from HTML clients go back to the conversation view.
	if strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML) {
		return c.Redirect(fmt.Sprintf("/chat/%d", convID), fiber.StatusSeeOther)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}
