package server

import (
	"fmt"
	"strconv"

	"nodetalk/cache"
	"nodetalk/models"
	"nodetalk/service"

	"github.com/gofiber/fiber/v2"
)

// ToggleFollow advances the edge viewer->target one step: no edge creates a
// pending request, a pending edge is re-requested (no-op), an accepted edge
// is removed. The discover cache for the viewer is invalidated either way.
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	viewerID := c.Locals("userID").(uint)

	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	outcome, err := s.followSvc.Toggle(c.Context(), viewerID, targetID)
	if err != nil {
		return models.RespondError(c, err)
	}

	cache.Invalidate(c.Context(), s.redis, fmt.Sprintf("discover:user:%d", viewerID))

	message := "Follow request sent"
	if outcome == service.ToggleUnfollowed {
		message = "Unfollowed"
	}
	return c.JSON(fiber.Map{
		"message": message,
		"outcome": string(outcome),
	})
}

// ListFollowRequests lists pending requests addressed to the viewer, oldest
// first, with each requester's public profile attached.
func (s *Server) ListFollowRequests(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requests, err := s.followSvc.PendingRequests(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"requests": requests})
}

// AcceptFollowRequest accepts a pending request addressed to the viewer.
// Requests addressed to someone else 404 exactly like missing ones.
func (s *Server) AcceptFollowRequest(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requestID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	edge, err := s.followSvc.Decide(c.Context(), userID, requestID, true)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Follow request accepted",
		"follow":  edge,
	})
}

// RejectFollowRequest removes a pending request addressed to the viewer,
// leaving the pair back at no relationship.
func (s *Server) RejectFollowRequest(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requestID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	if _, err := s.followSvc.Decide(c.Context(), userID, requestID, false); err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Follow request rejected"})
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid ID")
	}
	return uint(id), nil
}
