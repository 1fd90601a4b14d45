package server

import (
	"fmt"
	"io"
	"strings"
	"time"

	"nodetalk/cache"
	"nodetalk/models"

	"github.com/gofiber/fiber/v2"
)

// UpdateProfileRequest is the payload for profile updates. Pointer fields
// distinguish "not sent" from "set to zero value".
type UpdateProfileRequest struct {
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	IsPrivate *bool   `json:"is_private"`
}

// DiscoverUsers lists accounts the viewer might follow: everyone except the
// viewer and anyone they already have an outgoing edge to, in any state.
// The list is cached briefly per viewer and invalidated on follow actions.
func (s *Server) DiscoverUsers(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var users []models.PublicUser
	key := fmt.Sprintf("discover:user:%d", userID)
	err := cache.Aside(c.Context(), s.redis, key, &users, 30*time.Second, func() error {
		var err error
		users, err = s.followSvc.Discover(c.Context(), userID)
		return err
	})
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"users": users})
}

// GetMyProfile returns the full account record of the viewer.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	user, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// UpdateMyProfile applies partial updates to the viewer's own account.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if len(username) < 3 || len(username) > 30 {
			return models.RespondError(c, models.NewValidationError("Username must be between 3 and 30 characters"))
		}
		user.Username = username
	}
	if req.Bio != nil {
		if len(*req.Bio) > 500 {
			return models.RespondError(c, models.NewValidationError("Bio must be at most 500 characters"))
		}
		user.Bio = *req.Bio
	}
	// Flipping public -> private hides existing content immediately; edges
	// already accepted stay accepted.
	if req.IsPrivate != nil {
		user.IsPrivate = *req.IsPrivate
	}

	if err := s.userRepo.Update(c.Context(), user); err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Profile updated", "user": user})
}

// UploadAvatar accepts a multipart image, converts it to a capped WebP and
// stores the resulting URL on the account.
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return models.RespondError(c, models.NewValidationError("No file uploaded"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	avatarURL, err := s.avatarSvc.Process(content)
	if err != nil {
		return models.RespondError(c, err)
	}

	user, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}
	user.Avatar = avatarURL
	if err := s.userRepo.Update(c.Context(), user); err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Avatar updated", "avatar": avatarURL})
}

// GetUserProfile shows another user's profile page. The profile card is
// always visible; the posts are included only when the viewer may see them.
// The response carries the viewer's follow state so the client can render
// the right button.
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	viewerID := c.Locals("userID").(uint)
	username := c.Params("username")

	user, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		return models.RespondError(c, err)
	}
	if user == nil {
		return models.RespondError(c, models.NewNotFoundError("User", username))
	}

	visible, err := s.followSvc.CanView(c.Context(), viewerID, user)
	if err != nil {
		return models.RespondError(c, err)
	}

	followStatus, err := s.followSvc.Status(c.Context(), viewerID, user.ID)
	if err != nil {
		return models.RespondError(c, err)
	}

	resp := fiber.Map{
		"user":          user.Public(),
		"bio":           user.Bio,
		"follow_status": followStatus,
		"visible":       visible,
		"posts":         []models.Post{},
	}

	if visible {
		posts, err := s.postRepo.ListByAuthors(c.Context(), []uint{user.ID})
		if err != nil {
			return models.RespondError(c, err)
		}
		if err := s.postAccess.Decorate(c.Context(), posts, viewerID); err != nil {
			return models.RespondError(c, err)
		}
		resp["posts"] = posts
	}

	return c.JSON(resp)
}
