package server

import (
	"strings"

	"nodetalk/models"

	"github.com/gofiber/fiber/v2"
)

// CreatePostRequest is the payload for publishing a post.
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateCommentRequest is the payload for commenting on a post.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// GetFeed returns the viewer's timeline: their own posts plus posts from
// authors they follow with an accepted edge, newest first. Pending follows
// contribute nothing.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	followingIDs, err := s.followSvc.AcceptedFollowingIDs(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	authorIDs := append(followingIDs, userID)
	posts, err := s.postRepo.ListByAuthors(c.Context(), authorIDs)
	if err != nil {
		return models.RespondError(c, err)
	}

	if err := s.postAccess.Decorate(c.Context(), posts, userID); err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"posts": posts})
}

// CreatePost publishes a new post authored by the viewer.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		return models.RespondError(c, models.NewValidationError("Title and content are required"))
	}
	if len(req.Title) > 200 {
		return models.RespondError(c, models.NewValidationError("Title must be at most 200 characters"))
	}
	if len(req.Content) > 10000 {
		return models.RespondError(c, models.NewValidationError("Content must be at most 10000 characters"))
	}

	post := &models.Post{
		Title:    req.Title,
		Content:  req.Content,
		AuthorID: userID,
	}
	if err := s.postRepo.Create(c.Context(), post); err != nil {
		return models.RespondError(c, err)
	}

	created, err := s.postAccess.Authorize(c.Context(), post.ID, userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created",
		"post":    created,
	})
}

// GetPost shows a post detail: the post, its comments in chronological
// order, aggregate counts and whether the viewer liked it. Visibility goes
// through the same owner/public/accepted-follower gate as every other
// post-scoped operation.
func (s *Server) GetPost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	postID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	post, err := s.postAccess.Authorize(c.Context(), postID, userID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"post": post})
}

// DeletePost removes a post. Passing the visibility gate is not enough:
// only the author may delete.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	postID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	post, err := s.postAccess.Authorize(c.Context(), postID, userID)
	if err != nil {
		return models.RespondError(c, err)
	}
	if post.AuthorID != userID {
		return models.RespondError(c, models.NewForbiddenError("Only the author can delete this post"))
	}

	if err := s.postRepo.Delete(c.Context(), postID); err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Post deleted"})
}

// ToggleLike flips the viewer's like on a post: absent creates it, present
// removes it. Exactly one like per (user, post) pair, enforced by the
// unique index.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	postID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	if _, err := s.postAccess.Authorize(c.Context(), postID, userID); err != nil {
		return models.RespondError(c, err)
	}

	existing, err := s.postRepo.GetLike(c.Context(), userID, postID)
	if err != nil {
		return models.RespondError(c, err)
	}

	liked := false
	if existing != nil {
		if err := s.postRepo.DeleteLike(c.Context(), existing.ID); err != nil {
			return models.RespondError(c, err)
		}
	} else {
		like := &models.Like{UserID: userID, PostID: postID}
		if err := s.postRepo.CreateLike(c.Context(), like); err != nil {
			return models.RespondError(c, err)
		}
		liked = true
	}

	likes, err := s.postRepo.CountLikes(c.Context(), postID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"liked":       liked,
		"likes_count": likes,
	})
}

// CreateComment appends a comment to a visible post. Comments have no edit
// or delete path.
func (s *Server) CreateComment(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	postID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondError(c, err)
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return models.RespondError(c, models.NewValidationError("Comment content is required"))
	}
	if len(req.Content) > 2000 {
		return models.RespondError(c, models.NewValidationError("Comment must be at most 2000 characters"))
	}

	if _, err := s.postAccess.Authorize(c.Context(), postID, userID); err != nil {
		return models.RespondError(c, err)
	}

	comment := &models.Comment{
		PostID:  postID,
		UserID:  userID,
		Content: req.Content,
	}
	if err := s.commentRepo.Create(c.Context(), comment); err != nil {
		return models.RespondError(c, err)
	}

	comments, err := s.commentRepo.ListByPost(c.Context(), postID)
	if err != nil {
		return models.RespondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Comment added",
		"comments": comments,
	})
}
