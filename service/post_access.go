package service

import (
	"context"

	"nodetalk/models"
	"nodetalk/repository"
)

// PostAccessService gates every post-scoped operation behind the
// owner-or-accepted-follower-or-public-account check. Authorization is
// computed once per request; the returned post is handed to the next stage
// (detail view, delete, like toggle, comment) without re-deriving it.
type PostAccessService struct {
	posts  repository.PostRepository
	follow *FollowService
}

// NewPostAccessService creates a PostAccessService.
func NewPostAccessService(posts repository.PostRepository, follow *FollowService) *PostAccessService {
	return &PostAccessService{posts: posts, follow: follow}
}

// Authorize loads the post and decides whether viewer may act on it.
// The post comes back augmented with comments, aggregate counts and the
// viewer's own like status.
//
// Failure modes: post absent -> NOT_FOUND; no viewer identity ->
// UNAUTHORIZED; private owner, non-owner viewer, no accepted edge -> FORBIDDEN.
func (s *PostAccessService) Authorize(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	if viewerID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	post, err := s.posts.GetByIDWithComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.NewNotFoundError("Post", postID)
	}

	visible, err := s.follow.CanView(ctx, viewerID, &post.Author)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, models.NewForbiddenError("You do not have access to this post")
	}

	if err := s.decorate(ctx, post, viewerID); err != nil {
		return nil, err
	}
	return post, nil
}

// Decorate fills the computed fields (counts, viewer's like) on posts that
// already passed an access check, e.g. feed entries.
func (s *PostAccessService) Decorate(ctx context.Context, posts []models.Post, viewerID uint) error {
	for i := range posts {
		if err := s.decorate(ctx, &posts[i], viewerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostAccessService) decorate(ctx context.Context, post *models.Post, viewerID uint) error {
	likes, err := s.posts.CountLikes(ctx, post.ID)
	if err != nil {
		return err
	}
	comments, err := s.posts.CountComments(ctx, post.ID)
	if err != nil {
		return err
	}
	like, err := s.posts.GetLike(ctx, viewerID, post.ID)
	if err != nil {
		return err
	}

	post.LikesCount = int(likes)
	post.CommentsCount = int(comments)
	post.Liked = like != nil
	return nil
}
