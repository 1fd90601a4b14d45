// Package service holds the domain logic between the HTTP handlers and the
// repositories: the follow/visibility engine, post access authorization,
// chat fan-out and avatar processing.
package service

import (
	"context"

	"nodetalk/models"
	"nodetalk/repository"
)

// ToggleOutcome describes what a follow toggle did.
type ToggleOutcome string

const (
	// ToggleRequested means a pending request now exists (created or re-sent).
	ToggleRequested ToggleOutcome = "requested"
	// ToggleUnfollowed means an accepted edge was removed.
	ToggleUnfollowed ToggleOutcome = "unfollowed"
)

// FollowService owns the state machine for the relationship between two
// users and answers visibility queries. States per ordered pair
// (follower, following): none (no row), pending, accepted.
type FollowService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
}

// NewFollowService creates a FollowService.
func NewFollowService(users repository.UserRepository, follows repository.FollowRepository) *FollowService {
	return &FollowService{users: users, follows: follows}
}

// Toggle advances the edge viewer->target one step:
// none -> pending (request), pending -> pending (idempotent re-request),
// accepted -> none (unfollow). Self-follow is always rejected.
func (s *FollowService) Toggle(ctx context.Context, viewerID, targetID uint) (ToggleOutcome, error) {
	if viewerID == targetID {
		return "", models.NewValidationError("You cannot follow yourself")
	}

	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return "", err
	}

	edge, err := s.follows.GetEdge(ctx, viewerID, targetID)
	if err != nil {
		return "", err
	}

	switch {
	case edge == nil:
		follow := &models.Follow{
			FollowerID:  viewerID,
			FollowingID: targetID,
			Status:      models.FollowStatusPending,
		}
		if err := s.follows.Create(ctx, follow); err != nil {
			return "", err
		}
		return ToggleRequested, nil

	case edge.Status == models.FollowStatusPending:
		// Re-request while pending: re-set the status, effectively a no-op.
		if err := s.follows.UpdateStatus(ctx, edge.ID, models.FollowStatusPending); err != nil {
			return "", err
		}
		return ToggleRequested, nil

	default: // accepted -> unfollow
		if err := s.follows.Delete(ctx, edge.ID); err != nil {
			return "", err
		}
		return ToggleUnfollowed, nil
	}
}

// Decide resolves a pending request. Only the user the edge points at may
// decide it; anyone else gets the same "not found" a missing edge would
// produce, so the existence of a foreign request is never confirmed.
func (s *FollowService) Decide(ctx context.Context, actorID, requestID uint, accept bool) (*models.Follow, error) {
	edge, err := s.follows.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if edge == nil || edge.FollowingID != actorID {
		return nil, models.NewNotFoundError("Follow request", requestID)
	}
	if edge.Status != models.FollowStatusPending {
		return nil, models.NewConflictError("Follow request is not pending")
	}

	if !accept {
		if err := s.follows.Delete(ctx, edge.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := s.follows.UpdateStatus(ctx, edge.ID, models.FollowStatusAccepted); err != nil {
		return nil, err
	}
	edge.Status = models.FollowStatusAccepted
	return edge, nil
}

// CanView reports whether viewer may see content owned by owner: owners see
// their own content, public accounts are visible to anyone, private accounts
// only to accepted followers. A pending follow grants nothing.
func (s *FollowService) CanView(ctx context.Context, viewerID uint, owner *models.User) (bool, error) {
	if viewerID == owner.ID {
		return true, nil
	}
	if !owner.IsPrivate {
		return true, nil
	}
	edge, err := s.follows.GetEdge(ctx, viewerID, owner.ID)
	if err != nil {
		return false, err
	}
	return edge != nil && edge.Status == models.FollowStatusAccepted, nil
}

// Status returns the edge state viewer->target as a string for display.
func (s *FollowService) Status(ctx context.Context, viewerID, targetID uint) (string, error) {
	edge, err := s.follows.GetEdge(ctx, viewerID, targetID)
	if err != nil {
		return "", err
	}
	if edge == nil {
		return "none", nil
	}
	return string(edge.Status), nil
}

// Discover lists users the viewer might follow: everyone except the viewer
// and anyone the viewer already has an outgoing edge to, in any status.
// Users with a pending outgoing request reappear via the requests list once
// the target decides.
func (s *FollowService) Discover(ctx context.Context, viewerID uint) ([]models.PublicUser, error) {
	followingIDs, err := s.follows.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	excluded := append(followingIDs, viewerID)
	users, err := s.users.ListExcluding(ctx, excluded, 20)
	if err != nil {
		return nil, err
	}

	result := make([]models.PublicUser, 0, len(users))
	for i := range users {
		result = append(result, users[i].Public())
	}
	return result, nil
}

// PendingRequests lists incoming pending requests addressed to userID.
func (s *FollowService) PendingRequests(ctx context.Context, userID uint) ([]models.Follow, error) {
	return s.follows.ListPendingFor(ctx, userID)
}

// AcceptedFollowingIDs returns the IDs of users the viewer follows with an
// accepted edge. Used by the feed.
func (s *FollowService) AcceptedFollowingIDs(ctx context.Context, viewerID uint) ([]uint, error) {
	return s.follows.FollowingIDs(ctx, viewerID, models.FollowStatusAccepted)
}
