package repository

import (
	"context"
	"errors"

	"nodetalk/models"

	"gorm.io/gorm"
)

// FollowRepository defines the interface for follow-edge data operations.
// All state-machine decisions live in the service layer; this is storage only.
type FollowRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Follow, error)
	GetEdge(ctx context.Context, followerID, followingID uint) (*models.Follow, error)
	Create(ctx context.Context, follow *models.Follow) error
	UpdateStatus(ctx context.Context, id uint, status models.FollowStatus) error
	Delete(ctx context.Context, id uint) error
	ListPendingFor(ctx context.Context, followingID uint) ([]models.Follow, error)
	FollowingIDs(ctx context.Context, followerID uint, statuses ...models.FollowStatus) ([]uint, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) GetByID(ctx context.Context, id uint) (*models.Follow, error) {
	var follow models.Follow
	if err := r.db.WithContext(ctx).Preload("Follower").First(&follow, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &follow, nil
}

func (r *followRepository) GetEdge(ctx context.Context, followerID, followingID uint) (*models.Follow, error) {
	var follow models.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&follow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &follow, nil
}

func (r *followRepository) Create(ctx context.Context, follow *models.Follow) error {
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race against a concurrent identical request; the edge
			// exists, which is the outcome the caller wanted.
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *followRepository) UpdateStatus(ctx context.Context, id uint, status models.FollowStatus) error {
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *followRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Follow{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListPendingFor returns incoming pending requests addressed to followingID,
// oldest first, with the requester preloaded for display.
func (r *followRepository) ListPendingFor(ctx context.Context, followingID uint) ([]models.Follow, error) {
	var follows []models.Follow
	err := r.db.WithContext(ctx).
		Where("following_id = ? AND status = ?", followingID, models.FollowStatusPending).
		Preload("Follower").
		Order("created_at ASC").
		Find(&follows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return follows, nil
}

// FollowingIDs returns the IDs of users followerID has an outgoing edge to.
// With no statuses given, edges of every status are included.
func (r *followRepository) FollowingIDs(ctx context.Context, followerID uint, statuses ...models.FollowStatus) ([]uint, error) {
	var ids []uint
	q := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", followerID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Pluck("following_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}
