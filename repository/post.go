package repository

import (
	"context"
	"errors"

	"nodetalk/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post and like data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetByIDWithComments(ctx context.Context, id uint) (*models.Post, error)
	Delete(ctx context.Context, id uint) error
	ListByAuthors(ctx context.Context, authorIDs []uint) ([]models.Post, error)
	CountLikes(ctx context.Context, postID uint) (int64, error)
	CountComments(ctx context.Context, postID uint) (int64, error)
	GetLike(ctx context.Context, userID, postID uint) (*models.Like, error)
	CreateLike(ctx context.Context, like *models.Like) error
	DeleteLike(ctx context.Context, id uint) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Author").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) GetByIDWithComments(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Comments.User").
		First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Post{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListByAuthors returns posts authored by any of authorIDs, newest first,
// with the author preloaded.
func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []uint) ([]models.Post, error) {
	var posts []models.Post
	if len(authorIDs) == 0 {
		return posts, nil
	}
	err := r.db.WithContext(ctx).
		Where("author_id IN ?", authorIDs).
		Preload("Author").
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) CountLikes(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("post_id = ?", postID).Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *postRepository) CountComments(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ?", postID).Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *postRepository) GetLike(ctx context.Context, userID, postID uint) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		First(&like).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &like, nil
}

func (r *postRepository) CreateLike(ctx context.Context, like *models.Like) error {
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent duplicate like; the row exists, nothing to do.
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) DeleteLike(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Like{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
