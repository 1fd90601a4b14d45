package service

import (
	"testing"

	"nodetalk/database"
	"nodetalk/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory SQLite database with the full schema.
// TranslateError keeps duplicate-key handling identical to Postgres.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, private bool) *models.User {
	t.Helper()
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "hashed",
		IsPrivate: private,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func createPost(t *testing.T, db *gorm.DB, authorID uint, title string) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:    title,
		Content:  "content of " + title,
		AuthorID: authorID,
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("create post %s: %v", title, err)
	}
	return post
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := err.(*models.AppError)
	if !ok {
		t.Fatalf("expected *models.AppError, got %T: %v", err, err)
	}
	return appErr.Code
}
