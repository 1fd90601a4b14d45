// Seeder for local development: provisions the guest account, optionally
// loads fixture users from a YAML file, and fills the rest with generated
// users, follows, posts, comments and likes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"nodetalk/config"
	"nodetalk/database"
	"nodetalk/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

const defaultPassword = "password123"

type fixtureFile struct {
	Users []struct {
		Username  string `yaml:"username"`
		Email     string `yaml:"email"`
		Password  string `yaml:"password"`
		Bio       string `yaml:"bio"`
		IsPrivate bool   `yaml:"is_private"`
	} `yaml:"users"`
	Follows []struct {
		Follower  string `yaml:"follower"`
		Following string `yaml:"following"`
		Status    string `yaml:"status"`
	} `yaml:"follows"`
}

func main() {
	userCount := flag.Int("users", 10, "number of generated users")
	postsPerUser := flag.Int("posts", 3, "posts per generated user")
	fixturesPath := flag.String("fixtures", "", "optional YAML fixtures file")
	flag.Parse()

	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := ensureGuest(ctx, db, cfg.GuestEmail); err != nil {
		slog.Error("guest provisioning failed", "error", err)
		os.Exit(1)
	}

	if *fixturesPath != "" {
		if err := loadFixtures(ctx, db, *fixturesPath); err != nil {
			slog.Error("fixture load failed", "error", err)
			os.Exit(1)
		}
	}

	users, err := seedUsers(ctx, db, *userCount)
	if err != nil {
		slog.Error("user seeding failed", "error", err)
		os.Exit(1)
	}
	if err := seedSocialGraph(ctx, db, users, *postsPerUser); err != nil {
		slog.Error("graph seeding failed", "error", err)
		os.Exit(1)
	}

	slog.Info("seeding complete", "users", len(users))
}

// ensureGuest creates the shared demo account if it does not exist yet.
// The guest endpoint fails without it.
func ensureGuest(ctx context.Context, db *gorm.DB, email string) error {
	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	guest := models.User{
		Username: "guest",
		Email:    email,
		Password: string(hash),
		Bio:      "Shared demo account",
	}
	return db.WithContext(ctx).Create(&guest).Error
}

func loadFixtures(ctx context.Context, db *gorm.DB, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fixtures fixtureFile
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	byUsername := make(map[string]uint)
	for _, fu := range fixtures.Users {
		password := fu.Password
		if password == "" {
			password = defaultPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := models.User{
			Username:  fu.Username,
			Email:     fu.Email,
			Password:  string(hash),
			Bio:       fu.Bio,
			IsPrivate: fu.IsPrivate,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return fmt.Errorf("creating fixture user %s: %w", fu.Username, err)
		}
		byUsername[user.Username] = user.ID
	}

	for _, ff := range fixtures.Follows {
		followerID, ok := byUsername[ff.Follower]
		if !ok {
			return fmt.Errorf("unknown fixture user %q", ff.Follower)
		}
		followingID, ok := byUsername[ff.Following]
		if !ok {
			return fmt.Errorf("unknown fixture user %q", ff.Following)
		}
		status := models.FollowStatus(strings.ToLower(ff.Status))
		if status != models.FollowStatusPending && status != models.FollowStatusAccepted {
			return fmt.Errorf("invalid follow status %q", ff.Status)
		}
		follow := models.Follow{
			FollowerID:  followerID,
			FollowingID: followingID,
			Status:      status,
		}
		if err := db.WithContext(ctx).Create(&follow).Error; err != nil {
			return err
		}
	}

	return nil
}

func seedUsers(ctx context.Context, db *gorm.DB, count int) ([]models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		user := models.User{
			Username:  fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), gofakeit.Number(10, 9999)),
			Email:     gofakeit.Email(),
			Password:  string(hash),
			Bio:       gofakeit.Sentence(8),
			IsPrivate: gofakeit.Bool(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			// Generated usernames can collide; skip and move on.
			slog.Warn("skipping generated user", "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func seedSocialGraph(ctx context.Context, db *gorm.DB, users []models.User, postsPerUser int) error {
	for i := range users {
		for j := 0; j < postsPerUser; j++ {
			post := models.Post{
				Title:    gofakeit.Sentence(4),
				Content:  gofakeit.Paragraph(1, 3, 12, " "),
				AuthorID: users[i].ID,
			}
			if err := db.WithContext(ctx).Create(&post).Error; err != nil {
				return err
			}
		}
	}

	// Random follow edges, roughly a third accepted, a sprinkle pending.
	for i := range users {
		for j := range users {
			if i == j || rand.Intn(3) != 0 {
				continue
			}
			status := models.FollowStatusAccepted
			if rand.Intn(4) == 0 {
				status = models.FollowStatusPending
			}
			follow := models.Follow{
				FollowerID:  users[i].ID,
				FollowingID: users[j].ID,
				Status:      status,
			}
			if err := db.WithContext(ctx).Create(&follow).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
