package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"nodetalk/config"
	"nodetalk/database"
	"nodetalk/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWTSecret:       "test-secret",
		GuestEmail:      "guest@nodetalk.com",
		AvatarUploadDir: t.TempDir(),
	}
}

// setupTestServer wires a Server over in-memory SQLite without Redis.
// TranslateError keeps duplicate-key handling identical to Postgres.
func setupTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	return setupTestServerWithRedis(t, nil)
}

func setupTestServerWithRedis(t *testing.T, rdb *redis.Client) (*Server, *fiber.App) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	s := NewServerWithDeps(testConfig(t), db, rdb)
	app := fiber.New()
	s.SetupRoutes(app)
	return s, app
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func createTestUser(t *testing.T, s *Server, username string, private bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  string(hash),
		IsPrivate: private,
	}
	if err := s.db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func tokenFor(t *testing.T, s *Server, userID uint) string {
	t.Helper()
	token, err := s.generateToken(userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// doJSON performs an authenticated JSON request against the test app.
func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}
