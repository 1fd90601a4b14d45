package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nodetalk/auth"
	"nodetalk/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SignupRequest is the payload for account creation. IsPrivate lets an
// account start private instead of defaulting to public.
type SignupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	IsPrivate bool   `json:"isPrivate"`
}

// LoginRequest is the payload for credential login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup registers a new account and returns a token for it.
func (s *Server) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return models.RespondError(c, models.NewValidationError("Username, email and password are required"))
	}
	if len(req.Username) < 3 || len(req.Username) > 30 {
		return models.RespondError(c, models.NewValidationError("Username must be between 3 and 30 characters"))
	}
	if !strings.Contains(req.Email, "@") {
		return models.RespondError(c, models.NewValidationError("Invalid email address"))
	}
	if len(req.Password) < 8 {
		return models.RespondError(c, models.NewValidationError("Password must be at least 8 characters"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	user := &models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hash),
		IsPrivate: req.IsPrivate,
	}
	// The unique constraints on username and email are the only guard
	// against concurrent duplicate signups.
	if err := s.userRepo.Create(c.Context(), user); err != nil {
		return models.RespondError(c, err)
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created",
		"user":    user,
		"token":   token,
	})
}

// Login authenticates by email and password.
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userRepo.GetByEmail(c.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		return models.RespondError(c, err)
	}
	// Same response for unknown email and wrong password.
	if user == nil {
		return models.RespondError(c, models.NewUnauthorizedError("Invalid credentials"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return models.RespondError(c, models.NewUnauthorizedError("Invalid credentials"))
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Logged in",
		"user":    user,
		"token":   token,
	})
}

// GuestLogin signs the caller in as the shared demo account. The account is
// provisioned by the seeder; if it is missing this endpoint fails rather
// than silently creating one.
func (s *Server) GuestLogin(c *fiber.Ctx) error {
	user, err := s.userRepo.GetByEmail(c.Context(), s.config.GuestEmail)
	if err != nil {
		return models.RespondError(c, err)
	}
	if user == nil {
		return models.RespondError(c, models.NewInternalError(fmt.Errorf("guest account %q is not provisioned", s.config.GuestEmail)))
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Welcome, Guest!",
		"user":    user,
		"token":   token,
	})
}

// Logout revokes the presented token by putting its jti on the Redis
// revocation list until the token would have expired anyway.
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(jwt.MapClaims)

	if s.redis != nil && claims != nil {
		jti, _ := claims["jti"].(string)
		exp, _ := claims["exp"].(float64)
		if jti != "" {
			ttl := time.Until(time.Unix(int64(exp), 0))
			if ttl > 0 {
				if err := s.redis.Set(c.Context(), "revoked:jti:"+jti, "1", ttl).Err(); err != nil {
					slog.Warn("failed to revoke token", "error", err)
				}
			}
		}
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me returns the authenticated user's own account.
func (s *Server) Me(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	user, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return models.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// GitHubLogin starts the OAuth code flow by redirecting to GitHub with a
// one-shot state value stored in a short-lived cookie.
func (s *Server) GitHubLogin(c *fiber.Ctx) error {
	if !s.github.Configured() {
		return models.RespondError(c, models.NewValidationError("GitHub login is not configured"))
	}

	state := uuid.New().String()
	c.Cookie(&fiber.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Redirect(s.github.AuthURL(state), fiber.StatusTemporaryRedirect)
}

// GitHubCallback finishes the OAuth flow: verify state, exchange the code,
// then find or create the local account linked to the GitHub identity.
func (s *Server) GitHubCallback(c *fiber.Ctx) error {
	if !s.github.Configured() {
		return models.RespondError(c, models.NewValidationError("GitHub login is not configured"))
	}

	state := c.Query("state")
	if state == "" || state != c.Cookies("oauth_state") {
		return models.RespondError(c, models.NewUnauthorizedError("Invalid OAuth state"))
	}
	c.ClearCookie("oauth_state")

	code := c.Query("code")
	if code == "" {
		return models.RespondError(c, models.NewValidationError("Missing authorization code"))
	}

	ghUser, err := s.github.Exchange(c.Context(), code)
	if err != nil {
		slog.Error("github oauth exchange failed", "error", err)
		return models.RespondError(c, models.NewUnauthorizedError("GitHub authentication failed"))
	}

	user, err := s.userRepo.GetByGitHubID(c.Context(), ghUser.ID)
	if err != nil {
		return models.RespondError(c, err)
	}
	if user == nil {
		user, err = s.createGitHubUser(c, ghUser)
		if err != nil {
			return models.RespondError(c, err)
		}
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return models.RespondError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Logged in with GitHub",
		"user":    user,
		"token":   token,
	})
}

// createGitHubUser provisions a local account for a first-time GitHub login.
// These accounts have an unusable random password; they authenticate through
// GitHub only.
func (s *Server) createGitHubUser(c *fiber.Ctx, ghUser *auth.GitHubUser) (*models.User, error) {
	username := ghUser.Login
	if existing, err := s.userRepo.GetByUsername(c.Context(), username); err != nil {
		return nil, err
	} else if existing != nil {
		username = fmt.Sprintf("%s-gh%d", ghUser.Login, ghUser.ID)
	}

	email := ghUser.Email
	if email == "" {
		email = fmt.Sprintf("gh-%d@users.nodetalk.invalid", ghUser.ID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	githubID := ghUser.ID
	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hash),
		Avatar:   ghUser.AvatarURL,
		GitHubID: &githubID,
	}
	if err := s.userRepo.Create(c.Context(), user); err != nil {
		return nil, err
	}
	return user, nil
}
