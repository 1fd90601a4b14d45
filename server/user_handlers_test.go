package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nodetalk/models"

	"golang.org/x/image/webp"
)

func TestUpdateMyProfile_PartialUpdates(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	token := tokenFor(t, s, alice.ID)

	// Flip to private without touching anything else.
	resp := doJSON(t, app, http.MethodPut, "/users/me", token, map[string]any{"is_private": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	user := body["user"].(map[string]any)
	if user["is_private"] != true || user["username"] != "alice" {
		t.Fatalf("unexpected user after update: %v", user)
	}

	// Bio update.
	resp = doJSON(t, app, http.MethodPut, "/users/me", token, map[string]any{"bio": "hello there"})
	body = decodeBody(t, resp)
	user = body["user"].(map[string]any)
	if user["bio"] != "hello there" || user["is_private"] != true {
		t.Fatalf("expected bio set and privacy preserved, got %v", user)
	}

	// Invalid username rejected.
	resp = doJSON(t, app, http.MethodPut, "/users/me", token, map[string]any{"username": "ab"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short username, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestUpdateMyProfile_UsernameConflict(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	createTestUser(t, s, "taken", false)
	token := tokenFor(t, s, alice.ID)

	resp := doJSON(t, app, http.MethodPut, "/users/me", token, map[string]any{"username": "taken"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for taken username, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestUploadAvatar_StoresWebPAndUpdatesUser(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	token := tokenFor(t, s, alice.ID)

	img := image.NewRGBA(image.Rect(0, 0, 500, 500))
	for x := 0; x < 500; x += 10 {
		for y := 0; y < 500; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	avatar, _ := body["avatar"].(string)
	if !strings.HasPrefix(avatar, "/uploads/avatars/") || !strings.HasSuffix(avatar, ".webp") {
		t.Fatalf("unexpected avatar URL %q", avatar)
	}

	var reloaded models.User
	if err := s.db.First(&reloaded, alice.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.Avatar != avatar {
		t.Fatalf("expected avatar persisted, got %q", reloaded.Avatar)
	}

	// The stored URL must be servable even though the upload dir here is
	// a temp dir, not the default: the static mount follows the config.
	getReq := httptest.NewRequest(http.MethodGet, avatar, nil)
	getResp, err := app.Test(getReq, -1)
	if err != nil {
		t.Fatalf("fetch avatar: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 serving %q, got %d", avatar, getResp.StatusCode)
	}
	served, err := io.ReadAll(getResp.Body)
	_ = getResp.Body.Close()
	if err != nil {
		t.Fatalf("read served avatar: %v", err)
	}
	if _, err := webp.Decode(bytes.NewReader(served)); err != nil {
		t.Fatalf("served avatar is not valid webp: %v", err)
	}
}

func TestUploadAvatar_RejectsNonImage(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	token := tokenFor(t, s, alice.ID)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, _ := writer.CreateFormFile("avatar", "notes.txt")
	_, _ = part.Write([]byte("definitely not an image"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}
