package server

import (
	"fmt"
	"net/http"
	"testing"

	"nodetalk/models"
)

func TestCreatePost_AndFeedOrdering(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	token := tokenFor(t, s, alice.ID)

	resp := doJSON(t, app, http.MethodPost, "/posts/", token, map[string]string{
		"title": "first", "content": "hello world",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	post := body["post"].(map[string]any)
	if post["title"] != "first" {
		t.Fatalf("unexpected post %v", post)
	}

	resp = doJSON(t, app, http.MethodPost, "/posts/", token, map[string]string{
		"title": "", "content": "no title",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/posts/", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from feed, got %d", resp.StatusCode)
	}
	posts := decodeBody(t, resp)["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("expected own post in feed, got %d", len(posts))
	}
}

func TestFeed_AcceptedEdgesOnly(t *testing.T) {
	s, app := setupTestServer(t)
	alice := createTestUser(t, s, "alice", false)
	bob := createTestUser(t, s, "bob", false)
	carol := createTestUser(t, s, "carol", false)
	for _, u := range []*models.User{bob, carol} {
		if err := s.db.Create(&models.Post{Title: u.Username + " post", Content: "x", AuthorID: u.ID}).Error; err != nil {
			t.Fatalf("create post: %v", err)
		}
	}
	aliceToken := tokenFor(t, s, alice.ID)
	bobToken := tokenFor(t, s, bob.ID)

	// Pending edge to bob, nothing to carol.
	resp := doJSON(t, app, http.MethodPost, fmt.Sprintf("/users/%d/follow", bob.ID), aliceToken, nil)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/posts/", aliceToken, nil)
	posts := decodeBody(t, resp)["posts"].([]any)
	if len(posts) != 0 {
		t.Fatalf("pending follow must contribute nothing to the feed, got %d posts", len(posts))
	}

	// Accept, then bob's posts show up; carol's still don't.
	edge := loadEdge(t, s, alice.ID, bob.ID)
	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/users/requests/%d/accept", edge.ID), bobToken, nil)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/posts/", aliceToken, nil)
	posts = decodeBody(t, resp)["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("expected only bob's post, got %d", len(posts))
	}
	if posts[0].(map[string]any)["title"] != "bob post" {
		t.Fatalf("unexpected feed entry %v", posts[0])
	}
}

func TestGetPost_VisibilityGate(t *testing.T) {
	s, app := setupTestServer(t)
	author := createTestUser(t, s, "author", true)
	viewer := createTestUser(t, s, "viewer", false)
	post := &models.Post{Title: "secret", Content: "x", AuthorID: author.ID}
	if err := s.db.Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	viewerToken := tokenFor(t, s, viewer.ID)
	authorToken := tokenFor(t, s, author.ID)

	resp := doJSON(t, app, http.MethodGet, fmt.Sprintf("/posts/%d", post.ID), viewerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/posts/%d", post.ID), authorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for author, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, "/posts/99999", viewerToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestToggleLike_ExactlyOnePerUser(t *testing.T) {
	s, app := setupTestServer(t)
	author := createTestUser(t, s, "author", false)
	fan := createTestUser(t, s, "fan", false)
	post := &models.Post{Title: "likeable", Content: "x", AuthorID: author.ID}
	if err := s.db.Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	token := tokenFor(t, s, fan.ID)
	likeURL := fmt.Sprintf("/posts/%d/like", post.ID)

	// Like.
	resp := doJSON(t, app, http.MethodPost, likeURL, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["liked"] != true || body["likes_count"] != float64(1) {
		t.Fatalf("expected liked with count 1, got %v", body)
	}

	// Unlike.
	resp = doJSON(t, app, http.MethodPost, likeURL, token, nil)
	body = decodeBody(t, resp)
	if body["liked"] != false || body["likes_count"] != float64(0) {
		t.Fatalf("expected unliked with count 0, got %v", body)
	}

	// Like again; the count never exceeds one per user.
	resp = doJSON(t, app, http.MethodPost, likeURL, token, nil)
	body = decodeBody(t, resp)
	if body["liked"] != true || body["likes_count"] != float64(1) {
		t.Fatalf("expected re-liked with count 1, got %v", body)
	}

	var count int64
	s.db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 like row, got %d", count)
	}
}

func TestDeletePost_AuthorOnly(t *testing.T) {
	s, app := setupTestServer(t)
	author := createTestUser(t, s, "author", false)
	other := createTestUser(t, s, "other", false)
	post := &models.Post{Title: "mine", Content: "x", AuthorID: author.ID}
	if err := s.db.Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}

	// A non-author who can see the post still may not delete it.
	resp := doJSON(t, app, http.MethodPost, fmt.Sprintf("/posts/%d/delete", post.ID), tokenFor(t, s, other.ID), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/posts/%d/delete", post.ID), tokenFor(t, s, author.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for author, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	var count int64
	s.db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&count)
	if count != 0 {
		t.Fatal("expected post removed")
	}
}

func TestCreateComment_AppendsAndReturnsThread(t *testing.T) {
	s, app := setupTestServer(t)
	author := createTestUser(t, s, "author", false)
	commenter := createTestUser(t, s, "commenter", false)
	post := &models.Post{Title: "open", Content: "x", AuthorID: author.ID}
	if err := s.db.Create(post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	token := tokenFor(t, s, commenter.ID)
	commentURL := fmt.Sprintf("/posts/%d/comments", post.ID)

	resp := doJSON(t, app, http.MethodPost, commentURL, token, map[string]string{"content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank comment, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, commentURL, token, map[string]string{"content": "nice post"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	comments := decodeBody(t, resp)["comments"].([]any)
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	first := comments[0].(map[string]any)
	if first["content"] != "nice post" {
		t.Fatalf("unexpected comment %v", first)
	}
	user := first["user"].(map[string]any)
	if user["username"] != "commenter" {
		t.Fatalf("expected commenter attached, got %v", user)
	}
}
