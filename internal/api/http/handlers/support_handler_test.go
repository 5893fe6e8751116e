package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/lumora/supportdesk/internal/api/http"
	"github.com/lumora/supportdesk/internal/api/http/handlers"
	"github.com/lumora/supportdesk/internal/auth"
	"github.com/lumora/supportdesk/internal/config"
	"github.com/lumora/supportdesk/internal/domain"
	"github.com/lumora/supportdesk/internal/events"
	"github.com/lumora/supportdesk/internal/objstore"
	"github.com/lumora/supportdesk/internal/repository"
	"github.com/lumora/supportdesk/internal/service"
)

const (
	artistID = 1
	staffID  = 2
	rivalID  = 3
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	mem := repository.NewMemoryStore()
	mem.SeedUser(domain.User{ID: artistID, Username: "nova", FullName: "Nova Ray", Role: domain.RoleArtist})
	mem.SeedUser(domain.User{ID: staffID, Username: "mgr", FullName: "Mara Voss", Role: domain.RoleManager})
	mem.SeedUser(domain.User{ID: rivalID, Username: "echo", FullName: "Echo Lin", Role: domain.RoleArtist})
	mem.SeedRelease(domain.Release{ID: 10, ArtistID: artistID, Title: "Midnight EP"})
	mem.SeedTrack(domain.Track{ID: 100, ReleaseID: 10, Title: "Midnight"})

	svc := service.NewSupportService(service.SupportDependencies{
		ThreadRepo:  mem.Threads(),
		MessageRepo: mem.Messages(),
		UserRepo:    mem.Users(),
		ReleaseRepo: mem.Releases(),
		Dispatcher:  events.NewInMemoryDispatcher(),
	})

	store, err := objstore.OpenLocal(config.StorageConfig{
		LocalRoot:     t.TempDir(),
		LocalSecret:   "test-secret",
		PublicBaseURL: "http://127.0.0.1:8080",
	})
	if err != nil {
		t.Fatalf("objstore: %v", err)
	}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler("test", "dev", nil, nil),
		Support:  handlers.NewSupportHandler(svc),
		Upload:   handlers.NewUploadHandler(store, config.UploadConfig{MaxSizeBytes: 100 << 20, DirectThresholdBytes: 10 << 20}, "uploads", nil),
		Storage:  handlers.NewStorageHandler(store),
		Identity: auth.NewIdentityMiddleware(mem.Users()),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, userID int64, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		req.Header.Set("X-User-Id", fmt.Sprintf("%d", userID))
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope %s: %v", body, err)
	}
	return envelope.Error.Code
}

func TestIdentityRequired(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/support", 0, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "UNAUTHORIZED" {
		t.Fatalf("code = %s", code)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/support", 999, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d, want 401", resp.StatusCode)
	}
}

func TestArtistListBootstrapsThread(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/support", artistID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var list struct {
		Threads []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"threads"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Threads) != 1 {
		t.Fatalf("threads = %d, want the bootstrapped one", len(list.Threads))
	}
	if list.Threads[0].Status != "new" {
		t.Fatalf("status = %s, want new", list.Threads[0].Status)
	}

	// A second list does not create another thread.
	_, body = doJSON(t, app, http.MethodGet, "/api/support", artistID, nil)
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Threads) != 1 {
		t.Fatalf("threads after second list = %d, want 1", len(list.Threads))
	}
}

func TestActionDispatchUnknown(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{"action": "reticulate"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "VALIDATION_FAILED" {
		t.Fatalf("code = %s", code)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing action status = %d, want 400", resp.StatusCode)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{
		"action":  "create_thread",
		"subject": "mix feedback",
		"message": "first question",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var thread struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &thread); err != nil {
		t.Fatalf("decode thread: %v", err)
	}

	resp, body = doJSON(t, app, http.MethodPost, "/api/support", staffID, fiber.Map{
		"action":         "send_message",
		"thread_id":      thread.ID,
		"message":        "here you go",
		"attachment_url": "http://cdn/mix-notes.png",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d: %s", resp.StatusCode, body)
	}
	var msg struct {
		MessageType string `json:"message_type"`
		SenderRole  string `json:"sender_role"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.MessageType != "image" {
		t.Fatalf("message_type = %s, want image", msg.MessageType)
	}
	if msg.SenderRole != "manager" {
		t.Fatalf("sender_role = %s, want manager", msg.SenderRole)
	}

	resp, body = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/support?thread_id=%d", thread.ID), artistID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("log status = %d: %s", resp.StatusCode, body)
	}
	var log struct {
		Messages []struct {
			Message string `json:"message"`
			IsRead  bool   `json:"is_read"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &log); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(log.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(log.Messages))
	}

	// The badge is clear once the artist has fetched the log.
	_, body = doJSON(t, app, http.MethodGet, "/api/support/unread_count", artistID, nil)
	var unread struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := json.Unmarshal(body, &unread); err != nil {
		t.Fatalf("decode unread: %v", err)
	}
	if unread.UnreadCount != 0 {
		t.Fatalf("unread = %d, want 0", unread.UnreadCount)
	}
}

func TestRoleGatingOverHTTP(t *testing.T) {
	app := newTestApp(t)

	_, body := doJSON(t, app, http.MethodGet, "/api/support", artistID, nil)
	var list struct {
		Threads []struct {
			ID int64 `json:"id"`
		} `json:"threads"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	threadID := list.Threads[0].ID

	resp, body := doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{
		"action":    "update_status",
		"thread_id": threadID,
		"status":    "resolved",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("artist update_status = %d, want 403", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "FORBIDDEN" {
		t.Fatalf("code = %s", code)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{"action": "get_artists"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("artist get_artists = %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/support?thread_id=%d", threadID), rivalID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign artist log = %d, want 403", resp.StatusCode)
	}

	resp, body = doJSON(t, app, http.MethodPost, "/api/support", staffID, fiber.Map{"action": "get_artists"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("staff get_artists = %d: %s", resp.StatusCode, body)
	}
	var artists struct {
		Artists []struct {
			Username string `json:"username"`
		} `json:"artists"`
	}
	if err := json.Unmarshal(body, &artists); err != nil {
		t.Fatalf("decode artists: %v", err)
	}
	if len(artists.Artists) != 2 {
		t.Fatalf("artists = %d, want 2", len(artists.Artists))
	}
}

func TestRatingFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)

	_, body := doJSON(t, app, http.MethodGet, "/api/support", artistID, nil)
	var list struct {
		Threads []struct {
			ID int64 `json:"id"`
		} `json:"threads"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	threadID := list.Threads[0].ID

	resp, _ := doJSON(t, app, http.MethodPost, "/api/support", staffID, fiber.Map{
		"action":    "update_status",
		"thread_id": threadID,
		"status":    "resolved",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{
		"action":    "rate_thread",
		"thread_id": threadID,
		"rating":    5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rate = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{
		"action":    "rate_thread",
		"thread_id": threadID,
		"rating":    1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second rate = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, body); code != "CONFLICT" {
		t.Fatalf("code = %s", code)
	}
}

func TestGetUserReleasesAction(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/support", artistID, fiber.Map{"action": "get_user_releases"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var catalog struct {
		Releases []struct {
			Title string `json:"title"`
		} `json:"releases"`
		Tracks []struct {
			Title string `json:"title"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(body, &catalog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(catalog.Releases) != 1 || catalog.Releases[0].Title != "Midnight EP" {
		t.Fatalf("releases = %+v", catalog.Releases)
	}
	if len(catalog.Tracks) != 1 {
		t.Fatalf("tracks = %+v", catalog.Tracks)
	}
}
