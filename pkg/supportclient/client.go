package supportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Thread mirrors the server's thread representation.
type Thread struct {
	ID            int64     `json:"id"`
	ArtistID      int64     `json:"artist_id"`
	Subject       string    `json:"subject"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	AssigneeID    *int64    `json:"assigned_to"`
	Rating        *int      `json:"rating"`
	ReleaseID     *int64    `json:"release_id"`
	TrackID       *int64    `json:"track_id"`
	ReleaseTitle  string    `json:"release_title,omitempty"`
	ReleaseCover  string    `json:"release_cover,omitempty"`
	TrackTitle    string    `json:"track_title,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ThreadSummary is the list-view projection.
type ThreadSummary struct {
	Thread
	ArtistUsername string `json:"artist_username"`
	ArtistName     string `json:"artist_name"`
	ArtistAvatar   string `json:"artist_avatar,omitempty"`
	LastMessage    string `json:"last_message"`
	UnreadCount    int    `json:"unread_count"`
}

// Message is one log entry.
type Message struct {
	ID             int64     `json:"id"`
	ThreadID       int64     `json:"thread_id"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderRole     string    `json:"sender_role"`
	Message        string    `json:"message"`
	MessageType    string    `json:"message_type"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	AttachmentSize int64     `json:"attachment_size,omitempty"`
	ReleaseID      *int64    `json:"release_id,omitempty"`
	TrackID        *int64    `json:"track_id,omitempty"`
	InternalNote   bool      `json:"internal_note"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ThreadLog is the detail view returned for one thread.
type ThreadLog struct {
	Thread         Thread    `json:"thread"`
	Messages       []Message `json:"messages"`
	ArtistReleases []Release `json:"artist_releases,omitempty"`
}

// Artist is a directory entry for the staff composer.
type Artist struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Avatar   string `json:"avatar,omitempty"`
}

// Release and Track are the attach-flow catalog entries.
type Release struct {
	ID       int64  `json:"id"`
	ArtistID int64  `json:"artist_id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
	Status   string `json:"status,omitempty"`
}

type Track struct {
	ID           int64  `json:"id"`
	ReleaseID    int64  `json:"release_id"`
	ReleaseTitle string `json:"release_title"`
	Title        string `json:"title"`
}

// Catalog bundles the caller's releases and tracks.
type Catalog struct {
	Releases []Release `json:"releases"`
	Tracks   []Track   `json:"tracks"`
}

// CreateThreadRequest opens a thread.
type CreateThreadRequest struct {
	ArtistID  int64  `json:"artist_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Message   string `json:"message,omitempty"`
	ReleaseID *int64 `json:"release_id,omitempty"`
	TrackID   *int64 `json:"track_id,omitempty"`
}

// SendMessageRequest appends a message.
type SendMessageRequest struct {
	ThreadID       int64  `json:"thread_id"`
	Message        string `json:"message,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`
	ReleaseID      *int64 `json:"release_id,omitempty"`
	TrackID        *int64 `json:"track_id,omitempty"`
	InternalNote   bool   `json:"internal_note,omitempty"`
}

// APIError is the decoded server error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the support API on behalf of one user.
type Client struct {
	baseURL string
	userID  int64
	http    *http.Client
}

// NewClient builds a client. A nil httpClient falls back to a default with
// a 30s timeout.
func NewClient(baseURL string, userID int64, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: trimTrailingSlash(baseURL),
		userID:  userID,
		http:    httpClient,
	}
}

// ListThreads fetches the viewer's thread list; status filters the staff
// pool when non-empty.
func (c *Client) ListThreads(ctx context.Context, status string) ([]ThreadSummary, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var resp struct {
		Threads []ThreadSummary `json:"threads"`
	}
	if err := c.get(ctx, "/api/support", query, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// GetThreadLog fetches one thread's full log, marking it read server-side.
func (c *Client) GetThreadLog(ctx context.Context, threadID int64) (*ThreadLog, error) {
	query := url.Values{}
	query.Set("thread_id", strconv.FormatInt(threadID, 10))
	var log ThreadLog
	if err := c.get(ctx, "/api/support", query, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

// UnreadCount fetches the aggregate unread badge value.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.get(ctx, "/api/support/unread_count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// CreateThread opens a thread.
func (c *Client) CreateThread(ctx context.Context, req CreateThreadRequest) (*Thread, error) {
	var thread Thread
	if err := c.postAction(ctx, "create_thread", req, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// SendMessage appends to a thread.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.postAction(ctx, "send_message", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateStatus moves a thread through the lifecycle.
func (c *Client) UpdateStatus(ctx context.Context, threadID int64, status string) (*Thread, error) {
	payload := map[string]any{"thread_id": threadID, "status": status}
	var thread Thread
	if err := c.postAction(ctx, "update_status", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// UpdatePriority changes urgency.
func (c *Client) UpdatePriority(ctx context.Context, threadID int64, priority string) (*Thread, error) {
	payload := map[string]any{"thread_id": threadID, "priority": priority}
	var thread Thread
	if err := c.postAction(ctx, "update_priority", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// AssignThread sets or clears the staff assignee.
func (c *Client) AssignThread(ctx context.Context, threadID int64, assigneeID *int64) (*Thread, error) {
	payload := map[string]any{"thread_id": threadID}
	if assigneeID != nil {
		payload["assignee_id"] = *assigneeID
	}
	var thread Thread
	if err := c.postAction(ctx, "assign_thread", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// AttachRelease links a catalog entity to a thread.
func (c *Client) AttachRelease(ctx context.Context, threadID int64, releaseID, trackID *int64) (*Thread, error) {
	payload := map[string]any{"thread_id": threadID}
	if releaseID != nil {
		payload["release_id"] = *releaseID
	}
	if trackID != nil {
		payload["track_id"] = *trackID
	}
	var thread Thread
	if err := c.postAction(ctx, "attach_release", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// RateThread records the artist's rating for a resolved thread.
func (c *Client) RateThread(ctx context.Context, threadID int64, rating int) (*Thread, error) {
	payload := map[string]any{"thread_id": threadID, "rating": rating}
	var thread Thread
	if err := c.postAction(ctx, "rate_thread", payload, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetArtists fetches the artist directory (staff only).
func (c *Client) GetArtists(ctx context.Context) ([]Artist, error) {
	var resp struct {
		Artists []Artist `json:"artists"`
	}
	if err := c.postAction(ctx, "get_artists", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Artists, nil
}

// GetUserReleases fetches the caller's catalog for the attach flow.
func (c *Client) GetUserReleases(ctx context.Context) (*Catalog, error) {
	var catalog Catalog
	if err := c.postAction(ctx, "get_user_releases", struct{}{}, &catalog); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postAction(ctx context.Context, action string, payload any, out any) error {
	body, err := taggedBody(action, payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/support", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-User-Id", strconv.FormatInt(c.userID, 10))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// taggedBody injects the action discriminator into the payload object.
func taggedBody(action string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	fields["action"] = json.RawMessage(strconv.Quote(action))
	return json.Marshal(fields)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
