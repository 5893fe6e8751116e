package supportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default upload pipeline bounds.
const (
	DefaultDirectThreshold = 10 << 20  // switch to direct-to-storage at 10 MiB
	DefaultMaxSize         = 100 << 20 // hard ceiling
	DefaultPutAttempts     = 3
	DefaultBackoffStep     = time.Second
)

// File is one payload to upload. Content is consumed once for the relay
// strategy; the direct strategy buffers non-seekable readers so the PUT can
// be retried.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadResult describes a finished upload.
type UploadResult struct {
	URL        string
	FileName   string
	FileSize   int64
	StorageKey string
	Attempts   int
}

// SizeLimitError rejects a file before any request is made.
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit %d", e.Size, e.Limit)
}

// PresignError reports a failed presign request.
type PresignError struct {
	Err error
}

func (e *PresignError) Error() string { return fmt.Sprintf("presign failed: %v", e.Err) }
func (e *PresignError) Unwrap() error { return e.Err }

// TransferError reports direct PUT exhaustion.
type TransferError struct {
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed after %d attempts: %v", e.Attempts, e.Err)
}
func (e *TransferError) Unwrap() error { return e.Err }

// RelayError reports a failed relay POST.
type RelayError struct {
	Status int
	Body   string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay upload failed with status %d", e.Status)
}

// Uploader selects an upload strategy by size: small files relay through
// the API, large ones go directly to storage via a presigned PUT.
type Uploader struct {
	client *Client

	// Bounds default to the reference values when zero.
	DirectThreshold int64
	MaxSize         int64
	PutAttempts     int
	BackoffStep     time.Duration
}

// NewUploader builds an uploader over an API client.
func NewUploader(client *Client) *Uploader {
	return &Uploader{client: client}
}

// Upload moves the file to object storage and returns where it landed.
func (u *Uploader) Upload(ctx context.Context, f File) (*UploadResult, error) {
	maxSize := u.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if f.Size > maxSize {
		return nil, &SizeLimitError{Size: f.Size, Limit: maxSize}
	}

	threshold := u.DirectThreshold
	if threshold <= 0 {
		threshold = DefaultDirectThreshold
	}
	if f.Size < threshold {
		return u.relay(ctx, f)
	}
	return u.direct(ctx, f)
}

func (u *Uploader) relay(ctx context.Context, f File) (*UploadResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", f.Name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.client.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-Id", strconv.FormatInt(u.client.userID, 10))

	resp, err := u.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &RelayError{Status: resp.StatusCode, Body: string(body)}
	}

	var decoded struct {
		URL      string `json:"url"`
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
		Key      string `json:"s3Key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &UploadResult{
		URL:        decoded.URL,
		FileName:   decoded.FileName,
		FileSize:   decoded.FileSize,
		StorageKey: decoded.Key,
		Attempts:   1,
	}, nil
}

func (u *Uploader) direct(ctx context.Context, f File) (*UploadResult, error) {
	grant, err := u.presign(ctx, f)
	if err != nil {
		return nil, &PresignError{Err: err}
	}

	// The PUT may run more than once; make the body rewindable.
	body, err := rewindable(f.Content)
	if err != nil {
		return nil, err
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attempts := u.PutAttempts
	if attempts <= 0 {
		attempts = DefaultPutAttempts
	}
	backoff := u.BackoffStep
	if backoff <= 0 {
		backoff = DefaultBackoffStep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff * time.Duration(attempt-1)):
			}
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
		}

		lastErr = u.putOnce(ctx, grant.PresignedURL, body, f.Size, contentType)
		if lastErr == nil {
			return &UploadResult{
				URL:        grant.URL,
				FileName:   f.Name,
				FileSize:   f.Size,
				StorageKey: grant.Key,
				Attempts:   attempt,
			}, nil
		}
	}
	return nil, &TransferError{Attempts: attempts, Err: lastErr}
}

type presignGrant struct {
	PresignedURL string `json:"presignedUrl"`
	URL          string `json:"url"`
	Key          string `json:"s3Key"`
}

func (u *Uploader) presign(ctx context.Context, f File) (*presignGrant, error) {
	query := url.Values{}
	query.Set("fileName", f.Name)
	query.Set("fileSize", strconv.FormatInt(f.Size, 10))
	if f.ContentType != "" {
		query.Set("contentType", f.ContentType)
	}
	var grant presignGrant
	if err := u.client.get(ctx, "/api/upload", query, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (u *Uploader) putOnce(ctx context.Context, target string, body io.ReadSeeker, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage put returned status %d", resp.StatusCode)
	}
	return nil
}

func rewindable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
