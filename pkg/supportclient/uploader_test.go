package supportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type uploadBackend struct {
	relayCalls   atomic.Int64
	presignCalls atomic.Int64
	putCalls     atomic.Int64
	putFailures  int64 // fail this many PUTs before succeeding
	presignFail  bool

	lastRelayName string
	lastPutBody   []byte
}

func (b *uploadBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			b.relayCalls.Add(1)
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer file.Close()
			b.lastRelayName = header.Filename
			_ = json.NewEncoder(w).Encode(map[string]any{
				"url":      "http://storage/relayed/" + header.Filename,
				"fileName": header.Filename,
				"fileSize": header.Size,
				"s3Key":    "uploads/relayed",
			})
		case http.MethodGet:
			b.presignCalls.Add(1)
			if b.presignFail {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"presignedUrl": "http://" + r.Host + "/storage/uploads/direct?token=grant",
				"url":          "http://storage/uploads/direct",
				"s3Key":        "uploads/direct",
			})
		}
	})

	mux.HandleFunc("/storage/uploads/direct", func(w http.ResponseWriter, r *http.Request) {
		call := b.putCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if call <= b.putFailures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		b.lastPutBody = body
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestUploader(srv *httptest.Server) *Uploader {
	u := NewUploader(NewClient(srv.URL, 1, srv.Client()))
	u.BackoffStep = time.Millisecond
	return u
}

func TestUploaderRejectsOversizeWithoutRequests(t *testing.T) {
	backend := &uploadBackend{}
	srv := backend.server(t)
	u := newTestUploader(srv)

	_, err := u.Upload(context.Background(), File{
		Name: "huge.wav",
		Size: DefaultMaxSize + 1,
	})
	var sizeErr *SizeLimitError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("error = %v, want SizeLimitError", err)
	}
	if sizeErr.Limit != DefaultMaxSize {
		t.Fatalf("limit = %d, want %d", sizeErr.Limit, DefaultMaxSize)
	}
	if backend.relayCalls.Load()+backend.presignCalls.Load()+backend.putCalls.Load() != 0 {
		t.Fatal("oversize rejection must not reach the network")
	}
}

func TestUploaderSmallFileUsesRelay(t *testing.T) {
	backend := &uploadBackend{}
	srv := backend.server(t)
	u := newTestUploader(srv)

	content := []byte("small demo")
	res, err := u.Upload(context.Background(), File{
		Name:        "demo.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if backend.relayCalls.Load() != 1 || backend.presignCalls.Load() != 0 {
		t.Fatalf("relay=%d presign=%d, want relay only", backend.relayCalls.Load(), backend.presignCalls.Load())
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	if backend.lastRelayName != "demo.mp3" {
		t.Fatalf("relayed name = %q", backend.lastRelayName)
	}
	if !strings.HasPrefix(res.URL, "http://storage/relayed/") {
		t.Fatalf("url = %q", res.URL)
	}
}

func TestUploaderLargeFileGoesDirect(t *testing.T) {
	backend := &uploadBackend{}
	srv := backend.server(t)
	u := newTestUploader(srv)
	u.DirectThreshold = 16 // keep the fixture small

	content := []byte("this crosses the direct threshold")
	res, err := u.Upload(context.Background(), File{
		Name:        "master.wav",
		ContentType: "audio/wav",
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if backend.relayCalls.Load() != 0 {
		t.Fatal("direct upload must not touch the relay endpoint")
	}
	if backend.presignCalls.Load() != 1 || backend.putCalls.Load() != 1 {
		t.Fatalf("presign=%d put=%d, want 1/1", backend.presignCalls.Load(), backend.putCalls.Load())
	}
	if res.StorageKey != "uploads/direct" {
		t.Fatalf("storage key = %q, want uploads/direct", res.StorageKey)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	if !bytes.Equal(backend.lastPutBody, content) {
		t.Fatal("PUT body does not match the file content")
	}
}

func TestUploaderThresholdBoundary(t *testing.T) {
	backend := &uploadBackend{}
	srv := backend.server(t)
	u := newTestUploader(srv)
	u.DirectThreshold = 16

	under := bytes.Repeat([]byte("a"), 15)
	if _, err := u.Upload(context.Background(), File{
		Name:    "under.bin",
		Size:    int64(len(under)),
		Content: bytes.NewReader(under),
	}); err != nil {
		t.Fatalf("upload just under threshold: %v", err)
	}
	if backend.relayCalls.Load() != 1 || backend.putCalls.Load() != 0 {
		t.Fatalf("relay=%d put=%d, want threshold-1 bytes to relay",
			backend.relayCalls.Load(), backend.putCalls.Load())
	}

	exact := bytes.Repeat([]byte("b"), 16)
	if _, err := u.Upload(context.Background(), File{
		Name:    "exact.bin",
		Size:    int64(len(exact)),
		Content: bytes.NewReader(exact),
	}); err != nil {
		t.Fatalf("upload at threshold: %v", err)
	}
	if backend.relayCalls.Load() != 1 || backend.putCalls.Load() != 1 {
		t.Fatalf("relay=%d put=%d, want exactly-threshold bytes to go direct",
			backend.relayCalls.Load(), backend.putCalls.Load())
	}
}

func TestUploaderRetriesDirectPut(t *testing.T) {
	backend := &uploadBackend{putFailures: 2}
	srv := backend.server(t)
	u := newTestUploader(srv)
	u.DirectThreshold = 1

	content := []byte("retry me")
	res, err := u.Upload(context.Background(), File{
		Name:    "take2.wav",
		Size:    int64(len(content)),
		Content: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if !bytes.Equal(backend.lastPutBody, content) {
		t.Fatal("retried PUT must resend the whole body")
	}
}

func TestUploaderDirectPutExhaustion(t *testing.T) {
	backend := &uploadBackend{putFailures: 99}
	srv := backend.server(t)
	u := newTestUploader(srv)
	u.DirectThreshold = 1

	_, err := u.Upload(context.Background(), File{
		Name:    "doomed.wav",
		Size:    8,
		Content: strings.NewReader("12345678"),
	})
	var transferErr *TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("error = %v, want TransferError", err)
	}
	if transferErr.Attempts != DefaultPutAttempts {
		t.Fatalf("attempts = %d, want %d", transferErr.Attempts, DefaultPutAttempts)
	}
	if backend.putCalls.Load() != DefaultPutAttempts {
		t.Fatalf("put calls = %d, want %d", backend.putCalls.Load(), DefaultPutAttempts)
	}
}

func TestUploaderPresignFailure(t *testing.T) {
	backend := &uploadBackend{presignFail: true}
	srv := backend.server(t)
	u := newTestUploader(srv)
	u.DirectThreshold = 1

	_, err := u.Upload(context.Background(), File{
		Name:    "nope.wav",
		Size:    8,
		Content: strings.NewReader("12345678"),
	})
	var presignErr *PresignError
	if !errors.As(err, &presignErr) {
		t.Fatalf("error = %v, want PresignError", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "INTERNAL_ERROR" {
		t.Fatalf("presign error must wrap the API error, got %v", err)
	}
	if backend.putCalls.Load() != 0 {
		t.Fatal("presign failure must not attempt a PUT")
	}
}

func TestUploaderRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
		fmt.Fprint(w, "disk full")
	}))
	t.Cleanup(srv.Close)
	u := newTestUploader(srv)

	_, err := u.Upload(context.Background(), File{
		Name:    "tiny.txt",
		Size:    4,
		Content: strings.NewReader("tiny"),
	})
	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("error = %v, want RelayError", err)
	}
	if relayErr.Status != http.StatusInsufficientStorage {
		t.Fatalf("status = %d", relayErr.Status)
	}
	if relayErr.Body != "disk full" {
		t.Fatalf("body = %q", relayErr.Body)
	}
}
