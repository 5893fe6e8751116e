package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lumora/supportdesk/internal/api/dto"
	"github.com/lumora/supportdesk/internal/config"
	"github.com/lumora/supportdesk/internal/objstore"
	"github.com/lumora/supportdesk/internal/observability"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

// UploadHandler serves the attachment pipeline: a relay endpoint for small
// payloads and a presign endpoint for direct-to-storage uploads.
type UploadHandler struct {
	store   objstore.Store
	cfg     config.UploadConfig
	prefix  string
	metrics *observability.Metrics
}

// NewUploadHandler constructs handler.
func NewUploadHandler(store objstore.Store, uploadCfg config.UploadConfig, keyPrefix string, metrics *observability.Metrics) *UploadHandler {
	return &UploadHandler{store: store, cfg: uploadCfg, prefix: keyPrefix, metrics: metrics}
}

// Relay POST /upload. Accepts a multipart payload and writes it to object
// storage through the API.
func (h *UploadHandler) Relay(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field 'file' required", nil)
	}
	if fileHeader.Size > h.cfg.MaxSizeBytes {
		h.metrics.RecordUpload("relay", "rejected", fileHeader.Size)
		return apperrors.NewPayloadTooLarge("file exceeds upload limit", map[string]any{
			"max_bytes": h.cfg.MaxSizeBytes,
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer f.Close()

	key := objstore.NewKey(h.prefix, fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	publicURL, err := h.store.Put(c.UserContext(), key, f, fileHeader.Size, contentType)
	if err != nil {
		h.metrics.RecordUpload("relay", "failed", fileHeader.Size)
		return apperrors.NewInternalError(err)
	}

	h.metrics.RecordUpload("relay", "ok", fileHeader.Size)
	return c.Status(fiber.StatusCreated).JSON(dto.UploadResponse{
		URL:      publicURL,
		FileName: fileHeader.Filename,
		FileSize: fileHeader.Size,
		Key:      key,
	})
}

// Presign GET /upload. Issues a signed PUT URL so the client can move the
// bytes to storage directly.
func (h *UploadHandler) Presign(c *fiber.Ctx) error {
	fileName := strings.TrimSpace(c.Query("fileName"))
	if fileName == "" {
		return apperrors.NewValidationError("fileName required", nil)
	}
	contentType := c.Query("contentType")

	if raw := c.Query("fileSize"); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size < 0 {
			return apperrors.NewValidationError("invalid fileSize", nil)
		}
		if size > h.cfg.MaxSizeBytes {
			h.metrics.RecordUpload("direct", "rejected", size)
			return apperrors.NewPayloadTooLarge("file exceeds upload limit", map[string]any{
				"max_bytes": h.cfg.MaxSizeBytes,
			})
		}
	}

	key := objstore.NewKey(h.prefix, fileName)
	putURL, publicURL, err := h.store.SignedPutURL(c.UserContext(), key, contentType)
	if err != nil {
		h.metrics.RecordUpload("direct", "failed", 0)
		return apperrors.NewInternalError(err)
	}

	h.metrics.RecordUpload("direct", "signed", 0)
	return c.JSON(dto.PresignResponse{
		PresignedURL: putURL,
		URL:          publicURL,
		Key:          key,
	})
}
