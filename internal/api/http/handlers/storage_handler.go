package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/lumora/supportdesk/internal/objstore"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

// StorageHandler makes the API act as the storage endpoint for the local
// backend: grant-authorized PUTs and plain GETs. It is not mounted when an
// external backend handles the bytes.
type StorageHandler struct {
	store *objstore.LocalStore
}

// NewStorageHandler constructs handler.
func NewStorageHandler(store *objstore.LocalStore) *StorageHandler {
	return &StorageHandler{store: store}
}

// Put PUT /storage/*. Requires a grant token issued by the presign endpoint.
func (h *StorageHandler) Put(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return apperrors.NewValidationError("object key required", nil)
	}
	token := c.Query("token")
	if token == "" {
		return apperrors.NewUnauthorized("storage grant required")
	}
	grantedType, err := h.store.VerifyPutGrant(token, key)
	if err != nil {
		return apperrors.NewUnauthorized("storage grant invalid")
	}
	if grantedType != "" && c.Get(fiber.HeaderContentType) != grantedType {
		return apperrors.NewValidationError("content type does not match grant", nil)
	}

	if err := h.store.Write(key, bytes.NewReader(c.Body())); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// Get GET /storage/*.
func (h *StorageHandler) Get(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return apperrors.NewValidationError("object key required", nil)
	}
	return c.SendFile(h.store.ObjectPath(key))
}
