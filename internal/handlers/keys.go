package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldvault/fieldvault/internal/services"
	"github.com/fieldvault/fieldvault/pkg/response"
)

// KeyHandler exposes key lifecycle APIs.
type KeyHandler struct {
	service *services.KeyService
}

// NewKeyHandler constructs a handler for the key service.
func NewKeyHandler(svc *services.KeyService) *KeyHandler {
	return &KeyHandler{service: svc}
}

type keyIDPayload struct {
	KeyID string `json:"key_id" validate:"required,min=1,max=128"`
}

// Status reports the current key and the rotation posture of every
// loadable key.
func (h *KeyHandler) Status(c *gin.Context) {
	report, err := h.service.Status(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Create generates a new inactive key.
func (h *KeyHandler) Create(c *gin.Context) {
	keyID, err := h.service.Create(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"key_id": keyID})
}

// Activate makes an existing key the current encryption key.
func (h *KeyHandler) Activate(c *gin.Context) {
	var payload keyIDPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.Activate(requestContext(c), payload.KeyID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"key_id": payload.KeyID, "status": "active"})
}

// Retire removes a key from encryption eligibility.
func (h *KeyHandler) Retire(c *gin.Context) {
	var payload keyIDPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.Retire(requestContext(c), payload.KeyID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"key_id": payload.KeyID, "status": "retired"})
}

// Rotate runs the full create, activate and retire flow.
func (h *KeyHandler) Rotate(c *gin.Context) {
	newKeyID, err := h.service.Rotate(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"key_id": newKeyID, "status": "active"})
}
