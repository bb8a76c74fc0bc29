package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldvault/fieldvault/internal/services"
	"github.com/fieldvault/fieldvault/pkg/response"
)

// CryptoHandler exposes encrypt and decrypt endpoints for operational
// tooling such as migration scripts.
type CryptoHandler struct {
	service *services.CryptoService
}

// NewCryptoHandler constructs a handler for the crypto service.
func NewCryptoHandler(svc *services.CryptoService) *CryptoHandler {
	return &CryptoHandler{service: svc}
}

type encryptPayload struct {
	Plaintext *string `json:"plaintext" validate:"required"`
}

type decryptPayload struct {
	Value *string `json:"value" validate:"required"`
}

// Encrypt encodes plaintext under the current key.
func (h *CryptoHandler) Encrypt(c *gin.Context) {
	var payload encryptPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	encoded, err := h.service.Encrypt(requestContext(c), *payload.Plaintext)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"value": encoded})
}

// Decrypt decodes a stored wire value.
func (h *CryptoHandler) Decrypt(c *gin.Context) {
	var payload decryptPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	plaintext, err := h.service.Decrypt(requestContext(c), *payload.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"plaintext": plaintext})
}
