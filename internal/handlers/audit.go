package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fieldvault/fieldvault/internal/services"
	"github.com/fieldvault/fieldvault/pkg/response"
)

// AuditHandler exposes the audit trail to operators.
type AuditHandler struct {
	service *services.AuditService
}

// NewAuditHandler constructs a handler for the audit service.
func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List returns recent audit entries, optionally filtered by action.
func (h *AuditHandler) List(c *gin.Context) {
	action := strings.TrimSpace(c.Query("action"))
	limit := parseIntQuery(c, "limit", 100)

	entries, err := h.service.List(requestContext(c), action, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"entries": entries})
}
