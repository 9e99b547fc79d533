package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/services"
)

const (
	SignatureHeader       = "X-Webhook-Signature"
	LegacySignatureHeader = "X-N8N-Signature"
	maxCallbackBody       = 1 << 20
)

// WebhookController receives callbacks from the analysis workflow. Requests
// are authenticated by an HMAC signature instead of a bearer token.
type WebhookController struct {
	analysis *services.AnalysisService
}

func NewWebhookController(analysis *services.AnalysisService) *WebhookController {
	return &WebhookController{analysis: analysis}
}

func (wc *WebhookController) AnalysisComplete(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		respondError(c, apperrors.Validation("Could not read request body", nil))
		return
	}

	sig := c.GetHeader(SignatureHeader)
	if sig == "" {
		sig = c.GetHeader(LegacySignatureHeader)
	}

	if err := wc.analysis.ProcessAnalysisCallback(c.Request.Context(), body, sig); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
