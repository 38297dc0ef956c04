package api

import (
	"errors"
	"net/http"

	"reviewflow/internal/auth"
	"reviewflow/internal/dispatch"

	"github.com/gin-gonic/gin"
)

type SendHandler struct {
	Engine *dispatch.Engine
}

func NewSendHandler(engine *dispatch.Engine) *SendHandler {
	return &SendHandler{Engine: engine}
}

type SendMessageRequest struct {
	CustomerIDs []string `json:"customerIds" binding:"required"`
	TemplateID  string   `json:"templateId"`
}

// SendMessages runs one dispatch invocation and blocks until the batch is
// drained. Precondition failures map to 400; partial failure is reported in
// the 200 body, not as an error.
func (h *SendHandler) SendMessages(c *gin.Context) {
	claims := auth.CurrentUser(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Engine.Dispatch(c.Request.Context(), claims.BusinessID, req.CustomerIDs, req.TemplateID)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrGatewayNotConnected):
			c.JSON(http.StatusBadRequest, gin.H{"error": "WhatsApp not connected"})
		case errors.Is(err, dispatch.ErrDestinationNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Review URL yapılandırılmamış. Lütfen ayarlar sayfasından review URL ekleyin."})
		case errors.Is(err, dispatch.ErrNoRecipients):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No customers found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   result.Total,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"results": result.Outcomes,
	})
}
