package workflow

import (
	"log/slog"
	"net/http"

	"bookingfast/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the workflow domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new workflow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Trigger handles POST /api/v1/triggers
// Enqueues the event for the worker and returns 202 Accepted.
func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Publish(c.Request.Context(), &req)
	if err != nil {
		slog.Error("publishing workflow event failed",
			"error", err,
			"trigger", req.Trigger,
			"owner_id", req.OwnerID,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusAccepted, resp)
}

// ListDeliveryLogs handles GET /api/v1/delivery-logs
func (h *Handler) ListDeliveryLogs(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.ListLogs(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// SMSStatusWebhook handles POST /api/v1/webhooks/sms-status
// The gateway posts form-encoded status callbacks.
func (h *Handler) SMSStatusWebhook(c *gin.Context) {
	var cb struct {
		MessageSID    string `form:"MessageSid" binding:"required"`
		MessageStatus string `form:"MessageStatus" binding:"required"`
		ErrorCode     string `form:"ErrorCode"`
	}
	if err := c.ShouldBind(&cb); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid status callback: "+err.Error())
		return
	}

	handled, err := h.service.HandleSMSStatus(c.Request.Context(), cb.MessageSID, cb.MessageStatus, cb.ErrorCode)
	if err != nil {
		slog.Error("sms status callback failed", "message_sid", cb.MessageSID, "error", err)
		common.HandleError(c, err)
		return
	}
	if !handled {
		common.Success(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	common.Success(c, http.StatusOK, gin.H{"status": "processed"})
}

// ResendWebhook handles POST /api/v1/webhooks/resend
func (h *Handler) ResendWebhook(c *gin.Context) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			EmailID string `json:"email_id"`
			Bounce  struct {
				Message string `json:"message"`
			} `json:"bounce"`
		} `json:"data"`
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid webhook payload: "+err.Error())
		return
	}

	var status DeliveryStatus
	var reason string
	switch event.Type {
	case "email.delivered":
		status = DeliveryDelivered
	case "email.bounced":
		status, reason = DeliveryFailed, "bounced: "+event.Data.Bounce.Message
	default:
		slog.Info("ignoring webhook event", "type", event.Type)
		common.Success(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.service.HandleEmailEvent(c.Request.Context(), event.Data.EmailID, status, reason); err != nil {
		slog.Error("webhook processing failed",
			"event_type", event.Type,
			"email_id", event.Data.EmailID,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{"status": "processed"})
}

// RegisterRoutes registers workflow routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/triggers", h.Trigger)
	rg.GET("/delivery-logs", h.ListDeliveryLogs)
	rg.POST("/webhooks/sms-status", h.SMSStatusWebhook)
	rg.POST("/webhooks/resend", h.ResendWebhook)
}
