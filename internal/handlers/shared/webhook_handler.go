package handlers

import (
	"time"

	"sosalert/internal/models"
	"sosalert/internal/services"
	"sosalert/internal/utils"
	apperrors "sosalert/pkg/errors"
	"sosalert/pkg/logger"

	"github.com/gin-gonic/gin"
)

// twilioStatuses maps Twilio message states onto receipt statuses. States
// not listed (queued, sending, sent, accepted) carry no new information.
var twilioStatuses = map[string]models.NotificationStatus{
	"delivered":   models.NotificationStatusDelivered,
	"read":        models.NotificationStatusRead,
	"failed":      models.NotificationStatusFailed,
	"undelivered": models.NotificationStatusFailed,
}

type WebhookHandler struct {
	orchestrator services.Orchestrator
	logger       *logger.Logger
}

func NewWebhookHandler(orchestrator services.Orchestrator, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

// TwilioMessageStatus handles Twilio status callbacks. Unknown messages and
// stale transitions are acknowledged so Twilio does not retry them.
func (h *WebhookHandler) TwilioMessageStatus(c *gin.Context) {
	sid := c.PostForm("MessageSid")
	if sid == "" {
		utils.BadRequestResponse(c, "MessageSid is required")
		return
	}

	messageStatus := c.PostForm("MessageStatus")
	status, tracked := twilioStatuses[messageStatus]
	if !tracked {
		utils.SuccessResponse(c, "Status ignored", nil)
		return
	}

	receipt := &models.DeliveryReceipt{
		ProviderMessageID: sid,
		Status:            status,
		At:                time.Now(),
	}

	record, err := h.orchestrator.ConfirmDelivery(c.Request.Context(), receipt)
	if err != nil {
		switch apperrors.KindOf(err) {
		case apperrors.KindNotFound, apperrors.KindIllegalState, apperrors.KindValidation:
			h.logger.WithFields(map[string]interface{}{
				"message_sid":    sid,
				"message_status": messageStatus,
				"error_code":     c.PostForm("ErrorCode"),
			}).WithError(err).Warn("Twilio status callback not applied")
			utils.SuccessResponse(c, "Status ignored", nil)
		default:
			utils.AppErrorResponse(c, err)
		}
		return
	}

	utils.SuccessResponse(c, "Status recorded", record)
}
