package routes

import (
	handlers "sosalert/internal/handlers/shared"
	"sosalert/internal/middleware"

	"github.com/gin-gonic/gin"
)

type SecurityOptions struct {
	AuthEnabled     bool
	JWTSecret       string
	WebhookToken    string
	TwilioAuthToken string
	PublicBaseURL   string
}

// SetupEmergencyRoutes sets up the emergency lifecycle, delivery receipt and
// provider webhook routes
func SetupEmergencyRoutes(r *gin.RouterGroup, emergencyHandler *handlers.EmergencyHandler, webhookHandler *handlers.WebhookHandler, opts SecurityOptions) {
	// Provider callbacks authenticate with their own signatures
	webhooks := r.Group("/webhooks/twilio")
	webhooks.Use(middleware.TwilioSignatureRequired(opts.TwilioAuthToken, opts.PublicBaseURL))
	{
		webhooks.POST("/sms-status", webhookHandler.TwilioMessageStatus)
	}

	// Receipts from internal delivery bridges
	notifications := r.Group("/notifications")
	notifications.Use(middleware.ServiceRequired(opts.WebhookToken))
	{
		notifications.POST("/receipts", emergencyHandler.ConfirmDelivery)
		notifications.GET("/batches/:batch_id", emergencyHandler.GetBatch)
	}

	emergencies := r.Group("/emergencies")
	emergencies.Use(middleware.AuthRequired(opts.AuthEnabled, opts.JWTSecret))
	{
		emergencies.POST("/trigger", emergencyHandler.TriggerEmergency)
		emergencies.POST("/auto-trigger", emergencyHandler.AutoTriggerEmergency)
		emergencies.GET("/history", emergencyHandler.GetEmergencyHistory)

		emergencies.GET("/:id", emergencyHandler.GetEmergency)
		emergencies.PUT("/:id/cancel", emergencyHandler.CancelEmergency)
		emergencies.PUT("/:id/resolve", emergencyHandler.ResolveEmergency)
		emergencies.GET("/:id/escalation", emergencyHandler.GetEscalation)
		emergencies.GET("/:id/notifications", emergencyHandler.GetNotifications)
		emergencies.GET("/:id/batches", emergencyHandler.GetBatches)
	}

	// Contacts acknowledge from links in the alert, without a user token
	acks := r.Group("/emergencies")
	{
		acks.POST("/:id/acknowledge", emergencyHandler.AcknowledgeEmergency)
	}
}
