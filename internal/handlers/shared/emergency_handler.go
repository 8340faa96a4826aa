package handlers

import (
	"net/http"

	"sosalert/internal/middleware"
	"sosalert/internal/models"
	"sosalert/internal/services"
	"sosalert/internal/utils"
	"sosalert/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyHandler struct {
	orchestrator services.Orchestrator
}

func NewEmergencyHandler(orchestrator services.Orchestrator) *EmergencyHandler {
	return &EmergencyHandler{
		orchestrator: orchestrator,
	}
}

// TriggerEmergency creates an emergency and starts its countdown
func (h *EmergencyHandler) TriggerEmergency(c *gin.Context) {
	input, ok := h.bindTrigger(c)
	if !ok {
		return
	}

	emergency, err := h.orchestrator.Trigger(c.Request.Context(), input)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency triggered successfully", emergency)
}

// AutoTriggerEmergency is called by devices that detected an emergency on
// their own (fall detection, crash sensors).
func (h *EmergencyHandler) AutoTriggerEmergency(c *gin.Context) {
	input, ok := h.bindTrigger(c)
	if !ok {
		return
	}

	emergency, err := h.orchestrator.AutoTrigger(c.Request.Context(), input)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency auto-triggered successfully", emergency)
}

func (h *EmergencyHandler) bindTrigger(c *gin.Context) (*services.TriggerInput, bool) {
	var request validators.TriggerEmergencyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return nil, false
	}

	if errs := validators.ValidateTriggerRequest(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return nil, false
	}

	userID, ok := resolveUserID(c, request.UserID)
	if !ok {
		return nil, false
	}

	return &services.TriggerInput{
		UserID:           userID,
		Type:             models.EmergencyType(request.Type),
		Location:         request.Location.ToModel(),
		InitialMessage:   request.InitialMessage,
		CountdownSeconds: request.CountdownSeconds,
		TriggeredBy:      request.TriggeredBy,
	}, true
}

// CancelEmergency cancels a pending or active emergency
func (h *EmergencyHandler) CancelEmergency(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	var request validators.CancelEmergencyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.BadRequestResponse(c, "Invalid request: "+err.Error())
			return
		}
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	emergency, err := h.orchestrator.Cancel(c.Request.Context(), id, validators.SanitizeInput(request.Reason))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency cancelled successfully", emergency)
}

// ResolveEmergency marks an active emergency resolved
func (h *EmergencyHandler) ResolveEmergency(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	var request validators.ResolveEmergencyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.BadRequestResponse(c, "Invalid request: "+err.Error())
			return
		}
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	emergency, err := h.orchestrator.Resolve(c.Request.Context(), id, validators.SanitizeInput(request.ResolutionNotes))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency resolved successfully", emergency)
}

// AcknowledgeEmergency records that a contact has seen the alert
func (h *EmergencyHandler) AcknowledgeEmergency(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	var request validators.AcknowledgeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateAcknowledgeRequest(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	ack, err := h.orchestrator.Acknowledge(c.Request.Context(), request.ToAcknowledgeInput(id))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency acknowledged successfully", ack)
}

// GetEmergency returns the emergency together with its acknowledgments
func (h *EmergencyHandler) GetEmergency(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	emergency, err := h.orchestrator.Get(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency retrieved successfully", emergency)
}

// GetEmergencyHistory lists a user's emergencies, newest first
func (h *EmergencyHandler) GetEmergencyHistory(c *gin.Context) {
	userID, ok := resolveUserID(c, c.Query("user_id"))
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	emergencies, total, err := h.orchestrator.History(c.Request.Context(), userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Total:      total,
		Count:      len(emergencies),
	}

	utils.SuccessResponseWithMeta(c, "Emergency history retrieved successfully", emergencies, meta)
}

// GetEscalation returns the escalation timer of an emergency
func (h *EmergencyHandler) GetEscalation(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	timer, err := h.orchestrator.Escalation(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Escalation retrieved successfully", timer)
}

// GetNotifications returns every delivery record of an emergency
func (h *EmergencyHandler) GetNotifications(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	records, err := h.orchestrator.Notifications(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Notifications retrieved successfully", records, &utils.Meta{Count: len(records)})
}

// GetBatches returns the fan-out summaries of an emergency
func (h *EmergencyHandler) GetBatches(c *gin.Context) {
	id, ok := emergencyIDParam(c)
	if !ok {
		return
	}

	batches, err := h.orchestrator.Batches(c.Request.Context(), id)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Batches retrieved successfully", batches, &utils.Meta{Count: len(batches)})
}

// GetBatch returns a single batch summary
func (h *EmergencyHandler) GetBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		utils.BadRequestResponse(c, "Batch ID is required")
		return
	}

	batch, err := h.orchestrator.Batch(c.Request.Context(), batchID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Batch retrieved successfully", batch)
}

// ConfirmDelivery accepts a delivery receipt from an internal provider
// bridge.
func (h *EmergencyHandler) ConfirmDelivery(c *gin.Context) {
	var request validators.DeliveryReceiptRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateReceiptRequest(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	record, err := h.orchestrator.ConfirmDelivery(c.Request.Context(), request.ToReceipt())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Delivery receipt recorded", record)
}

func emergencyIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid emergency ID")
		return primitive.NilObjectID, false
	}
	return id, true
}

// resolveUserID prefers the authenticated user. Without auth the caller
// supplies the id explicitly.
func resolveUserID(c *gin.Context, fallback string) (primitive.ObjectID, bool) {
	if value, exists := c.Get(middleware.ContextUserID); exists {
		if userID, ok := value.(primitive.ObjectID); ok {
			return userID, true
		}
		utils.BadRequestResponse(c, "Invalid user ID")
		return primitive.NilObjectID, false
	}

	if fallback == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "User ID is required")
		return primitive.NilObjectID, false
	}

	userID, err := primitive.ObjectIDFromHex(fallback)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID")
		return primitive.NilObjectID, false
	}
	return userID, true
}
