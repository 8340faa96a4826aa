package validators

import (
	"strings"
	"time"

	"sosalert/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LocationRequest struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Accuracy  *float64 `json:"accuracy" validate:"omitempty,min=0"`
	Address   string   `json:"address" validate:"omitempty,max=255"`
}

func (l *LocationRequest) ToModel() models.Location {
	return models.Location{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Accuracy:  l.Accuracy,
		Address:   SanitizeInput(l.Address),
		Timestamp: time.Now(),
	}
}

type TriggerEmergencyRequest struct {
	// UserID is taken from the token when auth is enabled.
	UserID           string           `json:"user_id" validate:"omitempty,object_id"`
	Type             string           `json:"emergency_type" validate:"required,emergency_type"`
	Location         *LocationRequest `json:"location" validate:"required"`
	InitialMessage   string           `json:"initial_message" validate:"omitempty,max=500"`
	CountdownSeconds *int             `json:"countdown_seconds" validate:"omitempty,min=0,max=300"`
	TriggeredBy      string           `json:"triggered_by" validate:"omitempty,triggered_by"`
}

type CancelEmergencyRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

type ResolveEmergencyRequest struct {
	ResolutionNotes string `json:"resolution_notes" validate:"omitempty,max=2000"`
}

type AcknowledgeRequest struct {
	ContactID    string           `json:"contact_id" validate:"required,object_id"`
	ContactName  string           `json:"contact_name" validate:"omitempty,max=100"`
	ContactPhone string           `json:"contact_phone" validate:"omitempty,phone_number"`
	ContactEmail string           `json:"contact_email" validate:"omitempty,email"`
	Location     *LocationRequest `json:"location" validate:"omitempty"`
	Message      string           `json:"message" validate:"omitempty,max=500"`
}

type DeliveryReceiptRequest struct {
	EmergencyID       string `json:"emergency_id" validate:"required_without=ProviderMessageID,object_id"`
	RecipientID       string `json:"recipient_id" validate:"required_without=ProviderMessageID,object_id"`
	Channel           string `json:"channel" validate:"required_without=ProviderMessageID,channel"`
	ProviderMessageID string `json:"provider_message_id" validate:"omitempty,max=128"`
	Status            string `json:"status" validate:"required,oneof=delivered read failed"`
}

func ValidateTriggerRequest(req *TriggerEmergencyRequest) ValidationErrors {
	req.InitialMessage = SanitizeInput(req.InitialMessage)
	req.TriggeredBy = strings.TrimSpace(req.TriggeredBy)
	return ValidateStruct(req)
}

func ValidateAcknowledgeRequest(req *AcknowledgeRequest) ValidationErrors {
	errs := ValidateStruct(req)

	if strings.TrimSpace(req.ContactName) == "" && req.ContactPhone == "" && req.ContactEmail == "" {
		errs = append(errs, ValidationError{
			Field:   "contact",
			Tag:     "required",
			Message: "contact name, phone or email is required",
		})
	}

	return errs
}

func ValidateReceiptRequest(req *DeliveryReceiptRequest) ValidationErrors {
	return ValidateStruct(req)
}

// ToAcknowledgeInput assumes req passed validation.
func (req *AcknowledgeRequest) ToAcknowledgeInput(emergencyID primitive.ObjectID) *models.AcknowledgeInput {
	contactID, _ := primitive.ObjectIDFromHex(req.ContactID)
	input := &models.AcknowledgeInput{
		EmergencyID:  emergencyID,
		ContactID:    contactID,
		ContactName:  SanitizeInput(req.ContactName),
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		Message:      SanitizeInput(req.Message),
	}
	if req.Location != nil {
		loc := req.Location.ToModel()
		input.Location = &loc
	}
	return input
}

// ToReceipt assumes req passed validation.
func (req *DeliveryReceiptRequest) ToReceipt() *models.DeliveryReceipt {
	emergencyID, _ := primitive.ObjectIDFromHex(req.EmergencyID)
	recipientID, _ := primitive.ObjectIDFromHex(req.RecipientID)
	return &models.DeliveryReceipt{
		EmergencyID:       emergencyID,
		RecipientID:       recipientID,
		Channel:           models.Channel(req.Channel),
		ProviderMessageID: req.ProviderMessageID,
		Status:            models.NotificationStatus(req.Status),
		At:                time.Now(),
	}
}
