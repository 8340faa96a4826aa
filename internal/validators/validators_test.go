package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validTrigger() *TriggerEmergencyRequest {
	return &TriggerEmergencyRequest{
		Type:     "medical",
		Location: &LocationRequest{Latitude: 40.7128, Longitude: -74.006},
	}
}

func TestValidateTriggerRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *TriggerEmergencyRequest)
		field  string
	}{
		{"valid", func(r *TriggerEmergencyRequest) {}, ""},
		{"equator and meridian are valid", func(r *TriggerEmergencyRequest) { r.Location.Latitude, r.Location.Longitude = 0, 0 }, ""},
		{"latitude out of range", func(r *TriggerEmergencyRequest) { r.Location.Latitude = -90.1 }, "location.latitude"},
		{"longitude out of range", func(r *TriggerEmergencyRequest) { r.Location.Longitude = 180.5 }, "location.longitude"},
		{"unknown type", func(r *TriggerEmergencyRequest) { r.Type = "zombie" }, "emergency_type"},
		{"missing location", func(r *TriggerEmergencyRequest) { r.Location = nil }, "location"},
		{"bad user id", func(r *TriggerEmergencyRequest) { r.UserID = "nope" }, "user_id"},
		{"countdown too long", func(r *TriggerEmergencyRequest) { v := 301; r.CountdownSeconds = &v }, "countdown_seconds"},
		{"message too long", func(r *TriggerEmergencyRequest) { r.InitialMessage = strings.Repeat("m", 501) }, "initial_message"},
		{"device origin", func(r *TriggerEmergencyRequest) { r.TriggeredBy = "device:watch-1" }, ""},
		{"bad origin", func(r *TriggerEmergencyRequest) { r.TriggeredBy = "device:" }, "triggered_by"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validTrigger()
			tt.mutate(req)

			errs := ValidateTriggerRequest(req)
			if tt.field == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Contains(t, errs.Fields(), tt.field)
		})
	}
}

func TestValidateAcknowledgeRequest(t *testing.T) {
	contactID := primitive.NewObjectID().Hex()

	errs := ValidateAcknowledgeRequest(&AcknowledgeRequest{ContactID: contactID, ContactPhone: "+447700900123"})
	assert.Empty(t, errs)

	errs = ValidateAcknowledgeRequest(&AcknowledgeRequest{ContactID: contactID})
	assert.Contains(t, errs.Fields(), "contact")

	errs = ValidateAcknowledgeRequest(&AcknowledgeRequest{ContactID: contactID, ContactPhone: "07700 900123"})
	assert.Contains(t, errs.Fields(), "contact_phone")

	errs = ValidateAcknowledgeRequest(&AcknowledgeRequest{ContactName: "Ann"})
	assert.Contains(t, errs.Fields(), "contact_id")

	emergencyID := primitive.NewObjectID()
	input := (&AcknowledgeRequest{
		ContactID:   contactID,
		ContactName: " <b>Ann</b> ",
		Location:    &LocationRequest{Latitude: 1, Longitude: 2},
	}).ToAcknowledgeInput(emergencyID)
	assert.Equal(t, emergencyID, input.EmergencyID)
	assert.Equal(t, contactID, input.ContactID.Hex())
	assert.Equal(t, "Ann", input.ContactName)
	require.NotNil(t, input.Location)
	assert.Equal(t, 2.0, input.Location.Longitude)
}

func TestValidateReceiptRequest(t *testing.T) {
	assert.Empty(t, ValidateReceiptRequest(&DeliveryReceiptRequest{ProviderMessageID: "SM1", Status: "delivered"}))

	assert.Empty(t, ValidateReceiptRequest(&DeliveryReceiptRequest{
		EmergencyID: primitive.NewObjectID().Hex(),
		RecipientID: primitive.NewObjectID().Hex(),
		Channel:     "sms",
		Status:      "read",
	}))

	errs := ValidateReceiptRequest(&DeliveryReceiptRequest{Status: "delivered"})
	assert.Contains(t, errs.Fields(), "emergency_id")
	assert.Contains(t, errs.Fields(), "channel")

	errs = ValidateReceiptRequest(&DeliveryReceiptRequest{ProviderMessageID: "SM1", Status: "sent"})
	assert.Contains(t, errs.Fields(), "status")

	errs = ValidateReceiptRequest(&DeliveryReceiptRequest{ProviderMessageID: "SM1", Channel: "pigeon", Status: "read"})
	assert.Contains(t, errs.Fields(), "channel")
}
