package services

import (
	"fmt"
	"strconv"
	"strings"

	"sosalert/internal/models"
)

var emergencyTypeLabels = map[models.EmergencyType]string{
	models.EmergencyTypeMedical:         "Medical emergency",
	models.EmergencyTypeAccident:        "Accident",
	models.EmergencyTypeCrime:           "Crime in progress",
	models.EmergencyTypeFire:            "Fire",
	models.EmergencyTypeNaturalDisaster: "Natural disaster",
	models.EmergencyTypeOther:           "Emergency",
}

// BuildContent renders the message shared by every job of one batch.
func BuildContent(emergency *models.Emergency, kind models.BatchKind, reason string) models.NotificationContent {
	label, ok := emergencyTypeLabels[emergency.Type]
	if !ok {
		label = "Emergency"
	}

	var title string
	switch kind {
	case models.BatchKindEscalation:
		title = "URGENT SOS: " + label
	case models.BatchKindFollowUp:
		title = "SOS reminder: " + label
	default:
		title = "SOS: " + label
	}

	loc := emergency.Location
	var body strings.Builder
	if reason != "" {
		body.WriteString(reason)
		body.WriteString(". ")
	}
	fmt.Fprintf(&body, "%s reported at %.5f, %.5f", label, loc.Latitude, loc.Longitude)
	if loc.Address != "" {
		fmt.Fprintf(&body, " (%s)", loc.Address)
	}
	body.WriteString(".")
	if emergency.InitialMessage != "" {
		fmt.Fprintf(&body, " Message: %q.", emergency.InitialMessage)
	}
	fmt.Fprintf(&body, " Map: https://maps.google.com/?q=%.6f,%.6f", loc.Latitude, loc.Longitude)
	body.WriteString(" Please acknowledge this alert.")

	return models.NotificationContent{
		Title: title,
		Body:  body.String(),
		Data: map[string]string{
			"emergency_id":   emergency.ID.Hex(),
			"emergency_type": string(emergency.Type),
			"batch_kind":     string(kind),
			"latitude":       strconv.FormatFloat(loc.Latitude, 'f', 6, 64),
			"longitude":      strconv.FormatFloat(loc.Longitude, 'f', 6, 64),
		},
	}
}
