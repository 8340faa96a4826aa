package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EmergencyType string
type EmergencyStatus string

const (
	EmergencyTypeMedical         EmergencyType = "medical"
	EmergencyTypeAccident        EmergencyType = "accident"
	EmergencyTypeCrime           EmergencyType = "crime"
	EmergencyTypeFire            EmergencyType = "fire"
	EmergencyTypeNaturalDisaster EmergencyType = "natural_disaster"
	EmergencyTypeOther           EmergencyType = "other"

	EmergencyStatusPending   EmergencyStatus = "pending"
	EmergencyStatusActive    EmergencyStatus = "active"
	EmergencyStatusResolved  EmergencyStatus = "resolved"
	EmergencyStatusCancelled EmergencyStatus = "cancelled"
)

var emergencyTypes = map[EmergencyType]struct{}{
	EmergencyTypeMedical:         {},
	EmergencyTypeAccident:        {},
	EmergencyTypeCrime:           {},
	EmergencyTypeFire:            {},
	EmergencyTypeNaturalDisaster: {},
	EmergencyTypeOther:           {},
}

func (t EmergencyType) IsValid() bool {
	_, ok := emergencyTypes[t]
	return ok
}

// IsOpen reports whether the status is Pending or Active.
func (s EmergencyStatus) IsOpen() bool {
	return s == EmergencyStatusPending || s == EmergencyStatusActive
}

func (s EmergencyStatus) IsTerminal() bool {
	return s == EmergencyStatusResolved || s == EmergencyStatusCancelled
}

// Legal transitions of the emergency lifecycle.
var emergencyTransitions = map[EmergencyStatus][]EmergencyStatus{
	EmergencyStatusPending: {EmergencyStatusActive, EmergencyStatusCancelled},
	EmergencyStatusActive:  {EmergencyStatusResolved, EmergencyStatusCancelled},
}

// TransitionSources returns the statuses from which `to` may be reached.
func TransitionSources(to EmergencyStatus) []EmergencyStatus {
	var from []EmergencyStatus
	for src, targets := range emergencyTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

type Emergency struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID             primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	Type               EmergencyType      `json:"type" bson:"type" validate:"required"`
	Status             EmergencyStatus    `json:"status" bson:"status"`
	Location           Location           `json:"location" bson:"location" validate:"required"`
	InitialMessage     string             `json:"initial_message,omitempty" bson:"initial_message,omitempty"`
	AutoTriggered      bool               `json:"auto_triggered" bson:"auto_triggered"`
	TriggeredBy        string             `json:"triggered_by" bson:"triggered_by"`
	CountdownSeconds   int                `json:"countdown_seconds" bson:"countdown_seconds"`
	ResolutionNotes    string             `json:"resolution_notes,omitempty" bson:"resolution_notes,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	// Open backs the unique partial index that allows one open emergency per user.
	Open        bool       `json:"-" bson:"is_open"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

// CountdownDeadline is when a Pending emergency is due to activate.
func (e *Emergency) CountdownDeadline() time.Time {
	return e.CreatedAt.Add(time.Duration(e.CountdownSeconds) * time.Second)
}

// TransitionUpdate carries the fields written alongside a status change.
type TransitionUpdate struct {
	At                 time.Time
	ResolutionNotes    string
	CancellationReason string
}

type EmergencyWithAcknowledgments struct {
	Emergency       *Emergency        `json:"emergency"`
	Acknowledgments []*Acknowledgment `json:"acknowledgments"`
}
