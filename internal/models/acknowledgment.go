package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Acknowledgment is immutable once stored.
type Acknowledgment struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EmergencyID    primitive.ObjectID `json:"emergency_id" bson:"emergency_id"`
	ContactID      primitive.ObjectID `json:"contact_id" bson:"contact_id"`
	ContactName    string             `json:"contact_name,omitempty" bson:"contact_name,omitempty"`
	ContactPhone   string             `json:"contact_phone,omitempty" bson:"contact_phone,omitempty"`
	ContactEmail   string             `json:"contact_email,omitempty" bson:"contact_email,omitempty"`
	Location       *Location          `json:"location,omitempty" bson:"location,omitempty"`
	Message        string             `json:"message,omitempty" bson:"message,omitempty"`
	AcknowledgedAt time.Time          `json:"acknowledged_at" bson:"acknowledged_at"`
}

type AcknowledgeInput struct {
	EmergencyID  primitive.ObjectID
	ContactID    primitive.ObjectID
	ContactName  string
	ContactPhone string
	ContactEmail string
	Location     *Location
	Message      string
}
