package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContactTier string
type DevicePlatform string

const (
	ContactTierPrimary   ContactTier = "primary"
	ContactTierSecondary ContactTier = "secondary"

	PlatformIOS     DevicePlatform = "ios"
	PlatformAndroid DevicePlatform = "android"
)

// EmergencyContact is a person notified on the user's behalf. Owned by the
// user profile service; read-only here.
type EmergencyContact struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID       primitive.ObjectID `json:"user_id" bson:"user_id"`
	Name         string             `json:"name" bson:"name"`
	Phone        string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Email        string             `json:"email,omitempty" bson:"email,omitempty"`
	PushToken    string             `json:"push_token,omitempty" bson:"push_token,omitempty"`
	Platform     DevicePlatform     `json:"platform,omitempty" bson:"platform,omitempty"`
	Relationship string             `json:"relationship,omitempty" bson:"relationship,omitempty"`
	Tier         ContactTier        `json:"tier" bson:"tier"`
	Channels     []Channel          `json:"channels,omitempty" bson:"channels,omitempty"`
}

// Recipient snapshots the contact info a notification job needs.
func (c *EmergencyContact) Recipient() Recipient {
	return Recipient{
		ContactID: c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Email:     c.Email,
		PushToken: c.PushToken,
		Platform:  c.Platform,
	}
}

// HasChannel reports whether the contact carries the info required for ch.
func (c *EmergencyContact) HasChannel(ch Channel) bool {
	r := c.Recipient()
	return r.Supports(ch)
}

// PreferredChannels returns the configured channels, or the first reachable
// one of push, sms, email.
func (c *EmergencyContact) PreferredChannels() []Channel {
	var out []Channel
	for _, ch := range c.Channels {
		if c.HasChannel(ch) {
			out = append(out, ch)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, ch := range []Channel{ChannelPush, ChannelSMS, ChannelEmail} {
		if c.HasChannel(ch) {
			return []Channel{ch}
		}
	}
	return nil
}
