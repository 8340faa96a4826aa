package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Channel string
type Priority string
type NotificationStatus string
type JobStatus string
type BatchKind string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"

	PriorityEmergency Priority = "emergency"
	PriorityHigh      Priority = "high"
	PriorityNormal    Priority = "normal"

	NotificationStatusQueued    NotificationStatus = "queued"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
	NotificationStatusRead      NotificationStatus = "read"

	JobStatusPending   JobStatus = "pending"
	JobStatusSent      JobStatus = "sent"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusFailed    JobStatus = "failed"

	BatchKindInitial    BatchKind = "initial"
	BatchKindEscalation BatchKind = "escalation"
	BatchKindFollowUp   BatchKind = "follow_up"
)

func (c Channel) IsValid() bool {
	return c == ChannelPush || c == ChannelSMS || c == ChannelEmail
}

// Recipient is the contact info snapshot carried by a job.
type Recipient struct {
	ContactID primitive.ObjectID `json:"contact_id" bson:"contact_id"`
	Name      string             `json:"name" bson:"name"`
	Phone     string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Email     string             `json:"email,omitempty" bson:"email,omitempty"`
	PushToken string             `json:"push_token,omitempty" bson:"push_token,omitempty"`
	Platform  DevicePlatform     `json:"platform,omitempty" bson:"platform,omitempty"`
}

// Supports reports whether the recipient has the contact info ch requires.
func (r Recipient) Supports(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return r.PushToken != ""
	case ChannelSMS:
		return r.Phone != ""
	case ChannelEmail:
		return r.Email != ""
	}
	return false
}

type NotificationContent struct {
	Title string            `json:"title" bson:"title"`
	Body  string            `json:"body" bson:"body"`
	Data  map[string]string `json:"data,omitempty" bson:"data,omitempty"`
}

// NotificationJob is one recipient-channel delivery. Retries reuse the job,
// a channel fallback creates a new one.
type NotificationJob struct {
	ID             string              `json:"id" bson:"_id"`
	BatchID        string              `json:"batch_id" bson:"batch_id"`
	EmergencyID    primitive.ObjectID  `json:"emergency_id" bson:"emergency_id"`
	Recipient      Recipient           `json:"recipient" bson:"recipient"`
	Channel        Channel             `json:"channel" bson:"channel"`
	Priority       Priority            `json:"priority" bson:"priority"`
	Content        NotificationContent `json:"content" bson:"content"`
	Attempt        int                 `json:"attempt" bson:"attempt"`
	MaxAttempts    int                 `json:"max_attempts" bson:"max_attempts"`
	FallbackOf     string              `json:"fallback_of,omitempty" bson:"fallback_of,omitempty"`
	FallbackIssued bool                `json:"fallback_issued" bson:"fallback_issued"`
	// Covered lists the channels this batch already holds a job for, for
	// the same recipient.
	Covered   []Channel `json:"covered,omitempty" bson:"covered,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (j *NotificationJob) Covers(ch Channel) bool {
	for _, c := range j.Covered {
		if c == ch {
			return true
		}
	}
	return false
}

// NotificationRecord is the persisted outcome of one attempt.
type NotificationRecord struct {
	ID                string             `json:"id" bson:"_id"`
	JobID             string             `json:"job_id" bson:"job_id"`
	BatchID           string             `json:"batch_id" bson:"batch_id"`
	EmergencyID       primitive.ObjectID `json:"emergency_id" bson:"emergency_id"`
	RecipientID       primitive.ObjectID `json:"recipient_id" bson:"recipient_id"`
	Channel           Channel            `json:"channel" bson:"channel"`
	Attempt           int                `json:"attempt" bson:"attempt"`
	Status            NotificationStatus `json:"status" bson:"status"`
	ProviderMessageID string             `json:"provider_message_id,omitempty" bson:"provider_message_id,omitempty"`
	ErrorCode         string             `json:"error_code,omitempty" bson:"error_code,omitempty"`
	FailureReason     string             `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	QueuedAt          time.Time          `json:"queued_at" bson:"queued_at"`
	SentAt            *time.Time         `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	DeliveredAt       *time.Time         `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	ReadAt            *time.Time         `json:"read_at,omitempty" bson:"read_at,omitempty"`
	FailedAt          *time.Time         `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

type NotificationBatch struct {
	ID          string             `json:"id" bson:"_id"`
	EmergencyID primitive.ObjectID `json:"emergency_id" bson:"emergency_id"`
	Kind        BatchKind          `json:"kind" bson:"kind"`
	Reason      string             `json:"reason,omitempty" bson:"reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}

// BatchJob is the per-job outcome document BatchStats are counted from.
type BatchJob struct {
	JobID     string    `json:"job_id" bson:"_id"`
	BatchID   string    `json:"batch_id" bson:"batch_id"`
	Channel   Channel   `json:"channel" bson:"channel"`
	Status    JobStatus `json:"status" bson:"status"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BatchStats: Queued == Pending + Sent + Delivered + Failed at all times.
type BatchStats struct {
	BatchID   string `json:"batch_id"`
	Queued    int64  `json:"queued"`
	Pending   int64  `json:"pending"`
	Sent      int64  `json:"sent"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
}

type BatchSummary struct {
	Batch *NotificationBatch `json:"batch"`
	Stats *BatchStats        `json:"stats"`
}

// SendResult is what a channel sender reports for one attempt.
type SendResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// DeliveryReceipt is a provider or client callback about a sent message.
type DeliveryReceipt struct {
	EmergencyID       primitive.ObjectID
	RecipientID       primitive.ObjectID
	Channel           Channel
	ProviderMessageID string
	Status            NotificationStatus
	At                time.Time
}
