package services

import (
	"testing"
	"time"

	"sosalert/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		channel  models.Channel
		attempts int
		code     string
		want     bool
	}{
		{"push first failure", models.ChannelPush, 1, "PROVIDER_UNAVAILABLE", true},
		{"push budget spent", models.ChannelPush, 3, "PROVIDER_UNAVAILABLE", false},
		{"sms second failure", models.ChannelSMS, 2, "RATE_LIMITED", false},
		{"sms first failure", models.ChannelSMS, 1, "RATE_LIMITED", true},
		{"email two failures", models.ChannelEmail, 2, "SMTP_UNAVAILABLE", true},
		{"unknown channel uses default", models.Channel("fax"), 2, "", true},
		{"permanent code", models.ChannelPush, 1, "INVALID_TOKEN", false},
		{"permanent code with prefix", models.ChannelSMS, 1, "TWILIO_BLACKLISTED_21610", false},
		{"lowercase permanent code", models.ChannelEmail, 1, "invalid_email", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.channel, tt.attempts, tt.code))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Run("push doubles", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, BackoffDelay(models.ChannelPush, 1, nil))
		assert.Equal(t, 10*time.Second, BackoffDelay(models.ChannelPush, 2, nil))
		assert.Equal(t, 20*time.Second, BackoffDelay(models.ChannelPush, 3, nil))
	})

	t.Run("sms is fixed", func(t *testing.T) {
		assert.Equal(t, 10*time.Second, BackoffDelay(models.ChannelSMS, 1, nil))
		assert.Equal(t, 10*time.Second, BackoffDelay(models.ChannelSMS, 2, nil))
	})

	t.Run("capped", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, BackoffDelay(models.ChannelEmail, 10, nil))
	})

	t.Run("jitter stays within twenty percent", func(t *testing.T) {
		low := BackoffDelay(models.ChannelPush, 1, func() float64 { return 0 })
		high := BackoffDelay(models.ChannelPush, 1, func() float64 { return 0.999999 })
		assert.Equal(t, 4*time.Second, low)
		assert.InDelta(t, float64(6*time.Second), float64(high), float64(time.Millisecond))
	})
}

func TestFallbackChannel(t *testing.T) {
	full := models.Recipient{PushToken: "tok", Phone: "+15550001111", Email: "a@example.com"}

	next, ok := FallbackChannel(models.ChannelPush, full)
	assert.True(t, ok)
	assert.Equal(t, models.ChannelSMS, next)

	next, ok = FallbackChannel(models.ChannelSMS, full)
	assert.True(t, ok)
	assert.Equal(t, models.ChannelEmail, next)

	_, ok = FallbackChannel(models.ChannelEmail, full)
	assert.False(t, ok)

	_, ok = FallbackChannel(models.ChannelPush, models.Recipient{PushToken: "tok", Email: "a@example.com"})
	assert.False(t, ok, "push never skips straight to email")
}

func TestDecide(t *testing.T) {
	withPhone := models.Recipient{PushToken: "tok", Phone: "+15550001111"}
	pushOnly := models.Recipient{PushToken: "tok"}

	t.Run("first push failure falls back to sms", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelPush, Attempt: 1, Recipient: withPhone}
		d := Decide(job, "PROVIDER_UNAVAILABLE", nil)
		assert.Equal(t, ActionFallback, d.Action)
		assert.Equal(t, models.ChannelSMS, d.Channel)
	})

	t.Run("permanent push failure still falls back", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelPush, Attempt: 1, Recipient: withPhone}
		d := Decide(job, "INVALID_TOKEN", nil)
		assert.Equal(t, ActionFallback, d.Action)
	})

	t.Run("no fallback target retries", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelPush, Attempt: 1, Recipient: pushOnly}
		d := Decide(job, "PROVIDER_UNAVAILABLE", nil)
		assert.Equal(t, ActionRetry, d.Action)
		assert.Equal(t, models.ChannelPush, d.Channel)
		assert.Equal(t, 5*time.Second, d.Delay)
	})

	t.Run("permanent without fallback drops", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelPush, Attempt: 1, Recipient: pushOnly}
		assert.Equal(t, ActionDrop, Decide(job, "UNREGISTERED", nil).Action)
	})

	t.Run("fallback offered once", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelPush, Attempt: 1, Recipient: withPhone, FallbackIssued: true}
		assert.Equal(t, ActionRetry, Decide(job, "PROVIDER_UNAVAILABLE", nil).Action)
	})

	t.Run("fallback channel already in batch retries instead", func(t *testing.T) {
		job := &models.NotificationJob{
			Channel:   models.ChannelPush,
			Attempt:   1,
			Recipient: withPhone,
			Covered:   []models.Channel{models.ChannelPush, models.ChannelSMS},
		}
		d := Decide(job, "PROVIDER_UNAVAILABLE", nil)
		assert.Equal(t, ActionRetry, d.Action)
		assert.Equal(t, models.ChannelPush, d.Channel)
	})

	t.Run("exhausted budget drops", func(t *testing.T) {
		job := &models.NotificationJob{Channel: models.ChannelSMS, Attempt: 2, Recipient: models.Recipient{Phone: "+1555"}}
		assert.Equal(t, ActionDrop, Decide(job, "RATE_LIMITED", nil).Action)
	})

	assert.Equal(t, "fallback", ActionFallback.String())
	assert.Equal(t, "retry", ActionRetry.String())
	assert.Equal(t, "drop", ActionDrop.String())
}
