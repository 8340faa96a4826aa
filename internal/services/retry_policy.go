package services

import (
	"math"
	"strings"
	"time"

	"sosalert/internal/models"
)

// RetryPolicy describes same-channel retries for one channel.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64
}

const defaultMaxAttempts = 3

var channelPolicies = map[models.Channel]RetryPolicy{
	models.ChannelPush: {
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Multiplier:  2,
		MaxDelay:    60 * time.Second,
		Jitter:      0.2,
	},
	models.ChannelSMS: {
		MaxAttempts: 2,
		BaseDelay:   10 * time.Second,
		Multiplier:  1,
		MaxDelay:    60 * time.Second,
		Jitter:      0.2,
	},
	models.ChannelEmail: {
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second,
		Multiplier:  2,
		MaxDelay:    60 * time.Second,
		Jitter:      0.2,
	},
}

var defaultPolicy = RetryPolicy{
	MaxAttempts: defaultMaxAttempts,
	BaseDelay:   5 * time.Second,
	Multiplier:  2,
	MaxDelay:    60 * time.Second,
	Jitter:      0.2,
}

// Error codes that never succeed on retry. Matched as substrings so that
// provider-prefixed variants are caught too.
var permanentErrorCodes = []string{
	"INVALID_TOKEN",
	"INVALID_PHONE_NUMBER",
	"INVALID_EMAIL",
	"BLACKLISTED",
	"UNREGISTERED",
	"PERMISSION_DENIED",
}

func PolicyFor(channel models.Channel) RetryPolicy {
	if p, ok := channelPolicies[channel]; ok {
		return p
	}
	return defaultPolicy
}

func IsPermanentError(errorCode string) bool {
	code := strings.ToUpper(errorCode)
	for _, p := range permanentErrorCodes {
		if strings.Contains(code, p) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether another attempt on the same channel is allowed
// after `attempts` attempts failed with errorCode.
func ShouldRetry(channel models.Channel, attempts int, errorCode string) bool {
	if IsPermanentError(errorCode) {
		return false
	}
	return attempts < PolicyFor(channel).MaxAttempts
}

// BackoffDelay returns base * multiplier^(attempt-1), capped at the policy
// maximum, scaled by a jitter factor in [1-j, 1+j]. rnd must return values
// in [0, 1); nil disables jitter.
func BackoffDelay(channel models.Channel, attempt int, rnd func() float64) time.Duration {
	p := PolicyFor(channel)
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if rnd != nil && p.Jitter > 0 {
		delay *= 1 + p.Jitter*(2*rnd()-1)
	}
	return time.Duration(delay)
}

// FallbackChannel returns the substitute channel after a failure on channel,
// if the recipient can be reached on it. Push falls back to SMS, SMS to
// Email, Email to nothing.
func FallbackChannel(channel models.Channel, recipient models.Recipient) (models.Channel, bool) {
	var next models.Channel
	switch channel {
	case models.ChannelPush:
		next = models.ChannelSMS
	case models.ChannelSMS:
		next = models.ChannelEmail
	default:
		return "", false
	}
	if !recipient.Supports(next) {
		return "", false
	}
	return next, true
}

type RetryAction int

const (
	ActionDrop RetryAction = iota
	ActionRetry
	ActionFallback
)

func (a RetryAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	default:
		return "drop"
	}
}

type RetryDecision struct {
	Action  RetryAction
	Channel models.Channel
	Delay   time.Duration
}

// Decide picks what happens after job's latest attempt failed with
// errorCode. A fallback is offered only on the first failure of a job that
// has not spawned one yet, and replaces any same-channel retry. A fallback
// channel the batch already covers for the recipient is never offered.
func Decide(job *models.NotificationJob, errorCode string, rnd func() float64) RetryDecision {
	if job.Attempt <= 1 && !job.FallbackIssued {
		if next, ok := FallbackChannel(job.Channel, job.Recipient); ok && !job.Covers(next) {
			return RetryDecision{Action: ActionFallback, Channel: next}
		}
	}

	if ShouldRetry(job.Channel, job.Attempt, errorCode) {
		return RetryDecision{
			Action:  ActionRetry,
			Channel: job.Channel,
			Delay:   BackoffDelay(job.Channel, job.Attempt, rnd),
		}
	}

	return RetryDecision{Action: ActionDrop, Channel: job.Channel}
}
