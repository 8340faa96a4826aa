package services

import (
	"context"
	"errors"
	"fmt"

	"sosalert/internal/models"
	"sosalert/internal/utils"
	"sosalert/pkg/email"
	"sosalert/pkg/push"
	"sosalert/pkg/sms"
)

// ChannelSender performs one delivery attempt on one channel. Provider
// failures come back in the result, never as a panic or error.
type ChannelSender interface {
	Send(ctx context.Context, recipient models.Recipient, content models.NotificationContent, channel models.Channel) models.SendResult
}

const ErrCodeChannelUnavailable = "CHANNEL_NOT_CONFIGURED"

const maxSMSLength = 1600

// MultiChannelSender routes push by device platform, SMS through the
// configured SMS provider and email over SMTP. Any provider may be nil.
type MultiChannelSender struct {
	fcm    push.PushProvider
	apns   push.PushProvider
	sms    sms.SMSProvider
	mailer email.Mailer
}

func NewMultiChannelSender(fcm, apns push.PushProvider, smsProvider sms.SMSProvider, mailer email.Mailer) *MultiChannelSender {
	return &MultiChannelSender{
		fcm:    fcm,
		apns:   apns,
		sms:    smsProvider,
		mailer: mailer,
	}
}

func (s *MultiChannelSender) Send(ctx context.Context, recipient models.Recipient, content models.NotificationContent, channel models.Channel) models.SendResult {
	switch channel {
	case models.ChannelPush:
		return s.sendPush(ctx, recipient, content)
	case models.ChannelSMS:
		return s.sendSMS(ctx, recipient, content)
	case models.ChannelEmail:
		return s.sendEmail(ctx, recipient, content)
	default:
		return unavailable(fmt.Sprintf("unknown channel %q", channel))
	}
}

func (s *MultiChannelSender) pushProviderFor(platform models.DevicePlatform) push.PushProvider {
	if platform == models.PlatformIOS && s.apns != nil {
		return s.apns
	}
	return s.fcm
}

func (s *MultiChannelSender) sendPush(ctx context.Context, recipient models.Recipient, content models.NotificationContent) models.SendResult {
	provider := s.pushProviderFor(recipient.Platform)
	if provider == nil {
		return unavailable("no push provider configured")
	}

	resp, err := provider.SendNotification(ctx, &push.NotificationRequest{
		Token:       recipient.PushToken,
		Title:       content.Title,
		Body:        content.Body,
		Data:        content.Data,
		Sound:       "default",
		Priority:    "high",
		CollapseKey: content.Data["emergency_id"],
		IOS:         &push.IOSConfig{Category: "EMERGENCY_ALERT", InterruptLevel: "time-sensitive"},
		Android:     &push.AndroidConfig{ChannelID: "emergency_alerts", Color: "#D32F2F"},
	})
	if err != nil || resp == nil || !resp.Success {
		code := push.ErrCodeUnknown
		if resp != nil && resp.ErrorCode != "" {
			code = resp.ErrorCode
		}
		return failedResult(err, code)
	}
	return models.SendResult{Success: true, ProviderMessageID: resp.MessageID}
}

func (s *MultiChannelSender) sendSMS(ctx context.Context, recipient models.Recipient, content models.NotificationContent) models.SendResult {
	if s.sms == nil {
		return unavailable("no sms provider configured")
	}

	if !utils.IsValidPhone(recipient.Phone) {
		return failedResult(errors.New("invalid phone number"), sms.ErrCodeInvalidPhone)
	}

	message := content.Title + ": " + content.Body
	if len(message) > maxSMSLength {
		message = message[:maxSMSLength]
	}

	resp, err := s.sms.SendSMS(ctx, &sms.SMSRequest{
		To:      utils.NormalizePhone(recipient.Phone),
		Message: message,
		Type:    "transactional",
	})
	if err != nil {
		code := sms.ErrCodeUnknown
		if resp != nil && resp.ErrorCode != "" {
			code = resp.ErrorCode
		}
		return failedResult(err, code)
	}
	return models.SendResult{Success: true, ProviderMessageID: resp.MessageID}
}

func (s *MultiChannelSender) sendEmail(ctx context.Context, recipient models.Recipient, content models.NotificationContent) models.SendResult {
	if s.mailer == nil {
		return unavailable("no mailer configured")
	}

	resp, err := s.mailer.SendEmail(ctx, &email.EmailRequest{
		To:      utils.NormalizeEmail(recipient.Email),
		ToName:  recipient.Name,
		Subject: content.Title,
		Body:    content.Body,
		Headers: map[string]string{"X-Priority": "1"},
	})
	if err != nil {
		code := email.ErrCodeUnknown
		if resp != nil && resp.ErrorCode != "" {
			code = resp.ErrorCode
		}
		return failedResult(err, code)
	}
	return models.SendResult{Success: true, ProviderMessageID: resp.MessageID}
}

func failedResult(err error, code string) models.SendResult {
	msg := "provider rejected the message"
	if err != nil {
		msg = err.Error()
	}
	return models.SendResult{Success: false, ErrorCode: code, ErrorMessage: msg}
}

func unavailable(msg string) models.SendResult {
	return models.SendResult{Success: false, ErrorCode: ErrCodeChannelUnavailable, ErrorMessage: msg}
}
