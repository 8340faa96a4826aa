package push

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMProvider struct {
	client fcmSender
}

func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{
		client: client,
	}, nil
}

func (f *FCMProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	message := buildFCMMessage(request)

	response, err := f.client.Send(ctx, message)
	if err != nil {
		return failure(request.Token, classifyFCMError(err), err), err
	}

	return &NotificationResponse{
		MessageID: response,
		Success:   true,
		Token:     request.Token,
	}, nil
}

func classifyFCMError(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return ErrCodeUnregistered
	case messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err):
		return ErrCodeInvalidToken
	case messaging.IsThirdPartyAuthError(err):
		return ErrCodePermissionDenied
	case messaging.IsQuotaExceeded(err):
		return ErrCodeQuotaExceeded
	case messaging.IsUnavailable(err), messaging.IsInternal(err):
		return ErrCodeUnavailable
	default:
		return ErrCodeUnknown
	}
}

func buildFCMMessage(request *NotificationRequest) *messaging.Message {
	message := &messaging.Message{
		Token: request.Token,
		Data:  request.Data,
		Notification: &messaging.Notification{
			Title: request.Title,
			Body:  request.Body,
		},
	}

	android := &messaging.AndroidConfig{
		Priority:    "normal",
		CollapseKey: request.CollapseKey,
		Notification: &messaging.AndroidNotification{
			Title: request.Title,
			Body:  request.Body,
			Sound: request.Sound,
		},
	}
	if request.Priority == "high" {
		android.Priority = "high"
	}
	if request.TTL > 0 {
		ttl := time.Duration(request.TTL) * time.Second
		android.TTL = &ttl
	}
	if request.Android != nil {
		android.Notification.ChannelID = request.Android.ChannelID
		android.Notification.Tag = request.Android.Tag
		android.Notification.Color = request.Android.Color
	}
	message.Android = android

	// iOS devices registered through FCM still go out over APNs.
	aps := &messaging.Aps{
		Alert: &messaging.ApsAlert{
			Title: request.Title,
			Body:  request.Body,
		},
		Sound: request.Sound,
	}
	if request.IOS != nil {
		aps.Category = request.IOS.Category
	}
	headers := map[string]string{"apns-priority": "5"}
	if request.Priority == "high" {
		headers["apns-priority"] = "10"
	}
	message.APNS = &messaging.APNSConfig{
		Headers: headers,
		Payload: &messaging.APNSPayload{Aps: aps},
	}

	return message
}
