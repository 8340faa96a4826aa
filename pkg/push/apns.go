package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
)

type apnsPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type APNSProvider struct {
	client apnsPusher
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	tokenProvider := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}

	client := apns2.NewTokenClient(tokenProvider)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{
		client: client,
		topic:  topic,
	}, nil
}

func (a *APNSProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	notification := a.buildNotification(request)

	response, err := a.client.PushWithContext(ctx, notification)
	if err != nil {
		return failure(request.Token, ErrCodeUnavailable, err), err
	}

	if response.Sent() {
		return &NotificationResponse{
			MessageID: response.ApnsID,
			Success:   true,
			Token:     request.Token,
		}, nil
	}

	err = fmt.Errorf("APNS error: %d %s", response.StatusCode, response.Reason)
	return failure(request.Token, classifyAPNSReason(response.Reason), err), err
}

func classifyAPNSReason(reason string) string {
	switch reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic, apns2.ReasonMissingDeviceToken:
		return ErrCodeInvalidToken
	case apns2.ReasonUnregistered:
		return ErrCodeUnregistered
	case apns2.ReasonTooManyRequests:
		return ErrCodeQuotaExceeded
	case apns2.ReasonInvalidProviderToken, apns2.ReasonForbidden:
		return ErrCodePermissionDenied
	case apns2.ReasonServiceUnavailable, apns2.ReasonInternalServerError, apns2.ReasonShutdown:
		return ErrCodeUnavailable
	default:
		return ErrCodeUnknown
	}
}

func (a *APNSProvider) buildNotification(request *NotificationRequest) *apns2.Notification {
	alert := map[string]interface{}{}
	if request.Title != "" {
		alert["title"] = request.Title
	}
	if request.Body != "" {
		alert["body"] = request.Body
	}

	aps := map[string]interface{}{"alert": alert}
	if request.Sound != "" {
		aps["sound"] = request.Sound
	}
	if request.IOS != nil {
		if request.IOS.Category != "" {
			aps["category"] = request.IOS.Category
		}
		if request.IOS.InterruptLevel != "" {
			aps["interruption-level"] = request.IOS.InterruptLevel
		}
	}

	payload := map[string]interface{}{"aps": aps}
	for key, value := range request.Data {
		payload[key] = value
	}

	notification := &apns2.Notification{
		DeviceToken: request.Token,
		Topic:       a.topic,
		Payload:     payload,
		PushType:    apns2.PushTypeAlert,
		Priority:    apns2.PriorityLow,
		CollapseID:  request.CollapseKey,
	}
	if request.Priority == "high" {
		notification.Priority = apns2.PriorityHigh
	}
	if request.TTL > 0 {
		notification.Expiration = time.Now().Add(time.Duration(request.TTL) * time.Second)
	}

	return notification
}
