package push

import "context"

// Provider error codes. The dispatcher treats INVALID_TOKEN and UNREGISTERED
// as permanent; everything else is retried.
const (
	ErrCodeInvalidToken     = "INVALID_TOKEN"
	ErrCodeUnregistered     = "UNREGISTERED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeUnavailable      = "PROVIDER_UNAVAILABLE"
	ErrCodeUnknown          = "PUSH_FAILED"
)

type PushProvider interface {
	SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error)
}

type NotificationRequest struct {
	Token       string            `json:"token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	TTL         int               `json:"ttl,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	IOS         *IOSConfig        `json:"ios,omitempty"`
	Android     *AndroidConfig    `json:"android,omitempty"`
}

type NotificationResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
}

type IOSConfig struct {
	Category       string `json:"category,omitempty"`
	InterruptLevel string `json:"interruption_level,omitempty"`
}

type AndroidConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Color     string `json:"color,omitempty"`
}

func failure(token, code string, err error) *NotificationResponse {
	return &NotificationResponse{
		Success:   false,
		ErrorCode: code,
		Error:     err.Error(),
		Token:     token,
	}
}
