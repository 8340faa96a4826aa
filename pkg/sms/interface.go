package sms

import "context"

// Provider error codes. INVALID_PHONE_NUMBER, BLACKLISTED and
// PERMISSION_DENIED are permanent; the rest are retried.
const (
	ErrCodeInvalidPhone     = "INVALID_PHONE_NUMBER"
	ErrCodeBlacklisted      = "BLACKLISTED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnavailable      = "PROVIDER_UNAVAILABLE"
	ErrCodeUnknown          = "SMS_FAILED"
)

type SMSProvider interface {
	SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error)
}

type SMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
	Type    string `json:"type"` // transactional, promotional
}

type SMSResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

func failure(code string, err error) *SMSResponse {
	return &SMSResponse{
		Status:    "failed",
		ErrorCode: code,
		Error:     err.Error(),
	}
}
