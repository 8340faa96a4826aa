package utils

import "time"

// Application Constants
const (
	AppName = "SOSAlert"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Emergency
	MaxInitialMessageLength  = 500
	MaxResolutionNotesLength = 2000
	MaxAckMessageLength      = 500
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheEmergencyPrefix  = "emergency:"
	CacheEscalationPrefix = "escalation:"
)
