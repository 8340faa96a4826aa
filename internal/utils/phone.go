package utils

import (
	"regexp"
	"strings"
)

var (
	phoneRegex    = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phoneStripper = regexp.MustCompile(`[^\d+]`)
)

// IsValidPhone checks E.164 shape after stripping formatting characters.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phoneStripper.ReplaceAllString(phone, ""))
}

func NormalizePhone(phone string) string {
	normalized := phoneStripper.ReplaceAllString(phone, "")
	if normalized == "" {
		return ""
	}

	if !strings.HasPrefix(normalized, "+") {
		normalized = "+" + normalized
	}

	return normalized
}

func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}

	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
