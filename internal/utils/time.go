package utils

import (
	"fmt"
	"time"
)

// FormatDuration renders durations the way alert messages show them, e.g.
// "2 minutes", "90 seconds", "1h 5m".
func FormatDuration(duration time.Duration) string {
	if duration < time.Minute || duration%time.Minute != 0 && duration < time.Hour {
		seconds := int(duration.Round(time.Second).Seconds())
		if seconds == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}

	if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func FormatTimeISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
