package utils

import (
	"fmt"
	"time"
)

// FormatAge renders d the way the inspector shows it: "1h 2m 3s", "4m 5s", "6s".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes%60, seconds%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatAgo is the coarser minute-resolution form used next to a displayed rate.
func FormatAgo(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if hours := minutes / 60; hours > 0 {
		return fmt.Sprintf("%dh %dm ago", hours, minutes%60)
	}
	return fmt.Sprintf("%dm ago", minutes)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
