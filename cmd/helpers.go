package cmd

import (
	"fmt"
	"time"
)

// formatLargeNumber formats a number with comma separators.
// Example: 1234567 -> "1,234,567"
func formatLargeNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result []byte
	commaIdx := len(s) % 3
	if commaIdx == 0 {
		commaIdx = 3
	}

	for i, c := range s {
		if i == commaIdx && i != 0 {
			result = append(result, ',')
			commaIdx += 3
		}
		result = append(result, byte(c))
	}

	return string(result)
}

func formatTTL(ttl time.Duration) string {
	if ttl < 0 {
		return "No expiry"
	}
	if ttl < time.Minute {
		return fmt.Sprintf("%ds", int(ttl.Seconds()))
	}
	if ttl < time.Hour {
		return fmt.Sprintf("%dm", int(ttl.Minutes()))
	}
	return fmt.Sprintf("%.1fh", ttl.Hours())
}

func humanizeModTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	ago := time.Since(t)
	return fmt.Sprintf("%s (%s ago)", t.Format("2006-01-02 15:04"), ago.Round(time.Minute))
}
