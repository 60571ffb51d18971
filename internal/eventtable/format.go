package eventtable

import (
	"fmt"
	"math"
	"time"
)

// FormatAge renders an elapsed duration as "<days>d HH:MM", dropping seconds.
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	days := minutes / (24 * 60)
	hours := (minutes / 60) % 24
	return fmt.Sprintf("%dd %02d:%02d", days, hours, minutes%60)
}

// FormatDowntime renders a downtime using only its greatest unit: whole
// days, then hours and minutes rounded to the nearest unit, then seconds.
// A zero or negative duration renders as the empty string.
func FormatDowntime(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
	// A rounded value that reaches the next unit is shown in that unit.
	if d < time.Hour {
		if m := int64(math.Round(d.Seconds() / 60)); m < 60 {
			return fmt.Sprintf("%dm", m)
		}
		return "1h"
	}
	if d < 24*time.Hour {
		if h := int64(math.Round(d.Minutes() / 60)); h < 24 {
			return fmt.Sprintf("%dh", h)
		}
		return "1d"
	}
	return fmt.Sprintf("%dd", int64(d/(24*time.Hour)))
}
