package utils

import (
	"fmt"
	"time"
)

// FormatWindow renders a detection window for human-facing summaries:
// windows under two hours come out in minutes, anything longer in hours.
func FormatWindow(d time.Duration) string {
	if d < 2*time.Hour {
		return fmt.Sprintf("%dmin", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}
