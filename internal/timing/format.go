package timing

import "fmt"

// ReadyLabel is shown instead of a zero countdown.
const ReadyLabel = "Ready!"

// FormatRemaining renders minutes as "Ready!", "{m}m" or "{h}h {m}m".
func FormatRemaining(minutes int) string {
	if minutes <= 0 {
		return ReadyLabel
	}
	if h, m := minutes/60, minutes%60; h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", minutes)
}
