package recurrence

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// TimeToMinutes converts "HH:MM" to minutes after midnight.
func TimeToMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return h*60 + m, nil
}

// MinutesToTime formats minutes after midnight as "HH:MM", wrapping past
// midnight in either direction.
func MinutesToTime(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// FormatEstimate renders a duration in minutes as "45m", "2h" or "1h30m".
func FormatEstimate(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%dm", h, m)
	}
}

// EndFor returns start plus d minutes, clamped to the last minute of the day.
func EndFor(start string, d int) (string, error) {
	s, err := TimeToMinutes(start)
	if err != nil {
		return "", err
	}
	end := min(s+d, minutesPerDay-1)
	if end <= s {
		return "", fmt.Errorf("start %s leaves no room before midnight", start)
	}
	return MinutesToTime(end), nil
}
