// Package format renders durations and byte counts for logs and CLI output.
package format

import (
	"fmt"
	"strconv"
	"time"
)

// Seconds converts a probe's floating-point seconds to a Duration.
func Seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Duration renders d as MM:SS, or HH:MM:SS from one hour up.
// Fractions of a second are dropped and negative values render as zero.
func Duration(d time.Duration) string {
	total := int64(max(d, 0) / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Timestamp renders a position given in seconds, as used in segment names.
func Timestamp(sec float64) string {
	return Duration(Seconds(sec))
}

// DurationHuman renders d in the compact form used in messages: "1h30m",
// "2h", "45m", "12s". Only the two largest units are kept.
func DurationHuman(d time.Duration) string {
	d = max(d, 0)
	switch {
	case d >= time.Hour:
		h, m := d/time.Hour, d%time.Hour/time.Minute
		if m == 0 {
			return strconv.FormatInt(int64(h), 10) + "h"
		}
		return fmt.Sprintf("%dh%dm", h, m)
	case d >= time.Minute:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	default:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
}

// Size renders a byte count with binary units. Whole KB and MB are shown
// without decimals; GB keeps one.
func Size(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case n >= gb:
		return strconv.FormatFloat(float64(n)/gb, 'f', 1, 64) + " GB"
	case n >= mb:
		return strconv.FormatInt(n/mb, 10) + " MB"
	case n >= kb:
		return strconv.FormatInt(n/kb, 10) + " KB"
	case n == 1:
		return "1 byte"
	default:
		return strconv.FormatInt(max(n, 0), 10) + " bytes"
	}
}
