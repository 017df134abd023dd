package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Number formats n with thousands separators: 1234567 becomes "1,234,567".
func Number(n int64) string {
	str := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, str = "-", str[1:]
	}
	if len(str) <= 3 {
		return sign + str
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}

// Duration formats time duration in human-readable form.
// Examples:
//   - Less than 1 second: "0s"
//   - Less than 1 minute: "5.2s"
//   - Less than 1 hour: "3m5.2s"
//   - 1 hour or more: "2h15m"
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := d.Seconds() - float64(minutes*60)
		return fmt.Sprintf("%dm%.1fs", minutes, seconds)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Rate formats a per-second rate with K/M suffixes.
func Rate(rate float64) string {
	switch {
	case rate < 1000:
		return fmt.Sprintf("%.2f", rate)
	case rate < 1000000:
		return fmt.Sprintf("%.2fK", rate/1000)
	default:
		return fmt.Sprintf("%.2fM", rate/1000000)
	}
}

// Bytes formats a byte count using binary units: 1536 becomes "1.5 KiB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}

// Truncate shortens s to at most max runes, marking the cut with "..".
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 2 {
		return strings.Repeat(".", max)
	}
	r := []rune(s)
	return string(r[:max-2]) + ".."
}
