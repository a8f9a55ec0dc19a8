package stats

import (
	"fmt"
	"time"
)

// Binary magnitudes used by FormatBytes.
const (
	KB int64 = 1 << (10 * (iota + 1))
	MB
	GB
	TB
	PB
	EB
)

var magnitudes = []struct {
	unit string
	size int64
}{
	{"EB", EB}, {"PB", PB}, {"TB", TB}, {"GB", GB}, {"MB", MB}, {"KB", KB},
}

// FormatBytes scales b to the largest binary unit it strictly exceeds and
// keeps the exact count alongside, e.g. "1.50 KB (1536 bytes)".
func FormatBytes(b int64) string {
	for _, m := range magnitudes {
		if b > m.size {
			return fmt.Sprintf("%.2f %s (%d bytes)", float64(b)/float64(m.size), m.unit, b)
		}
	}
	return fmt.Sprintf("%d bytes", b)
}

// FormatClock renders d as h:mm:ss.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
