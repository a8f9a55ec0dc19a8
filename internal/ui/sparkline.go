package ui

import "strings"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders per-second throughput samples as exactly width block
// characters, newest on the right. Missing history renders as the lowest
// block. Samples are scaled against the largest value shown.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	peak := 0.0
	for _, v := range samples {
		peak = max(peak, v)
	}

	var b strings.Builder
	for range width - len(samples) {
		b.WriteRune(sparkBlocks[0])
	}
	top := len(sparkBlocks) - 1
	for _, v := range samples {
		idx := 0
		if peak > 0 && v > 0 {
			idx = min(int(v/peak*float64(top)), top)
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
