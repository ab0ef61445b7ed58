package tui

import "strings"

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as a row of block characters scaled to the
// largest value. Only the newest width values are drawn when width > 0.
// Zero always renders as the lowest block.
func Sparkline(values []int, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}
	if len(values) == 0 {
		return ""
	}

	peak := 0
	for _, v := range values {
		peak = max(peak, v)
	}

	var b strings.Builder
	top := len(sparkTicks) - 1
	for _, v := range values {
		idx := 0
		if peak > 0 && v > 0 {
			idx = v * top / peak
		}
		b.WriteRune(sparkTicks[idx])
	}
	return b.String()
}
