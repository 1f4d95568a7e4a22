package tasks

import "fmt"

var sizeUnits = []string{"KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatSize renders a byte count with binary units and one decimal place,
// rounding half-up. Sub-kibibyte values stay in whole bytes.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n)
	unit := -1
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}

	v = roundHalfUp(v)
	// Rounding can push the value into the next unit, e.g. 1023.97 KiB.
	if v >= 1024 && unit < len(sizeUnits)-1 {
		v = roundHalfUp(v / 1024)
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}

func roundHalfUp(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
