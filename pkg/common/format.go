package common

import "fmt"

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders a byte count as a short human-readable string.
func FormatBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	size := float64(n)
	unit := 0
	for size >= 1024.0 && unit < len(byteUnits)-1 {
		size /= 1024.0
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", int64(size), byteUnits[unit])
	}
	return fmt.Sprintf("%.1f %s", size, byteUnits[unit])
}

// FormatRate renders a bytes-per-second rate.
func FormatRate(bps float64) string {
	return FormatBytes(int64(bps)) + "/s"
}
