package task

import "fmt"

// speedLabel formats a byte rate as the exact "NNN.N KB/s" shape §6
// specifies. go-humanize's multi-unit, binary/SI-ambiguous formatting
// doesn't produce this fixed shape, so this is a small purpose-built
// formatter instead (kept separate from the humanize-formatted bytes used
// in verbose logging).
func speedLabel(bytesPerSec float64) string {
	kb := bytesPerSec / 1024.0
	return fmt.Sprintf("%.1f KB/s", kb)
}

// percent computes floor(100 * done / total), guarding total == 0.
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (100 * done) / total
}
