package shared

// Listing limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListLimit clamps a caller supplied limit into [1, MaxListLimit].
func ListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
