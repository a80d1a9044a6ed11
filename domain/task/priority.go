package task

import "strings"

// Priority represents task queue priority tiers.
// Values are spaced far apart so that ordering by the numeric value always
// keeps a higher tier ahead of a lower one regardless of submission time.
type Priority int

// Priority values.
const (
	PriorityLow      Priority = 1000
	PriorityNormal   Priority = 2000
	PriorityHigh     Priority = 5000
	PriorityCritical Priority = 10000
)

// String returns the lowercase tier name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Valid returns true for a known priority tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority converts a tier name to a Priority.
// Unknown or empty names map to PriorityNormal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}
