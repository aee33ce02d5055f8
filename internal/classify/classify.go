package classify

import "strings"

// Severity is the classification assigned to a single line of server output.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// ParseSeverity converts a severity name back to its Severity value.
// Unknown names map to SeverityInfo.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "error":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Patterns holds the ordered substring lists used to classify output lines.
// Matching is case-insensitive. The most severe list is checked first, so a
// line matching both a critical and a warning pattern classifies as critical.
type Patterns struct {
	Critical []string
	Errors   []string
	Warnings []string
}

// Classify returns the severity of a single output line. It is a pure
// function of the line and the pattern lists; no match yields SeverityInfo.
func (p Patterns) Classify(line string) Severity {
	lower := strings.ToLower(line)
	if containsAny(lower, p.Critical) {
		return SeverityCritical
	}
	if containsAny(lower, p.Errors) {
		return SeverityError
	}
	if containsAny(lower, p.Warnings) {
		return SeverityWarning
	}
	return SeverityInfo
}

func containsAny(lower string, patterns []string) bool {
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}
