package classify

import "testing"

func testPatterns() Patterns {
	return Patterns{
		Critical: []string{"FATAL", "Server crashed", "OutOfMemoryError"},
		Errors:   []string{"ERROR", "Exception"},
		Warnings: []string{"WARN", "Warning"},
	}
}

func TestClassify(t *testing.T) {
	p := testPatterns()
	tests := []struct {
		name string
		line string
		want Severity
	}{
		{"plain line", "player joined the game", SeverityInfo},
		{"critical", "FATAL: cannot allocate region", SeverityCritical},
		{"error", "ERROR: chunk load failed", SeverityError},
		{"warning", "WARN: tick took 120ms", SeverityWarning},
		{"case insensitive", "fatal error in worker", SeverityCritical},
		{"pattern mid line", "java.lang.OutOfMemoryError: heap space", SeverityCritical},
		{"empty line", "", SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.line); got != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestClassifySeverityPrecedence(t *testing.T) {
	p := testPatterns()
	// A line matching critical, error and warning patterns at once must
	// classify as critical.
	line := "FATAL ERROR with Warning attached"
	if got := p.Classify(line); got != SeverityCritical {
		t.Fatalf("Classify(%q) = %v, want critical", line, got)
	}
	// Error beats warning.
	line = "ERROR while parsing Warning block"
	if got := p.Classify(line); got != SeverityError {
		t.Fatalf("Classify(%q) = %v, want error", line, got)
	}
}

func TestClassifyEmptyPatternIgnored(t *testing.T) {
	p := Patterns{Critical: []string{""}, Errors: []string{""}}
	if got := p.Classify("anything at all"); got != SeverityInfo {
		t.Fatalf("empty patterns must never match, got %v", got)
	}
}

func TestSeverityStringRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		if got := ParseSeverity(s.String()); got != s {
			t.Fatalf("ParseSeverity(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if got := ParseSeverity("bogus"); got != SeverityInfo {
		t.Fatalf("ParseSeverity(bogus) = %v, want info", got)
	}
}
