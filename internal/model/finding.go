package model

import "strings"

// Severity ranks findings; higher is worse.
type Severity int

// Severity levels.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}

	return "unknown"
}

// Finding is one conclusion drawn from a run's statistics.
type Finding struct {
	Severity  Severity
	Sentences []string
}

// Message joins the sentences into one paragraph.
func (f Finding) Message() string {
	return strings.Join(f.Sentences, " ")
}
