package domain

import (
	"fmt"
	"slices"
	"strings"

	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// Exit codes derived from the highest finding severity.
const (
	ExitOK      = 0
	ExitWarning = 1
	ExitError   = 2
)

var failureSentences = map[m.Category]string{
	m.FilesCopied:           "%s could not be archived.",
	m.DirectoriesCreated:    "%s could not be created in the destination.",
	m.FilesDeleted:          "%s could not be deleted from the destination.",
	m.DirectoriesDeleted:    "%s could not be deleted from the destination.",
	m.EntriesPurged:         "%s could not be purged.",
	m.OrphansRemoved:        "%s could not be removed from the destination.",
	m.DirectoriesUnreadable: "%s could not be read.",
	m.IndexesRemoved:        "%s could not be removed.",
}

var nouns = map[m.Category][2]string{
	m.FilesCopied:              {"file", "files"},
	m.DirectoriesCreated:       {"directory", "directories"},
	m.FilesDeleted:             {"archive", "archives"},
	m.DirectoriesDeleted:       {"directory", "directories"},
	m.EntriesPurged:            {"entry", "entries"},
	m.OrphansRemoved:           {"orphaned entry", "orphaned entries"},
	m.UnprocessableSource:      {"source entry", "source entries"},
	m.UnprocessableDestination: {"destination entry", "destination entries"},
	m.DirectoriesUnreadable:    {"directory", "directories"},
	m.IndexesRemoved:           {"superseded index", "superseded indexes"},
}

func count(c m.Category, n int) string {
	noun := nouns[c]
	if n == 1 {
		return "1 " + noun[0]
	}

	return fmt.Sprintf("%d %s", n, noun[1])
}

// Report turns the counters of a run into findings ordered from the most to
// the least severe.
func Report(summary m.Summary) []m.Finding {
	var findings []m.Finding

	var failures []string

	for _, c := range m.Categories() {
		if n := summary.Get(c).Failed; n > 0 {
			if format, ok := failureSentences[c]; ok {
				failures = append(failures, fmt.Sprintf(format, capitalize(count(c, n))))
			}
		}
	}

	if len(failures) > 0 {
		failures = append(failures, "Failed items are retried on the next run.")
		findings = append(findings, m.Finding{Severity: m.SeverityError, Sentences: failures})
	}

	if summary.Commit == m.CommitFailed {
		findings = append(findings, m.Finding{Severity: m.SeverityError, Sentences: []string{
			"The index could not be saved.",
			"The next run recovers names from the destination, but changes made by this run are not recorded.",
		}})
	}

	for _, w := range []struct {
		category m.Category
		format   string
	}{
		{m.OrphansRemoved, "%s not known to the index %s removed from the destination."},
		{m.EntriesPurged, "%s vanished from the destination and %s dropped from the index."},
		{m.UnprocessableSource, "%s %s neither a file nor a directory and %s skipped."},
		{m.UnprocessableDestination, "%s %s neither a file nor a directory and %s left alone."},
	} {
		n := summary.Get(w.category).Succeeded
		if n == 0 {
			continue
		}

		verb := "was"
		isVerb := "is"

		if n != 1 {
			verb = "were"
			isVerb = "are"
		}

		var sentence string

		switch strings.Count(w.format, "%s") {
		case 2:
			sentence = fmt.Sprintf(w.format, capitalize(count(w.category, n)), verb)
		default:
			sentence = fmt.Sprintf(w.format, capitalize(count(w.category, n)), isVerb, verb)
		}

		findings = append(findings, m.Finding{Severity: m.SeverityWarning, Sentences: []string{sentence}})
	}

	var work []string

	for _, c := range []m.Category{m.FilesCopied, m.DirectoriesCreated, m.FilesDeleted, m.DirectoriesDeleted, m.IndexesRemoved} {
		if n := summary.Get(c).Succeeded; n > 0 {
			work = append(work, fmt.Sprintf("%s %s", workVerbs[c], count(c, n)))
		}
	}

	switch {
	case len(work) > 0:
		findings = append(findings, m.Finding{Severity: m.SeverityInfo, Sentences: []string{
			capitalize(strings.Join(work, ", ")) + ".",
		}})
	case len(findings) == 0:
		findings = append(findings, m.Finding{Severity: m.SeverityInfo, Sentences: []string{"Destination is up to date."}})
	}

	if summary.DryRun {
		findings = append(findings, m.Finding{Severity: m.SeverityInfo, Sentences: []string{
			"Dry run: nothing was written to the destination.",
		}})
	}

	slices.SortStableFunc(findings, func(a, b m.Finding) int {
		return int(b.Severity) - int(a.Severity)
	})

	return findings
}

var workVerbs = map[m.Category]string{
	m.FilesCopied:        "archived",
	m.DirectoriesCreated: "created",
	m.FilesDeleted:       "deleted",
	m.DirectoriesDeleted: "deleted",
	m.IndexesRemoved:     "removed",
}

// ExitCode maps the highest severity in findings to a process exit code.
func ExitCode(findings []m.Finding) int {
	highest := m.SeverityInfo

	for _, f := range findings {
		highest = max(highest, f.Severity)
	}

	switch highest {
	case m.SeverityError:
		return ExitError
	case m.SeverityWarning:
		return ExitWarning
	}

	return ExitOK
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
