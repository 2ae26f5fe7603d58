// Package controller renders run progress and results on the console and
// asks the user for passwords.
package controller

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// ErrPromptCancelled is returned when the user aborts a password prompt.
var ErrPromptCancelled = errors.New("password prompt cancelled")

// UI defines how a run talks to the user. Implementations must accept
// DisplayOperation calls from several goroutines.
type UI interface {
	// DisplayOperation reports one mirroring step as it happens.
	DisplayOperation(ctx context.Context, op m.Operation)
	// DisplaySummary prints the final counters and findings.
	DisplaySummary(ctx context.Context, summary m.Summary, findings []m.Finding) error
	// DisplayMappings prints the source to destination listing.
	DisplayMappings(ctx context.Context, mappings []m.Mapping, asYAML bool) error
	// PromptPassword asks for a secret without echoing it where possible.
	PromptPassword(ctx context.Context, label string) (string, error)
}

// NewUI returns the interactive UI when tty is set, the plain one otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd)
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is a terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
