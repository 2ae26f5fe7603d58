package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// TUI is the terminal flavour of SimpleUI: colored output and a masked
// password prompt.
type TUI struct {
	*SimpleUI
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	return &TUI{SimpleUI: NewSimpleUI(cmd)}
}

// DisplayOperation prints one colored line per step.
func (t *TUI) DisplayOperation(ctx context.Context, op m.Operation) {
	if err := ctx.Err(); err != nil {
		return
	}

	line := formatOperation(op)

	switch {
	case op.Err != nil:
		line = failedStyle.Render(line)
	case op.DryRun:
		line = dimStyle.Render(line)
	}

	t.printf("%s\n", line)
}

// DisplaySummary prints the counters table and styled findings.
func (t *TUI) DisplaySummary(ctx context.Context, summary m.Summary, findings []m.Finding) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.printf("\n%s", renderSummaryTable(summary))

	for _, f := range findings {
		t.printf("%s %s\n", severityLabel(f.Severity), f.Message())
	}

	return nil
}

func severityLabel(s m.Severity) string {
	label := strings.ToUpper(s.String()) + ":"

	switch s {
	case m.SeverityError:
		return errorStyle.Render(label)
	case m.SeverityWarning:
		return warningStyle.Render(label)
	case m.SeverityInfo:
		return infoStyle.Render(label)
	}

	return label
}

// PromptPassword runs a masked input field.
func (t *TUI) PromptPassword(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pw, err := runPasswordPrompt(ctx, label, t.cmd.InOrStdin(), t.cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}

	return pw, nil
}
