package controller

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// SimpleUI writes plain text through the cobra command's streams.
type SimpleUI struct {
	cmd *cobra.Command
	mu  sync.Mutex
	in  *bufio.Reader
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// DisplayOperation prints one line per step.
func (s *SimpleUI) DisplayOperation(ctx context.Context, op m.Operation) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("%s\n", formatOperation(op))
}

func formatOperation(op m.Operation) string {
	var b strings.Builder

	if op.DryRun {
		b.WriteString("[dry-run] ")
	}

	fmt.Fprintf(&b, "%-7s", op.Kind)

	switch {
	case op.Source != "" && op.Destination != "":
		fmt.Fprintf(&b, " %s -> %s", op.Source, op.Destination)
	case op.Source != "":
		fmt.Fprintf(&b, " %s", op.Source)
	default:
		fmt.Fprintf(&b, " %s", op.Destination)
	}

	if op.Err != nil {
		fmt.Fprintf(&b, " FAILED: %v", op.Err)
	}

	return b.String()
}

// DisplaySummary prints the counters table followed by the findings.
func (s *SimpleUI) DisplaySummary(ctx context.Context, summary m.Summary, findings []m.Finding) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderSummaryTable(summary))

	for _, f := range findings {
		s.printf("%s: %s\n", strings.ToUpper(f.Severity.String()), f.Message())
	}

	return nil
}

func renderSummaryTable(summary m.Summary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Operation", "Succeeded", "Failed"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})

	for _, c := range m.Categories() {
		counter := summary.Get(c)
		if counter.Total() == 0 {
			continue
		}

		table.Append([]string{c.String(), strconv.Itoa(counter.Succeeded), strconv.Itoa(counter.Failed)})
	}

	table.SetFooter([]string{"Index", summary.Commit.String(), ""})
	table.Render()

	return tableBuffer.String()
}

// DisplayMappings prints the listing as a table, or as YAML when asYAML is set.
func (s *SimpleUI) DisplayMappings(ctx context.Context, mappings []m.Mapping, asYAML bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if asYAML {
		out, err := RenderMappingsYAML(mappings)
		if err != nil {
			return err
		}

		s.printf("%s", out)

		return nil
	}

	s.printf("%s", RenderMappingsTable(mappings))

	return nil
}

// RenderMappingsTable renders mappings with sizes in human units. Directories
// get a trailing slash.
func RenderMappingsTable(mappings []m.Mapping) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Source", "Destination", "Size"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	var (
		files int
		total uint64
	)

	for _, mp := range mappings {
		if mp.Directory {
			table.Append([]string{mp.Source + "/", mp.Destination + "/", ""})
			continue
		}

		files++
		total += uint64(max(mp.Size, 0))
		table.Append([]string{mp.Source, mp.Destination, humanize.Bytes(uint64(max(mp.Size, 0)))})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Files %d", files), "", humanize.Bytes(total)})
	table.Render()

	return tableBuffer.String()
}

// RenderMappingsYAML renders mappings as a YAML sequence.
func RenderMappingsYAML(mappings []m.Mapping) (string, error) {
	if mappings == nil {
		mappings = []m.Mapping{}
	}

	out, err := yaml.Marshal(mappings)
	if err != nil {
		return "", fmt.Errorf("failed to encode mappings: %w", err)
	}

	return string(out), nil
}

// PromptPassword reads one line from the command's input.
func (s *SimpleUI) PromptPassword(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.in == nil {
		s.in = bufio.NewReader(s.cmd.InOrStdin())
	}
	in := s.in
	s.mu.Unlock()

	_, _ = fmt.Fprintf(s.cmd.ErrOrStderr(), "%s: ", label)

	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", ErrPromptCancelled
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
