// Package output renders command results for people (table) and for
// scripts (json, yaml).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/n3tuk/multidev-lifecycle/internal/health"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be table, json or yaml)", s)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	deleteStyle = cellStyle.Foreground(lipgloss.Color("#E74C3C"))
	keepStyle   = cellStyle.Foreground(lipgloss.Color("#2CD7C7"))
)

// Renderer writes results in one format.
type Renderer struct {
	w      io.Writer
	format Format
}

// New creates a Renderer.
func New(w io.Writer, format Format) *Renderer {
	return &Renderer{w: w, format: format}
}

// Partition is the outcome of a deletion run.
type Partition struct {
	DryRun   bool                `json:"dry_run" yaml:"dry_run"`
	ToDelete []model.Environment `json:"to_delete" yaml:"to_delete"`
	ToKeep   []model.Environment `json:"to_keep" yaml:"to_keep"`
	Deleted  []string            `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Skipped  []string            `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Environments renders an environment list.
func (r *Renderer) Environments(envs []model.Environment) error {
	if r.format != FormatTable {
		return r.encode(envs)
	}

	t := newTable("ID", "CREATED", "MODE", "LOCKED", "INITIALIZED")
	for _, env := range envs {
		t.Row(env.ID, formatTime(env.CreatedAt), string(env.ConnectionMode),
			strconv.FormatBool(env.Locked), strconv.FormatBool(env.Initialized))
	}
	return r.print(t.String())
}

// Partition renders a deletion partition.
func (r *Renderer) Partition(p Partition) error {
	if r.format != FormatTable {
		return r.encode(p)
	}

	deleteLabel := "delete"
	if p.DryRun {
		deleteLabel = "would delete"
	}

	actions := map[int]string{}
	t := newTable("ID", "CREATED", "ACTION")
	row := 0
	for _, env := range p.ToDelete {
		t.Row(env.ID, formatTime(env.CreatedAt), deleteLabel)
		actions[row] = "delete"
		row++
	}
	for _, env := range p.ToKeep {
		t.Row(env.ID, formatTime(env.CreatedAt), "keep")
		actions[row] = "keep"
		row++
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 2 && actions[row] == "delete":
			return deleteStyle
		case col == 2 && actions[row] == "keep":
			return keepStyle
		default:
			return cellStyle
		}
	})
	return r.print(t.String())
}

// Metadata renders a build metadata record.
func (r *Renderer) Metadata(meta *model.BuildMetadata) error {
	if r.format != FormatTable {
		return r.encode(meta)
	}

	t := newTable("FIELD", "VALUE")
	t.Row("url", meta.URL)
	t.Row("ref", meta.Ref)
	t.Row("sha", meta.SHA)
	t.Row("comment", meta.Comment)
	t.Row("commit-date", meta.CommitDate)
	t.Row("build-date", meta.BuildDate)
	return r.print(t.String())
}

// WaitResult is the outcome of waiting on a workflow.
type WaitResult struct {
	Site        string        `json:"site" yaml:"site"`
	Description string        `json:"description" yaml:"description"`
	Outcome     string        `json:"outcome" yaml:"outcome"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Wait renders a workflow wait result.
func (r *Renderer) Wait(w WaitResult) error {
	if r.format != FormatTable {
		return r.encode(w)
	}

	t := newTable("SITE", "WORKFLOW", "OUTCOME", "ELAPSED")
	t.Row(w.Site, w.Description, w.Outcome, w.Elapsed.Round(time.Second).String())
	return r.print(t.String())
}

// Checks renders preflight results.
func (r *Renderer) Checks(results []health.CheckResult) error {
	if r.format != FormatTable {
		return r.encode(results)
	}

	t := newTable("CHECK", "STATUS", "MESSAGE")
	for _, c := range results {
		t.Row(c.Name, string(c.Status), c.Message)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case col == 1 && row < len(results) && results[row].Status == health.StatusOK:
			return keepStyle
		case col == 1:
			return deleteStyle
		default:
			return cellStyle
		}
	})
	return r.print(t.String())
}

func (r *Renderer) encode(v any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", r.format)
	}
}

func (r *Renderer) print(s string) error {
	_, err := fmt.Fprintln(r.w, s)
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
