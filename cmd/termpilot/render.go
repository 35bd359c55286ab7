package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/registry"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	borderColor = lipgloss.Color("62")
)

func isTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderInstances prints a table of instances. Without styled, only the
// plain table is written so output stays greppable.
func renderInstances(w io.Writer, instances []registry.Instance, styled bool) error {
	if len(instances) == 0 {
		_, err := fmt.Fprintln(w, "no terminal instances")
		return err
	}

	rows := make([][]string, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, []string{
			inst.ID,
			fmt.Sprint(inst.PID),
			fmt.Sprintf("0x%x", uint32(inst.WindowID)),
			inst.Class,
			inst.Title,
			inst.WorkingDirectory,
		})
	}

	return renderTable(w, []string{"ID", "PID", "WINDOW", "CLASS", "TITLE", "CWD"}, rows, styled)
}

// renderTable draws a bordered table when styled and a plain aligned one
// otherwise.
func renderTable(w io.Writer, headers []string, rows [][]string, styled bool) error {
	t := table.New().
		Headers(headers...).
		Rows(rows...)
	if styled {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				return cellStyle
			})
	} else {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false).
			BorderHeader(false).BorderColumn(false).
			StyleFunc(func(_, col int) lipgloss.Style {
				if col == 0 {
					return lipgloss.NewStyle().PaddingRight(1)
				}
				return cellStyle
			})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderSnapshot prints a human summary of an editor snapshot.
func renderSnapshot(w io.Writer, s *editorctx.Snapshot) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s (nvim pid %d", headerStyle.Render("instance"), s.Instance.ID, s.Instance.EditorPID)
	if s.Instance.EditorVersion != "" {
		fmt.Fprintf(&b, ", %s", s.Instance.EditorVersion)
	}
	b.WriteString(")\n")
	if s.WorkingDirectory != "" {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("cwd"), s.WorkingDirectory)
	}
	if s.Mode != nil {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("mode"), s.Mode.Name)
	}

	if buf := s.CurrentBuffer; buf != nil {
		modified := ""
		if buf.Modified {
			modified = warnStyle.Render(" [+]")
		}
		fmt.Fprintf(&b, "%s %s%s (%s, %d lines)\n", headerStyle.Render("buffer"), buf.Path, modified, buf.Filetype, buf.LineCount)
		if s.Cursor != nil {
			writeWindow(&b, buf.Context, s.Cursor.Line)
		}
	}

	if len(s.Diagnostics) > 0 {
		c := s.DiagnosticCounts
		fmt.Fprintf(&b, "%s %s %s %d info %d hints\n", headerStyle.Render("diagnostics"),
			errStyle.Render(fmt.Sprintf("%d errors", c.Errors)),
			warnStyle.Render(fmt.Sprintf("%d warnings", c.Warnings)),
			c.Info, c.Hints)
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "  %s:%d:%d %s %s\n", d.Path, d.Line, d.Column, severityStyle(d.Severity).Render(string(d.Severity)), d.Message)
		}
	}

	if len(s.OpenBuffers) > 0 {
		fmt.Fprintf(&b, "%s\n", headerStyle.Render("buffers"))
		for _, ob := range s.OpenBuffers {
			marker := " "
			if ob.Current {
				marker = "%"
			}
			fmt.Fprintf(&b, "  %s %s\n", marker, ob.Path)
		}
	}

	if len(s.LSPClients) > 0 {
		names := make([]string, 0, len(s.LSPClients))
		for _, c := range s.LSPClients {
			names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Status))
		}
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("lsp"), strings.Join(names, ", "))
	}

	writeCompleteness(&b, s.Completeness)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeWindow(b *strings.Builder, cw editorctx.ContextWindow, cursor int) {
	line := max(cw.StartLine, 1)
	for _, text := range cw.LinesBefore {
		fmt.Fprintf(b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%4d", line)), text)
		line++
	}
	fmt.Fprintf(b, "  %s %s\n", okStyle.Render(fmt.Sprintf("%4d", cursor)), cw.CurrentLine)
	line = cursor + 1
	for _, text := range cw.LinesAfter {
		fmt.Fprintf(b, "  %s %s\n", dimStyle.Render(fmt.Sprintf("%4d", line)), text)
		line++
	}
}

func writeCompleteness(b *strings.Builder, c map[string]editorctx.FacetStatus) {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		st := c[name]
		style := dimStyle
		switch st.Status {
		case editorctx.StatusComplete:
			style = okStyle
		case editorctx.StatusTimeout, editorctx.StatusUnsupported:
			style = warnStyle
		case editorctx.StatusError, editorctx.StatusDisconnected:
			style = errStyle
		}
		parts = append(parts, name+"="+style.Render(string(st.Status)))
	}
	fmt.Fprintf(b, "%s %s\n", headerStyle.Render("completeness"), strings.Join(parts, " "))
}

func severityStyle(s editorctx.Severity) lipgloss.Style {
	switch s {
	case editorctx.SeverityError:
		return errStyle
	case editorctx.SeverityWarning:
		return warnStyle
	default:
		return dimStyle
	}
}
