// Package output renders command results for terminals and scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

const (
	// ModeAuto renders styled text on a terminal and plain text otherwise.
	ModeAuto Mode = "auto"
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func newStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{Header: plain, Bold: plain, Muted: plain, Success: plain, Warning: plain, Error: plain}
	}
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: newStyles(isTTY),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves ModeAuto to a concrete mode.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode == ModeJSON {
		return ModeJSON
	}
	return ModeText
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Styles returns the text styles.
func (r *Renderer) Styles() Styles {
	return r.styles
}

// Writer returns the primary output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// Println writes a line to the output.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a section header.
func (r *Renderer) Header(text string) {
	r.Println(r.styles.Header.Render(text))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning to the error output.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Error writes an error to the error output.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// StatusLine writes "<icon> name  detail" for a status of success, unchanged,
// warning or failed.
func (r *Renderer) StatusLine(name, status, detail string) {
	var icon string
	switch status {
	case "success", "compiled", "completed":
		icon = r.styles.Success.Render("✓")
	case "unchanged", "skipped":
		icon = r.styles.Muted.Render("=")
	case "warning", "partial":
		icon = r.styles.Warning.Render("!")
	default:
		icon = r.styles.Error.Render("✗")
	}
	if detail != "" {
		r.Printf("  %s %s  %s\n", icon, name, r.styles.Muted.Render(detail))
		return
	}
	r.Printf("  %s %s\n", icon, name)
}

// Table renders rows under header with go-pretty.
func (r *Renderer) Table(header []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}
	t.Render()
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
