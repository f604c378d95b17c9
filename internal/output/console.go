package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Console prints the human-facing progress of an update run. Styling is
// dropped automatically when w is not a terminal.
type Console struct {
	w       io.Writer
	quiet   bool
	label   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

// NewConsole returns a console writing to w. A quiet console prints only
// failures.
func NewConsole(w io.Writer, quiet bool) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		quiet:   quiet,
		label:   r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:     r.NewStyle().Faint(true),
	}
}

// Step starts a progress line, "label... ", finished by Success or Failed.
func (c *Console) Step(label string) {
	if c.quiet {
		return
	}
	_, _ = fmt.Fprint(c.w, c.label.Render(label)+"... ")
}

// Success ends the current step.
func (c *Console) Success() {
	if c.quiet {
		return
	}
	_, _ = fmt.Fprintln(c.w, c.success.Render("SUCCESS"))
}

// Failed ends the current step and prints msg on its own line.
func (c *Console) Failed(msg string) {
	if !c.quiet {
		_, _ = fmt.Fprintln(c.w, c.failure.Render("FAILED"))
	}
	_, _ = fmt.Fprintln(c.w, c.failure.Render("FAILED:")+" "+msg)
}

// Printf prints an informational line.
func (c *Console) Printf(format string, args ...interface{}) {
	if c.quiet {
		return
	}
	_, _ = fmt.Fprintf(c.w, format+"\n", args...)
}

// Detail prints a de-emphasized indented line.
func (c *Console) Detail(format string, args ...interface{}) {
	if c.quiet {
		return
	}
	_, _ = fmt.Fprintln(c.w, "  "+c.dim.Render(fmt.Sprintf(format, args...)))
}

// Bytes renders a byte count for display.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
