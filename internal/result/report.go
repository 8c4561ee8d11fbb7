package result

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title   lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	cancel  lipgloss.Style
	dim     lipgloss.Style
	verdict lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true),
		pass:    r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		cancel:  r.NewStyle().Foreground(lipgloss.Color("3")),
		dim:     r.NewStyle().Faint(true),
		verdict: r.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (s styles) status(c Cell) string {
	switch c.Status {
	case CellSuccess:
		return s.pass.Render("✅ " + string(c.Status))
	case CellCancelled:
		return s.cancel.Render("⏹️ " + string(c.Status))
	}
	return s.fail.Render("❌ " + string(c.Status))
}

// Render writes a human-readable per-job, per-cell breakdown followed by the
// aggregate verdict. Colors are used only when w is a terminal.
func Render(w io.Writer, run *Run) error {
	s := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", s.title.Render("Run"), s.dim.Render(run.ID))
	for _, job := range run.Jobs {
		mark := s.pass.Render("✅")
		if job.Verdict != VerdictSuccess {
			mark = s.fail.Render("❌")
		}
		fmt.Fprintf(&b, "\n%s %s %s\n", mark, s.title.Render(job.Name),
			s.dim.Render(fmt.Sprintf("%d/%d passed", job.Passed, max(job.Expected, len(job.Cells)))))

		width := 0
		for _, c := range job.Cells {
			width = max(width, lipgloss.Width(c.ID))
		}
		for _, c := range job.Cells {
			fmt.Fprintf(&b, "   %-*s  %s  %s%s\n", width, c.ID, s.status(c),
				s.dim.Render(c.Duration.Round(time.Millisecond).String()), detail(c))
		}
	}

	verdict := fmt.Sprintf("%s: %d of %d cells did not pass", strings.ToUpper(string(run.Verdict)), run.NotPassed(), run.Cells())
	if run.Verdict == VerdictSuccess {
		verdict = fmt.Sprintf("SUCCESS: all %d cells passed", run.Cells())
		verdict = s.verdict.Inherit(s.pass).Render(verdict)
	} else {
		verdict = s.verdict.Inherit(s.fail).Render(verdict)
	}
	fmt.Fprintf(&b, "\n%s %s\n", verdict, s.dim.Render(run.Duration.Round(time.Millisecond).String()))

	_, err := io.WriteString(w, b.String())
	return err
}

func detail(c Cell) string {
	var parts []string
	if c.FailedStep != "" {
		parts = append(parts, fmt.Sprintf("step %q exit %d", c.FailedStep, c.ExitCode))
	} else if c.Error != "" && c.Status != CellSuccess {
		parts = append(parts, c.Error)
	}
	if c.Cache != nil && c.Cache.Restore != "" {
		parts = append(parts, "cache="+string(c.Cache.Restore))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, "  ")
}

// WriteJSON writes the run as indented JSON.
func WriteJSON(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
