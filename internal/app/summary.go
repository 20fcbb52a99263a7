// # internal/app/summary.go
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().Bold(true)
	summaryOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	summaryBadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	summaryDimStyle   = lipgloss.NewStyle().Faint(true)
)

// FormatSummary renders a short human-readable wrap-up of a run for the
// terminal. Diagnostic lines themselves stay unstyled so they remain
// grep-friendly.
func FormatSummary(result *RunResult) string {
	var b strings.Builder

	b.WriteString(summaryTitleStyle.Render("blockscope"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("files checked: %d\n", result.Files))
	if result.FailedFiles > 0 {
		b.WriteString(summaryBadStyle.Render(fmt.Sprintf("files failed: %d", result.FailedFiles)) + "\n")
	}

	if len(result.Diagnostics) == 0 {
		b.WriteString(summaryOKStyle.Render("no scoping issues found"))
	} else {
		b.WriteString(summaryBadStyle.Render(fmt.Sprintf("scoping issues: %d", len(result.Diagnostics))))
	}
	b.WriteString("\n")
	b.WriteString(summaryDimStyle.Render(fmt.Sprintf("run %s in %s", result.RunID, result.Duration.Round(time.Millisecond))))
	b.WriteString("\n")

	return b.String()
}
