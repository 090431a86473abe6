package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ci-tracker/src/contracts"
	"ci-tracker/src/sanitize"
)

// renderDetail renders the detail content for a ranked test
func (m MainModel) renderDetail(item Item, maxWidth int) string {
	content := strings.Builder{}
	t := item.Test

	label := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Bold(true)
	faint := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true)

	header := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Render(Wrap(t.Name, maxWidth))
	fmt.Fprintf(&content, "%s\n\n", header)

	flaky := "no"
	if t.IsLabeledFlaky {
		flaky = lipgloss.NewStyle().Foreground(m.styles.FlakyColor).Render("yes")
	}
	fmt.Fprintf(&content, "%s %.0f\n", label.Render("Weight:"), t.Weight)
	fmt.Fprintf(&content, "%s %s\n", label.Render("Owner: "), t.Owner)
	fmt.Fprintf(&content, "%s %s\n", label.Render("Flaky: "), flaky)
	if len(t.BuildTimeStats) == 3 {
		fmt.Fprintf(&content, "%s p0 %s │ p50 %s │ p90 %s\n", label.Render("Time:  "),
			seconds(t.BuildTimeStats[0]), seconds(t.BuildTimeStats[1]), seconds(t.BuildTimeStats[2]))
	}
	fmt.Fprintln(&content)

	// History, newest commit on the left, wrapped to the panel
	fmt.Fprintln(&content, label.Render("History (newest first):"))
	history := t.History()
	for len(history) > 0 {
		n := min(len(history), max(1, maxWidth))
		fmt.Fprintln(&content, m.listView.GetDelegate().renderHistory(history[:n], ""))
		history = history[n:]
	}
	fmt.Fprintln(&content)

	fmt.Fprintln(&content, label.Render(fmt.Sprintf("Failed and flaky runs (%d):", len(t.CILinks))))
	for _, l := range t.CILinks {
		color := m.styles.FailedColor
		if l.Status == contracts.StatusFlaky {
			color = m.styles.FlakyColor
		}
		status := lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(l.Status))
		subject := firstLine(sanitize.StripANSI(l.CommitMessage))
		line := fmt.Sprintf("%s %s %s", l.SHAShort, l.OS, subject)
		if l.BuildEnv != "" {
			line = fmt.Sprintf("%s %s [%s] %s", l.SHAShort, l.OS, l.BuildEnv, subject)
		}
		fmt.Fprintf(&content, "%s %s\n", status, Wrap(line, max(1, maxWidth-VisualWidth(string(l.Status))-1)))
		if l.JobURL != "" {
			fmt.Fprintln(&content, faint.Render(Wrap(l.JobURL, maxWidth)))
		}
	}

	return content.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func seconds(v float64) string {
	return time.Duration(v * float64(time.Second)).Round(time.Second).String()
}

// updateDetailContent updates the viewport with content from the selected item
func (m *MainModel) updateDetailContent(item Item) {
	// The viewport's width is the max width for the content.
	// Subtract a small amount for internal padding.
	maxWidth := m.detailViewport.Width - 2 // 1 char padding on each side
	content := m.renderDetail(item, maxWidth)
	m.detailViewport.SetContent(content)
	m.detailViewport.GotoTop()
}

// renderDetailPanel renders the right panel with detail viewport
func (m MainModel) renderDetailPanel(width, height int) string {
	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		headerRow := lipgloss.NewStyle().
			Foreground(m.styles.PrimaryBlue).
			Bold(true).
			Padding(0, 1).
			Render(Truncate(fmt.Sprintf("#%d │ %s", selectedItem.Rank, selectedItem.Test.Owner), width-2, true))

		borderStyle := m.styles.BorderColor
		if m.detailFocused {
			borderStyle = m.styles.AccentBlue
		}

		return lipgloss.JoinVertical(lipgloss.Left, headerRow,
			lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(borderStyle).
				Width(width-2).
				Height(height).
				Render(m.detailViewport.View()))
	}

	// No selection - show empty state
	placeholderRow := lipgloss.NewStyle().
		Foreground(m.styles.TextSecondary).
		Padding(0, 1).
		Render(" ")

	emptyStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.BorderColor).
		Width(width-2).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(m.styles.TextSecondary).
		Faint(true)

	return lipgloss.JoinVertical(lipgloss.Left, placeholderRow, emptyStyle.Render("No tests match"))
}
