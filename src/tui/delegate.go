package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list and panel borders.
	// Breakdown: panel border (2) + list internal padding/margins (8) = 10 chars total.
	listRenderingOverhead = 10

	// historyWidth is the number of newest commits shown in the list row.
	historyWidth = 10
)

// Delegate renders ranked tests as table rows.
type Delegate struct {
	RankWidth     int
	FailuresWidth int
	styles        *StyleConfig
}

// NewDelegate creates a new delegate with default styles
func NewDelegate() Delegate {
	return NewDelegateWithStyles(DefaultStyles())
}

// NewDelegateWithStyles creates a new delegate with custom styles
func NewDelegateWithStyles(styles *StyleConfig) Delegate {
	return Delegate{
		RankWidth:     2,
		FailuresWidth: 2,
		styles:        styles,
	}
}

// SetColumnWidths sets the widths for rank and failure count columns
func (d *Delegate) SetColumnWidths(maxRank, maxFailures int) {
	d.RankWidth = max(2, len(fmt.Sprintf("%d", maxRank)))
	d.FailuresWidth = max(2, len(fmt.Sprintf("%d", maxFailures)))
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// recentHistory returns the newest historyWidth characters of the history,
// padded with blanks when the window is shorter.
func recentHistory(history string) string {
	if len(history) > historyWidth {
		history = history[:historyWidth]
	}
	return history + strings.Repeat(" ", historyWidth-len(history))
}

// renderHistory colors each history character by run outcome.
func (d Delegate) renderHistory(history string, bg lipgloss.Color) string {
	var b strings.Builder
	for _, c := range history {
		style := lipgloss.NewStyle().Foreground(d.styles.HistoryColor(c))
		if bg != "" {
			style = style.Background(bg)
		}
		b.WriteString(style.Render(string(c)))
	}
	return b.String()
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	isSelected := index == m.Index()

	rankCol := fmt.Sprintf("%*d", d.RankWidth, entry.Rank)
	failCol := fmt.Sprintf("%*d", d.FailuresWidth, entry.Failures())

	// Fixed columns: rank + failures + history + separators (9)
	fixedWidth := d.RankWidth + d.FailuresWidth + historyWidth + 9
	availableWidth := m.Width() - fixedWidth - listRenderingOverhead

	var name string
	if availableWidth > 0 {
		name = TruncateAndPad(entry.Test.Name, availableWidth, true)
	}

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	var bg lipgloss.Color
	if isSelected {
		bg = d.styles.SelectedColor
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(bg)
	}

	fmt.Fprint(w,
		style.Render(fmt.Sprintf("%s │ %s │ ", rankCol, failCol)),
		d.renderHistory(recentHistory(entry.Test.History()), bg),
		style.Render(" │ "+name),
	)
}
