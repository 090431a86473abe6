package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// View manages the list of ranked tests.
type View struct {
	list     list.Model
	items    []Item
	delegate *Delegate
}

// NewView creates a new ranked test list view
func NewView(styles *StyleConfig) View {
	delegate := NewDelegateWithStyles(styles)
	l := list.New([]list.Item{}, &delegate, 0, 0)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return View{
		list:     l,
		items:    []Item{},
		delegate: &delegate,
	}
}

// Update handles list updates
func (v View) Update(msg tea.Msg) (View, tea.Cmd) {
	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

// SetSize sets the list dimensions
func (v *View) SetSize(width, height int) {
	v.list.SetSize(width, height)
}

// SetItems sets the list items
func (v *View) SetItems(items []Item) {
	v.items = items

	maxRank := 0
	maxFailures := 0
	for _, item := range items {
		if item.Rank > maxRank {
			maxRank = item.Rank
		}
		if f := item.Failures(); f > maxFailures {
			maxFailures = f
		}
	}
	v.delegate.SetColumnWidths(maxRank, maxFailures)

	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
	}
	v.list.SetItems(listItems)
}

// GetSelectedItem returns the currently selected item
func (v View) GetSelectedItem() (Item, bool) {
	if len(v.list.Items()) == 0 {
		return Item{}, false
	}
	item, ok := v.list.SelectedItem().(Item)
	return item, ok
}

// Len returns the number of listed items
func (v View) Len() int {
	return len(v.list.Items())
}

// Render returns the string representation of the view
func (v View) Render() string {
	return v.list.View()
}

// GetDelegate returns the delegate for accessing column widths
func (v View) GetDelegate() *Delegate {
	return v.delegate
}

// Select moves the cursor to the named test. It reports false when the
// test is not listed.
func (v *View) Select(name string) bool {
	for i, it := range v.list.Items() {
		if item, ok := it.(Item); ok && item.Test.Name == name {
			v.list.Select(i)
			return true
		}
	}
	return false
}
