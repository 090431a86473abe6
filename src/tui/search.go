package tui

import (
	"strings"
)

// applyFilter filters items by owner and search query
func (m *MainModel) applyFilter() {
	filter := m.header.GetFilter()

	query := strings.ToLower(strings.TrimSpace(m.searchQuery))
	filtered := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		if filter != filterAll && item.Test.Owner != filter {
			continue
		}
		if query != "" && !item.matches(query) {
			continue
		}
		filtered = append(filtered, item)
	}

	m.listView.SetItems(filtered)
	// Update detail content for new selection
	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		m.updateDetailContent(selectedItem)
	} else {
		m.detailViewport.SetContent("")
	}
}
