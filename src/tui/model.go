// Package tui provides the terminal viewer for ranked test snapshots.
// The list shows every ranked test with its recent history, the detail
// panel its durations and failing runs. New snapshots replace the shown
// one as they arrive.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"ci-tracker/src/contracts"
)

// Status is the loading state of the viewer.
type Status int

const (
	StatusWaiting Status = iota
	StatusReady
)

// SnapshotMsg delivers a new snapshot to the model.
type SnapshotMsg struct {
	Snapshot *contracts.Snapshot
}

// updatesClosedMsg is sent once the update channel is drained and closed.
type updatesClosedMsg struct{}

// MainModel is the Bubble Tea model of the viewer.
type MainModel struct {
	ready  bool
	width  int
	height int

	header         Header
	listView       View
	detailViewport viewport.Model
	progress       ProgressModel

	items    []Item
	snapshot *contracts.Snapshot
	updates  <-chan *contracts.Snapshot
	styles   *StyleConfig

	detailFocused bool
	searchMode    bool
	searchQuery   string
	status        Status
}

// NewMainModel creates the viewer. snap may be nil, in which case the
// waiting screen is shown until the first snapshot arrives on updates.
func NewMainModel(snap *contracts.Snapshot, updates <-chan *contracts.Snapshot) MainModel {
	styles := DefaultStyles()
	m := MainModel{
		header:         NewHeaderWithStyles("waiting for snapshot", nil, styles),
		listView:       NewView(styles),
		detailViewport: viewport.New(0, 0),
		progress:       NewProgressModel(),
		updates:        updates,
		styles:         styles,
		status:         StatusWaiting,
	}
	if snap != nil {
		m.setSnapshot(snap)
	}
	return m
}

// Run starts the viewer in the alternate screen and blocks until it exits.
func Run(snap *contracts.Snapshot, updates <-chan *contracts.Snapshot) error {
	p := tea.NewProgram(NewMainModel(snap, updates), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// waitForSnapshot reads the next snapshot from ch.
func waitForSnapshot(ch <-chan *contracts.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

// Init starts the spinner and the snapshot subscription.
func (m MainModel) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.status == StatusWaiting {
		cmds = append(cmds, SpinnerTick())
	}
	cmds = append(cmds, waitForSnapshot(m.updates))
	return tea.Batch(cmds...)
}

// statusText summarizes a snapshot for the header.
func statusText(snap *contracts.Snapshot) string {
	return fmt.Sprintf("%d ranked tests │ %s", len(snap.FailedTests),
		snap.GeneratedAt.UTC().Format(time.DateTime+" MST"))
}

// setSnapshot replaces the listed tests, keeping the selected test when it
// is still ranked.
func (m *MainModel) setSnapshot(snap *contracts.Snapshot) {
	if snap == nil {
		return
	}
	var selected string
	if item, ok := m.listView.GetSelectedItem(); ok {
		selected = item.Test.Name
	}

	m.snapshot = snap
	m.items = ItemsFromSnapshot(snap)
	m.header.SetStatus(statusText(snap), snap.TestOwners)
	m.status = StatusReady
	m.applyFilter()

	if selected != "" && m.listView.Select(selected) {
		if item, ok := m.listView.GetSelectedItem(); ok {
			m.updateDetailContent(item)
		}
	}
}

// Update handles messages and updates the model state.
func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case SnapshotMsg:
		m.setSnapshot(msg.Snapshot)
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(ProgressMsg{Stage: "complete"})
		return m, tea.Batch(cmd, waitForSnapshot(m.updates))

	case updatesClosedMsg:
		return m, nil

	case ProgressMsg, SpinnerTickMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg)
		}
		if m.detailFocused {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

// updateSearch edits the search query. Esc clears it, Enter keeps it.
func (m MainModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.searchMode = false
		m.searchQuery = ""
	case tea.KeyEnter:
		m.searchMode = false
	case tea.KeyBackspace:
		if r := []rune(m.searchQuery); len(r) > 0 {
			m.searchQuery = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.searchQuery += " "
	case tea.KeyRunes:
		m.searchQuery += string(msg.Runes)
	default:
		return m, nil
	}
	m.header.SetSearch(m.searchQuery, m.searchMode)
	m.applyFilter()
	return m, nil
}

// updateDetail scrolls the focused detail panel.
func (m MainModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "left", "h":
		m.detailFocused = false
		return m, nil
	}
	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// updateList navigates the ranked tests.
func (m MainModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.searchMode = true
		m.header.SetSearch(m.searchQuery, true)
		return m, nil
	case "tab":
		m.header.CycleFilter()
		m.applyFilter()
		return m, nil
	case "enter", "right", "l":
		if _, ok := m.listView.GetSelectedItem(); ok {
			m.detailFocused = true
		}
		return m, nil
	}

	before, _ := m.listView.GetSelectedItem()
	var cmd tea.Cmd
	m.listView, cmd = m.listView.Update(msg)
	if after, ok := m.listView.GetSelectedItem(); ok && after.Test.Name != before.Test.Name {
		m.updateDetailContent(after)
	}
	return m, cmd
}
