package tui

import (
	"github.com/charmbracelet/lipgloss"

	"ci-tracker/src/contracts"
)

// StyleConfig holds all customizable style colors for the tracker UI.
type StyleConfig struct {
	// Primary colors
	PrimaryBlue    lipgloss.Color
	AccentBlue     lipgloss.Color
	DarkBackground lipgloss.Color
	CardBackground lipgloss.Color
	TextPrimary    lipgloss.Color
	TextSecondary  lipgloss.Color
	BorderColor    lipgloss.Color
	SelectedColor  lipgloss.Color

	// Run outcome colors used by the history bar and links
	FailedColor lipgloss.Color
	FlakyColor  lipgloss.Color
	PassedColor lipgloss.Color
	NoRunColor  lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:    lipgloss.Color("#8AB4F8"),
		AccentBlue:     lipgloss.Color("#4285F4"),
		DarkBackground: lipgloss.Color("#1E1E1E"),
		CardBackground: lipgloss.Color("#2D2D2D"),
		TextPrimary:    lipgloss.Color("#E8EAED"),
		TextSecondary:  lipgloss.Color("#9AA0A6"),
		BorderColor:    lipgloss.Color("#5F6368"),
		SelectedColor:  lipgloss.Color("#303134"),
		FailedColor:    lipgloss.Color("#EA4335"),
		FlakyColor:     lipgloss.Color("#FBBC04"),
		PassedColor:    lipgloss.Color("#34A853"),
		NoRunColor:     lipgloss.Color("#5F6368"),
	}
}

// HistoryColor returns the color of one history character.
func (s *StyleConfig) HistoryColor(c rune) lipgloss.Color {
	switch c {
	case contracts.HistoryFailed:
		return s.FailedColor
	case contracts.HistoryFlaky:
		return s.FlakyColor
	case contracts.HistoryPassed:
		return s.PassedColor
	default:
		return s.NoRunColor
	}
}

// TitleStyle returns a title lipgloss style using this config
func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true).
		Padding(0, 1)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 2)
}
