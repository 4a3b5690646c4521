package ui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color scheme.
type Theme struct {
	Foreground    lipgloss.Color
	Border        lipgloss.Color
	BorderFocused lipgloss.Color
	Selection     lipgloss.Color
	Header        lipgloss.Color
	Error         lipgloss.Color
	Muted         lipgloss.Color
	Accent        lipgloss.Color
}

// DefaultTheme returns the default dark theme.
func DefaultTheme() Theme {
	return Theme{
		Foreground:    lipgloss.Color("252"),
		Border:        lipgloss.Color("240"),
		BorderFocused: lipgloss.Color("62"),
		Selection:     lipgloss.Color("25"),
		Header:        lipgloss.Color("105"),
		Error:         lipgloss.Color("196"),
		Muted:         lipgloss.Color("245"),
		Accent:        lipgloss.Color("75"),
	}
}

// styles bundles the pre-built lipgloss styles derived from a theme.
type styles struct {
	header    lipgloss.Style
	tabActive lipgloss.Style
	tabIdle   lipgloss.Style
	colHead   lipgloss.Style
	cursor    lipgloss.Style
	selected  lipgloss.Style
	sidebar   lipgloss.Style
	sideSel   lipgloss.Style
	status    lipgloss.Style
	errText   lipgloss.Style
	muted     lipgloss.Style
}

func buildStyles(t Theme) styles {
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(t.Header),
		tabActive: lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Underline(true),
		tabIdle:   lipgloss.NewStyle().Foreground(t.Muted),
		colHead:   lipgloss.NewStyle().Bold(true).Foreground(t.Header),
		cursor:    lipgloss.NewStyle().Background(t.Selection).Foreground(lipgloss.Color("15")).Bold(true),
		selected:  lipgloss.NewStyle().Background(t.Selection),
		sidebar:   lipgloss.NewStyle().Foreground(t.Foreground),
		sideSel:   lipgloss.NewStyle().Background(t.Selection).Foreground(lipgloss.Color("15")),
		status:    lipgloss.NewStyle().Foreground(t.Muted),
		errText:   lipgloss.NewStyle().Foreground(t.Error),
		muted:     lipgloss.NewStyle().Foreground(t.Muted),
	}
}
