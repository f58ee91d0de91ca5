package style

import (
	"github.com/charmbracelet/lipgloss"
)

func fg(c lipgloss.AdaptiveColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// Text styles
var (
	TitleStyle    = fg(DefaultPalette.Heading).Bold(true).MarginBottom(1)
	SubtitleStyle = fg(DefaultPalette.Heading).Bold(true)
	MutedStyle    = fg(DefaultPalette.Subtle)
	CodeStyle     = fg(DefaultPalette.Accent)
	PathStyle     = fg(DefaultPalette.Subtle).Italic(true)

	SuccessStyle = fg(DefaultPalette.Success).Bold(true)
	ErrorStyle   = fg(DefaultPalette.Failure).Bold(true)
	WarningStyle = fg(DefaultPalette.Warning).Bold(true)
	InfoStyle    = fg(DefaultPalette.Info)
)

// Package and cycle styles
var (
	DeployedStyle = fg(DefaultPalette.Deployed).Bold(true)
	StagedStyle   = fg(DefaultPalette.Staged)
	ConflictStyle = fg(DefaultPalette.Conflict).Bold(true)
	CycleStyle    = fg(DefaultPalette.Cycle).Bold(true)
)

// Line prefixes
var (
	SuccessIndicator  = SuccessStyle.Render("✓")
	ErrorIndicator    = ErrorStyle.Render("✗")
	WarningIndicator  = WarningStyle.Render("!")
	InfoIndicator     = InfoStyle.Render("•")
	ProgressIndicator = CycleStyle.Render("⟳")
)

// Indent pads s by level steps of two spaces
func Indent(s string, level int) string {
	return lipgloss.NewStyle().PaddingLeft(level * 2).Render(s)
}

func Bold(s string) string {
	return lipgloss.NewStyle().Bold(true).Render(s)
}
