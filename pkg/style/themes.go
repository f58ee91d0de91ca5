package style

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette is the set of adaptive colors output is drawn with. Each color
// has a light and a dark terminal variant.
type Palette struct {
	Heading lipgloss.AdaptiveColor
	Subtle  lipgloss.AdaptiveColor
	Accent  lipgloss.AdaptiveColor

	Success lipgloss.AdaptiveColor
	Failure lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Info    lipgloss.AdaptiveColor

	// Package states
	Deployed lipgloss.AdaptiveColor
	Staged   lipgloss.AdaptiveColor
	Conflict lipgloss.AdaptiveColor
	// Extraction cycle transitions
	Cycle lipgloss.AdaptiveColor
}

// DefaultPalette is used by the package level styles
var DefaultPalette = Palette{
	Heading: lipgloss.AdaptiveColor{Light: "#212529", Dark: "#F8F9FA"},
	Subtle:  lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#ADB5BD"},
	Accent:  lipgloss.AdaptiveColor{Light: "#007ACC", Dark: "#3D9EFF"},

	Success: lipgloss.AdaptiveColor{Light: "#28A745", Dark: "#4CDD76"},
	Failure: lipgloss.AdaptiveColor{Light: "#DC3545", Dark: "#FF6B7D"},
	Warning: lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#FFD54F"},
	Info:    lipgloss.AdaptiveColor{Light: "#17A2B8", Dark: "#4DD0E1"},

	Deployed: lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"},
	Staged:   lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"},
	Conflict: lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"},
	Cycle:    lipgloss.AdaptiveColor{Light: "#8B5CF6", Dark: "#A78BFA"},
}
