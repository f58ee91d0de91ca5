package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/pterm/pterm"
)

// IsTerminal reports whether f is an interactive terminal
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Setup decides whether output to out is coloured. Colour is off when out
// is not a terminal, when NO_COLOR is set, or when the terminal only
// supports ASCII. It returns the decision.
func Setup(out *os.File) bool {
	color := IsTerminal(out) && os.Getenv("NO_COLOR") == ""
	if color && termenv.NewOutput(out).EnvColorProfile() == termenv.Ascii {
		color = false
	}
	if !color {
		DisableColor()
	}
	return color
}

// DisableColor turns off styling in both lipgloss and pterm
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
	pterm.DisableStyling()
}
