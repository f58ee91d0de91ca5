package topics

import (
	"os"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

// Renderer formats topic content for the terminal. format is the topic
// file extension, e.g. ".md".
type Renderer interface {
	Render(content string, format string) string
}

// RenderFunc adapts a function to Renderer
type RenderFunc func(content, format string) string

func (f RenderFunc) Render(content, format string) string { return f(content, format) }

// Plain leaves content untouched
var Plain Renderer = RenderFunc(func(content, _ string) string { return content })

// GlamourRenderer renders markdown topics with glamour. Other formats pass
// through unchanged.
type GlamourRenderer struct {
	// Style is a glamour standard style name ("auto", "dark", "light",
	// "notty", ...) or a path to a JSON style file
	Style string
	// Width wraps at this column when positive
	Width int

	once sync.Once
	term *glamour.TermRenderer
}

// NewGlamourRenderer picks the "notty" style when out is not a terminal
func NewGlamourRenderer(out *os.File) *GlamourRenderer {
	style := "auto"
	if out == nil || !(isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())) {
		style = "notty"
	}
	return &GlamourRenderer{Style: style}
}

func (r *GlamourRenderer) Render(content string, format string) string {
	if format != ".md" {
		return content
	}
	r.once.Do(r.init)
	if r.term == nil {
		return content
	}
	out, err := r.term.Render(content)
	if err != nil {
		return content
	}
	return out
}

func (r *GlamourRenderer) init() {
	opts := []glamour.TermRendererOption{styleOption(r.Style)}
	if r.Width > 0 {
		opts = append(opts, glamour.WithWordWrap(r.Width))
	}
	// A nil term makes Render fall back to the raw markdown
	r.term, _ = glamour.NewTermRenderer(opts...)
}

func styleOption(style string) glamour.TermRendererOption {
	switch style {
	case "", "auto":
		return glamour.WithAutoStyle()
	case "ascii", "dark", "dracula", "light", "notty", "pink":
		return glamour.WithStandardStyle(style)
	}
	return glamour.WithStylePath(style)
}
