package style

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

// innermost matches a tag pair with no other tag inside it
var innermost = regexp.MustCompile(`\[([a-z]+)\]([^\[]*)\[/([a-z]+)\]`)

// MarkupParser renders [tag]text[/tag] markup with named styles. Unknown
// tags are left as written.
type MarkupParser struct {
	styles map[string]lipgloss.Style
}

// NewMarkupParser knows the palette styles plus bold and italic
func NewMarkupParser() *MarkupParser {
	return &MarkupParser{styles: map[string]lipgloss.Style{
		"title":    TitleStyle,
		"subtitle": SubtitleStyle,
		"success":  SuccessStyle,
		"error":    ErrorStyle,
		"warning":  WarningStyle,
		"info":     InfoStyle,
		"code":     CodeStyle,
		"path":     PathStyle,
		"muted":    MutedStyle,
		"bold":     lipgloss.NewStyle().Bold(true),
		"italic":   lipgloss.NewStyle().Italic(true),
		"deployed": DeployedStyle,
		"staged":   StagedStyle,
		"conflict": ConflictStyle,
		"cycle":    CycleStyle,
	}}
}

// Render styles the markup in text, innermost tags first
func (p *MarkupParser) Render(text string) string {
	for {
		changed := false
		text = innermost.ReplaceAllStringFunc(text, func(match string) string {
			m := innermost.FindStringSubmatch(match)
			s, ok := p.styles[m[1]]
			if !ok || m[1] != m[3] {
				return match
			}
			changed = true
			return s.Render(m[2])
		})
		if !changed {
			return text
		}
	}
}

var defaultParser = NewMarkupParser()

// Render styles markup with the default parser
func Render(text string) string {
	return defaultParser.Render(text)
}
