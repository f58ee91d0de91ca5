package style

import (
	"fmt"
	"strings"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/journal"
	"github.com/arthur-debert/modkeeper/pkg/progress"
	"github.com/arthur-debert/modkeeper/pkg/resolve"
	"github.com/pterm/pterm"
)

// BatchView summarises a batch deploy or undeploy
type BatchView struct {
	Operation string
	Succeeded []string
	FailedIDs []string
	Failed    map[string]error
}

// Renderer defines the interface for rendering command output
type Renderer interface {
	RenderPackages(rows []PackageRow) string
	RenderConflicts(conflicts []resolve.Conflict) string
	RenderBatch(b BatchView) string
	RenderEvent(e progress.Event) string
	RenderHistory(entries []journal.Entry) string
	RenderError(err error) string
}

// NewRenderer returns a TerminalRenderer when color is on, else a
// PlainRenderer
func NewRenderer(color bool) Renderer {
	if color {
		return NewTerminalRenderer()
	}
	return NewPlainRenderer()
}

// TerminalRenderer implements Renderer with rich terminal output
type TerminalRenderer struct{}

// NewTerminalRenderer creates a new terminal renderer
func NewTerminalRenderer() *TerminalRenderer {
	return &TerminalRenderer{}
}

func (r *TerminalRenderer) RenderPackages(rows []PackageRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No packages found")
	}
	var b strings.Builder
	b.WriteString(SubtitleStyle.Render("Packages (load order)") + "\n")
	for _, row := range rows {
		b.WriteString(RenderPackageRow(row) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TerminalRenderer) RenderConflicts(conflicts []resolve.Conflict) string {
	if len(conflicts) == 0 {
		return SuccessIndicator + " " + MutedStyle.Render("No conflicts")
	}
	var b strings.Builder
	b.WriteString(SubtitleStyle.Render(fmt.Sprintf("Conflicts (%d)", len(conflicts))) + "\n")
	for _, c := range conflicts {
		fmt.Fprintf(&b, "%s %s\n", WarningIndicator, PathStyle.Render(c.Path))
		fmt.Fprintf(&b, "    %s %s  %s %s\n",
			MutedStyle.Render("winner"), DeployedStyle.Render(c.Winner),
			MutedStyle.Render("overrides"), strings.Join(c.Losers, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TerminalRenderer) RenderBatch(bv BatchView) string {
	var b strings.Builder
	for _, id := range bv.Succeeded {
		fmt.Fprintf(&b, "%s %s\n", SuccessIndicator, id)
	}
	for _, id := range bv.FailedIDs {
		fmt.Fprintf(&b, "%s %s: %v\n", ErrorIndicator, id, bv.Failed[id])
	}
	summary := fmt.Sprintf("%s: %d succeeded, %d failed", bv.Operation, len(bv.Succeeded), len(bv.FailedIDs))
	if len(bv.FailedIDs) > 0 {
		b.WriteString(WarningStyle.Render(summary))
	} else {
		b.WriteString(MutedStyle.Render(summary))
	}
	return b.String()
}

func (r *TerminalRenderer) RenderEvent(e progress.Event) string {
	switch e.Kind {
	case progress.KindState:
		return fmt.Sprintf("%s %s", ProgressIndicator, CycleStyle.Render(e.Message))
	case progress.KindError:
		return fmt.Sprintf("%s %s", ErrorIndicator, eventText(e))
	case progress.KindWarn:
		return fmt.Sprintf("%s %s", WarningIndicator, eventText(e))
	default:
		return fmt.Sprintf("%s %s", InfoIndicator, eventText(e))
	}
}

func (r *TerminalRenderer) RenderHistory(entries []journal.Entry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("No history recorded")
	}
	var b strings.Builder
	for _, e := range entries {
		outcome := e.Outcome
		switch outcome {
		case "success", "Complete":
			outcome = SuccessStyle.Render(outcome)
		case "failed", "Error":
			outcome = ErrorStyle.Render(outcome)
		}
		fmt.Fprintf(&b, "%s  %s\n", MutedStyle.Render(e.Time.Local().Format(time.DateTime)), historyText(e, outcome))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TerminalRenderer) RenderError(err error) string {
	if err == nil {
		return ""
	}
	if code := errors.GetErrorCode(err); code != errors.ErrUnknown {
		return fmt.Sprintf("%s %s", pterm.Error.Prefix.Text, pterm.Error.MessageStyle.Sprint(err.Error()))
	}
	return fmt.Sprintf("%s %s", pterm.Error.Prefix.Text, pterm.Error.MessageStyle.Sprint("Error: "+err.Error()))
}

// PlainRenderer implements Renderer with plain text output (no styling)
type PlainRenderer struct{}

// NewPlainRenderer creates a new plain text renderer
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

func (r *PlainRenderer) RenderPackages(rows []PackageRow) string {
	if len(rows) == 0 {
		return "No packages found"
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%4d  %-12s  %s", row.LoadOrder, row.Status, row.ID)
		if row.Version != "" {
			b.WriteString(" " + row.Version)
		}
		if row.Standalone {
			b.WriteString(" [standalone]")
		}
		b.WriteString("\n")
		for _, p := range row.Losing {
			fmt.Fprintf(&b, "          overridden: %s\n", p)
		}
		if len(row.Missing) > 0 {
			fmt.Fprintf(&b, "          missing: %s\n", strings.Join(row.Missing, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *PlainRenderer) RenderConflicts(conflicts []resolve.Conflict) string {
	if len(conflicts) == 0 {
		return "No conflicts"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Conflicts (%d):\n", len(conflicts))
	for _, c := range conflicts {
		fmt.Fprintf(&b, "  %s: %s overrides %s\n", c.Path, c.Winner, strings.Join(c.Losers, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *PlainRenderer) RenderBatch(bv BatchView) string {
	var b strings.Builder
	for _, id := range bv.Succeeded {
		fmt.Fprintf(&b, "ok     %s\n", id)
	}
	for _, id := range bv.FailedIDs {
		fmt.Fprintf(&b, "failed %s: %v\n", id, bv.Failed[id])
	}
	fmt.Fprintf(&b, "%s: %d succeeded, %d failed", bv.Operation, len(bv.Succeeded), len(bv.FailedIDs))
	return b.String()
}

func (r *PlainRenderer) RenderEvent(e progress.Event) string {
	if e.Kind == progress.KindState {
		return "[" + e.State + "] " + e.Message
	}
	return fmt.Sprintf("%-5s %s", e.Kind, eventText(e))
}

func (r *PlainRenderer) RenderHistory(entries []journal.Entry) string {
	if len(entries) == 0 {
		return "No history recorded"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s\n", e.Time.Local().Format(time.DateTime), historyText(e, e.Outcome))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *PlainRenderer) RenderError(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}

func eventText(e progress.Event) string {
	var parts []string
	if e.Package != "" {
		parts = append(parts, e.Package)
	}
	if e.Action != "" {
		parts = append(parts, e.Action)
	}
	head := strings.Join(parts, " ")
	if head == "" {
		return e.Message
	}
	if e.Message == "" {
		return head
	}
	return head + ": " + e.Message
}

func historyText(e journal.Entry, outcome string) string {
	subject := e.Operation
	if e.Package != "" {
		subject += " " + e.Package
	}
	if e.CycleID != "" {
		subject += " " + shortID(e.CycleID)
	}
	line := fmt.Sprintf("%-28s %s", subject, outcome)
	if e.Message != "" && e.Kind == journal.KindOperation {
		line += "  " + e.Message
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
