package style

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// Status of a package as shown to the user
type Status string

const (
	StatusDeployed Status = "deployed"
	StatusStaged   Status = "staged"
	// StatusShadowed marks a deployed package that loses at least one path
	StatusShadowed Status = "shadowed"
	StatusMissing  Status = "missing-deps"
)

// StatusStyle returns the pterm style used for a status badge
func StatusStyle(status Status) *pterm.Style {
	switch status {
	case StatusDeployed:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgBlack)
	case StatusStaged:
		return pterm.NewStyle(pterm.FgCyan)
	case StatusShadowed:
		return pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	case StatusMissing:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite, pterm.Bold)
	default:
		return pterm.NewStyle(pterm.FgGray)
	}
}

// PackageRow is one package line in list and status output
type PackageRow struct {
	ID        string
	Name      string
	Version   string
	LoadOrder int
	Status    Status
	Files     int
	// Losing lists paths this package provides but another package wins
	Losing []string
	// Missing lists dependencies that are not installed
	Missing []string
	// Standalone packages never take part in conflicts
	Standalone bool
}

// RenderPackageRow renders a single package line with its details
func RenderPackageRow(row PackageRow) string {
	badge := StatusStyle(row.Status).Sprint(fmt.Sprintf(" %-12s ", row.Status))
	name := row.ID
	if row.Name != "" && row.Name != row.ID {
		name = fmt.Sprintf("%s (%s)", row.ID, row.Name)
	}
	if row.Version != "" {
		name += " " + MutedStyle.Render(row.Version)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%4d  %s  %s", row.LoadOrder, badge, name)
	if row.Standalone {
		b.WriteString(" " + MutedStyle.Render("[standalone]"))
	}
	for _, p := range row.Losing {
		b.WriteString("\n" + Indent(ConflictStyle.Render("overridden: ")+PathStyle.Render(p), 5))
	}
	if len(row.Missing) > 0 {
		b.WriteString("\n" + Indent(ErrorStyle.Render("missing: ")+strings.Join(row.Missing, ", "), 5))
	}
	return b.String()
}
