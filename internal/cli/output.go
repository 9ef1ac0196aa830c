package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
	"github.com/ragmap-dev/ragmap/pkg/printer"
	"github.com/schollz/progressbar/v3"
)

func printJSON(data any) error {
	p := printer.New()
	return p.PrintJSON(data)
}

// renderRankedTable prints search and shortlist hits in kubectl-style columns.
func renderRankedTable(results []v0.RankedServer, wide bool) error {
	table := printer.NewTablePrinter(os.Stdout)
	if wide {
		table.SetHeaders("NAME", "VERSION", "SCORE", "MATCH", "RAG", "KIND", "CATEGORIES", "REACHABLE", "DESCRIPTION")
	} else {
		table.SetHeaders("NAME", "VERSION", "SCORE", "MATCH", "RAG", "REACHABLE")
	}
	for _, r := range results {
		score := fmt.Sprintf("%.1f", r.Score)
		reach := printer.FormatReachable(r.Reachable)
		if wide {
			table.AddRow(r.Name, r.Version, score, r.MatchKind, r.RagScore,
				printer.EmptyValueOrDefault(r.ServerKind, "<none>"),
				printer.EmptyValueOrDefault(strings.Join(r.Categories, ","), "<none>"),
				reach,
				printer.TruncateString(r.Description, 48))
		} else {
			table.AddRow(r.Name, r.Version, score, r.MatchKind, r.RagScore, reach)
		}
	}
	return table.Render()
}

// renderEntryTable prints catalog entries in kubectl-style columns.
func renderEntryTable(entries []types.CatalogEntry, wide bool) error {
	table := printer.NewTablePrinter(os.Stdout)
	if wide {
		table.SetHeaders("NAME", "VERSION", "RAG", "KIND", "CATEGORIES", "REACHABLE", "AGE")
	} else {
		table.SetHeaders("NAME", "VERSION", "RAG", "KIND", "REACHABLE")
	}
	for _, e := range entries {
		kind := printer.EmptyValueOrDefault(string(e.RagMap.ServerKind), "<none>")
		reach := printer.FormatReachable(e.RagMap.Reachable)
		if wide {
			age := "<none>"
			if t := types.ParseOfficial(e.Official).UpdatedAtTime(); !t.IsZero() {
				age = printer.FormatAge(t)
			}
			table.AddRow(e.Server.Name, e.Server.Version, e.RagMap.RagScore, kind,
				printer.EmptyValueOrDefault(strings.Join(e.RagMap.Categories, ","), "<none>"),
				reach, age)
		} else {
			table.AddRow(e.Server.Name, e.Server.Version, e.RagMap.RagScore, kind, reach)
		}
	}
	return table.Render()
}

// startSpinner renders an indeterminate spinner on stderr until the returned
// stop function is called.
func startSpinner(description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		_ = bar.Finish()
	}
}

func validateBoolFlag(name, value string) error {
	if value != "" && value != "true" && value != "false" {
		return fmt.Errorf("invalid --%s value %q (expected true or false)", name, value)
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
