// Package report renders CLI views of sessions, simulations and pools.
package report

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/scoring"
	"github.com/gioe/aiq/internal/session"
	"github.com/gioe/aiq/internal/simulation"
	"github.com/gioe/aiq/internal/store"
	"github.com/gioe/aiq/internal/ui/components"
	"github.com/gioe/aiq/internal/ui/theme"
)

// DefaultWidth is the width of bar charts.
const DefaultWidth = 60

const timeLayout = "2006-01-02 15:04"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Foreground(theme.Text).Padding(0, 1)
		})
}

// Result renders a finalized session.
func Result(res session.FinalResult) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("Session "+res.SessionID) + "\n")
	b.WriteString(theme.Row("Score", fmt.Sprintf("%.0f", scoring.Round(res.Score.Value, 0))) + "\n")
	b.WriteString(theme.Row(fmt.Sprintf("%.0f%% interval", res.Score.Level*100),
		fmt.Sprintf("%.0f to %.0f", scoring.Round(res.Score.Lower, 0), scoring.Round(res.Score.Upper, 0))) + "\n")
	b.WriteString(theme.Row("Ability", fmt.Sprintf("%.3f (SE %.3f)", res.Theta, res.SE)) + "\n")
	b.WriteString(theme.Row("Items", fmt.Sprint(res.ItemsAdministered)) + "\n")
	b.WriteString(theme.Label.Render("Stopped by") + theme.StopReason(string(res.StopReason)) + "\n")
	b.WriteString(theme.Row("Pool", res.PoolVersion) + "\n\n")

	b.WriteString(theme.Subtitle.Render("Content coverage") + "\n")
	for _, row := range res.CoverageDetail {
		bar := components.NewBar(row.Category, row.Proportion, DefaultWidth)
		bar.LabelWidth = 12
		bar.Annotation = fmt.Sprintf("%d items, target %.0f%%, min %d", row.Count, row.Target*100, row.Minimum)
		b.WriteString(bar.View() + "\n")
	}
	return theme.Card.Render(strings.TrimRight(b.String(), "\n"))
}

// Simulation renders a population report.
func Simulation(rep *simulation.Report) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Simulated %d examinees", rep.Examinees)) + "\n")
	b.WriteString(theme.Row("Bias", fmt.Sprintf("%+.3f", rep.Bias)) + "\n")
	b.WriteString(theme.Row("Mean abs error", fmt.Sprintf("%.3f", rep.MAE)) + "\n")
	b.WriteString(theme.Row("RMSE", fmt.Sprintf("%.3f", rep.RMSE)) + "\n")
	b.WriteString(theme.Row("Mean items", fmt.Sprintf("%.1f", rep.MeanItems)) + "\n")
	b.WriteString(theme.Row("Mean final SE", fmt.Sprintf("%.3f", rep.MeanSE)) + "\n\n")

	b.WriteString(theme.Subtitle.Render("Stop reasons") + "\n")
	for _, reason := range rep.Reasons() {
		n := rep.StopReasons[reason]
		b.WriteString(theme.Label.Render(string(reason)) +
			theme.StopReason(string(reason)) + fmt.Sprintf(" %d (%.0f%%)", n, 100*float64(n)/float64(rep.Examinees)) + "\n")
	}

	if len(rep.MeanSEByStep) > 0 {
		b.WriteString("\n" + theme.Subtitle.Render("Mean SE by step") + "\n")
		maxSE := rep.MeanSEByStep[0]
		for _, se := range rep.MeanSEByStep {
			maxSE = max(maxSE, se)
		}
		for i, se := range rep.MeanSEByStep {
			bar := components.NewBar(fmt.Sprintf("%2d", i+1), se/maxSE, DefaultWidth)
			bar.Annotation = fmt.Sprintf("%.3f", se)
			b.WriteString(bar.View() + "\n")
		}
	}
	return theme.Card.Render(strings.TrimRight(b.String(), "\n"))
}

// History renders stored session results.
func History(rows []store.ResultSummary) string {
	if len(rows) == 0 {
		return theme.Hint.Render("No sessions recorded yet.")
	}
	t := newTable("Finished", "Examinee", "Score", "Interval", "Theta", "SE", "Items", "Stopped by", "Pool")
	for _, r := range rows {
		examinee := r.ExamineeID
		if examinee == "" {
			examinee = "-"
		}
		t.Row(
			r.FinishedAt.Local().Format(timeLayout),
			examinee,
			fmt.Sprintf("%.0f", r.Score),
			fmt.Sprintf("%.0f-%.0f", r.Lower, r.Upper),
			fmt.Sprintf("%.2f", r.Theta),
			fmt.Sprintf("%.2f", r.SE),
			fmt.Sprint(r.Items),
			r.StopReason,
			r.PoolVersion,
		)
	}
	return t.String()
}

// Responses renders the response history of one session.
func Responses(rs []session.ResponseRecord) string {
	t := newTable("#", "Item", "Category", "Correct", "Theta", "SE")
	for _, r := range rs {
		correct := "no"
		if r.Correct {
			correct = "yes"
		}
		se := fmt.Sprintf("%.3f", r.SE)
		if r.Fallback {
			se += " *"
		}
		t.Row(fmt.Sprint(r.Sequence), r.ItemID, r.Category, correct, fmt.Sprintf("%.3f", r.Theta), se)
	}
	return t.String()
}

// Pools renders stored pool snapshots.
func Pools(infos []store.SnapshotInfo) string {
	if len(infos) == 0 {
		return theme.Hint.Render("No pool snapshots imported yet.")
	}
	t := newTable("Version", "Items", "Sessions", "Imported")
	for i, info := range infos {
		version := info.Version
		if i == 0 {
			version += " (current)"
		}
		t.Row(version, fmt.Sprint(info.ItemCount), fmt.Sprint(info.SessionsServed), info.CreatedAt.Local().Format(timeLayout))
	}
	return t.String()
}

// PoolCheck renders the outcome of validating a pool file.
func PoolCheck(path string, dec *itempool.Decoded) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(path) + "\n")
	b.WriteString(theme.Row("Version", dec.Snapshot.Version) + "\n")
	b.WriteString(theme.Row("Admitted", fmt.Sprint(len(dec.Snapshot.Items))) + "\n")

	counts := make(map[string]int)
	var cats []string
	for _, it := range dec.Snapshot.Items {
		if counts[it.Category] == 0 {
			cats = append(cats, it.Category)
		}
		counts[it.Category]++
	}
	for _, c := range cats {
		b.WriteString(theme.Row("  "+c, fmt.Sprint(counts[c])) + "\n")
	}

	if len(dec.Rejected) == 0 {
		b.WriteString(theme.Good.Render("All items admitted."))
	} else {
		b.WriteString(theme.Bad.Render(fmt.Sprintf("%d items refused:", len(dec.Rejected))) + "\n")
		for _, err := range dec.Rejected {
			b.WriteString(theme.Warn.Render("  "+err.Error()) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
