package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tracklens/tracklens/internal/core"
	"github.com/tracklens/tracklens/internal/core/store"
)

// TableFormatter renders results as an ASCII table, or a markdown table when
// Markdown is set.
type TableFormatter struct {
	Markdown bool
}

// FormatResult renders one recommendation result.
func (f *TableFormatter) FormatResult(result *core.RecommendationResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Artist", "Album", "Genre", "Confidence", "Reason"})

	for i, rec := range result.Recommendations {
		t.AppendRow(table.Row{
			i + 1,
			rec.Artist,
			rec.Album,
			rec.Genre,
			fmt.Sprintf("%.2f", rec.Confidence),
			rec.Reason,
		})
	}

	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d recommendations", len(result.Recommendations)),
		resultSummary(result),
		"",
		"",
		"",
	})

	rendered := f.render(t)
	if result.PlanRationale != "" {
		rendered += "\nplan: " + result.PlanRationale
	}
	return rendered, nil
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func resultSummary(result *core.RecommendationResult) string {
	parts := []string{
		fmt.Sprintf("%s/%s", result.Provider, result.Model),
		fmt.Sprintf("rounds %d", result.RoundsUsed),
		string(result.StopReason),
	}
	if result.FromCache {
		parts = append(parts, "cached")
	}
	if result.UnderTarget {
		parts = append(parts, "under target")
	}
	return strings.Join(parts, ", ")
}

// RenderHistory renders persisted runs in the requested format.
func RenderHistory(format Format, entries []store.HistoryEntry) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "When", "Provider", "Model", "Target", "Returned", "Rounds", "Stop", "Cached"})

	for _, entry := range entries {
		cached := ""
		if entry.FromCache {
			cached = "yes"
		}
		t.AppendRow(table.Row{
			entry.ID,
			entry.CreatedAt.Format(time.RFC3339),
			entry.Provider,
			entry.Model,
			entry.TargetCount,
			entry.ReturnedCount,
			entry.RoundsUsed,
			string(entry.StopReason),
			cached,
		})
	}

	if format == FormatMarkdown {
		return t.RenderMarkdown(), nil
	}
	return t.Render(), nil
}

// RenderRateLimits renders persisted rate limit snapshots.
func RenderRateLimits(format Format, states []core.RateLimitState) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(states, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Resource", "Capacity", "Period", "Reserved", "Last Grant", "Updated"})

	for _, state := range states {
		lastGrant := "-"
		if state.LastGrantAt != nil {
			lastGrant = state.LastGrantAt.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			state.Resource,
			state.Capacity,
			state.Period.String(),
			state.ReservedNow,
			lastGrant,
			state.UpdatedAt.Format(time.RFC3339),
		})
	}

	if format == FormatMarkdown {
		return t.RenderMarkdown(), nil
	}
	return t.Render(), nil
}

// RenderOutcomes renders provider outcome summaries for doctor reports.
func RenderOutcomes(format Format, summaries []store.OutcomeSummary) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Provider", "Successes", "Failures", "Mean Latency", "Last Observed"})

	for _, summary := range summaries {
		t.AppendRow(table.Row{
			summary.Provider,
			summary.Successes,
			summary.Failures,
			summary.MeanLatency.String(),
			summary.LastObserved.Format(time.RFC3339),
		})
	}

	if format == FormatMarkdown {
		return t.RenderMarkdown(), nil
	}
	return t.Render(), nil
}
