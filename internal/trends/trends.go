// Package trends aggregates recent reports into per-day buckets for the
// admin dashboard.
package trends

import (
	"context"
	"fmt"
	"sort"
	"time"

	"civicbot/internal/store"
)

// DayBucket is one calendar day of report activity.
type DayBucket struct {
	Date    string         `json:"date"`
	Total   int            `json:"total"`
	ByIssue map[string]int `json:"by_issue"`
}

// Summary covers a lookback window ending today.
type Summary struct {
	Days      int            `json:"days"`
	Total     int            `json:"total"`
	Daily     []DayBucket    `json:"daily"`
	IssueMix  map[string]int `json:"issue_mix"`
	TopIssue  string         `json:"top_issue,omitempty"`
	Generated time.Time      `json:"generated_at"`
}

type lister interface {
	ListSince(ctx context.Context, since time.Time) ([]store.Report, error)
}

// Compute builds a summary for the last `days` days. Days with no reports
// are present with zero counts so charts have a continuous axis.
func Compute(ctx context.Context, src lister, now time.Time, days int) (Summary, error) {
	if days < 1 {
		days = 1
	}
	start := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	reports, err := src.ListSince(ctx, start)
	if err != nil {
		return Summary{}, fmt.Errorf("list reports since %s: %w", start.Format("2006-01-02"), err)
	}

	byDay := make(map[string]*DayBucket, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		byDay[d] = &DayBucket{Date: d, ByIssue: map[string]int{}}
	}

	mix := map[string]int{}
	total := 0
	for _, r := range reports {
		day := r.CreatedAt.Format("2006-01-02")
		b, ok := byDay[day]
		if !ok {
			// created after `now`, outside the requested window
			continue
		}
		b.Total++
		b.ByIssue[string(r.IssueType)]++
		mix[string(r.IssueType)]++
		total++
	}

	daily := make([]DayBucket, 0, len(byDay))
	for _, b := range byDay {
		daily = append(daily, *b)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	top := ""
	best := 0
	for issue, n := range mix {
		if n > best || (n == best && issue < top) {
			top, best = issue, n
		}
	}

	return Summary{
		Days:      days,
		Total:     total,
		Daily:     daily,
		IssueMix:  mix,
		TopIssue:  top,
		Generated: now,
	}, nil
}
