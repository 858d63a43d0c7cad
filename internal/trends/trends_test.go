package trends

import (
	"context"
	"testing"
	"time"

	"civicbot/internal/civic"
	"civicbot/internal/store"
)

type fakeLister struct {
	reports []store.Report
	since   time.Time
}

func (f *fakeLister) ListSince(ctx context.Context, since time.Time) ([]store.Report, error) {
	f.since = since
	return f.reports, nil
}

func TestComputeBucketsAndMix(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	src := &fakeLister{reports: []store.Report{
		{IssueType: civic.IssuePothole, CreatedAt: now.Add(-2 * time.Hour)},
		{IssueType: civic.IssuePothole, CreatedAt: now.AddDate(0, 0, -1)},
		{IssueType: civic.IssueGarbage, CreatedAt: now.AddDate(0, 0, -1)},
	}}

	s, err := Compute(context.Background(), src, now, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Daily) != 7 {
		t.Fatalf("daily buckets = %d, want 7", len(s.Daily))
	}
	if s.Total != 3 {
		t.Fatalf("total = %d", s.Total)
	}
	if s.TopIssue != string(civic.IssuePothole) {
		t.Fatalf("top issue = %q", s.TopIssue)
	}
	last := s.Daily[len(s.Daily)-1]
	if last.Date != "2026-08-31" || last.Total != 1 {
		t.Fatalf("today bucket = %+v", last)
	}
	prev := s.Daily[len(s.Daily)-2]
	if prev.Total != 2 || prev.ByIssue["garbage"] != 1 {
		t.Fatalf("yesterday bucket = %+v", prev)
	}
	if s.Daily[0].Total != 0 {
		t.Fatalf("empty day should stay zero, got %+v", s.Daily[0])
	}
}

func TestComputeClampsWindow(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	src := &fakeLister{}
	s, err := Compute(context.Background(), src, now, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Days != 1 || len(s.Daily) != 1 {
		t.Fatalf("window not clamped: days=%d buckets=%d", s.Days, len(s.Daily))
	}
	if !src.since.Equal(now.Truncate(24 * time.Hour)) {
		t.Fatalf("since = %s", src.since)
	}
}
