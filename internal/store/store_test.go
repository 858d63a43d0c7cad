package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"civicbot/internal/civic"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertReport(t *testing.T, st *Store, r Report) int64 {
	t.Helper()
	if r.Status == "" {
		r.Status = civic.StatusReceived
	}
	if r.Priority == "" {
		r.Priority = civic.PriorityMedium
	}
	if r.Department == "" {
		r.Department = civic.DepartmentFor(r.IssueType)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	id, err := st.Insert(context.Background(), &r)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	st := openTestStore(t)
	first := insertReport(t, st, Report{ReporterID: "+15550001", IssueType: civic.IssuePothole, Description: "pothole", LocationText: "Main Street"})
	second := insertReport(t, st, Report{ReporterID: "+15550002", IssueType: civic.IssueGarbage, Description: "trash", LocationText: "Oak Avenue"})
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	st := openTestStore(t)
	r, err := st.Get(context.Background(), 999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil, got %+v", r)
	}
}

func TestCoordinatesRoundTrip(t *testing.T) {
	st := openTestStore(t)
	lat, lng := 40.7128, -74.006
	id := insertReport(t, st, Report{ReporterID: "+15550001", IssueType: civic.IssuePothole, Latitude: &lat, Longitude: &lng})
	got, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasCoordinates() {
		t.Fatal("expected coordinate pair")
	}
	if *got.Latitude != lat || *got.Longitude != lng {
		t.Fatalf("coords = %v,%v", *got.Latitude, *got.Longitude)
	}

	// No partial pairs: a report without coordinates has neither.
	id2 := insertReport(t, st, Report{ReporterID: "+15550002", IssueType: civic.IssueOther})
	got2, _ := st.Get(context.Background(), id2)
	if got2.Latitude != nil || got2.Longitude != nil {
		t.Fatal("expected absent coordinates")
	}
}

func TestListFiltersCombineWithAND(t *testing.T) {
	st := openTestStore(t)
	insertReport(t, st, Report{ReporterID: "a", IssueType: civic.IssuePothole, Description: "deep pothole", LocationText: "Main Street"})
	insertReport(t, st, Report{ReporterID: "b", IssueType: civic.IssuePothole, Description: "crack", LocationText: "Oak Avenue"})
	insertReport(t, st, Report{ReporterID: "c", IssueType: civic.IssueGarbage, Description: "trash on Main Street", LocationText: "Main Street"})

	got, total, err := st.List(context.Background(), Filter{IssueType: civic.IssuePothole, Search: "main"}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(got) != 1 {
		t.Fatalf("total = %d, len = %d, want 1", total, len(got))
	}
	if got[0].ReporterID != "a" {
		t.Fatalf("wrong report: %+v", got[0])
	}
}

func TestListSearchMatchesDescriptionOrLocation(t *testing.T) {
	st := openTestStore(t)
	insertReport(t, st, Report{ReporterID: "a", IssueType: civic.IssuePothole, Description: "hole", LocationText: "Elm Street"})
	insertReport(t, st, Report{ReporterID: "b", IssueType: civic.IssueGarbage, Description: "elm tree debris", LocationText: "Park"})

	_, total, err := st.List(context.Background(), Filter{Search: "elm"}, 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestListOrdersNewestFirstAndPaginates(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertReport(t, st, Report{ReporterID: "r", IssueType: civic.IssueOther, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	page1, total, err := st.List(context.Background(), Filter{}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page1) != 2 {
		t.Fatalf("total = %d len = %d", total, len(page1))
	}
	if !page1[0].CreatedAt.After(page1[1].CreatedAt) {
		t.Fatalf("not newest first: %v then %v", page1[0].CreatedAt, page1[1].CreatedAt)
	}
	page3, _, err := st.List(context.Background(), Filter{}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3) != 1 {
		t.Fatalf("page3 len = %d, want 1", len(page3))
	}
}

func TestUpdateStatusStampsResolvedOnce(t *testing.T) {
	st := openTestStore(t)
	id := insertReport(t, st, Report{ReporterID: "a", IssueType: civic.IssuePothole})
	ctx := context.Background()

	t1 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	ok, err := st.UpdateStatus(ctx, id, civic.StatusResolved, t1)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	got, _ := st.Get(ctx, id)
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(t1) {
		t.Fatalf("resolved_at = %v, want %v", got.ResolvedAt, t1)
	}

	t2 := t1.Add(48 * time.Hour)
	if _, err := st.UpdateStatus(ctx, id, civic.StatusResolved, t2); err != nil {
		t.Fatal(err)
	}
	got, _ = st.Get(ctx, id)
	if !got.ResolvedAt.Equal(t1) {
		t.Fatalf("resolved_at overwritten: %v", got.ResolvedAt)
	}
	if !got.UpdatedAt.Equal(t2) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, t2)
	}
}

func TestUpdateStatusMissingIDReturnsFalse(t *testing.T) {
	st := openTestStore(t)
	ok, err := st.UpdateStatus(context.Background(), 42, civic.StatusInProgress, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false for missing id")
	}
}

func TestStatsEmpty(t *testing.T) {
	st := openTestStore(t)
	stats, err := st.Stats(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 || stats.AvgResolutionDays != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.StatusDistribution == nil || len(stats.StatusDistribution) != 0 {
		t.Fatalf("expected empty distribution map, got %v", stats.StatusDistribution)
	}
}

func TestStatsAggregates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	img := "https://media.example/1.jpg"

	insertReport(t, st, Report{ReporterID: "a", IssueType: civic.IssuePothole, ImageURL: &img, CreatedAt: now.Add(-24 * time.Hour)})
	id := insertReport(t, st, Report{ReporterID: "b", IssueType: civic.IssueGarbage, CreatedAt: now.Add(-30 * 24 * time.Hour)})
	if _, err := st.UpdateStatus(ctx, id, civic.StatusResolved, now.Add(-28*24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	stats, err := st.Stats(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Resolved != 1 || stats.WithImage != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ReportsLast7Days != 1 {
		t.Fatalf("last7 = %d", stats.ReportsLast7Days)
	}
	if stats.IssueTypeDistribution["pothole"] != 1 || stats.IssueTypeDistribution["garbage"] != 1 {
		t.Fatalf("issue distribution = %v", stats.IssueTypeDistribution)
	}
	if stats.AvgResolutionDays < 1.9 || stats.AvgResolutionDays > 2.1 {
		t.Fatalf("avg resolution = %v, want ~2 days", stats.AvgResolutionDays)
	}
}

func TestArchiveResolvedBefore(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	oldID := insertReport(t, st, Report{ReporterID: "a", IssueType: civic.IssueOther, CreatedAt: now.Add(-400 * 24 * time.Hour)})
	if _, err := st.UpdateStatus(ctx, oldID, civic.StatusResolved, now.Add(-399*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	staleOpen := insertReport(t, st, Report{ReporterID: "b", IssueType: civic.IssueOther, CreatedAt: now.Add(-400 * 24 * time.Hour)})

	n, err := st.ArchiveResolvedBefore(ctx, now.AddDate(-1, 0, 0), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("archived %d, want 1", n)
	}
	got, _ := st.Get(ctx, oldID)
	if got.Status != civic.StatusArchived {
		t.Fatalf("status = %s", got.Status)
	}
	open, _ := st.Get(ctx, staleOpen)
	if open.Status != civic.StatusReceived {
		t.Fatalf("unresolved report must not be archived, got %s", open.Status)
	}
}
