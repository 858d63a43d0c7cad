// Package store wraps SQLite access for report records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"civicbot/internal/civic"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for reports.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	// _time_format=sqlite stores time.Time values in a format SQLite's
	// date functions (JULIANDAY etc.) can parse.
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reporter_id TEXT NOT NULL,
            issue_type TEXT NOT NULL,
            description TEXT,
            location_text TEXT,
            latitude REAL,
            longitude REAL,
            image_url TEXT,
            department TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'received',
            priority TEXT NOT NULL DEFAULT 'medium',
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            resolved_at TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_issue_type ON reports(issue_type);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_priority ON reports(priority);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Report is a persisted civic issue report.
type Report struct {
	ID           int64           `json:"id"`
	ReporterID   string          `json:"reporter_id"`
	IssueType    civic.IssueType `json:"issue_type"`
	Description  string          `json:"description"`
	LocationText string          `json:"location_text"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	ImageURL     *string         `json:"image_url,omitempty"`
	Department   string          `json:"department"`
	Status       civic.Status    `json:"status"`
	Priority     civic.Priority  `json:"priority"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// HasCoordinates reports whether a full latitude/longitude pair is present.
func (r *Report) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

const reportColumns = `id, reporter_id, issue_type, description, location_text, latitude, longitude, image_url, department, status, priority, created_at, updated_at, resolved_at`

// Insert persists a new report and returns its generated id.
func (s *Store) Insert(ctx context.Context, r *Report) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO reports(reporter_id, issue_type, description, location_text, latitude, longitude, image_url, department, status, priority, created_at, updated_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ReporterID, string(r.IssueType), r.Description, r.LocationText, r.Latitude, r.Longitude, r.ImageURL, r.Department, string(r.Status), string(r.Priority), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert report id: %w", err)
	}
	r.ID = id
	return id, nil
}

// Get returns the report with the given id, or nil when absent.
func (s *Store) Get(ctx context.Context, id int64) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Filter narrows List results. Zero-value fields are ignored; non-zero
// fields combine with AND.
type Filter struct {
	Status     civic.Status
	IssueType  civic.IssueType
	Department string
	Search     string
}

// List returns a page of reports newest-first plus the total match count.
func (s *Store) List(ctx context.Context, f Filter, page, pageSize int) ([]Report, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *r)
	}
	return reports, total, rows.Err()
}

// ListSince returns all reports created at or after the given time.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE created_at >= ? ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.IssueType != "" {
		conds = append(conds, "issue_type = ?")
		args = append(args, string(f.IssueType))
	}
	if f.Department != "" {
		conds = append(conds, "department = ?")
		args = append(args, f.Department)
	}
	if f.Search != "" {
		conds = append(conds, "(description LIKE ? OR location_text LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateStatus sets a report's status, refreshing updated_at. When moving
// into resolved it stamps resolved_at once; resolving again keeps the
// original timestamp. It reports whether the id existed.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status civic.Status, ts time.Time) (bool, error) {
	var res sql.Result
	var err error
	if status == civic.StatusResolved {
		res, err = s.db.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=?, resolved_at=COALESCE(resolved_at, ?) WHERE id=?`,
			string(status), ts, ts, id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=? WHERE id=?`, string(status), ts, id)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdatePriority sets a report's priority, refreshing updated_at.
func (s *Store) UpdatePriority(ctx context.Context, id int64, priority civic.Priority, ts time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET priority=?, updated_at=? WHERE id=?`, string(priority), ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ArchiveResolvedBefore marks resolved reports created before cutoff as
// archived and returns how many rows changed.
func (s *Store) ArchiveResolvedBefore(ctx context.Context, cutoff, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=? WHERE status=? AND created_at < ?`,
		string(civic.StatusArchived), ts, string(civic.StatusResolved), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats aggregates dashboard counters over the reports table.
type Stats struct {
	Total                  int            `json:"total"`
	Resolved               int            `json:"resolved"`
	WithImage              int            `json:"with_image"`
	StatusDistribution     map[string]int `json:"status_distribution"`
	IssueTypeDistribution  map[string]int `json:"issue_type_distribution"`
	DepartmentDistribution map[string]int `json:"department_distribution"`
	ReportsLast7Days       int            `json:"reports_last_7_days"`
	AvgResolutionDays      float64        `json:"avg_resolution_days"`
}

// Stats computes dashboard statistics. It never divides by zero: with no
// resolved reports AvgResolutionDays is 0 and distributions stay empty maps.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	st := Stats{
		StatusDistribution:     map[string]int{},
		IssueTypeDistribution:  map[string]int{},
		DepartmentDistribution: map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&st.Total); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE status=?`, string(civic.StatusResolved)).Scan(&st.Resolved); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE image_url IS NOT NULL AND image_url != ''`).Scan(&st.WithImage); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE created_at >= ?`, now.AddDate(0, 0, -7)).Scan(&st.ReportsLast7Days); err != nil {
		return st, err
	}

	if err := s.groupCount(ctx, "status", st.StatusDistribution); err != nil {
		return st, err
	}
	if err := s.groupCount(ctx, "issue_type", st.IssueTypeDistribution); err != nil {
		return st, err
	}
	if err := s.groupCount(ctx, "department", st.DepartmentDistribution); err != nil {
		return st, err
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT AVG(JULIANDAY(resolved_at) - JULIANDAY(created_at)) FROM reports WHERE resolved_at IS NOT NULL`).Scan(&avg)
	if err != nil {
		return st, err
	}
	if avg.Valid {
		st.AvgResolutionDays = avg.Float64
	}
	return st, nil
}

func (s *Store) groupCount(ctx context.Context, column string, dest map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM reports GROUP BY `+column)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dest[key] = n
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*Report, error) {
	var r Report
	var lat, lng sql.NullFloat64
	var image sql.NullString
	var resolved sql.NullTime
	var issue, status, priority string
	if err := row.Scan(&r.ID, &r.ReporterID, &issue, &r.Description, &r.LocationText, &lat, &lng, &image, &r.Department, &status, &priority, &r.CreatedAt, &r.UpdatedAt, &resolved); err != nil {
		return nil, err
	}
	r.IssueType = civic.IssueType(issue)
	r.Status = civic.Status(status)
	r.Priority = civic.Priority(priority)
	if lat.Valid && lng.Valid {
		r.Latitude = &lat.Float64
		r.Longitude = &lng.Float64
	}
	if image.Valid && image.String != "" {
		r.ImageURL = &image.String
	}
	if resolved.Valid {
		r.ResolvedAt = &resolved.Time
	}
	return &r, nil
}

// Health returns err if the DB is not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
