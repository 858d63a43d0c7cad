// Package reports owns report creation, status transitions, and queries.
// It is the canonical source of truth for the report lifecycle.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicbot/config"
	"civicbot/internal/civic"
	"civicbot/internal/events"
	"civicbot/internal/geocode"
	"civicbot/internal/metrics"
	"civicbot/internal/store"
)

// ErrInvalidTransition marks a status change the state machine forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// Service wraps the store with lifecycle rules.
type Service struct {
	store *store.Store
	bus   *events.Bus
}

func NewService(st *store.Store, bus *events.Bus) *Service {
	return &Service{store: st, bus: bus}
}

// CreateParams carries everything needed to open a new report.
type CreateParams struct {
	ReporterID   string
	IssueType    civic.IssueType
	Description  string
	LocationText string
	Coordinates  *geocode.Coordinates
	ImageURL     string
	Urgency      civic.Urgency
}

// Create inserts a new report in status received. Persistence errors are
// returned to the caller; they are the one failure class that must not be
// swallowed.
func (s *Service) Create(ctx context.Context, p CreateParams) (*store.Report, error) {
	now := config.Now()
	r := &store.Report{
		ReporterID:   p.ReporterID,
		IssueType:    p.IssueType,
		Description:  p.Description,
		LocationText: p.LocationText,
		Department:   civic.DepartmentFor(p.IssueType),
		Status:       civic.StatusReceived,
		Priority:     civic.PriorityForUrgency(p.Urgency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.LocationText == "" {
		r.LocationText = civic.UnknownLocation
	}
	if p.Coordinates != nil {
		lat, lng := p.Coordinates.Lat, p.Coordinates.Lng
		r.Latitude = &lat
		r.Longitude = &lng
	}
	if p.ImageURL != "" {
		img := p.ImageURL
		r.ImageURL = &img
	}

	if _, err := s.store.Insert(ctx, r); err != nil {
		metrics.IncPersistFailures()
		return nil, fmt.Errorf("create report: %w", err)
	}
	metrics.IncReportsCreated()
	if s.bus != nil {
		s.bus.Publish(events.ReportCreated{
			ReportID:   r.ID,
			IssueType:  string(r.IssueType),
			Department: r.Department,
			Location:   r.LocationText,
			Priority:   string(r.Priority),
			Urgent:     r.Priority == civic.PriorityHigh,
		})
	}
	return r, nil
}

// Get returns a report by id, nil when absent.
func (s *Service) Get(ctx context.Context, id int64) (*store.Report, error) {
	return s.store.Get(ctx, id)
}

// List forwards filtered, paginated queries to the store.
func (s *Service) List(ctx context.Context, f store.Filter, page, pageSize int) ([]store.Report, int, error) {
	return s.store.List(ctx, f, page, pageSize)
}

// allowedTransition encodes the status state machine: received,
// in-progress, and resolved move freely among themselves; archived is
// reachable only from resolved and is terminal.
func allowedTransition(from, to civic.Status) bool {
	if !civic.ValidStatus(to) {
		return false
	}
	if from == civic.StatusArchived {
		return false
	}
	if to == civic.StatusArchived {
		return from == civic.StatusResolved
	}
	return true
}

// UpdateStatus applies a status transition. It returns (false, nil) when
// the report does not exist and ErrInvalidTransition when the state
// machine forbids the move. Resolving a report stamps resolved_at exactly
// once.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status civic.Status) (bool, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	if !allowedTransition(current.Status, status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, status, config.Now())
	if err == nil && ok && s.bus != nil {
		s.bus.Publish(events.StatusChanged{ReportID: id, From: string(current.Status), To: string(status)})
	}
	return ok, err
}

// UpdatePriority sets the admin triage level.
func (s *Service) UpdatePriority(ctx context.Context, id int64, priority civic.Priority) (bool, error) {
	switch priority {
	case civic.PriorityLow, civic.PriorityMedium, civic.PriorityHigh:
	default:
		return false, fmt.Errorf("unknown priority %q", priority)
	}
	return s.store.UpdatePriority(ctx, id, priority, config.Now())
}

// Stats returns dashboard statistics.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx, config.Now())
}

// ArchiveResolvedOlderThan moves resolved reports past the retention
// window into archived. Used by retention cleanup.
func (s *Service) ArchiveResolvedOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	now := config.Now()
	return s.store.ArchiveResolvedBefore(ctx, now.Add(-age), now)
}
