// Package civic holds the shared issue vocabulary used across the
// message-understanding pipeline and the report store.
package civic

import "strings"

// IssueType tags a report with the kind of problem being described.
type IssueType string

const (
	IssuePothole     IssueType = "pothole"
	IssueGarbage     IssueType = "garbage"
	IssueStreetLight IssueType = "street_light"
	IssueWater       IssueType = "water_issue"
	IssueTraffic     IssueType = "traffic"
	IssueGraffiti    IssueType = "graffiti"
	IssueOther       IssueType = "other"
)

// Urgency classifies how quickly a report should be looked at.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Priority is the admin-visible triage level stored on a report.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Status values a report moves through.
type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusArchived   Status = "archived"
)

// UnknownLocation is the sentinel used when no location could be extracted.
const UnknownLocation = "Unknown"

// DefaultDepartment receives reports whose issue type has no dedicated team.
const DefaultDepartment = "general"

var departmentByIssue = map[IssueType]string{
	IssuePothole:     "public_works",
	IssueStreetLight: "public_works",
	IssueGarbage:     "sanitation",
	IssueWater:       "water_department",
	IssueTraffic:     "traffic_management",
	IssueGraffiti:    "public_works",
}

// DepartmentFor maps an issue type to its handling department. The mapping
// is total; unmapped types route to the general department.
func DepartmentFor(issue IssueType) string {
	if dept, ok := departmentByIssue[issue]; ok {
		return dept
	}
	return DefaultDepartment
}

// PriorityForUrgency derives the stored report priority from detected urgency.
func PriorityForUrgency(u Urgency) Priority {
	if u == UrgencyHigh {
		return PriorityHigh
	}
	return PriorityMedium
}

// Humanize renders a snake_case tag for user-facing text
// ("street_light" -> "Street Light").
func Humanize(tag string) string {
	words := strings.Split(strings.ReplaceAll(tag, "-", "_"), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidStatus reports whether s is one of the known report statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusReceived, StatusInProgress, StatusResolved, StatusArchived:
		return true
	}
	return false
}
