// Package classify extracts issue, location, and urgency signals from
// free-text messages. Everything here is pure and deterministic.
package classify

import (
	"regexp"
	"strings"

	"civicbot/config"
	"civicbot/internal/civic"
)

// Signal is the structured result of analyzing one message.
type Signal struct {
	Issue      civic.IssueType
	Confidence float64
	Location   string
	Urgency    civic.Urgency
	Emergency  bool
	AllIssues  []civic.IssueType
}

type issueEntry struct {
	issue     civic.IssueType
	keywords  []string
	weight    float64
	emergency bool
}

// Declaration order is the tie-break for equal-confidence candidates.
var issueTable = []issueEntry{
	{civic.IssuePothole, []string{"pothole", "road damage", "street damage", "hole in road", "road hole", "asphalt damage", "cracked road", "road crack"}, 1.0, false},
	{civic.IssueGarbage, []string{"garbage", "trash", "rubbish", "waste", "dump", "litter", "cleanup", "sanitation", "overflowing bin", "dumpster"}, 0.9, false},
	{civic.IssueStreetLight, []string{"street light", "streetlight", "light out", "dark street", "lamp post", "light pole", "broken light", "flickering light"}, 0.8, false},
	{civic.IssueWater, []string{"water leak", "flood", "leak", "pipe burst", "drainage", "sewage", "overflow", "water main", "flooding"}, 1.0, true},
	{civic.IssueTraffic, []string{"traffic light", "stop light", "signal broken", "road block", "accident", "car crash", "congestion"}, 1.0, true},
	{civic.IssueGraffiti, []string{"graffiti", "vandalism", "spray paint", "tagging", "defaced"}, 0.7, false},
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:at|on|near|around|beside|opposite)\s+([^,.!?]+)`),
	regexp.MustCompile(`(?i)\b(\d+\s+\w+\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln))\b`),
	regexp.MustCompile(`(?i)\b(?:location|address)[:\s]\s*([^,.!?]+)`),
	regexp.MustCompile(`(?i)\bin\s+([^,.!?]+?(?:area|neighborhood|district))\b`),
}

const minLocationLen = 5

// Extractor analyzes message text against the issue keyword table.
type Extractor struct {
	table   []issueEntry
	urgency []string
}

// New builds an extractor, overlaying any configured extra keywords onto
// the built-in table.
func New(cfg config.ClassifierConfig) *Extractor {
	table := make([]issueEntry, len(issueTable))
	copy(table, issueTable)
	for i := range table {
		if extra := cfg.ExtraKeywords[string(table[i].issue)]; len(extra) > 0 {
			kws := make([]string, 0, len(table[i].keywords)+len(extra))
			kws = append(kws, table[i].keywords...)
			kws = append(kws, extra...)
			table[i].keywords = kws
		}
	}
	urgency := cfg.UrgencyKeywords
	if len(urgency) == 0 {
		urgency = config.DefaultClassifierConfig().UrgencyKeywords
	}
	return &Extractor{table: table, urgency: urgency}
}

// Extract analyzes a message and returns the primary issue candidate,
// extracted location, and urgency.
func (e *Extractor) Extract(message string) Signal {
	lower := strings.ToLower(message)

	sig := Signal{
		Issue:      civic.IssueOther,
		Confidence: 0.0,
		Location:   civic.UnknownLocation,
		Urgency:    civic.UrgencyNormal,
	}

	bestIdx := -1
	candidateEmergency := false
	for i, entry := range e.table {
		matched := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		confidence := entry.weight
		if matched > 1 {
			confidence += 0.2
			if confidence > 1.0 {
				confidence = 1.0
			}
		}
		sig.AllIssues = append(sig.AllIssues, entry.issue)
		if entry.emergency {
			candidateEmergency = true
		}
		// Strictly greater keeps the earlier declaration on ties.
		if bestIdx == -1 || confidence > sig.Confidence {
			bestIdx = i
			sig.Issue = entry.issue
			sig.Confidence = confidence
		}
	}

	if loc := extractLocation(message); loc != "" {
		sig.Location = titleCase(loc)
	}

	switch {
	case containsAny(lower, e.urgency):
		sig.Urgency = civic.UrgencyHigh
	case candidateEmergency:
		sig.Urgency = civic.UrgencyMedium
	}
	sig.Emergency = sig.Urgency == civic.UrgencyHigh || sig.Urgency == civic.UrgencyMedium

	return sig
}

func extractLocation(message string) string {
	for _, pattern := range locationPatterns {
		m := pattern.FindStringSubmatch(message)
		if len(m) < 2 {
			continue
		}
		loc := strings.TrimSpace(m[1])
		if len(loc) > minLocationLen {
			return loc
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
