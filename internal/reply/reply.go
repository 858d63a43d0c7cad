// Package reply turns pipeline outcomes into human-facing message text.
// Phrasing is picked from variant pools by an injected random source;
// variety is presentation only and never affects stored data.
package reply

import (
	"fmt"
	"math/rand"
	"sync"

	"civicbot/internal/civic"
	"civicbot/internal/store"
)

var reportAckVariants = []string{
	"✅ Report received! I've logged the %s at %s.\nReport ID: #%d\nOur %s team has been notified. Thank you for your report!",
	"📋 Thank you for reporting! Your %s issue at %s is now documented.\nTracking ID: #%d\nIt's been routed to %s. Your community spirit is appreciated!",
	"🎯 Report submitted successfully! %s at %s has been recorded.\nReference ID: #%d\nNow with %s. Thanks for helping keep our neighborhood great!",
}

var urgentAckVariants = []string{
	"🚨 I understand this %s at %s is urgent! I've prioritized report #%d and alerted %s immediately.",
	"🚨 Thank you for the urgent report about the %s at %s. Report #%d has been escalated to %s for quick action.",
	"🚨 This %s at %s needs immediate attention. Report #%d has been marked high priority and sent to %s.",
}

var photoAckLines = []string{
	"📸 Thanks for including the photo! It really helps us understand the situation.",
	"📸 The photo gives us great context. Visual evidence speeds things up!",
	"📸 Photo received — it makes the issue much easier to assess.",
}

var greetingVariants = []string{
	"👋 Hello! I'm %s, your friendly neighborhood assistant. I can help you report potholes, garbage problems, street light outages, and more. What would you like to report today?",
	"Hi there! %s here, ready to help with any community concerns. What issue would you like to report?",
	"Hey! %s at your service. Describe what you're seeing and where, and I'll log it for the right team.",
}

var thanksVariants = []string{
	"You're very welcome! 😊 I'm happy to help make our community better.",
	"My pleasure! Feel free to report any other issues you notice.",
	"You're welcome! Thanks for being an active community member.",
}

var unclearVariants = []string{
	"I'm not quite sure what you'd like to report. Could you describe the issue? For example: \"pothole on Main Street\" or \"street light out on 5th Avenue\".",
	"I want to make sure I log the right issue. Could you tell me a bit more about what you're seeing, and where?",
	"Let me help you report that! Could you add a little more detail about the issue and its location?",
}

var apologyVariants = []string{
	"😔 Sorry — I couldn't save your report just now. Please try again in a few minutes.",
	"Something went wrong on our side and your report wasn't saved. Please resend it shortly — sorry for the trouble.",
}

const helpText = `🆘 Here's how I can help you:

I can assist with reporting:
🕳️ Potholes & road damage
🗑️ Garbage & sanitation issues
💡 Street light problems
💧 Water leaks & flooding
🎨 Graffiti & vandalism

Just send me a description of the issue, the location (like "on Main Street"), and a photo if possible! 📸

You can also send a report number to check its status.`

var statusEmoji = map[civic.Status]string{
	civic.StatusReceived:   "📥",
	civic.StatusInProgress: "🔄",
	civic.StatusResolved:   "✅",
	civic.StatusArchived:   "🗄️",
}

// ReportContext carries what the acknowledgment templates need.
type ReportContext struct {
	Report     *store.Report
	Confidence float64
	Urgency    civic.Urgency
	HasImage   bool
}

// Synthesizer renders replies. Safe for concurrent use.
type Synthesizer struct {
	mu            sync.Mutex
	rng           *rand.Rand
	botName       string
	lowConfidence float64
}

// New builds a synthesizer seeded for reproducible phrasing. A zero
// lowConfidence disables the calibration disclaimer.
func New(seed int64, botName string, lowConfidence float64) *Synthesizer {
	return &Synthesizer{
		rng:           rand.New(rand.NewSource(seed)),
		botName:       botName,
		lowConfidence: lowConfidence,
	}
}

func (s *Synthesizer) pick(variants []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return variants[s.rng.Intn(len(variants))]
}

// ReportAck acknowledges a created report. It always names the issue,
// location, report id, and department; urgency and photo context add
// markers, and low classification confidence appends a disclaimer naming
// the percentage.
func (s *Synthesizer) ReportAck(rc ReportContext) string {
	r := rc.Report
	issue := civic.Humanize(string(r.IssueType))
	dept := civic.Humanize(r.Department)

	pool := reportAckVariants
	if rc.Urgency == civic.UrgencyHigh || rc.Urgency == civic.UrgencyMedium {
		pool = urgentAckVariants
	}
	text := fmt.Sprintf(s.pick(pool), issue, r.LocationText, r.ID, dept)

	if rc.HasImage {
		text += "\n\n" + s.pick(photoAckLines)
	}
	if s.lowConfidence > 0 && rc.Confidence < s.lowConfidence {
		text += fmt.Sprintf("\n\nNote: I'm about %.0f%% confident about the issue type, so our team will double-check it.", rc.Confidence*100)
	}
	return text
}

// StatusReply summarizes a report for a status check.
func (s *Synthesizer) StatusReply(r *store.Report) string {
	emoji := statusEmoji[r.Status]
	if emoji == "" {
		emoji = "📋"
	}
	return fmt.Sprintf("%s Report #%d\n\nIssue: %s\nLocation: %s\nStatus: %s\nSubmitted: %s\n\nWe're on it! Thanks for your patience. 🙏",
		emoji, r.ID,
		civic.Humanize(string(r.IssueType)),
		r.LocationText,
		civic.Humanize(string(r.Status)),
		r.CreatedAt.Format("2006-01-02"))
}

// StatusPrompt asks for a report id when a status check carried none.
func (s *Synthesizer) StatusPrompt() string {
	return "To check on a report, send me its report number (for example: 42)."
}

// NotFound is the status-check reply for an unknown report id.
func (s *Synthesizer) NotFound(id int64) string {
	return fmt.Sprintf("❌ I couldn't find a report with ID #%d. Please check the number and try again. If you need help, just type 'help'!", id)
}

func (s *Synthesizer) Greeting() string {
	return fmt.Sprintf(s.pick(greetingVariants), s.botName)
}

func (s *Synthesizer) Help() string { return helpText }

func (s *Synthesizer) Thanks() string { return s.pick(thanksVariants) }

func (s *Synthesizer) Unclear() string { return s.pick(unclearVariants) }

// Apology covers persistence failures: the reply must not claim success.
func (s *Synthesizer) Apology() string { return s.pick(apologyVariants) }

// Variants exposes the pool sizes for tests that assert membership.
func Variants(kind string) []string {
	switch kind {
	case "ack":
		return reportAckVariants
	case "urgent":
		return urgentAckVariants
	case "thanks":
		return thanksVariants
	case "unclear":
		return unclearVariants
	case "apology":
		return apologyVariants
	default:
		return nil
	}
}
