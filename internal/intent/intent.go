// Package intent routes an inbound message to a conversation intent
// before the report pipeline runs.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the coarse conversational route for an inbound message.
type Intent string

const (
	Greeting    Intent = "greeting"
	Help        Intent = "help"
	Thanks      Intent = "thanks"
	StatusCheck Intent = "status_check"
	Report      Intent = "report"
	Unclear     Intent = "unclear"
)

var greetingPattern = regexp.MustCompile(`(?i)\b(hello|hi|hey|howdy|greetings|good morning|good afternoon|good evening|sup|yo)\b`)

var helpPhrases = []string{"help", "what can you do", "how does this work", "assist"}

var thanksPhrases = []string{"thank", "thanks", "appreciate"}

var statusPhrases = []string{"status", "update", "check"}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Classify maps a message to an intent. First match wins; matching is
// case-insensitive on the trimmed message. hasMedia marks messages that
// arrived with an attachment, which count as reports even when the text
// is empty.
func Classify(message string, hasMedia bool) Intent {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if greetingPattern.MatchString(lower) {
		return Greeting
	}
	if containsAny(lower, helpPhrases) {
		return Help
	}
	if containsAny(lower, thanksPhrases) {
		return Thanks
	}
	if digitsOnly.MatchString(lower) || containsAny(lower, statusPhrases) {
		return StatusCheck
	}
	if trimmed != "" || hasMedia {
		return Report
	}
	return Unclear
}

// ReportID extracts the referenced report id from a status-check message.
// It returns 0 when the message carries no usable id.
func ReportID(message string) int64 {
	m := regexp.MustCompile(`\d+`).FindString(message)
	if m == "" {
		return 0
	}
	var id int64
	for _, r := range m {
		id = id*10 + int64(r-'0')
		if id < 0 { // overflow
			return 0
		}
	}
	return id
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
