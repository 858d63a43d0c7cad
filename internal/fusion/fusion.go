// Package fusion combines text-derived and image-derived issue
// classifications into one final value.
package fusion

import (
	"civicbot/internal/civic"
	"civicbot/internal/classify"
	"civicbot/internal/vision"
)

// Resolve picks the final issue type. The image signal wins only when it
// produced a real type and its confidence strictly exceeds the text
// signal's; text is the default since it is always present.
func Resolve(text classify.Signal, img vision.Signal) civic.IssueType {
	if img.Issue != "" && img.Confidence > text.Confidence {
		return img.Issue
	}
	return text.Issue
}
