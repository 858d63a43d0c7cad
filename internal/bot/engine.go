// Package bot orchestrates the message-understanding pipeline: intent
// routing, signal extraction, fusion, geocoding, persistence, and reply
// synthesis.
package bot

import (
	"context"
	"log"

	"github.com/google/uuid"

	"civicbot/internal/classify"
	"civicbot/internal/fusion"
	"civicbot/internal/geocode"
	"civicbot/internal/intent"
	"civicbot/internal/metrics"
	"civicbot/internal/reply"
	"civicbot/internal/reports"
	"civicbot/internal/vision"
)

// Message is one inbound event from the messaging channel.
type Message struct {
	SenderID   string
	Body       string
	MediaCount int
	MediaURL   string
}

// ImageAnalyzer classifies an attached photo.
type ImageAnalyzer interface {
	AnalyzeURL(ctx context.Context, imageURL string) vision.Signal
}

// LocationResolver maps extracted location text to coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, locationText string) (geocode.Coordinates, bool)
}

// Engine handles one message at a time to completion.
type Engine struct {
	extractor *classify.Extractor
	images    ImageAnalyzer
	geocoder  LocationResolver
	reports   *reports.Service
	replies   *reply.Synthesizer
}

func NewEngine(extractor *classify.Extractor, images ImageAnalyzer, geocoder LocationResolver, svc *reports.Service, replies *reply.Synthesizer) *Engine {
	return &Engine{
		extractor: extractor,
		images:    images,
		geocoder:  geocoder,
		reports:   svc,
		replies:   replies,
	}
}

// Handle processes an inbound message and returns the reply text. Every
// failure below the persistence layer degrades to a well-formed reply.
func (e *Engine) Handle(ctx context.Context, msg Message) string {
	metrics.IncMessagesHandled()
	corr := uuid.NewString()[:8]
	log.Printf("[%s] message from %s (%d media)", corr, msg.SenderID, msg.MediaCount)

	switch intent.Classify(msg.Body, msg.MediaCount > 0) {
	case intent.Greeting:
		return e.replies.Greeting()
	case intent.Help:
		return e.replies.Help()
	case intent.Thanks:
		return e.replies.Thanks()
	case intent.StatusCheck:
		return e.statusCheck(ctx, corr, msg)
	case intent.Report:
		return e.report(ctx, corr, msg)
	default:
		return e.replies.Unclear()
	}
}

func (e *Engine) statusCheck(ctx context.Context, corr string, msg Message) string {
	id := intent.ReportID(msg.Body)
	if id == 0 {
		return e.replies.StatusPrompt()
	}
	r, err := e.reports.Get(ctx, id)
	if err != nil {
		log.Printf("[%s] status lookup %d failed: %v", corr, id, err)
		return e.replies.Apology()
	}
	if r == nil {
		return e.replies.NotFound(id)
	}
	return e.replies.StatusReply(r)
}

func (e *Engine) report(ctx context.Context, corr string, msg Message) string {
	textSig := e.extractor.Extract(msg.Body)

	var imgSig vision.Signal
	hasImage := msg.MediaCount > 0 && msg.MediaURL != ""
	if hasImage {
		imgSig = e.images.AnalyzeURL(ctx, msg.MediaURL)
		if imgSig.Source == vision.SourceBasic {
			metrics.IncVisionFallback()
		}
	}

	issue := fusion.Resolve(textSig, imgSig)
	confidence := textSig.Confidence
	if issue != textSig.Issue {
		confidence = imgSig.Confidence
	}

	var coordsPtr *geocode.Coordinates
	if coords, ok := e.geocoder.Resolve(ctx, textSig.Location); ok {
		c := coords
		coordsPtr = &c
	}

	description := msg.Body
	if description == "" && hasImage {
		description = "Photo report"
	}

	r, err := e.reports.Create(ctx, reports.CreateParams{
		ReporterID:   msg.SenderID,
		IssueType:    issue,
		Description:  description,
		LocationText: textSig.Location,
		Coordinates:  coordsPtr,
		ImageURL:     msg.MediaURL,
		Urgency:      textSig.Urgency,
	})
	if err != nil {
		log.Printf("[%s] create report failed: %v", corr, err)
		return e.replies.Apology()
	}
	log.Printf("[%s] created report #%d (%s, %s, priority %s)", corr, r.ID, r.IssueType, r.LocationText, r.Priority)

	return e.replies.ReportAck(reply.ReportContext{
		Report:     r,
		Confidence: confidence,
		Urgency:    textSig.Urgency,
		HasImage:   hasImage,
	})
}
