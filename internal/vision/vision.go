// Package vision classifies attached photos through an external
// label-detection service, with a local fallback when the service is
// unconfigured or unavailable.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"civicbot/internal/civic"

	// Attachment decoding for the fallback path. WhatsApp media is often
	// webp; stdlib only registers gif/jpeg/png.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Source values reported on a Signal.
const (
	SourceVisionAPI = "vision_api"
	SourceBasic     = "basic"
)

// Signal is the image-derived classification. Issue is empty when the
// analysis produced no usable issue type.
type Signal struct {
	Issue      civic.IssueType
	Confidence float64
	Safe       bool
	Source     string
	Candidates []Candidate

	// Fallback-only quality hints.
	Quality string
	Width   int
	Height  int
}

// Candidate is one deduplicated issue match from the service annotations.
type Candidate struct {
	Issue civic.IssueType
	Score float64
	Label string
}

// Keyword sets tuned for visual labels rather than message text.
var labelTable = []struct {
	issue    civic.IssueType
	keywords []string
}{
	{civic.IssuePothole, []string{"pothole", "road", "asphalt", "pavement", "damage", "crack"}},
	{civic.IssueGarbage, []string{"garbage", "trash", "litter", "waste", "rubbish", "dumpster", "bin"}},
	{civic.IssueGraffiti, []string{"graffiti", "vandalism", "spray paint", "tagging", "wall writing"}},
	{civic.IssueWater, []string{"water", "flood", "leak", "flooding", "puddle"}},
	{civic.IssueTraffic, []string{"car", "vehicle", "automobile", "accident", "traffic"}},
	{civic.IssueStreetLight, []string{"street light", "lamp", "light pole", "streetlight", "lamp post"}},
}

const requestTimeout = 8 * time.Second

// Analyzer calls the vision service and maps annotations to issue types.
type Analyzer struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	threshold float64
}

// New builds an analyzer. An empty apiKey disables the service call and
// every analysis takes the basic fallback path.
func New(client *http.Client, baseURL, apiKey string, threshold float64) *Analyzer {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Analyzer{client: client, baseURL: baseURL, apiKey: apiKey, threshold: threshold}
}

// AnalyzeURL downloads the attachment and analyzes its bytes. Download
// failures degrade to an empty basic signal.
func (a *Analyzer) AnalyzeURL(ctx context.Context, imageURL string) Signal {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return basicSignal(nil)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("vision: image download failed: %v", err)
		return basicSignal(nil)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("vision: image download status %d", resp.StatusCode)
		return basicSignal(nil)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return basicSignal(nil)
	}
	return a.Analyze(ctx, payload)
}

// Analyze classifies raw image bytes. Service failures are downgraded to
// the fallback path, never propagated.
func (a *Analyzer) Analyze(ctx context.Context, payload []byte) Signal {
	if a.apiKey == "" {
		return basicSignal(payload)
	}
	sig, err := a.annotate(ctx, payload)
	if err != nil {
		log.Printf("vision: service call failed: %v (falling back)", err)
		return basicSignal(payload)
	}
	return sig
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    annotateImage `json:"image"`
	Features []feature     `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		LocalizedObjectAnnotations []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"localizedObjectAnnotations"`
		SafeSearchAnnotation struct {
			Adult string `json:"adult"`
		} `json:"safeSearchAnnotation"`
	} `json:"responses"`
}

func (a *Analyzer) annotate(ctx context.Context, payload []byte) (Signal, error) {
	reqBody := annotateRequest{Requests: []annotateEntry{{
		Image: annotateImage{Content: base64.StdEncoding.EncodeToString(payload)},
		Features: []feature{
			{Type: "LABEL_DETECTION", MaxResults: 10},
			{Type: "OBJECT_LOCALIZATION", MaxResults: 10},
			{Type: "SAFE_SEARCH_DETECTION", MaxResults: 5},
		},
	}}}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return Signal{}, err
	}
	endpoint := a.baseURL + "?key=" + a.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return Signal{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Signal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Signal{}, fmt.Errorf("vision status %d", resp.StatusCode)
	}

	var data annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Signal{}, err
	}
	return a.parse(data), nil
}

func (a *Analyzer) parse(data annotateResponse) Signal {
	sig := Signal{Safe: true, Source: SourceVisionAPI}
	if len(data.Responses) == 0 {
		return sig
	}
	r := data.Responses[0]

	// Deduplicate by issue type, keeping the highest-scoring match.
	best := map[civic.IssueType]Candidate{}
	consider := func(label string, score float64) {
		if score <= a.threshold {
			return
		}
		lower := strings.ToLower(label)
		for _, entry := range labelTable {
			for _, kw := range entry.keywords {
				if strings.Contains(lower, kw) {
					if cur, ok := best[entry.issue]; !ok || score > cur.Score {
						best[entry.issue] = Candidate{Issue: entry.issue, Score: score, Label: lower}
					}
					break
				}
			}
		}
	}
	for _, l := range r.LabelAnnotations {
		consider(l.Description, l.Score)
	}
	for _, o := range r.LocalizedObjectAnnotations {
		consider(o.Name, o.Score)
	}

	for _, c := range best {
		sig.Candidates = append(sig.Candidates, c)
	}
	sortCandidates(sig.Candidates)
	if len(sig.Candidates) > 0 {
		sig.Issue = sig.Candidates[0].Issue
		sig.Confidence = sig.Candidates[0].Score
	}

	switch r.SafeSearchAnnotation.Adult {
	case "", "VERY_UNLIKELY", "UNLIKELY", "UNKNOWN":
		sig.Safe = true
	default:
		sig.Safe = false
	}
	return sig
}

func sortCandidates(cands []Candidate) {
	// Score descending; issue name breaks exact-score ties deterministically.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0; j-- {
			a, b := cands[j-1], cands[j]
			if b.Score > a.Score || (b.Score == a.Score && b.Issue < a.Issue) {
				cands[j-1], cands[j] = b, a
			} else {
				break
			}
		}
	}
}

// basicSignal is the no-service fallback: it never classifies an issue,
// it only records payload quality so the pipeline stays well-formed.
func basicSignal(payload []byte) Signal {
	sig := Signal{Safe: true, Source: SourceBasic}
	if len(payload) == 0 {
		return sig
	}
	if len(payload) > 100<<10 {
		sig.Quality = "good"
	} else {
		sig.Quality = "poor"
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(payload)); err == nil {
		sig.Width = cfg.Width
		sig.Height = cfg.Height
	}
	return sig
}
