package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"civicbot/internal/civic"
)

func fakeVisionServer(t *testing.T, response string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var body annotateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(body.Requests) != 1 || body.Requests[0].Image.Content == "" {
			t.Error("expected one request with image content")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
}

func TestAnalyzeMapsLabelsToIssues(t *testing.T) {
	resp := `{"responses":[{
		"labelAnnotations":[
			{"description":"Asphalt","score":0.92},
			{"description":"Road surface","score":0.88},
			{"description":"Sky","score":0.99}
		],
		"localizedObjectAnnotations":[{"name":"Car","score":0.75}],
		"safeSearchAnnotation":{"adult":"VERY_UNLIKELY"}
	}]}`
	srv := fakeVisionServer(t, resp, http.StatusOK)
	defer srv.Close()

	a := New(srv.Client(), srv.URL, "test-key", 0.7)
	sig := a.Analyze(context.Background(), []byte("fake-image"))

	if sig.Source != SourceVisionAPI {
		t.Fatalf("source = %s", sig.Source)
	}
	if sig.Issue != civic.IssuePothole {
		t.Fatalf("issue = %s, want pothole (asphalt label at 0.92)", sig.Issue)
	}
	if sig.Confidence != 0.92 {
		t.Fatalf("confidence = %v", sig.Confidence)
	}
	if !sig.Safe {
		t.Fatal("expected safe image")
	}
	// Dedup: asphalt and road both map to pothole; car maps to traffic.
	if len(sig.Candidates) != 2 {
		t.Fatalf("candidates = %+v, want pothole and traffic", sig.Candidates)
	}
	if sig.Candidates[1].Issue != civic.IssueTraffic {
		t.Fatalf("second candidate = %s", sig.Candidates[1].Issue)
	}
}

func TestAnalyzeRejectsLowScores(t *testing.T) {
	resp := `{"responses":[{"labelAnnotations":[{"description":"pothole","score":0.5}]}]}`
	srv := fakeVisionServer(t, resp, http.StatusOK)
	defer srv.Close()

	sig := New(srv.Client(), srv.URL, "test-key", 0.7).Analyze(context.Background(), []byte("img"))
	if sig.Issue != "" || sig.Confidence != 0 {
		t.Fatalf("expected no classification below threshold, got %+v", sig)
	}
}

func TestAnalyzeServiceFailureFallsBack(t *testing.T) {
	srv := fakeVisionServer(t, `boom`, http.StatusInternalServerError)
	defer srv.Close()

	payload := bytes.Repeat([]byte("x"), 200<<10)
	sig := New(srv.Client(), srv.URL, "test-key", 0.7).Analyze(context.Background(), payload)
	if sig.Source != SourceBasic {
		t.Fatalf("source = %s, want basic fallback", sig.Source)
	}
	if sig.Issue != "" || sig.Confidence != 0 {
		t.Fatalf("fallback must not classify, got %+v", sig)
	}
	if sig.Quality != "good" {
		t.Fatalf("quality = %q, want good for large payload", sig.Quality)
	}
}

func TestAnalyzeWithoutKeySkipsService(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	sig := New(srv.Client(), srv.URL, "", 0.7).Analyze(context.Background(), []byte("small"))
	if called {
		t.Fatal("service must not be called without a key")
	}
	if sig.Source != SourceBasic || sig.Quality != "poor" {
		t.Fatalf("unexpected fallback signal %+v", sig)
	}
}

func TestBasicSignalDecodesDimensions(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 12, 8))); err != nil {
		t.Fatal(err)
	}
	sig := basicSignal(buf.Bytes())
	if sig.Width != 12 || sig.Height != 8 {
		t.Fatalf("dimensions = %dx%d, want 12x8", sig.Width, sig.Height)
	}
}

func TestUnsafeImageFlagged(t *testing.T) {
	resp := `{"responses":[{"safeSearchAnnotation":{"adult":"LIKELY"}}]}`
	srv := fakeVisionServer(t, resp, http.StatusOK)
	defer srv.Close()

	sig := New(srv.Client(), srv.URL, "test-key", 0.7).Analyze(context.Background(), []byte("img"))
	if sig.Safe {
		t.Fatal("expected unsafe flag")
	}
}
