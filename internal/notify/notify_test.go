package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"civicbot/internal/events"
)

func TestSendPostsPayload(t *testing.T) {
	var got struct {
		Text string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, "", srv.Client())
	if err := n.Send(context.Background(), "hello ops"); err != nil {
		t.Fatal(err)
	}
	if got.Text != "hello ops" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestSendWithoutURLIsNoop(t *testing.T) {
	n := New("", "", nil)
	if err := n.Send(context.Background(), "dropped"); err != nil {
		t.Fatal(err)
	}
}

func TestSendReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(srv.URL, "", srv.Client())
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestWatchAlertsOnHighPriorityOnly(t *testing.T) {
	var calls int32
	var last atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		last.Store(body.Text)
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	bus := events.NewBus()
	n := New(srv.URL, "https://civic.example/", srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Watch(ctx, bus)

	// subscription happens inside Watch; give it a beat
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.ReportCreated{ReportID: 1, IssueType: "pothole", Priority: "medium"})
	bus.Publish(events.ReportCreated{ReportID: 2, IssueType: "water_issue", Location: "City Hall", Department: "water_department", Priority: "high"})
	bus.Publish(events.StatusChanged{ReportID: 1, From: "received", To: "resolved"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&calls) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("webhook calls = %d, want 1", calls)
	}
	text, _ := last.Load().(string)
	if !strings.Contains(text, "#2") || !strings.Contains(text, "Water Issue") {
		t.Fatalf("alert text = %q", text)
	}
	if !strings.Contains(text, "https://civic.example/api/reports/2") {
		t.Fatalf("missing admin link: %q", text)
	}
}
