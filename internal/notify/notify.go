// Package notify posts urgent-report alerts to an ops webhook. Delivery
// is fire-and-forget: a failed post is logged and the pipeline moves on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"civicbot/internal/civic"
	"civicbot/internal/events"
	"civicbot/internal/metrics"
)

const postTimeout = 5 * time.Second

// Notifier sends alert messages to a single webhook URL. A Notifier with
// an empty URL is valid and silently discards everything.
type Notifier struct {
	url       string
	adminBase string
	client    *http.Client
}

// New builds a notifier. adminBase, when non-empty, is used to append an
// admin deep link to each alert.
func New(url, adminBase string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: postTimeout}
	}
	return &Notifier{url: url, adminBase: strings.TrimRight(adminBase, "/"), client: client}
}

// Send posts one alert message.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.url == "" {
		return nil
	}
	payload, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook status %d", resp.StatusCode)
	}
	metrics.IncNotificationSent()
	return nil
}

// Watch subscribes to the bus and alerts on every high-priority report.
// It returns when ctx is done.
func (n *Notifier) Watch(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			rc, ok := ev.(events.ReportCreated)
			if !ok || rc.Priority != string(civic.PriorityHigh) {
				continue
			}
			text := fmt.Sprintf("🚨 Urgent report #%d: %s at %s (routed to %s)",
				rc.ReportID, civic.Humanize(rc.IssueType), rc.Location, civic.Humanize(rc.Department))
			if n.adminBase != "" {
				text += fmt.Sprintf("\n%s/api/reports/%d", n.adminBase, rc.ReportID)
			}
			if err := n.Send(ctx, text); err != nil {
				log.Printf("notify report %d: %v", rc.ReportID, err)
			}
		}
	}
}
