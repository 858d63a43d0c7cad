// Package events provides simple in-process pub/sub for report activity.
package events

import "sync"

// ReportCreated is published after a report row is durably inserted.
type ReportCreated struct {
	ReportID   int64
	IssueType  string
	Department string
	Location   string
	Priority   string
	Urgent     bool
}

// StatusChanged is published after an admin status transition.
type StatusChanged struct {
	ReportID int64
	From     string
	To       string
}

// Bus fans out events to subscribers. Slow subscribers drop events rather
// than block the pipeline.
type Bus struct {
	mu   sync.RWMutex
	subs []chan any
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe() <-chan any {
	ch := make(chan any, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ev any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
