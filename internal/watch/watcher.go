// Package watch feeds the bot engine from an inbox directory of
// JSON-encoded messages. It is the offline ingestion channel: ops drop
// exported conversations (or replay captures) into the inbox and each
// file is processed exactly like a live webhook call.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"civicbot/config"
	"civicbot/internal/bot"
	"civicbot/internal/queue"
)

// inboxMessage is the on-disk shape of one inbound message.
type inboxMessage struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	MediaURL string `json:"media_url,omitempty"`
}

// doneSuffix is appended to a file after successful processing; the
// reply text is written next to it.
const (
	claimSuffix = ".processing"
	doneSuffix  = ".done"
	replySuffix = ".reply"
)

// Summary reports a backfill pass over pre-existing inbox files.
type Summary struct {
	Candidates int `json:"candidates"`
	Enqueued   int `json:"enqueued"`
	Dropped    int `json:"dropped"`
}

// Watcher monitors the inbox directory and enqueues processing jobs.
type Watcher struct {
	cfg    config.Config
	engine *bot.Engine
	queue  *queue.Queue
}

func New(cfg config.Config, engine *bot.Engine, q *queue.Queue) *Watcher {
	return &Watcher{cfg: cfg, engine: engine, queue: q}
}

// Start begins watching the inbox. It creates the directory if missing
// and returns immediately; events run on a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("inbox watcher disabled")
		return nil
	}
	if err := os.MkdirAll(w.cfg.InboxDir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				// Write is included because a Create event can race the
				// producer still writing the file.
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && isMessage(evt.Name) {
					w.enqueue(evt.Name, "watcher")
				}
			case err := <-watcher.Errors:
				log.Printf("inbox watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.cfg.InboxDir)
}

// Backfill enqueues inbox files that were dropped while the service was
// down, newest first.
func (w *Watcher) Backfill(ctx context.Context) (Summary, error) {
	// reclaim files orphaned by a crash mid-processing
	orphans, _ := filepath.Glob(filepath.Join(w.cfg.InboxDir, "*.json"+claimSuffix))
	for _, o := range orphans {
		restored := strings.TrimSuffix(o, claimSuffix)
		if err := os.Rename(o, restored); err == nil {
			log.Printf("inbox: reclaimed %s", filepath.Base(restored))
		}
	}

	entries, err := filepath.Glob(filepath.Join(w.cfg.InboxDir, "*.json"))
	if err != nil {
		return Summary{}, err
	}
	pending := make([]string, 0, len(entries))
	for _, e := range entries {
		if isMessage(e) {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return modTime(pending[i]).After(modTime(pending[j]))
	})

	s := Summary{Candidates: len(pending)}
	for _, path := range pending {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		if w.enqueue(path, "backfill") {
			s.Enqueued++
		} else {
			s.Dropped++
		}
	}
	return s, nil
}

func (w *Watcher) enqueue(path, source string) bool {
	return w.queue.Enqueue(queue.Job{
		ID:     filepath.Base(path),
		Source: source,
		Work: func(ctx context.Context) error {
			return w.process(ctx, path)
		},
	})
}

// process handles one inbox file to completion: claim, decode, run the
// engine, write the reply, and mark the file done so a restart will not
// replay it. The claim is an atomic rename, so a file picked up twice
// (watch event plus backfill, or Create plus Write) runs exactly once.
func (w *Watcher) process(ctx context.Context, path string) error {
	claimed := path + claimSuffix
	if err := os.Rename(path, claimed); err != nil {
		if os.IsNotExist(err) {
			// another worker claimed it first
			return nil
		}
		return fmt.Errorf("claim %s: %w", filepath.Base(path), err)
	}

	raw, err := os.ReadFile(claimed)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var im inboxMessage
	if err := json.Unmarshal(raw, &im); err != nil {
		// put malformed files back for inspection
		_ = os.Rename(claimed, path)
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	mediaCount := 0
	if im.MediaURL != "" {
		mediaCount = 1
	}
	text := w.engine.Handle(ctx, bot.Message{
		SenderID:   im.From,
		Body:       im.Body,
		MediaCount: mediaCount,
		MediaURL:   im.MediaURL,
	})

	if err := os.WriteFile(path+replySuffix, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write reply for %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(claimed, path+doneSuffix); err != nil {
		return fmt.Errorf("mark %s done: %w", filepath.Base(path), err)
	}
	return nil
}

func isMessage(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
