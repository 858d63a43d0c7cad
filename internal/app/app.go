// Package app wires the service components together.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"civicbot/config"
	"civicbot/internal/bot"
	"civicbot/internal/classify"
	"civicbot/internal/events"
	"civicbot/internal/geocode"
	"civicbot/internal/httpapi"
	"civicbot/internal/notify"
	"civicbot/internal/queue"
	"civicbot/internal/reply"
	"civicbot/internal/reports"
	"civicbot/internal/store"
	"civicbot/internal/vision"
	"civicbot/internal/watch"
)

// Resolved reports older than this are archived by the retention sweep.
const retentionAge = 30 * 24 * time.Hour

// App owns the running service: store, bot engine, inbox ingestion, and
// the HTTP surfaces.
type App struct {
	cfg      config.Config
	store    *store.Store
	bus      *events.Bus
	reports  *reports.Service
	engine   *bot.Engine
	queue    *queue.Queue
	watcher  *watch.Watcher
	notifier *notify.Notifier
	mux      *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	svc := reports.NewService(st, bus)

	analyzer := vision.New(nil, cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.Classifier.VisionThreshold)
	resolver := geocode.New(nil, geocode.Config{
		BaseURL:     cfg.GeocoderBaseURL,
		UserAgent:   cfg.GeocoderUserAgent,
		FallbackURL: cfg.FallbackGeocodeURL,
		FallbackKey: cfg.FallbackGeocodeKey,
	})

	seed := cfg.ReplySeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	engine := bot.NewEngine(
		classify.New(cfg.Classifier),
		analyzer,
		resolver,
		svc,
		reply.New(seed, cfg.BotName, cfg.Classifier.LowConfidenceBelow),
	)

	q := queue.New(cfg.QueueSize, cfg.WorkerCount, time.Duration(cfg.JobTimeoutSec)*time.Second)

	a := &App{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		reports:  svc,
		engine:   engine,
		queue:    q,
		watcher:  watch.New(cfg, engine, q),
		notifier: notify.New(cfg.NotifyWebhookURL, cfg.PublicBaseURL, nil),
		mux:      http.NewServeMux(),
	}
	httpapi.NewRouter(cfg, engine, svc, st).Register(a.mux)
	return a, nil
}

// Run starts workers, the inbox watcher, the urgent-report notifier, the
// retention sweep, and the HTTP server. It blocks until ctx is done or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	go a.notifier.Watch(ctx, a.bus)
	go a.retentionLoop(ctx)

	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if a.cfg.EnableWatcher {
		if s, err := a.watcher.Backfill(ctx); err != nil {
			log.Printf("inbox backfill: %v", err)
		} else if s.Candidates > 0 {
			log.Printf("inbox backfill: %d pending, %d enqueued, %d dropped", s.Candidates, s.Enqueued, s.Dropped)
		}
	}

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.reports.ArchiveResolvedOlderThan(ctx, retentionAge)
			if err != nil {
				log.Printf("retention sweep: %v", err)
			} else if n > 0 {
				log.Printf("retention sweep: archived %d resolved reports", n)
			}
		}
	}
}

// ReplayInbox processes every pending message file in dir and blocks
// until the queue drains. Used by the replay CLI command.
func (a *App) ReplayInbox(ctx context.Context, dir string) (watch.Summary, error) {
	cfg := a.cfg
	cfg.InboxDir = dir
	cfg.EnableWatcher = true
	w := watch.New(cfg, a.engine, a.queue)

	a.queue.Start(ctx)
	s, err := w.Backfill(ctx)
	if err != nil {
		return s, err
	}
	a.queue.Stop(ctx)
	return s, nil
}

// Close releases resources after Run returns.
func (a *App) Close(ctx context.Context) error {
	a.queue.Stop(ctx)
	return a.store.Close()
}

func (a *App) Store() *store.Store { return a.store }

func (a *App) Reports() *reports.Service { return a.reports }

func (a *App) Engine() *bot.Engine { return a.engine }

func (a *App) Mux() *http.ServeMux { return a.mux }
