// Package enrich scrapes job-posting pages to fill in application
// records, pacing requests so the target site never sees a burst.
package enrich

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/metrics"
	"github.com/beastmp/job-tracking/internal/model"
	"github.com/beastmp/job-tracking/internal/store"
)

// queueItem is one enrichment request: an application queued by a sync,
// or a bare URL matched to a record at processing time.
type queueItem struct {
	applicationID string
	url           string
	attempts      int
}

// Status is the worker state exposed to pollers. IsProcessing is true
// only while a request is in flight, so callers can tell "paused for
// rate limiting" apart from "fetching".
type Status struct {
	IsProcessing bool `json:"is_processing"`
	QueueSize    int  `json:"queue_size"`
}

// Worker is the single consumer of the enrichment queue. However many
// syncs feed it, one goroutine issues the requests: per-site rate
// limits only hold if nothing fans out. The queue lives in memory and
// is rebuilt from pending-enrichment records at startup.
type Worker struct {
	store   store.Store
	cfg     model.EnrichmentConfig
	fetcher *fetcher
	limiter *slidingWindow
	breaker *breaker
	log     zerolog.Logger

	mu       sync.Mutex
	queue    []queueItem
	inFlight bool
	running  bool

	wakeCh chan struct{}
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates an enrichment worker with the given pacing
// parameters. Call Start to begin consuming.
func NewWorker(st store.Store, cfg model.EnrichmentConfig, log zerolog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:   st,
		cfg:     cfg,
		fetcher: newFetcher(cfg),
		limiter: newSlidingWindow(cfg.RequestsPerMinute, cfg.StandardDelay()),
		breaker: newBreaker(cfg.MaxConsecutiveFailures),
		log:     log,
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the consumer goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.consume()
}

// Stop halts the consumer, aborting any request in flight, and waits
// for it to exit or for ctx to expire. Queued items are discarded; they
// are rebuilt from pending-enrichment records on the next start.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueRecord queues one application's posting page for enrichment.
func (w *Worker) EnqueueRecord(applicationID, postingURL string) bool {
	return w.enqueue(queueItem{applicationID: applicationID, url: postingURL})
}

// EnqueueURL queues a bare posting URL; the worker matches it to an
// application when it reaches the front of the queue. It reports false
// for URLs that are not absolute http(s).
func (w *Worker) EnqueueURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return w.enqueue(queueItem{url: parsed.String()})
}

// Status reports whether a request is in flight and how many items wait.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{IsProcessing: w.inFlight, QueueSize: len(w.queue)}
}

// enqueue appends an item unless its URL is already waiting.
func (w *Worker) enqueue(item queueItem) bool {
	if item.url == "" {
		return false
	}

	w.mu.Lock()
	for _, queued := range w.queue {
		if queued.url == item.url {
			w.mu.Unlock()
			return true
		}
	}
	w.queue = append(w.queue, item)
	w.mu.Unlock()

	w.wake()
	return true
}

func (w *Worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *Worker) consume() {
	defer w.wg.Done()

	for {
		item, ok := w.pop()
		if !ok {
			select {
			case <-w.stopCh:
				return
			case <-w.wakeCh:
				continue
			}
		}

		if !w.process(item) {
			return
		}
	}
}

func (w *Worker) pop() (queueItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return queueItem{}, false
	}
	item := w.queue[0]
	w.queue = w.queue[1:]
	return item, true
}

func (w *Worker) requeue(item queueItem) {
	w.mu.Lock()
	w.queue = append(w.queue, item)
	w.mu.Unlock()
}

// process handles one queue item end to end. It reports false when the
// worker is stopping.
func (w *Worker) process(item queueItem) bool {
	if !w.waitTurn() {
		return false
	}

	app, err := w.resolve(item)
	if err != nil {
		w.log.Error().Err(err).Str("url", item.url).
			Msg("enrichment target lookup failed")
		return true
	}
	if app == nil {
		w.log.Info().Str("url", item.url).
			Msg("no application matches enrichment url, dropping")
		return true
	}

	w.limiter.record(time.Now())
	w.setInFlight(true)
	enrichment, err := w.fetcher.fetch(w.ctx, item.url)
	w.setInFlight(false)

	if err != nil {
		if w.ctx.Err() != nil {
			return false
		}
		return w.handleFailure(item, err)
	}

	w.breaker.success()
	metrics.EnrichmentRequests.WithLabelValues("success").Inc()

	if err := w.store.UpdateEnrichment(w.ctx, app.ID, enrichment); err != nil {
		w.log.Error().Err(err).Str("application_id", app.ID).
			Msg("writing enrichment failed")
		return true
	}

	w.log.Info().
		Str("application_id", app.ID).
		Str("company", app.Company).
		Str("job_title", app.JobTitle).
		Msg("application enriched")
	return true
}

// waitTurn blocks until the limiter clears the next request. It reports
// false when the worker is stopping.
func (w *Worker) waitTurn() bool {
	for {
		d := w.limiter.delay(time.Now())
		if d <= 0 {
			return true
		}
		if !w.sleep(d) {
			return false
		}
	}
}

// sleep waits d unless the worker stops first.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopCh:
		return false
	}
}

// resolve finds the application an item enriches. Items queued by a
// sync carry the application id; bare URLs are matched against stored
// websites. A nil application means nothing to enrich.
func (w *Worker) resolve(item queueItem) (*model.Application, error) {
	if item.applicationID != "" {
		app, err := w.store.GetApplicationByID(w.ctx, item.applicationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Deleted since it was queued.
				return nil, nil
			}
			return nil, err
		}
		return app, nil
	}

	apps, err := w.store.GetApplications(w.ctx, store.ApplicationFilter{})
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].Website == item.url {
			return &apps[i], nil
		}
	}
	return nil, nil
}

// handleFailure requeues or drops the item and runs the breaker. It
// reports false when the worker is stopping.
func (w *Worker) handleFailure(item queueItem, err error) bool {
	metrics.EnrichmentRequests.WithLabelValues("failure").Inc()

	item.attempts++
	if w.cfg.MaxConsecutiveFailures > 0 &&
		item.attempts >= w.cfg.MaxConsecutiveFailures {
		w.log.Warn().Err(err).
			Str("url", item.url).
			Int("attempts", item.attempts).
			Msg("enrichment dropped after repeated failures")
	} else {
		w.log.Warn().Err(err).
			Str("url", item.url).
			Int("attempts", item.attempts).
			Msg("enrichment failed, requeued")
		w.requeue(item)
	}

	if w.breaker.failure() {
		w.log.Warn().
			Dur("backoff", w.cfg.BackoffDelay()).
			Msg("enrichment breaker tripped, backing off")
		if !w.sleep(w.cfg.BackoffDelay()) {
			return false
		}
		w.breaker.reset()
	}

	return true
}

func (w *Worker) setInFlight(inFlight bool) {
	w.mu.Lock()
	w.inFlight = inFlight
	w.mu.Unlock()
}
