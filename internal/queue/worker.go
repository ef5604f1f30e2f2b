package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler processes one claimed item. Handlers must be idempotent: an item can be
// delivered again after a crash or a lost lock.
type Handler func(ctx context.Context, item *models.EventQueueItem) error

type WorkerConfig struct {
	ID           string
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	StaleLockAge time.Duration
}

type Worker struct {
	store    *Store
	cfg      WorkerConfig
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *zap.SugaredLogger
}

func NewWorker(store *Store, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.StaleLockAge <= 0 {
		cfg.StaleLockAge = 5 * time.Minute
	}
	return &Worker{
		store:    store,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		log:      logger.Named("queue.worker", "worker_id", cfg.ID),
	}
}

func (w *Worker) Register(eventType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[eventType] = h
}

func (w *Worker) handler(eventType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[eventType]
	return h, ok
}

// RunOnce claims one batch of due items and processes it. It returns how many
// items were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.store.ClaimDue(ctx, w.cfg.ID, w.cfg.BatchSize)
	if err != nil {
		return len(items), err
	}
	if len(items) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i := range items {
		item := &items[i]
		g.Go(func() error {
			w.process(gctx, item)
			return nil
		})
	}
	return len(items), g.Wait()
}

// Run polls until ctx is cancelled, reclaiming stale locks periodically.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infow("Worker started", "poll_interval", w.cfg.PollInterval.String(), "concurrency", w.cfg.Concurrency)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	reclaim := time.NewTicker(w.cfg.StaleLockAge / 2)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("Worker stopped")
			return nil
		case <-reclaim.C:
			if _, err := w.store.ReclaimStale(ctx, w.cfg.StaleLockAge); err != nil {
				w.log.Errorw("Stale lock reclaim failed", "error", err)
			}
		case <-poll.C:
			// Drain everything that is due before waiting for the next tick.
			for {
				n, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Errorw("Queue poll failed", "error", err)
					break
				}
				if n < w.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, item *models.EventQueueItem) {
	log := w.log.With("event_id", item.ID, "type", item.Type, "attempt", item.Attempts)

	err := w.dispatch(ctx, item)
	if err == nil {
		if cerr := w.store.Complete(ctx, item.ID, w.cfg.ID); cerr != nil {
			if errors.HasCode(cerr, errors.ErrCodeLockLost) {
				log.Warnw("Lock lost before completion", "error", cerr)
				return
			}
			log.Errorw("Failed to complete event", "error", cerr)
		}
		return
	}

	log.Warnw("Event handler failed", "error", err)
	if ferr := w.store.Fail(ctx, item.ID, w.cfg.ID, err); ferr != nil {
		log.Errorw("Failed to record event failure", "error", ferr)
	}
}

func (w *Worker) dispatch(ctx context.Context, item *models.EventQueueItem) (err error) {
	h, ok := w.handler(item.Type)
	if !ok {
		return fmt.Errorf("no handler registered for %q", item.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, item)
}
