// Package syncer eventually delivers every pending local mutation to the
// remote authority while tolerating offline operation indefinitely.
// Mutation signals are debounced so a burst of writes (a sale plus its
// stock decrements) collapses into one network round-trip.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kesspos/kesspos/internal/observability"
	"github.com/kesspos/kesspos/internal/session"
)

// ErrSyncFailure indicates a network or server error during flush.
// Non-fatal: pending records stay flagged and the next signal retries.
var ErrSyncFailure = errors.New("syncer: flush failed")

// State is the engine's position in one sync cycle.
type State int

const (
	// StateIdle means no flush is scheduled.
	StateIdle State = iota
	// StateDebouncing means a flush is scheduled and further signals
	// reset the window.
	StateDebouncing
	// StateFlushing means a flush is running; signals are queued.
	StateFlushing
)

// PendingSource supplies pending records and applies reconciliation.
type PendingSource interface {
	Pending(ctx context.Context, scope session.Scope) (map[string][]map[string]any, error)
	Reconcile(ctx context.Context, scope session.Scope, flushed map[string][]map[string]any) error
}

// ScopeSource resolves the active tenant scope.
type ScopeSource interface {
	Scope(ctx context.Context) (session.Scope, error)
}

// Batch is the wire payload sent to the remote authority.
type Batch struct {
	CompanyID string                      `json:"companyId"`
	PosID     string                      `json:"posId"`
	Changes   map[string][]map[string]any `json:"changes"`
}

// Records counts the entities in the batch.
func (b Batch) Records() int {
	n := 0
	for _, docs := range b.Changes {
		n += len(docs)
	}
	return n
}

// Pusher delivers one batch. Any returned error means "retry later".
type Pusher interface {
	Push(ctx context.Context, batch Batch) error
}

// Config collects the engine dependencies.
type Config struct {
	Source   PendingSource
	Scopes   ScopeSource
	Pusher   Pusher
	Clock    Clock
	Debounce time.Duration
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Engine drives the IDLE -> DEBOUNCING -> FLUSHING cycle.
type Engine struct {
	source   PendingSource
	scopes   ScopeSource
	pusher   Pusher
	clock    Clock
	debounce time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	state  State
	timer  Timer
	queued bool
	ctx    context.Context

	flushMu sync.Mutex
}

// New builds an Engine. Start must be called before signals fire flushes.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewClock()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Engine{
		source:   cfg.Source,
		scopes:   cfg.Scopes,
		pusher:   cfg.Pusher,
		clock:    clock,
		debounce: debounce,
		logger:   logger,
		metrics:  cfg.Metrics,
		ctx:      context.Background(),
	}
}

// Start binds the context used by timer-fired flushes. Cancelling it stops
// any scheduled cycle.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
		}
		e.state = StateIdle
		e.queued = false
		e.mu.Unlock()
	}()
}

// Signal notes that a local mutation happened. While debouncing, the
// window restarts; while flushing, another cycle is queued so no write is
// ever silently dropped.
func (e *Engine) Signal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle:
		e.state = StateDebouncing
		e.timer = e.clock.AfterFunc(e.debounce, e.fire)
	case StateDebouncing:
		e.timer.Reset(e.debounce)
	case StateFlushing:
		e.queued = true
	}
}

// State reports the current cycle position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) fire() {
	e.mu.Lock()
	if e.state != StateDebouncing {
		e.mu.Unlock()
		return
	}
	e.state = StateFlushing
	ctx := e.ctx
	e.mu.Unlock()

	if ctx.Err() == nil {
		// Sync failures are expected under offline operation: logged,
		// never surfaced, retried on the next signal.
		if err := e.Flush(ctx); err != nil {
			e.logger.Warn("sync flush failed", slog.Any("error", err))
		}
	}

	e.mu.Lock()
	if e.queued && ctx.Err() == nil {
		e.queued = false
		e.state = StateDebouncing
		e.timer = e.clock.AfterFunc(e.debounce, e.fire)
	} else {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

// Flush runs one push cycle immediately: gather pending records for the
// active scope, push them as one batch, then reconcile local state in one
// transaction. Without an active scope the cycle is a silent no-op.
func (e *Engine) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	scope, err := e.scopes.Scope(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionInvalid) {
			return nil
		}
		return err
	}

	pending, err := e.source.Pending(ctx, scope)
	if err != nil {
		return err
	}
	records := 0
	for _, docs := range pending {
		records += len(docs)
	}
	e.metrics.SetPendingRecords(records)
	if records == 0 {
		return nil
	}

	batch := Batch{CompanyID: scope.CompanyID, PosID: scope.PosID, Changes: pending}
	start := time.Now()
	if err := e.pusher.Push(ctx, batch); err != nil {
		e.metrics.RecordFlush("failure", time.Since(start), 0)
		return fmt.Errorf("%w: %v", ErrSyncFailure, err)
	}

	if err := e.source.Reconcile(ctx, scope, pending); err != nil {
		e.metrics.RecordFlush("reconcile_failure", time.Since(start), records)
		return err
	}

	e.metrics.RecordFlush("success", time.Since(start), records)
	e.metrics.SetPendingRecords(0)
	e.logger.Info("sync flush completed",
		slog.Int("records", records),
		slog.Int("kinds", len(pending)))
	return nil
}
