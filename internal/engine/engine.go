// Package engine wires the registry, matcher and resolver into a session:
// UI-change batches are debounced and ingested on one path, recognized
// commands are resolved on a bounded pool of workers on another, and a
// newer snapshot cancels resolutions still working against an older one.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mj1618/voxnav/internal/fingerprint"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/resolver"
	"github.com/mj1618/voxnav/internal/spatial"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned when a command or event cannot be queued
	// without blocking.
	ErrQueueFull = errors.New("engine queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	DebounceWindow time.Duration
	MaxBuffer      int
	QueueSize      int
	Workers        int
	// LearnGate is the minimum recognizer confidence for a confirmed fuzzy
	// match to be learned.
	LearnGate     float64
	ScreenTopK    int
	ConeAngle     float64
	NameThreshold float64
	Logger        *zap.Logger
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.LearnGate <= 0 {
		o.LearnGate = 0.6
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Engine is one automation session. The caller owns the registry and
// matcher; the engine never closes them.
type Engine struct {
	reg     *registry.Registry
	match   *matcher.Matcher
	res     *resolver.Resolver
	exec    platform.ActionExecutor
	screens fingerprint.ScreenFingerprinter
	opts    Options
	log     *zap.Logger

	events chan model.Batch
	jobs   chan *job

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	ingestMu sync.Mutex // serializes ingest passes

	mu       sync.RWMutex
	view     resolver.View
	screen   map[string]string // container -> current screen fingerprint
	lastScan map[string][]model.Element
	inflight map[*job]struct{}
	closed   bool
}

// New starts an Engine. exec may be nil, in which case commands are
// resolved but not executed.
func New(reg *registry.Registry, m *matcher.Matcher, exec platform.ActionExecutor, opts Options) *Engine {
	opts.defaults()
	e := &Engine{
		reg:      reg,
		match:    m,
		exec:     exec,
		screens:  fingerprint.ScreenFingerprinter{TopK: opts.ScreenTopK},
		opts:     opts,
		log:      opts.Logger.Named("engine"),
		jobs:     make(chan *job, opts.QueueSize),
		screen:   make(map[string]string),
		lastScan: make(map[string][]model.Element),
		inflight: make(map[*job]struct{}),
	}
	dc := debounceConfig{Window: opts.DebounceWindow, MaxBuffer: opts.MaxBuffer}
	dc.defaults()
	e.events = make(chan model.Batch, dc.MaxBuffer)

	nav := spatial.New(reg, opts.ConeAngle)
	e.res = resolver.New(reg, nav, e, resolver.Options{NameThreshold: opts.NameThreshold})

	e.ctx, e.cancel = context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(e.ctx)
	e.group = g
	g.Go(func() error {
		e.debounceLoop(gctx, dc)
		return nil
	})
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			e.worker(gctx)
			return nil
		})
	}
	return e
}

// Close stops the workers and the debouncer. Pending events are dropped
// and queued commands report ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	err := e.group.Wait()
	for {
		select {
		case j := <-e.jobs:
			j.finish(Outcome{Command: j.cmd, Generation: j.gen, Err: ErrClosed})
		default:
			return err
		}
	}
}

// View implements resolver.ViewSource.
func (e *Engine) View() resolver.View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v := e.view
	v.Visible = append([]string(nil), e.view.Visible...)
	return v
}

// Resolver returns the engine's resolver.
func (e *Engine) Resolver() *resolver.Resolver {
	return e.res
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Matcher returns the engine's matcher.
func (e *Engine) Matcher() *matcher.Matcher {
	return e.match
}

// Notify queues a UI-change batch for debounced ingestion. It never blocks.
func (e *Engine) Notify(b model.Batch) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case e.events <- b:
		return nil
	default:
		e.log.Warn("event buffer full, dropping batch", zap.String("container", b.AppID))
		return ErrQueueFull
	}
}

// Run feeds every batch of src through Notify until src is exhausted or
// ctx is canceled.
func (e *Engine) Run(ctx context.Context, src platform.TreeSource) error {
	ch, err := src.Batches(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-ch:
			if !ok {
				return nil
			}
			if err := e.Notify(b); err != nil && !errors.Is(err, ErrQueueFull) {
				return err
			}
		}
	}
}

func (e *Engine) debounceLoop(ctx context.Context, cfg debounceConfig) {
	d := newDebouncer(cfg, func(bs []model.Batch) {
		for _, b := range bs {
			if _, err := e.Ingest(ctx, b); err != nil && !errors.Is(err, registry.ErrRegistryUnavailable) {
				e.log.Error("ingest failed", zap.String("container", b.AppID), zap.Error(err))
			}
		}
	})
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-e.events:
			d.add(b)
		case <-d.timerC():
			d.flush()
		}
	}
}
