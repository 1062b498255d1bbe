package engine

import (
	"time"

	"github.com/mj1618/voxnav/internal/model"
)

// debounceConfig controls how UI-change bursts are coalesced.
type debounceConfig struct {
	// Window is the quiet time after the last event before a flush. Default: 150ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many events accumulate. Default: 256.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 150 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 256
	}
}

// debouncer collects batches and emits, per container, only the latest one
// once the window expires or the buffer fills. It is owned by a single
// goroutine.
type debouncer struct {
	cfg     debounceConfig
	latest  map[string]model.Batch
	order   []string // containers in first-arrival order
	events  int
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]model.Batch)
}

func newDebouncer(cfg debounceConfig, flushFn func([]model.Batch)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		latest:  make(map[string]model.Batch),
		flushFn: flushFn,
	}
}

// add buffers b, replacing any earlier batch for the same container.
// Returns true if an immediate flush was triggered (buffer full).
func (d *debouncer) add(b model.Batch) bool {
	if _, ok := d.latest[b.AppID]; !ok {
		d.order = append(d.order, b.AppID)
	}
	d.latest[b.AppID] = b
	d.events++

	if d.events >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	// (Re)start the window timer.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// pending returns the number of buffered events.
func (d *debouncer) pending() int {
	return d.events
}

// flush emits the latest batch of every buffered container, then resets.
func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if d.events == 0 {
		return
	}

	out := make([]model.Batch, 0, len(d.order))
	for _, c := range d.order {
		out = append(out, d.latest[c])
	}
	d.latest = make(map[string]model.Batch)
	d.order = d.order[:0]
	d.events = 0
	d.flushFn(out)
}
