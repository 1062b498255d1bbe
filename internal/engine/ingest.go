package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/resolver"
	"go.uber.org/zap"
)

// IngestResult summarizes one ingest pass.
type IngestResult struct {
	Batch      string         `yaml:"batch,omitempty"      json:"batch,omitempty"`
	Container  string         `yaml:"container"            json:"container"`
	Epoch      int            `yaml:"epoch"                json:"epoch"`
	Generation uint64         `yaml:"generation"           json:"generation"`
	Elements   int            `yaml:"elements"             json:"elements"`
	Screen     model.Screen   `yaml:"screen"               json:"screen"`
	NewScreen  bool           `yaml:"new_screen,omitempty" json:"new_screen,omitempty"`
	Superseded int            `yaml:"superseded,omitempty" json:"superseded,omitempty"`
	Diff       model.ScanDiff `yaml:"diff"                 json:"diff"`
}

// Ingest runs one upsert pass for b: it registers the elements, records the
// screen visit, grows the vocabulary from the labels on screen and
// publishes the new view. Resolutions still running against an older view
// are canceled with ErrStaleIdentity. An error wrapping
// ErrRegistryUnavailable is a warning: the pass completed from cache.
func (e *Engine) Ingest(ctx context.Context, b model.Batch) (IngestResult, error) {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	res := IngestResult{Batch: b.ID, Container: b.AppID}
	snaps := b.Snapshots()
	if len(snaps) == 0 {
		return res, fmt.Errorf("batch %s for %s has no elements", b.ID, b.AppID)
	}

	var soft []error
	ids, err := e.reg.UpsertTree(ctx, snaps)
	if err != nil {
		if !errors.Is(err, registry.ErrRegistryUnavailable) {
			return res, err
		}
		soft = append(soft, err)
	}
	res.Epoch = e.reg.CurrentEpoch(b.AppID)

	e.mu.RLock()
	prevFP := e.screen[b.AppID]
	prevScan := e.lastScan[b.AppID]
	prevFocus := e.view.Focused
	e.mu.RUnlock()

	seen := make(map[string]bool, len(ids))
	visible := make([]string, 0, len(ids))
	elements := make([]model.Element, 0, len(ids))
	var focused string
	var labels []string
	for i, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		visible = append(visible, id)
		if snaps[i].Focused {
			focused = id
		}
		if el, ok, _ := e.reg.Get(ctx, id); ok {
			elements = append(elements, el)
		}
		if snaps[i].Text != "" {
			labels = append(labels, snaps[i].Text)
		}
	}
	if focused == "" && seen[prevFocus] {
		focused = prevFocus
	}
	res.Elements = len(visible)

	fp := e.screens.Fingerprint(b.AppID, b.TitleHint, snaps)
	screen, isNew, err := e.reg.RecordScreen(ctx, b.AppID, b.TitleHint, fp, prevFP)
	if err != nil {
		soft = append(soft, err)
	}
	res.Screen, res.NewScreen = screen, isNew

	if err := e.match.Observe(ctx, labels...); err != nil {
		soft = append(soft, err)
	}
	res.Diff = model.DiffScans(prevScan, elements)

	e.mu.Lock()
	gen := e.view.Generation + 1
	e.view = resolver.View{
		ContainerID: b.AppID,
		Epoch:       res.Epoch,
		Visible:     visible,
		Focused:     focused,
		Generation:  gen,
	}
	e.screen[b.AppID] = fp
	e.lastScan[b.AppID] = elements
	for j := range e.inflight {
		if j.gen < gen {
			j.cancel(resolver.ErrStaleIdentity)
			res.Superseded++
		}
	}
	e.mu.Unlock()
	res.Generation = gen

	e.log.Info("ingested",
		zap.String("batch", b.ID),
		zap.String("container", b.AppID),
		zap.Int("epoch", res.Epoch),
		zap.Uint64("generation", gen),
		zap.Int("elements", res.Elements),
		zap.String("screen", fp),
		zap.Bool("new_screen", isNew),
		zap.Int("superseded", res.Superseded))
	return res, errors.Join(soft...)
}
