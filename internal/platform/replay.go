package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// ReplaySource replays batches recorded in YAML or JSON files. A YAML file
// may hold several batches as separate documents; a JSON file holds one
// batch or an array of batches.
type ReplaySource struct {
	Paths []string
	// Interval is the pause between batches (0 = none).
	Interval time.Duration
}

// Batches implements TreeSource.
func (r *ReplaySource) Batches(ctx context.Context) (<-chan model.Batch, error) {
	var all []model.Batch
	for _, p := range r.Paths {
		bs, err := ReadBatches(p)
		if err != nil {
			return nil, err
		}
		all = append(all, bs...)
	}

	ch := make(chan model.Batch)
	go func() {
		defer close(ch)
		for i, b := range all {
			if i > 0 && r.Interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.Interval):
				}
			}
			if b.ObservedAt.IsZero() {
				b.ObservedAt = time.Now().UTC()
			}
			select {
			case <-ctx.Done():
				return
			case ch <- b:
			}
		}
	}()
	return ch, nil
}

// ReadBatches reads every batch in a replay file. Batches without an ID get
// a fresh ULID.
func ReadBatches(path string) ([]model.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}
	var batches []model.Batch
	if strings.EqualFold(filepath.Ext(path), ".json") {
		batches, err = decodeJSONBatches(data)
	} else {
		batches, err = decodeYAMLBatches(data)
	}
	if err == nil {
		err = finishBatches(batches)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batches, nil
}

// DecodeBatch parses a single batch sent inline as JSON or YAML.
func DecodeBatch(data []byte) (model.Batch, error) {
	var batches []model.Batch
	var err error
	if t := bytes.TrimSpace(data); len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		batches, err = decodeJSONBatches(t)
	} else {
		batches, err = decodeYAMLBatches(data)
	}
	if err != nil {
		return model.Batch{}, fmt.Errorf("decoding batch: %w", err)
	}
	if len(batches) != 1 {
		return model.Batch{}, fmt.Errorf("expected one batch, got %d", len(batches))
	}
	if err := finishBatches(batches); err != nil {
		return model.Batch{}, err
	}
	return batches[0], nil
}

func finishBatches(batches []model.Batch) error {
	for i := range batches {
		if batches[i].AppID == "" {
			return fmt.Errorf("batch %d has no app", i+1)
		}
		if batches[i].ID == "" {
			batches[i].ID = ulid.Make().String()
		}
	}
	return nil
}

func decodeYAMLBatches(data []byte) ([]model.Batch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []model.Batch
	for {
		var b model.Batch
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
}

func decodeJSONBatches(data []byte) ([]model.Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []model.Batch
		err := json.Unmarshal(data, &out)
		return out, err
	}
	var b model.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return []model.Batch{b}, nil
}
