package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/spf13/cobra"
)

var observeCmd = &cobra.Command{
	Use:   "observe FILE...",
	Short: "Replay UI snapshots and stream identity diffs as JSONL",
	Long: `Feed snapshots from a tree provider through the registry and emit what
changed between consecutive snapshots of each container: elements added,
removed, or changed under a stable identity. Screen changes are reported too.

Each line is a JSON object representing one event. Output is always JSONL
regardless of the --format flag.

Use Ctrl+C or --duration to stop observing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runObserve,
}

func init() {
	rootCmd.AddCommand(observeCmd)
	observeCmd.Flags().String("provider", "replay", "Tree provider")
	observeCmd.Flags().Int("interval", 0, "Pause between snapshots in milliseconds")
	observeCmd.Flags().Int("duration", 0, "Max seconds to observe (0 = until the provider is exhausted)")
	observeCmd.Flags().Bool("ignore-bounds", false, "Ignore element position changes")
}

// observeEvent is one JSONL line that is not an element change.
type observeEvent struct {
	Type      string `json:"type"`
	TS        int64  `json:"ts"`
	Container string `json:"container,omitempty"`
	Screen    string `json:"screen,omitempty"`
	Title     string `json:"title,omitempty"`
	Count     int    `json:"count,omitempty"`
	Events    int    `json:"events,omitempty"`
	Elapsed   string `json:"elapsed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runObserve(cmd *cobra.Command, args []string) error {
	providerName, _ := cmd.Flags().GetString("provider")
	intervalMs, _ := cmd.Flags().GetInt("interval")
	durationSec, _ := cmd.Flags().GetInt("duration")
	ignoreBounds, _ := cmd.Flags().GetBool("ignore-bounds")

	provider, err := platform.NewProvider(providerName, platform.ProviderOptions{
		Paths:    args,
		Interval: time.Duration(intervalMs) * time.Millisecond,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if durationSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(durationSec)*time.Second)
		defer cancel()
	}

	s, err := openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	batches, err := provider.Source.Batches(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(output.Writer)
	enc.SetEscapeHTML(false)

	start := time.Now()
	screens := make(map[string]string)
	eventCount := 0
	for b := range batches {
		res, err := s.eng.Ingest(ctx, b)
		if err != nil && !errors.Is(err, registry.ErrRegistryUnavailable) {
			enc.Encode(observeEvent{Type: "error", TS: nowUnix(), Container: b.AppID, Error: err.Error()})
			continue
		}

		prev, seen := screens[res.Container]
		screens[res.Container] = res.Screen.Fingerprint
		if !seen {
			enc.Encode(observeEvent{
				Type:      "snapshot",
				TS:        nowUnix(),
				Container: res.Container,
				Screen:    res.Screen.Fingerprint,
				Title:     res.Screen.TitleHint,
				Count:     res.Elements,
			})
			continue
		}
		if prev != res.Screen.Fingerprint {
			enc.Encode(observeEvent{
				Type:      "screen",
				TS:        nowUnix(),
				Container: res.Container,
				Screen:    res.Screen.Fingerprint,
				Title:     res.Screen.TitleHint,
			})
		}
		for _, change := range changes(res.Diff, ignoreBounds) {
			enc.Encode(change)
			eventCount++
		}
	}

	return enc.Encode(observeEvent{
		Type:    "done",
		TS:      nowUnix(),
		Events:  eventCount,
		Elapsed: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
	})
}

// changes flattens a diff into stream order: added, removed, changed.
func changes(d model.ScanDiff, ignoreBounds bool) []model.Change {
	out := make([]model.Change, 0, len(d.Added)+len(d.Removed)+len(d.Changed))
	out = append(out, d.Added...)
	out = append(out, d.Removed...)
	for _, c := range d.Changed {
		if ignoreBounds {
			fields := make(map[string][2]string, len(c.Fields))
			for k, v := range c.Fields {
				if k != "b" {
					fields[k] = v
				}
			}
			if len(fields) == 0 {
				continue
			}
			c.Fields = fields
		}
		out = append(out, c)
	}
	return out
}
