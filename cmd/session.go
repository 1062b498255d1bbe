package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/server"
	"github.com/mj1618/voxnav/internal/store"
	"go.uber.org/zap"
)

// session is the registry, matcher and engine opened on the configured
// database for one command invocation.
type session struct {
	store *store.SQLiteStore
	reg   *registry.Registry
	match *matcher.Matcher
	eng   *engine.Engine
	exec  platform.ActionExecutor
}

// openSession opens the database and loads persisted state. exec may be
// nil; commands are then resolved but not executed.
func openSession(ctx context.Context, exec platform.ActionExecutor) (*session, error) {
	st, err := store.NewSQLiteStore(cfg.DB)
	if err != nil {
		return nil, err
	}

	reg := registry.New(st, registry.Options{
		Quantum:       cfg.Registry.Quantum,
		MaxElements:   cfg.Registry.MaxElements,
		MaxAge:        cfg.Registry.MaxAge,
		StoreTimeout:  cfg.Registry.StoreTimeout,
		RetryInterval: cfg.Registry.RetryInterval,
		MaxPending:    cfg.Registry.MaxPending,
		Logger:        logger,
	})
	s := &session{store: st, reg: reg, exec: exec}
	if err := reg.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	catalog := matcher.DefaultCatalog()
	if cfg.Matcher.Catalog != "" {
		if catalog, err = matcher.LoadCatalog(cfg.Matcher.Catalog); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.match = matcher.New(reg, matcher.Options{
		FuzzyThreshold: cfg.Matcher.FuzzyThreshold,
		MaxCorrections: cfg.Matcher.MaxCorrections,
		MaxVocabulary:  cfg.Matcher.MaxVocabulary,
		Catalog:        catalog,
		Logger:         logger,
	})
	if err := s.match.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load learned state: %w", err)
	}

	s.eng = engine.New(reg, s.match, exec, engine.Options{
		DebounceWindow: cfg.Engine.DebounceWindow,
		MaxBuffer:      cfg.Engine.MaxBuffer,
		QueueSize:      cfg.Engine.QueueSize,
		Workers:        cfg.Engine.Workers,
		LearnGate:      cfg.Engine.LearnGate,
		ScreenTopK:     cfg.Registry.ScreenTopK,
		ConeAngle:      cfg.Resolver.ConeAngle,
		NameThreshold:  cfg.Resolver.NameThreshold,
		Logger:         logger,
	})
	return s, nil
}

// Close stops the engine, flushes queued registry writes and closes the
// database.
func (s *session) Close() error {
	var errs []error
	if s.eng != nil {
		errs = append(errs, s.eng.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.reg.Close(ctx); err != nil {
		logger.Warn("registry writes not flushed", zap.Error(err), zap.Int("pending", s.reg.Pending()))
		errs = append(errs, err)
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// ingestFiles ingests every batch in the given replay files in order.
func (s *session) ingestFiles(ctx context.Context, paths []string) ([]engine.IngestResult, error) {
	var results []engine.IngestResult
	for _, p := range paths {
		batches, err := platform.ReadBatches(p)
		if err != nil {
			return results, err
		}
		for _, b := range batches {
			res, err := s.eng.Ingest(ctx, b)
			if err != nil && !errors.Is(err, registry.ErrRegistryUnavailable) {
				return results, fmt.Errorf("%s: batch %s: %w", p, b.ID, err)
			}
			if err != nil {
				logger.Warn("ingest not persisted", zap.String("batch", b.ID), zap.Error(err))
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// report prints err as a structured error result.
func report(err error) error {
	if perr := output.Print(server.ErrorResult(err)); perr != nil {
		return perr
	}
	return errReported
}

func nowUnix() int64 {
	return time.Now().Unix()
}
