package platform

import (
	"context"
	"sync"

	"github.com/mj1618/voxnav/internal/model"
	"go.uber.org/zap"
)

// LogExecutor performs no gestures; it logs every action and keeps a
// history. It stands in for a host executor when replaying recordings.
type LogExecutor struct {
	log *zap.Logger

	mu      sync.Mutex
	history []model.ResolvedAction
}

// NewLogExecutor returns a LogExecutor writing to log.
func NewLogExecutor(log *zap.Logger) *LogExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogExecutor{log: log.Named("executor")}
}

// Execute implements ActionExecutor.
func (e *LogExecutor) Execute(ctx context.Context, action model.ResolvedAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.history = append(e.history, action)
	e.mu.Unlock()
	e.log.Info("execute", zap.Stringer("action", action.Action), zap.String("target", action.TargetIdentity))
	return nil
}

// History returns the actions executed so far.
func (e *LogExecutor) History() []model.ResolvedAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.ResolvedAction(nil), e.history...)
}
