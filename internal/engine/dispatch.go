package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/resolver"
	"go.uber.org/zap"
)

// Command is one recognized utterance. Confidence is the recognizer's own
// estimate; it only gates learning.
type Command struct {
	Text       string  `yaml:"text"                 json:"text"`
	Locale     string  `yaml:"locale,omitempty"     json:"locale,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// Outcome is the result of one command.
type Outcome struct {
	Command    Command              `yaml:"command"            json:"command"`
	Match      matcher.MatchResult  `yaml:"match"              json:"match"`
	Intent     resolver.Intent      `yaml:"-"                  json:"-"`
	Action     model.ResolvedAction `yaml:"action,omitempty"   json:"action,omitempty"`
	Executed   bool                 `yaml:"executed,omitempty" json:"executed,omitempty"`
	Generation uint64               `yaml:"generation"         json:"generation"`
	Err        error                `yaml:"-"                  json:"-"`
}

type job struct {
	cmd    Command
	gen    uint64
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   func() bool
	out    chan Outcome
	once   sync.Once
}

func (j *job) finish(o Outcome) {
	j.once.Do(func() {
		j.stop()
		j.cancel(nil)
		j.out <- o
		close(j.out)
	})
}

// Submit queues cmd for asynchronous resolution against the current view.
// It never blocks: a full queue returns ErrQueueFull. The returned channel
// delivers exactly one Outcome.
func (e *Engine) Submit(ctx context.Context, cmd Command) (<-chan Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	jctx, cancel := context.WithCancelCause(e.ctx)
	j := &job{
		cmd:    cmd,
		gen:    e.view.Generation,
		ctx:    jctx,
		cancel: cancel,
		out:    make(chan Outcome, 1),
	}
	j.stop = context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })

	select {
	case e.jobs <- j:
		e.inflight[j] = struct{}{}
		return j.out, nil
	default:
		j.stop()
		cancel(ErrQueueFull)
		e.log.Warn("resolution queue full", zap.String("text", cmd.Text))
		return nil, ErrQueueFull
	}
}

// Do submits cmd and waits for its outcome. The returned error is the
// outcome's error.
func (e *Engine) Do(ctx context.Context, cmd Command) (Outcome, error) {
	ch, err := e.Submit(ctx, cmd)
	if err != nil {
		return Outcome{Command: cmd}, err
	}
	select {
	case o := <-ch:
		return o, o.Err
	case <-ctx.Done():
		return Outcome{Command: cmd}, ctx.Err()
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.jobs:
			o := e.process(j)
			e.mu.Lock()
			delete(e.inflight, j)
			e.mu.Unlock()
			j.finish(o)
		}
	}
}

// staleErr reports why a job's context ended. Jobs superseded by a newer
// snapshot report StaleIdentity.
func staleErr(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, resolver.ErrStaleIdentity) {
		return &resolver.ResolveError{Kind: resolver.ErrStaleIdentity, Detail: "superseded by a newer snapshot"}
	}
	return cause
}

func (e *Engine) process(j *job) Outcome {
	o := Outcome{Command: j.cmd, Generation: j.gen}
	if err := staleErr(j.ctx); err != nil {
		o.Err = err
		return o
	}

	o.Match = e.match.Match(j.ctx, j.cmd.Text, j.cmd.Locale)
	intent, err := resolver.ParseCommand(o.Match.Text)
	if err != nil {
		o.Err = err
		return o
	}
	o.Intent = intent

	action, err := e.res.ResolveAction(j.ctx, intent)
	if err != nil {
		o.Err = err
		e.log.Debug("resolution failed", zap.String("intent", intent.String()), zap.Error(err))
		return o
	}
	o.Action = action
	if e.exec == nil {
		return o
	}

	if err := e.exec.Execute(j.ctx, action); err != nil {
		if se := staleErr(j.ctx); se != nil {
			o.Err = se
			return o
		}
		o.Err = fmt.Errorf("execute %s on %s: %w", action.Action, action.TargetIdentity, err)
		return o
	}
	o.Executed = true
	if err := e.Report(context.WithoutCancel(j.ctx), j.cmd, o.Match, action, nil); err != nil {
		e.log.Warn("feedback not recorded", zap.Error(err))
	}
	return o
}

// Report feeds an executor's result back into the registry and matcher. A
// successful action counts as a use of its target; when the command was
// matched through a learned or fuzzy tier and the recognizer was confident
// enough, the mapping is learned. Failed actions are only logged.
func (e *Engine) Report(ctx context.Context, cmd Command, m matcher.MatchResult, action model.ResolvedAction, execErr error) error {
	if execErr != nil {
		e.log.Info("action failed", zap.Stringer("action", action.Action),
			zap.String("target", action.TargetIdentity), zap.Error(execErr))
		return nil
	}
	var errs []error
	if err := e.reg.Touch(ctx, action.TargetIdentity); err != nil {
		errs = append(errs, err)
	}
	learnable := m.Source == matcher.SourceFuzzy || m.Source == matcher.SourceLearned
	if learnable && cmd.Confidence >= e.opts.LearnGate {
		if err := e.match.Learn(ctx, cmd.Text, m.Text, m.Confidence); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
