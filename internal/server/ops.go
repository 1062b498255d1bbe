package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/resolver"
	"github.com/mj1618/voxnav/internal/textnorm"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// IngestResponse is returned by the ingest tool and POST /v1/snapshots.
// Warning is set when the registry could not persist the pass.
type IngestResponse struct {
	engine.IngestResult `yaml:",inline"`
	Warning             string `yaml:"warning,omitempty" json:"warning,omitempty"`
}

// CommandResponse is returned for executed commands.
type CommandResponse struct {
	OK     bool   `yaml:"ok"               json:"ok"`
	Intent string `yaml:"intent,omitempty" json:"intent,omitempty"`
	engine.Outcome `yaml:",inline"`
}

// ResolveResponse is returned by resolve, which stops short of execution.
type ResolveResponse struct {
	Match  matcher.MatchResult  `yaml:"match"  json:"match"`
	Intent string               `yaml:"intent" json:"intent"`
	Action model.ResolvedAction `yaml:"action" json:"action"`
}

// ViewResponse describes the engine's current view.
type ViewResponse struct {
	Container  string   `yaml:"container,omitempty" json:"container,omitempty"`
	Epoch      int      `yaml:"epoch"               json:"epoch"`
	Generation uint64   `yaml:"generation"          json:"generation"`
	Focused    string   `yaml:"focused,omitempty"   json:"focused,omitempty"`
	Visible    []string `yaml:"visible"             json:"visible"`
	Pending    int      `yaml:"pending_writes"      json:"pending_writes"`
}

func (s *Server) ingest(ctx context.Context, data []byte) (IngestResponse, error) {
	b, err := platform.DecodeBatch(data)
	if err != nil {
		return IngestResponse{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(b.Elements) == 0 && len(b.Tree) == 0 {
		return IngestResponse{}, fmt.Errorf("%w: batch %s has no elements", errBadRequest, b.ID)
	}
	res, err := s.eng.Ingest(ctx, b)
	if err != nil {
		if errors.Is(err, registry.ErrRegistryUnavailable) {
			return IngestResponse{IngestResult: res, Warning: err.Error()}, nil
		}
		return IngestResponse{}, err
	}
	return IngestResponse{IngestResult: res}, nil
}

func (s *Server) command(ctx context.Context, cmd engine.Command) (CommandResponse, error) {
	if cmd.Text == "" {
		return CommandResponse{}, fmt.Errorf("%w: text is required", errBadRequest)
	}
	o, err := s.eng.Do(ctx, cmd)
	if err != nil {
		return CommandResponse{}, err
	}
	return CommandResponse{OK: true, Intent: o.Intent.String(), Outcome: o}, nil
}

func (s *Server) resolve(ctx context.Context, text, locale string) (ResolveResponse, error) {
	if text == "" {
		return ResolveResponse{}, fmt.Errorf("%w: text is required", errBadRequest)
	}
	m := s.eng.Matcher().Match(ctx, text, locale)
	intent, err := resolver.ParseCommand(m.Text)
	if err != nil {
		return ResolveResponse{}, err
	}
	action, err := s.eng.Resolver().ResolveAction(ctx, intent)
	if err != nil {
		return ResolveResponse{}, err
	}
	return ResolveResponse{Match: m, Intent: intent.String(), Action: action}, nil
}

func (s *Server) learn(ctx context.Context, original, corrected string, confidence float64) (model.LearnedCorrection, error) {
	key := textnorm.Normalize(original)
	if key != "" && key == textnorm.Normalize(corrected) {
		return model.LearnedCorrection{}, fmt.Errorf("%w: original and corrected text are the same", errBadRequest)
	}
	if err := s.eng.Matcher().Learn(ctx, original, corrected, confidence); err != nil {
		if errors.Is(err, registry.ErrRegistryUnavailable) {
			return model.LearnedCorrection{}, err
		}
		return model.LearnedCorrection{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	for _, c := range s.eng.Matcher().Corrections() {
		if c.OriginalText == key {
			return c, nil
		}
	}
	return model.LearnedCorrection{}, fmt.Errorf("%w: correction for %q", errNotFound, key)
}

func (s *Server) element(ctx context.Context, id string) (model.Element, error) {
	el, ok, err := s.eng.Registry().Get(ctx, id)
	if err != nil {
		return model.Element{}, err
	}
	if !ok {
		return model.Element{}, fmt.Errorf("%w: element %s", errNotFound, id)
	}
	return el, nil
}

func (s *Server) elements(container string) output.ElementsResult {
	if container == "" {
		container = s.eng.View().ContainerID
	}
	reg := s.eng.Registry()
	return output.ElementsResult{
		Container: container,
		Epoch:     reg.CurrentEpoch(container),
		TS:        nowUnix(),
		Elements:  reg.Elements(container),
	}
}

func (s *Server) view() ViewResponse {
	v := s.eng.View()
	return ViewResponse{
		Container:  v.ContainerID,
		Epoch:      v.Epoch,
		Generation: v.Generation,
		Focused:    v.Focused,
		Visible:    v.Visible,
		Pending:    s.eng.Registry().Pending(),
	}
}

// ErrorResult converts err into the structured error printed to clients.
func ErrorResult(err error) output.ErrorResult {
	res := output.ErrorResult{Kind: errorKind(err), Error: err.Error()}
	var re *resolver.ResolveError
	if errors.As(err, &re) {
		res.Candidates = re.Candidates
	}
	return res
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, resolver.ErrMalformedCommand):
		return "malformed_command"
	case errors.Is(err, resolver.ErrUnresolvable):
		return "unresolvable"
	case errors.Is(err, resolver.ErrAmbiguousTarget):
		return "ambiguous_target"
	case errors.Is(err, resolver.ErrStaleIdentity):
		return "stale_identity"
	case errors.Is(err, registry.ErrRegistryUnavailable):
		return "registry_unavailable"
	case errors.Is(err, engine.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, engine.ErrClosed):
		return "closed"
	case errors.Is(err, errNotFound), errors.Is(err, registry.ErrUnknownIdentity):
		return "not_found"
	case errors.Is(err, errBadRequest):
		return "bad_request"
	default:
		return ""
	}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
