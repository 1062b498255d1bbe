package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolution failure kinds. A *ResolveError unwraps to one of these.
var (
	ErrUnresolvable     = errors.New("unresolvable target")
	ErrAmbiguousTarget  = errors.New("ambiguous target")
	ErrStaleIdentity    = errors.New("stale identity")
	ErrMalformedCommand = errors.New("malformed command")
)

// ResolveError describes why a command could not be turned into a target.
// Candidates lists the identities that tied for an ambiguous target.
type ResolveError struct {
	Kind       error
	Detail     string
	Candidates []string
}

func (e *ResolveError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&sb, " (%d candidates: %s)", len(e.Candidates), strings.Join(e.Candidates, ", "))
	}
	return sb.String()
}

func (e *ResolveError) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *ResolveError {
	return &ResolveError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// checkContext converts a canceled resolution into an error. A context
// canceled with cause ErrStaleIdentity, as the engine does when a newer
// snapshot supersedes the view, reports StaleIdentity.
func checkContext(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrStaleIdentity) {
		return newError(ErrStaleIdentity, "view superseded during resolution")
	}
	return cause
}
