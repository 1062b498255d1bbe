// Package platform holds the seams between the core and the host: where UI
// trees come from and where resolved actions go.
package platform

import (
	"context"

	"github.com/mj1618/voxnav/internal/model"
)

// TreeSource delivers observed UI trees. The channel is closed when the
// source is exhausted or ctx is canceled.
type TreeSource interface {
	Batches(ctx context.Context) (<-chan model.Batch, error)
}

// ActionExecutor performs a resolved action on the host and reports
// whether it succeeded.
type ActionExecutor interface {
	Execute(ctx context.Context, action model.ResolvedAction) error
}
