package supervisor

import (
	"context"
	"time"
)

// Reloader is the capability to make the proxy process pick up fresh
// credentials. Implementations are expected to honor context
// cancellation; the supervisor applies its own timeout.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Recorder persists the outcome of renewal attempts. A nil Recorder
// disables history.
type Recorder interface {
	Record(ctx context.Context, reason, source, outcome, errMsg string, startedAt time.Time, took time.Duration) error
}
