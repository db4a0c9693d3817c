package preload

import (
	"context"
	"time"
)

// Decoder produces a processed audio artifact for a stream key. A zero
// timeout uses the decoder's configured default. Implemented by
// runner.Runner.
type Decoder interface {
	Decode(ctx context.Context, guildID, streamKey string, volumePct int, timeout time.Duration) (string, error)
	RemoveArtifact(path string) error
}
