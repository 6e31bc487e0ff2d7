package classify

import (
	"context"
	"math/rand"
	"sync"

	"clipflow/internal/database"
)

// Classifier decides whether a finished asset is safe to publish.
//
// Implementations must be safe for concurrent use; the pipeline calls
// Classify from one goroutine per video.
type Classifier interface {
	Classify(ctx context.Context, videoID string) (database.Sensitivity, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, videoID string) (database.Sensitivity, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, videoID string) (database.Sensitivity, error) {
	return f(ctx, videoID)
}

// RandomPolicy is the reference classifier: it flags a fixed fraction of
// assets at random. It stands in for a real content model and exists so
// the rest of the pipeline exercises the flagged path.
type RandomPolicy struct {
	FlagRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPolicy returns a policy flagging flagRate of assets (0..1),
// seeded from the given source.
func NewRandomPolicy(flagRate float64, seed int64) *RandomPolicy {
	return &RandomPolicy{
		FlagRate: flagRate,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Classify implements Classifier.
func (p *RandomPolicy) Classify(_ context.Context, _ string) (database.Sensitivity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rng.Float64() < p.FlagRate {
		return database.SensitivityFlagged, nil
	}
	return database.SensitivitySafe, nil
}

// Static returns a classifier that always answers with the given result.
// Useful in tests and as a kill switch.
func Static(result database.Sensitivity) Classifier {
	return Func(func(context.Context, string) (database.Sensitivity, error) {
		return result, nil
	})
}
