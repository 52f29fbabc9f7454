package probe

import (
	"context"
	"time"

	"go.lipi.dev/providerd/registry"
)

// Benchmarker produces a performance sample for a reachable endpoint.
type Benchmarker interface {
	Benchmark(ctx context.Context, c Checker, d registry.Descriptor) (*Sample, error)
}

// SyntheticWorkload repeats the check Rounds times. Throughput is
// completed rounds per second, accuracy the share of rounds that
// succeeded.
type SyntheticWorkload struct {
	Rounds int
}

func (w SyntheticWorkload) Benchmark(ctx context.Context, c Checker, d registry.Descriptor) (*Sample, error) {
	rounds := max(w.Rounds, 1)

	start := time.Now()
	ran, ok := 0, 0
	for range rounds {
		if ctx.Err() != nil {
			break
		}
		ran++
		if _, err := c.Check(ctx, d); err == nil {
			ok++
		}
	}
	if ran == 0 {
		return nil, ctx.Err()
	}

	elapsed := max(time.Since(start), time.Microsecond)
	return &Sample{
		Throughput: float64(ran) / elapsed.Seconds(),
		Accuracy:   float64(ok) / float64(ran),
		Synthetic:  true,
	}, nil
}

func latencySample(latency time.Duration) *Sample {
	latency = max(latency, time.Microsecond)
	return &Sample{
		Throughput: 1 / latency.Seconds(),
		Accuracy:   1,
		Synthetic:  true,
	}
}
