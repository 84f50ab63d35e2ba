package chat

import (
	"context"
	"time"
)

const probeTimeout = 2 * time.Second

// Connectivity reports reachability of the service's two upstreams. It is a
// snapshot, not a guarantee; a dependency can fail right after a probe.
type Connectivity struct {
	Generator bool
	Warehouse bool
}

// Healthy reports whether every dependency answered the probe.
func (c Connectivity) Healthy() bool {
	return c.Generator && c.Warehouse
}

// Probe checks the generator and the warehouse in parallel with a short
// per-dependency timeout. It never returns an error; an unreachable
// dependency is reported, not propagated.
func (s *Service) Probe(ctx context.Context) Connectivity {
	type outcome struct {
		generator bool
		err       error
	}
	results := make(chan outcome, 2)

	ping := func(generator bool, fn func(context.Context) error) {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		results <- outcome{generator: generator, err: fn(probeCtx)}
	}
	go ping(true, s.generator.Ping)
	go ping(false, s.executor.Ping)

	var conn Connectivity
	for i := 0; i < 2; i++ {
		result := <-results
		if result.generator {
			conn.Generator = result.err == nil
		} else {
			conn.Warehouse = result.err == nil
		}
	}
	return conn
}
