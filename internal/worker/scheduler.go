package worker

import (
	"context"
	"log"
	"time"
)

// Sweeper is anything holding lazily expired state
type Sweeper interface {
	Sweep() int
}

// SweepInterval defines how often in-memory stores drop expired entries
const SweepInterval = time.Minute

// StartAllWorkers initializes and starts all background workers
func StartAllWorkers(ctx context.Context, sweepers ...Sweeper) {
	log.Println("Starting all workers...")

	if len(sweepers) > 0 {
		StartSweepWorker(ctx, SweepInterval, sweepers...)
	}

	log.Println("All workers started")
}

// StartSweepWorker periodically removes expired entries from in-memory stores
func StartSweepWorker(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := 0
				for _, s := range sweepers {
					removed += s.Sweep()
				}
				if removed > 0 {
					log.Printf("Sweep worker: removed %d expired entries", removed)
				}
			}
		}
	}()

	log.Println("Sweep worker started with interval:", interval)
}
