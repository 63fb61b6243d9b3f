package sqlite

import (
	"context"
	"log"
	"time"

	"github.com/mistakeknot/hivewatch/internal/storage"
)

// Sweeper runs a background goroutine that periodically prunes events older
// than the retention window. Agent and message rows are never swept; only the
// event log grows without bound.
type Sweeper struct {
	store     storage.Store
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper creates a new Sweeper. Call Start() to begin sweeping.
// A retention of zero disables pruning entirely.
func NewSweeper(store storage.Store, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)
		if sw.retention <= 0 {
			return
		}

		sw.runSweep(ctx)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
}

func (sw *Sweeper) runSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-sw.retention)
	pruned, err := sw.store.PruneEvents(ctx, cutoff)
	if err != nil {
		log.Printf("sweeper: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("sweeper: pruned %d event(s) older than %s", pruned, sw.retention)
	}
}
