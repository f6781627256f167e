// internal/app/system/workers/idleeviction.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Evictor releases per-user map controllers that have been idle for at least
// threshold and reports how many were closed.
type Evictor interface {
	EvictIdle(threshold time.Duration) int
}

// IdleEviction is a background worker that closes idle map controllers so
// their debounce timers stop and their memory is returned.
type IdleEviction struct {
	target    Evictor
	log       *zap.Logger
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewIdleEviction creates a new idle eviction worker.
//
// Parameters:
//   - target: the controller registry
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 minute)
//   - threshold: how long a controller must be idle before it is closed (e.g., 30 minutes)
func NewIdleEviction(target Evictor, logger *zap.Logger, interval, threshold time.Duration) *IdleEviction {
	return &IdleEviction{
		target:    target,
		log:       logger,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *IdleEviction) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("idle eviction worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("threshold", w.threshold))
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// more than once.
func (w *IdleEviction) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("idle eviction worker stopped")
}

func (w *IdleEviction) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *IdleEviction) sweep() {
	if n := w.target.EvictIdle(w.threshold); n > 0 {
		w.log.Info("evicted idle map controllers", zap.Int("count", n))
	}
}
