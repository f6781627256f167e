// internal/app/features/mapview/registry.go
package mapview

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/pinmap/internal/app/mapsync"
	"go.uber.org/zap"
)

// Factory builds a fresh, signed-out controller.
type Factory func() *mapsync.Controller

// Init prepares a newly built controller before any request can use it.
type Init func(*mapsync.Controller) error

type session struct {
	ctrl     *mapsync.Controller
	lastUsed time.Time

	ready chan struct{} // closed once init has finished
	err   error
}

// Registry holds one controller per map session, keyed by user or by the
// anonymous session cookie. It implements workers.Evictor.
type Registry struct {
	newCtrl Factory
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry returns an empty registry.
func NewRegistry(f Factory, log *zap.Logger) *Registry {
	return &Registry{
		newCtrl:  f,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// SetClock replaces the registry's time source. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Get returns the controller for key. A missing controller is built and
// passed to init before it is handed out; concurrent callers for the same
// key wait for init and share its result. A failed init leaves no session
// behind.
func (r *Registry) Get(ctx context.Context, key string, init Init) (*mapsync.Controller, error) {
	r.mu.Lock()
	if s, ok := r.sessions[key]; ok {
		s.lastUsed = r.now()
		r.mu.Unlock()
		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.err != nil {
			return nil, s.err
		}
		return s.ctrl, nil
	}
	s := &session{ctrl: r.newCtrl(), lastUsed: r.now(), ready: make(chan struct{})}
	r.sessions[key] = s
	r.mu.Unlock()

	if init != nil {
		s.err = init(s.ctrl)
	}
	if s.err != nil {
		r.mu.Lock()
		if r.sessions[key] == s {
			delete(r.sessions, key)
		}
		r.mu.Unlock()
		s.ctrl.Close()
	}
	close(s.ready)

	if s.err != nil {
		return nil, s.err
	}
	return s.ctrl, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes every controller unused for at least threshold.
func (r *Registry) EvictIdle(threshold time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-threshold)
	var idle []*mapsync.Controller
	for key, s := range r.sessions {
		if !s.lastUsed.After(cutoff) {
			idle = append(idle, s.ctrl)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}

// CloseAll closes every controller. Called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range all {
		s.ctrl.Close()
	}
	if len(all) > 0 {
		r.log.Info("closed map sessions", zap.Int("count", len(all)))
	}
}
