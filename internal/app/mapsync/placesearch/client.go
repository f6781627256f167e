// Package placesearch queries an external place provider: debounced
// autocomplete, candidate resolution and reverse geocoding.
package placesearch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/app/system/normalize"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce is the quiet period a query must survive before it
	// reaches the provider.
	DefaultDebounce = 300 * time.Millisecond
	// DefaultLimit caps the number of candidates returned.
	DefaultLimit = 5
)

var (
	// ErrSuperseded is returned to a caller whose query was overtaken by a
	// newer one. Its results must not be applied.
	ErrSuperseded = errors.New("placesearch: superseded by a newer query")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("placesearch: client closed")
)

// Clock abstracts the debounce timer.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Options configures a Client. Zero values take the defaults.
type Options struct {
	Debounce     time.Duration
	Limit        int
	BiasRadius   int // meters; 0 disables location bias
	Clock        Clock
	SessionToken func() string
}

// Result is the outcome of one Search call. Seq identifies the call; only
// the result whose Seq is still current may be applied.
type Result struct {
	Seq        uint64                   `json:"seq"`
	Query      string                   `json:"query"`
	Candidates []models.SearchCandidate `json:"candidates"`
}

// Client is one user's search session. It is safe for concurrent use.
type Client struct {
	provider Provider
	log      *zap.Logger
	debounce time.Duration
	limit    int
	radius   int
	clock    Clock
	newToken func() string

	mu        sync.Mutex
	seq       uint64
	pending   chan struct{} // closed when the waiting call is superseded
	closed    bool
	token     string
	bias      *Bias
	memoQuery string
	memo      []models.SearchCandidate
	hasMemo   bool
}

// NewClient builds a search session over provider.
func NewClient(provider Provider, log *zap.Logger, opts Options) *Client {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.SessionToken == nil {
		opts.SessionToken = uuid.NewString
	}
	return &Client{
		provider: provider,
		log:      log,
		debounce: opts.Debounce,
		limit:    opts.Limit,
		radius:   opts.BiasRadius,
		clock:    opts.Clock,
		newToken: opts.SessionToken,
		token:    opts.SessionToken(),
	}
}

// SetBias biases future autocomplete requests toward a point, typically
// the current camera center.
func (c *Client) SetBias(lat, lng float64) {
	if c.radius <= 0 || !models.ValidLatLng(lat, lng) {
		return
	}
	c.mu.Lock()
	c.bias = &Bias{Lat: lat, Lng: lng, RadiusMeters: c.radius}
	c.mu.Unlock()
}

// Search returns up to Limit candidates for query, ordered by provider rank.
//
// Each call supersedes every earlier call. A call waits out the debounce
// period and returns ErrSuperseded if a newer call arrives meanwhile, so a
// burst of keystrokes produces a single provider request. A response that
// arrives after a newer call was issued is also reported as ErrSuperseded.
// An empty query returns no candidates without contacting the provider.
// Provider failures degrade to an empty result plus an error wrapping
// apperr.ErrProvider.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	q := normalize.Text(query)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	c.seq++
	seq := c.seq
	if c.pending != nil {
		close(c.pending)
		c.pending = nil
	}
	if q == "" {
		c.mu.Unlock()
		return Result{Seq: seq, Candidates: []models.SearchCandidate{}}, nil
	}
	cancel := make(chan struct{})
	c.pending = cancel
	c.mu.Unlock()

	select {
	case <-c.clock.After(c.debounce):
	case <-cancel:
		return c.stale(seq, q)
	case <-ctx.Done():
		c.clearPending(cancel)
		return Result{Seq: seq, Query: q}, ctx.Err()
	}

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return c.stale(seq, q)
	}
	if c.pending == cancel {
		c.pending = nil
	}
	key := normalize.Query(q)
	if c.hasMemo && c.memoQuery == key {
		out := append([]models.SearchCandidate(nil), c.memo...)
		c.mu.Unlock()
		return Result{Seq: seq, Query: q, Candidates: out}, nil
	}
	req := AutocompleteRequest{Input: q, SessionToken: c.token, Bias: c.bias}
	c.mu.Unlock()

	cands, err := c.provider.Autocomplete(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{Seq: seq, Query: q}, ErrClosed
	}
	if err != nil {
		c.log.Warn("place autocomplete failed",
			zap.String("query", q),
			zap.Uint64("seq", seq),
			zap.Error(err))
		if seq != c.seq {
			return Result{Seq: seq, Query: q}, ErrSuperseded
		}
		return Result{Seq: seq, Query: q, Candidates: []models.SearchCandidate{}}, apperr.Provider("autocomplete", err)
	}

	if len(cands) > c.limit {
		cands = cands[:c.limit]
	}
	out := append([]models.SearchCandidate{}, cands...)
	c.memoQuery, c.memo, c.hasMemo = key, out, true

	if seq != c.seq {
		return Result{Seq: seq, Query: q}, ErrSuperseded
	}
	return Result{Seq: seq, Query: q, Candidates: append([]models.SearchCandidate(nil), out...)}, nil
}

func (c *Client) stale(seq uint64, q string) (Result, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Result{Seq: seq, Query: q}, ErrClosed
	}
	return Result{Seq: seq, Query: q}, ErrSuperseded
}

func (c *Client) clearPending(ch chan struct{}) {
	c.mu.Lock()
	if c.pending == ch {
		c.pending = nil
	}
	c.mu.Unlock()
}

// IsCurrent reports whether seq is the most recent Search call.
func (c *Client) IsCurrent(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.seq
}

// Resolve fetches full details for a candidate. It fails with
// apperr.ErrPlaceNotFound when the provider has no usable geometry, so no
// marker is ever created without coordinates. The session token rotates
// after every Resolve.
func (c *Client) Resolve(ctx context.Context, candidateID string) (models.PlaceDetails, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.PlaceDetails{}, ErrClosed
	}
	token := c.token
	c.token = c.newToken()
	c.mu.Unlock()

	d, err := c.provider.Details(ctx, candidateID, token)
	if err != nil {
		if errors.Is(err, apperr.ErrPlaceNotFound) {
			return models.PlaceDetails{}, err
		}
		return models.PlaceDetails{}, apperr.Provider("details", err)
	}
	if !models.ValidLatLng(d.Lat, d.Lng) {
		return models.PlaceDetails{}, apperr.ErrPlaceNotFound
	}
	if d.ID == "" {
		d.ID = candidateID
	}
	return d, nil
}

// Close stops any pending debounce wait. Later calls return ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.pending != nil {
		close(c.pending)
		c.pending = nil
	}
}
