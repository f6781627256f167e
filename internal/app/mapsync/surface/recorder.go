// internal/app/mapsync/surface/recorder.go
package surface

import (
	"fmt"
	"sort"
	"sync"
)

// Camera is the last camera command applied to a Recorder.
type Camera struct {
	Mode    string   `json:"mode"` // "", "center" or "bounds"
	Center  *LatLng  `json:"center,omitempty"`
	Zoom    int      `json:"zoom,omitempty"`
	Bounds  *Bounds  `json:"bounds,omitempty"`
	Padding *Padding `json:"padding,omitempty"`
}

// Ops counts the calls a Recorder has received. Tests use it to assert that
// reconciliation issues minimal changes.
type Ops struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Overlays  int `json:"overlays"`
	CameraOps int `json:"camera_ops"`
}

// State is a point-in-time copy of a Recorder.
type State struct {
	Markers []Marker `json:"markers"`
	Overlay *Overlay `json:"overlay,omitempty"`
	Camera  Camera   `json:"camera"`
}

// Recorder is an in-memory Surface. It is safe for concurrent use and
// serializes to JSON for the HTTP API.
type Recorder struct {
	mu      sync.Mutex
	markers map[MarkerID]Marker
	overlay *Overlay
	camera  Camera
	ops     Ops
}

// NewRecorder returns an empty map.
func NewRecorder() *Recorder {
	return &Recorder{markers: make(map[MarkerID]Marker)}
}

func (r *Recorder) AddMarker(m Marker) error {
	if !ValidPosition(m.Position) {
		return fmt.Errorf("surface: invalid position %v,%v for %q", m.Position.Lat, m.Position.Lng, m.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markers[m.ID]; exists {
		return fmt.Errorf("surface: marker %q already exists", m.ID)
	}
	r.markers[m.ID] = m
	r.ops.Added++
	return nil
}

func (r *Recorder) UpdateMarker(m Marker) error {
	if !ValidPosition(m.Position) {
		return fmt.Errorf("surface: invalid position %v,%v for %q", m.Position.Lat, m.Position.Lng, m.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markers[m.ID]; !exists {
		return &ErrNoMarker{ID: m.ID}
	}
	r.markers[m.ID] = m
	r.ops.Updated++
	return nil
}

func (r *Recorder) RemoveMarker(id MarkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markers[id]; !exists {
		return
	}
	delete(r.markers, id)
	r.ops.Removed++
	if r.overlay != nil && r.overlay.Anchor == id {
		r.overlay = nil
	}
}

func (r *Recorder) OpenOverlay(o Overlay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markers[o.Anchor]; !exists {
		return &ErrNoMarker{ID: o.Anchor}
	}
	cp := o
	r.overlay = &cp
	r.ops.Overlays++
	return nil
}

func (r *Recorder) CloseOverlay() {
	r.mu.Lock()
	r.overlay = nil
	r.mu.Unlock()
}

func (r *Recorder) SetCenter(c LatLng, zoom int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	center := c
	r.camera = Camera{Mode: "center", Center: &center, Zoom: zoom}
	r.ops.CameraOps++
}

func (r *Recorder) FitBounds(b Bounds, p Padding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bounds, pad := b, p
	r.camera = Camera{Mode: "bounds", Bounds: &bounds, Padding: &pad}
	r.ops.CameraOps++
}

// State returns a copy of the map, markers sorted by id.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{Markers: make([]Marker, 0, len(r.markers)), Camera: r.camera}
	for _, m := range r.markers {
		st.Markers = append(st.Markers, m)
	}
	sort.Slice(st.Markers, func(i, j int) bool { return st.Markers[i].ID < st.Markers[j].ID })
	if r.overlay != nil {
		o := *r.overlay
		st.Overlay = &o
	}
	return st
}

// Marker returns one marker.
func (r *Recorder) Marker(id MarkerID) (Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[id]
	return m, ok
}

// Ops returns the call counters.
func (r *Recorder) Ops() Ops {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops
}
