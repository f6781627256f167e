// Package uploads tracks the ordered image list of a pin form while images
// upload.
package uploads

import (
	"sync"

	"github.com/google/uuid"
)

// Item is one image in the list. URL is empty while Uploading.
type Item struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Uploading bool   `json:"uploading"`
}

// List is an ordered image list. Removing an item while it uploads lets
// the upload finish but discards its result.
type List struct {
	mu    sync.Mutex
	items []Item
}

// Begin appends an uploading item and returns its id.
func (l *List) Begin(name string) string {
	id := uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, Item{ID: id, Name: name, Uploading: true})
	return id
}

// Complete records the uploaded URL. It reports false when the item was
// removed meanwhile or is not uploading.
func (l *List) Complete(id, url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 || !l.items[i].Uploading {
		return false
	}
	l.items[i].URL = url
	l.items[i].Uploading = false
	return true
}

// Fail drops an item whose upload failed.
func (l *List) Fail(id string) bool {
	return l.Remove(id)
}

// Remove deletes an item, uploading or not.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true
}

// Items returns a copy of the list in order.
func (l *List) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Item{}, l.items...)
}

// Busy reports whether any upload is still running.
func (l *List) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.Uploading {
			return true
		}
	}
	return false
}

// First returns the URL of the first finished image.
func (l *List) First() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if !it.Uploading && it.URL != "" {
			return it.URL, true
		}
	}
	return "", false
}

// Reset empties the list.
func (l *List) Reset() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

func (l *List) index(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
