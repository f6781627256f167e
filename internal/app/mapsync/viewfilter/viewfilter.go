// Package viewfilter decides which pins are visible for the active tab and
// collection selection.
package viewfilter

import (
	"sort"

	"github.com/dalemusser/pinmap/internal/app/system/apperr"
	"github.com/dalemusser/pinmap/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tab is a sidebar tab.
type Tab string

const (
	TabMine     Tab = "mine"
	TabFriends  Tab = "friends"
	TabDiscover Tab = "discover"
)

// ParseTab validates a tab name.
func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case TabMine, TabFriends, TabDiscover:
		return t, nil
	}
	return "", apperr.Invalid("tab", "unknown tab "+s)
}

// Remote reports whether the tab shows other users' collections.
func (t Tab) Remote() bool {
	return t == TabFriends || t == TabDiscover
}

// Selection is the view state that drives filtering. On the mine tab the
// local pins are live and Feed is ignored; on the remote tabs only Feed is
// live.
type Selection struct {
	Tab          Tab                 `json:"tab"`
	CollectionID *primitive.ObjectID `json:"collection_id,omitempty"`
	Feed         []models.Pin        `json:"-"`
}

// All reports whether no collection is selected.
func (s Selection) All() bool {
	return s.CollectionID == nil
}

// ComputeVisible returns the pins to render, without modifying local or
// sel.Feed:
//   - mine, no collection: every local pin, newest first
//   - mine, collection X: local pins in X, newest first
//   - friends/discover: sel.Feed as loaded, empty when no collection is
//     selected
func ComputeVisible(local []models.Pin, sel Selection) []models.Pin {
	if sel.Tab.Remote() {
		if sel.CollectionID == nil {
			return []models.Pin{}
		}
		return append([]models.Pin{}, sel.Feed...)
	}

	out := make([]models.Pin, 0, len(local))
	for _, p := range local {
		if sel.CollectionID == nil || p.CollectionID == *sel.CollectionID {
			out = append(out, p)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders pins by CreatedAt descending, then by id
// descending so equal timestamps still sort deterministically.
func SortNewestFirst(pins []models.Pin) {
	sort.SliceStable(pins, func(i, j int) bool {
		a, b := pins[i], pins[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.Hex() > b.ID.Hex()
	})
}
