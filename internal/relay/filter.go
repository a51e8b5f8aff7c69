package relay

import "time"

// Filter is the subscription filter sent with a REQ frame. It is built fresh
// for every poll cycle from the current watermark and static configuration,
// and is immutable once sent.
type Filter struct {
	Kinds   []int    `json:"kinds"`
	Authors []string `json:"authors,omitempty"`
	Since   int64    `json:"since"`
}

// NewFilter builds a filter requesting events of the given kind authored by
// one of authors (any author when empty), created at or after since.
func NewFilter(kind int, authors []string, since time.Time) Filter {
	f := Filter{
		Kinds: []int{kind},
		Since: since.Unix(),
	}
	if len(authors) > 0 {
		f.Authors = append([]string(nil), authors...)
	}
	return f
}

// matchesKind reports whether an event's kind is one of the requested kinds.
// Relays are expected to filter server-side; this guards against ones that
// send extra events anyway.
func (f Filter) matchesKind(kind int) bool {
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
