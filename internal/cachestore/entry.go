package cachestore

import (
	"net/http"
	"strings"
	"time"
)

// Entry is a captured response snapshot: status, headers, body, and the
// time it was stored. Entries held by the store are immutable; Put and
// Get exchange clones so no caller can mutate a stored snapshot, and a
// body can be consumed without disturbing the cached copy.
type Entry struct {
	// URL is the origin-relative request path the entry was stored under.
	URL string

	Status int
	Header http.Header
	Body   []byte

	// CachedAt is when the entry was inserted into the store.
	CachedAt time.Time
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := &Entry{
		URL:      e.URL,
		Status:   e.Status,
		Header:   e.Header.Clone(),
		CachedAt: e.CachedAt,
	}
	if e.Body != nil {
		clone.Body = make([]byte, len(e.Body))
		copy(clone.Body, e.Body)
	}
	return clone
}

// ContentType returns the entry's Content-Type header value.
func (e *Entry) ContentType() string {
	return e.Header.Get("Content-Type")
}

// IsHTML reports whether the entry carries an HTML document.
func (e *Entry) IsHTML() bool {
	return strings.Contains(e.ContentType(), "text/html")
}

// OK reports whether the entry captured a successful (2xx) response.
func (e *Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}
