// Package headers provides an immutable HTTP header set and the preparer
// that derives cache validators from entities.
package headers

import (
	"net/http"
)

// Set is an immutable collection of response headers. Every mutator returns
// a new Set; the receiver is never changed.
type Set struct {
	h http.Header
}

// Empty returns a set with no headers
func Empty() Set {
	return Set{}
}

// From copies h into a new set
func From(h http.Header) Set {
	return Set{h: h.Clone()}
}

// With returns a copy with key set to value, replacing existing values.
// An empty value removes the key.
func (s Set) With(key, value string) Set {
	next := s.clone()
	if value == "" {
		next.Del(key)
	} else {
		next.Set(key, value)
	}
	return Set{h: next}
}

// Add returns a copy with value appended to key
func (s Set) Add(key, value string) Set {
	if value == "" {
		return s
	}
	next := s.clone()
	next.Add(key, value)
	return Set{h: next}
}

// Merge returns a copy where every key of other replaces the same key of s
func (s Set) Merge(other Set) Set {
	if len(other.h) == 0 {
		return s
	}
	next := s.clone()
	for k, v := range other.h {
		next[k] = append([]string(nil), v...)
	}
	return Set{h: next}
}

// Get returns the first value of key
func (s Set) Get(key string) string {
	return s.h.Get(key)
}

// Values returns every value of key
func (s Set) Values(key string) []string {
	return append([]string(nil), s.h.Values(key)...)
}

// Len returns the number of distinct keys
func (s Set) Len() int {
	return len(s.h)
}

// Header returns a mutable copy of the set
func (s Set) Header() http.Header {
	return s.clone()
}

// WriteTo copies every header into w
func (s Set) WriteTo(w http.Header) {
	for k, v := range s.h {
		w[k] = append([]string(nil), v...)
	}
}

// Equal reports whether both sets carry the same headers
func (s Set) Equal(other Set) bool {
	if len(s.h) != len(other.h) {
		return false
	}
	for k, v := range s.h {
		ov, ok := other.h[k]
		if !ok || len(ov) != len(v) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}

func (s Set) clone() http.Header {
	if s.h == nil {
		return make(http.Header)
	}
	return s.h.Clone()
}
