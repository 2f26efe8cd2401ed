package repository

import (
	"time"
)

// Entity is the capability every resource type exposes to the dispatcher.
// The dispatcher never inspects concrete entity shapes beyond these methods.
type Entity interface {
	// EntityID returns the identifier, or nil for an entity that was never saved
	EntityID() any
	// SetEntityID assigns the identifier
	SetEntityID(id any)
}

// Versioned entities expose an optimistic-locking counter
type Versioned interface {
	EntityVersion() int64
}

// Auditable entities expose the time of their last modification
type Auditable interface {
	EntityLastModified() time.Time
}

// Stamper is implemented by entities that let a store record the version and
// modification time it assigned on save
type Stamper interface {
	Stamp(version int64, modified time.Time)
}

// Factory creates an empty entity of one resource type
type Factory func() Entity

// Audit carries the version and last-modified marker. Embed it in an entity
// struct to make the entity Versioned, Auditable and a Stamper.
type Audit struct {
	Version      int64     `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// EntityVersion returns the version counter
func (a *Audit) EntityVersion() int64 {
	return a.Version
}

// EntityLastModified returns the modification time
func (a *Audit) EntityLastModified() time.Time {
	return a.LastModified
}

// Stamp records a version and modification time
func (a *Audit) Stamp(version int64, modified time.Time) {
	a.Version = version
	a.LastModified = modified
}

// VersionOf returns the version of e and whether e is Versioned
func VersionOf(e Entity) (int64, bool) {
	if v, ok := e.(Versioned); ok {
		return v.EntityVersion(), true
	}
	return 0, false
}

// LastModifiedOf returns the modification time of e; the zero time when e
// is not Auditable or was never stamped
func LastModifiedOf(e Entity) time.Time {
	if a, ok := e.(Auditable); ok {
		return a.EntityLastModified()
	}
	return time.Time{}
}

// StampIfSupported stamps e when it is a Stamper
func StampIfSupported(e Entity, version int64, modified time.Time) {
	if s, ok := e.(Stamper); ok {
		s.Stamp(version, modified)
	}
}
