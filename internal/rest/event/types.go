// Package event carries entity lifecycle notifications from the dispatcher
// to registered listeners.
package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Kind is the lifecycle point an event is published at
type Kind int

const (
	// BeforeCreate fires before a new entity is saved
	BeforeCreate Kind = iota
	// AfterCreate fires after a new entity was saved
	AfterCreate
	// BeforeSave fires before an existing entity is saved
	BeforeSave
	// AfterSave fires after an existing entity was saved
	AfterSave
	// BeforeDelete fires before an entity is deleted
	BeforeDelete
	// AfterDelete fires after an entity was deleted
	AfterDelete
)

// Kinds lists every kind in lifecycle order
var Kinds = []Kind{BeforeCreate, AfterCreate, BeforeSave, AfterSave, BeforeDelete, AfterDelete}

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	default:
		return "unknown"
	}
}

// IsBefore reports whether k fires before the store operation
func (k Kind) IsBefore() bool {
	return k == BeforeCreate || k == BeforeSave || k == BeforeDelete
}

// IsAfter reports whether k fires after a successful store operation
func (k Kind) IsAfter() bool {
	return k == AfterCreate || k == AfterSave || k == AfterDelete
}

// ParseKind parses the string form of a kind
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is one lifecycle notification
type Event struct {
	Kind     Kind
	Resource string
	Entity   repository.Entity
	Time     time.Time
}

// New creates an event stamped with the current time
func New(kind Kind, resource string, entity repository.Entity) Event {
	return Event{Kind: kind, Resource: resource, Entity: entity, Time: time.Now()}
}

// EntityID returns the formatted id of the event entity
func (e Event) EntityID() string {
	if e.Entity == nil {
		return ""
	}
	return repository.FormatID(e.Entity.EntityID())
}

// Listener receives lifecycle events
type Listener interface {
	OnEvent(ctx context.Context, evt Event) error
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, evt Event) error

// OnEvent calls f
func (f ListenerFunc) OnEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Named listeners report a name used in logs
type Named interface {
	Name() string
}

func listenerName(l Listener) string {
	if n, ok := l.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}
