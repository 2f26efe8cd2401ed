package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/datarest/internal/rest/event"
)

// FeedMessage is the wire form of one lifecycle event
type FeedMessage struct {
	Type     string          `json:"type"`
	Resource string          `json:"resource"`
	ID       string          `json:"id"`
	Entity   json.RawMessage `json:"entity,omitempty"`
}

// FeedListener publishes completed mutations to the hub
type FeedListener struct {
	hub *Hub
}

// NewFeedListener creates a FeedListener
func NewFeedListener(hub *Hub) *FeedListener {
	return &FeedListener{hub: hub}
}

// Name implements event.Named
func (l *FeedListener) Name() string {
	return "event-feed"
}

// Kinds returns the event kinds the listener must be registered for
func (l *FeedListener) Kinds() []event.Kind {
	kinds := make([]event.Kind, 0, len(event.Kinds))
	for _, k := range event.Kinds {
		if k.IsAfter() {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// OnEvent implements event.Listener
func (l *FeedListener) OnEvent(_ context.Context, evt event.Event) error {
	if !evt.Kind.IsAfter() {
		return nil
	}

	msg := FeedMessage{
		Type:     evt.Kind.String(),
		Resource: evt.Resource,
		ID:       evt.EntityID(),
	}
	if evt.Entity != nil {
		entity, err := json.Marshal(evt.Entity)
		if err != nil {
			return fmt.Errorf("encode %s entity: %w", evt.Resource, err)
		}
		msg.Entity = entity
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode feed message: %w", err)
	}
	l.hub.Broadcast(evt.Resource, data)
	return nil
}
