package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Reserved document keys. They are lifted out of the attribute map when a
// document is decoded and written back when it is encoded.
const (
	KeyID           = "id"
	KeyVersion      = "version"
	KeyLastModified = "lastModified"
)

// Document is a dynamic entity for collections declared in configuration. Its
// JSON form is a flat object: the attributes plus id, version and
// lastModified.
type Document struct {
	ID any
	Audit
	Attributes map[string]any

	idType IDType
}

var cborDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// NewDocument creates an empty document
func NewDocument() *Document {
	return &Document{Attributes: make(map[string]any)}
}

// DocumentFactory returns a Factory for documents whose ids are coerced to t
func DocumentFactory(t IDType) Factory {
	return func() Entity {
		d := NewDocument()
		d.idType = t
		return d
	}
}

// EntityID returns the document id
func (d *Document) EntityID() any {
	return d.ID
}

// SetEntityID assigns the document id
func (d *Document) SetEntityID(id any) {
	d.ID = id
}

// Get returns an attribute or one of the reserved keys
func (d *Document) Get(key string) (any, bool) {
	switch key {
	case KeyID:
		return d.ID, d.ID != nil
	case KeyVersion:
		return d.Version, true
	case KeyLastModified:
		return d.LastModified, !d.LastModified.IsZero()
	}
	v, ok := d.Attributes[key]
	return v, ok
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ToMap())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document must be a JSON object")
	}
	return d.fromMap(raw)
}

// MarshalCBOR implements cbor.Marshaler
func (d *Document) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d.ToMap())
}

// UnmarshalCBOR implements cbor.Unmarshaler
func (d *Document) UnmarshalCBOR(data []byte) error {
	var raw map[string]any
	if err := cborDecMode.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document must be a CBOR map")
	}
	return d.fromMap(raw)
}

// FromMap replaces the document content with m
func (d *Document) FromMap(m map[string]any) error {
	return d.fromMap(m)
}

// ToMap returns the flat representation of the document
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, len(d.Attributes)+3)
	for k, v := range d.Attributes {
		out[k] = v
	}
	if d.ID != nil {
		out[KeyID] = d.ID
	}
	out[KeyVersion] = d.Version
	if !d.LastModified.IsZero() {
		out[KeyLastModified] = d.LastModified
	}
	return out
}

func (d *Document) fromMap(raw map[string]any) error {
	attrs := make(map[string]any, len(raw))
	for k, v := range raw {
		attrs[k] = v
	}

	d.ID = nil
	if id, ok := attrs[KeyID]; ok {
		delete(attrs, KeyID)
		if d.idType != "" {
			coerced, err := d.idType.Coerce(id)
			if err != nil {
				return err
			}
			id = coerced
		}
		d.ID = id
	}

	d.Version = 0
	if v, ok := attrs[KeyVersion]; ok {
		delete(attrs, KeyVersion)
		switch n := v.(type) {
		case float64:
			d.Version = int64(n)
		case int64:
			d.Version = n
		case int:
			d.Version = int64(n)
		case uint64:
			d.Version = int64(n)
		case json.Number:
			parsed, err := n.Int64()
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			d.Version = parsed
		case nil:
		default:
			return fmt.Errorf("invalid version %v", v)
		}
	}

	d.LastModified = time.Time{}
	if lm, ok := attrs[KeyLastModified]; ok {
		delete(attrs, KeyLastModified)
		switch t := lm.(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return fmt.Errorf("invalid lastModified: %w", err)
			}
			d.LastModified = parsed
		case time.Time:
			d.LastModified = t
		}
	}

	d.Attributes = attrs
	return nil
}
