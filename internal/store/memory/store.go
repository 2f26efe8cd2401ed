// Package memory provides an in-process Invoker backed by a map. Entities are
// held as JSON snapshots so callers never share state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

type record struct {
	id       any
	version  int64
	modified time.Time
	data     []byte
	fields   map[string]any
}

// Store is a concurrency-safe in-memory Invoker
type Store struct {
	mu       sync.RWMutex
	idType   repository.IDType
	factory  repository.Factory
	records  map[string]*record
	sequence int64
	clock    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the time source used for modification stamps
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an empty store for entities created by factory
func New(idType repository.IDType, factory repository.Factory, opts ...Option) *Store {
	if idType == "" {
		idType = repository.IDInt64
	}
	s := &Store{
		idType:  idType,
		factory: factory,
		records: make(map[string]*record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of stored entities
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FindAll implements repository.Invoker
func (s *Store) FindAll(ctx context.Context, order repository.Sort) ([]repository.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.RUnlock()

	sortRecords(records, order)

	out := make([]repository.Entity, 0, len(records))
	for _, r := range records {
		e, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FindPage implements repository.Invoker
func (s *Store) FindPage(ctx context.Context, pageable repository.Pageable) (repository.Page, error) {
	all, err := s.FindAll(ctx, pageable.Sort)
	if err != nil {
		return repository.Page{}, err
	}
	return repository.Slice(all, pageable), nil
}

// FindByID implements repository.Invoker
func (s *Store) FindByID(ctx context.Context, id any) (repository.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	key, err := s.key(id)
	if err != nil {
		return nil, false, nil
	}

	s.mu.RLock()
	r, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	e, err := s.decode(r)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Save implements repository.Invoker. An entity whose version differs from
// the stored version is rejected with repository.ErrConflict.
func (s *Store) Save(ctx context.Context, entity repository.Entity) (repository.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()
	if id == nil {
		id = s.nextID()
	} else {
		coerced, err := s.idType.Coerce(id)
		if err != nil {
			return nil, fmt.Errorf("save: %w", err)
		}
		id = coerced
		s.advance(id)
	}
	key := repository.FormatID(id)

	version := int64(1)
	if existing, ok := s.records[key]; ok {
		if v, versioned := repository.VersionOf(entity); versioned && v != existing.version {
			return nil, fmt.Errorf("%s at version %d, got %d: %w", key, existing.version, v, repository.ErrConflict)
		}
		version = existing.version + 1
	}

	modified := s.clock().UTC()
	entity.SetEntityID(id)
	repository.StampIfSupported(entity, version, modified)

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		fields = nil
	}

	r := &record{id: id, version: version, modified: modified, data: data, fields: fields}
	s.records[key] = r
	return s.decode(r)
}

// DeleteByID implements repository.Invoker
func (s *Store) DeleteByID(ctx context.Context, id any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := s.key(id)
	if err != nil {
		return repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%s: %w", key, repository.ErrNotFound)
	}
	delete(s.records, key)
	return nil
}

func (s *Store) key(id any) (string, error) {
	coerced, err := s.idType.Coerce(id)
	if err != nil {
		return "", err
	}
	if coerced == nil {
		return "", fmt.Errorf("nil id")
	}
	return repository.FormatID(coerced), nil
}

func (s *Store) nextID() any {
	if s.idType == repository.IDInt64 {
		s.sequence++
		return s.sequence
	}
	return uuid.NewString()
}

// advance moves the sequence past an explicitly supplied numeric id
func (s *Store) advance(id any) {
	if n, ok := id.(int64); ok && n > s.sequence {
		s.sequence = n
	}
}

func (s *Store) decode(r *record) (repository.Entity, error) {
	e := s.factory()
	if err := json.Unmarshal(r.data, e); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", repository.FormatID(r.id), err)
	}
	e.SetEntityID(r.id)
	repository.StampIfSupported(e, r.version, r.modified)
	return e, nil
}

func sortRecords(records []*record, order repository.Sort) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range order {
			c := compare(records[i].field(o.Property), records[j].field(o.Property))
			if c == 0 {
				continue
			}
			if o.Direction == repository.Desc {
				return c > 0
			}
			return c < 0
		}
		return compare(records[i].id, records[j].id) < 0
	})
}

func (r *record) field(name string) any {
	switch name {
	case repository.KeyID:
		return r.id
	case repository.KeyVersion:
		return r.version
	}
	return r.fields[name]
}

// compare orders nil first, then numbers, strings and booleans; values of
// different kinds compare by their formatted text
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}

	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}

	x, y := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
