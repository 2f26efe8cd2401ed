// Package repository defines the uniform data-access facade the dispatcher
// consumes, the capability set entities implement, and paging primitives.
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by DeleteByID when no entity has the given id
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned by Save when the stored version differs from the
	// version carried by the entity
	ErrConflict = errors.New("entity was modified concurrently")
)

// Invoker is the uniform operation set over one concrete store. Every call
// is atomic with respect to concurrent callers.
type Invoker interface {
	// FindAll returns every entity, ordered by sort when it is non-empty
	FindAll(ctx context.Context, sort Sort) ([]Entity, error)

	// FindPage returns one page of entities
	FindPage(ctx context.Context, pageable Pageable) (Page, error)

	// FindByID returns the entity with the given id; ok is false when absent
	FindByID(ctx context.Context, id any) (entity Entity, ok bool, err error)

	// Save inserts or updates an entity. Entities without identity get one
	// assigned. The returned entity carries the stored version.
	Save(ctx context.Context, entity Entity) (Entity, error)

	// DeleteByID removes the entity with the given id
	DeleteByID(ctx context.Context, id any) error
}
