package repository

import (
	"context"
	"sync"
)

// Entity is a base interface for all entities.
type Entity interface {
	GetID() string
}

// InMemoryRepository is a concurrency-safe in-memory table. Values are cloned
// on the way in and out so callers never share state with the store.
type InMemoryRepository[T Entity] struct {
	mu    sync.RWMutex
	data  map[string]T
	clone func(T) T
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository[T Entity](clone func(T) T) *InMemoryRepository[T] {
	return &InMemoryRepository[T]{
		data:  make(map[string]T),
		clone: clone,
	}
}

// GetByID retrieves an entity by ID.
func (r *InMemoryRepository[T]) GetByID(ctx context.Context, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if entity, ok := r.data[id]; ok {
		return r.clone(entity), nil
	}
	return zero, ErrNotFound
}

// Find returns clones of all entities matching keep.
func (r *InMemoryRepository[T]) Find(ctx context.Context, keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	for _, entity := range r.data {
		if keep(entity) {
			out = append(out, r.clone(entity))
		}
	}
	return out
}

// Create creates a new entity.
func (r *InMemoryRepository[T]) Create(ctx context.Context, entity T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[entity.GetID()]; ok {
		return ErrAlreadyExists
	}
	r.data[entity.GetID()] = r.clone(entity)
	return nil
}

// Put inserts or replaces an entity.
func (r *InMemoryRepository[T]) Put(ctx context.Context, entity T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[entity.GetID()] = r.clone(entity)
}

// Mutate applies fn to the stored entity under the write lock. The change is
// kept only when fn returns nil.
func (r *InMemoryRepository[T]) Mutate(ctx context.Context, id string, fn func(T) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateLocked(id, fn)
}

func (r *InMemoryRepository[T]) mutateLocked(id string, fn func(T) error) error {
	entity, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	working := r.clone(entity)
	if err := fn(working); err != nil {
		return err
	}
	r.data[id] = working
	return nil
}

// MutateAll applies fn to every entity under the write lock and returns
// clones of those fn reported as changed.
func (r *InMemoryRepository[T]) MutateAll(ctx context.Context, fn func(T) bool) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []T
	for id, entity := range r.data {
		working := r.clone(entity)
		if fn(working) {
			r.data[id] = working
			changed = append(changed, r.clone(working))
		}
	}
	return changed
}

// Delete deletes an entity by ID.
func (r *InMemoryRepository[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// Common repository errors
var (
	ErrNotFound      = &RepositoryError{Code: "NOT_FOUND", Message: "entity not found"}
	ErrAlreadyExists = &RepositoryError{Code: "ALREADY_EXISTS", Message: "entity already exists"}
	ErrNotInProgress = &RepositoryError{Code: "NOT_IN_PROGRESS", Message: "session is not in progress"}
)

// RepositoryError represents a repository error.
type RepositoryError struct {
	Code    string
	Message string
}

func (e *RepositoryError) Error() string {
	return e.Code + ": " + e.Message
}
