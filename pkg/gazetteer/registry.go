package gazetteer

import (
	"context"
	"sync"

	"github.com/placelore/gazetteer/pkg/errors"
)

// Registry holds the immutable identity records for places. Implementations
// must assign stable IDs exactly once and never delete entities.
type Registry interface {
	// Register stores a new entity, assigning an ID if none is set.
	// Registering an entity whose external key is already claimed returns
	// the existing entity and ErrAlreadyExists.
	Register(ctx context.Context, entity Entity) (Entity, error)

	// Entity returns an entity by its stable ID.
	Entity(ctx context.Context, id EntityID) (Entity, error)

	// ByExternalKey resolves an external key to its entity.
	ByExternalKey(ctx context.Context, key ExternalKey) (Entity, error)

	// AddExternalKey links an additional source namespace key to an entity.
	AddExternalKey(ctx context.Context, id EntityID, key ExternalKey) error

	// List returns all registered entities.
	List(ctx context.Context) ([]Entity, error)

	// Len returns the number of registered entities.
	Len(ctx context.Context) (int, error)
}

// registry is the in-memory Registry implementation.
type registry struct {
	mu       sync.RWMutex
	entities map[EntityID]Entity
	byKey    map[ExternalKey]EntityID
}

// NewRegistry creates an in-memory entity registry.
func NewRegistry() Registry {
	return &registry{
		entities: make(map[EntityID]Entity),
		byKey:    make(map[ExternalKey]EntityID),
	}
}

// Register stores a new entity, assigning an ID if none is set.
func (r *registry) Register(_ context.Context, entity Entity) (Entity, error) {
	if entity.ID == "" {
		entity.ID = NewEntityID()
	}
	if err := entity.Validate(); err != nil {
		return Entity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entities[entity.ID]; ok {
		return existing, errors.ErrAlreadyExists
	}
	for _, key := range entity.ExternalKeys {
		if owner, claimed := r.byKey[key]; claimed {
			return r.entities[owner], errors.ErrAlreadyExists
		}
	}

	r.entities[entity.ID] = entity
	for _, key := range entity.ExternalKeys {
		r.byKey[key] = entity.ID
	}
	return entity, nil
}

// Entity returns an entity by its stable ID.
func (r *registry) Entity(_ context.Context, id EntityID) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.entities[id]
	if !ok {
		return Entity{}, errors.NewNotFoundError("entity", string(id))
	}
	return entity, nil
}

// ByExternalKey resolves an external key to its entity.
func (r *registry) ByExternalKey(_ context.Context, key ExternalKey) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return Entity{}, errors.NewNotFoundError("entity", key.String())
	}
	return r.entities[id], nil
}

// AddExternalKey links an additional source namespace key to an entity.
func (r *registry) AddExternalKey(_ context.Context, id EntityID, key ExternalKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return errors.NewNotFoundError("entity", string(id))
	}
	if owner, claimed := r.byKey[key]; claimed {
		if owner == id {
			return nil
		}
		return errors.ErrAlreadyExists
	}
	if _, exists := entity.Key(key.Source); exists {
		return errors.NewValidationError("external_keys", key,
			"entity already carries a key in this source namespace")
	}

	entity.ExternalKeys = append(entity.ExternalKeys, key)
	r.entities[id] = entity
	r.byKey[key] = id
	return nil
}

// List returns all registered entities.
func (r *registry) List(_ context.Context) ([]Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]Entity, 0, len(r.entities))
	for _, entity := range r.entities {
		entities = append(entities, entity)
	}
	return entities, nil
}

// Len returns the number of registered entities.
func (r *registry) Len(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities), nil
}
