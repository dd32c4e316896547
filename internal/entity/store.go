package entity

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by Store.Load when no record exists for the key.
var ErrNotFound = errors.New("entity not found")

// Store is the persistent keyed mapping the handlers work against. Load
// returns a deep copy of the stored record; a mutation becomes visible
// only through Save. Handlers that abort mid-event therefore leave the
// store untouched.
type Store interface {
	Load(ctx context.Context, kind, id string) (Entity, error)
	Save(ctx context.Context, e Entity) error
}

// Load fetches a typed entity, returning ErrNotFound when absent.
func Load[T Entity](ctx context.Context, s Store, kind, id string) (T, error) {
	var zero T
	e, err := s.Load(ctx, kind, id)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, ErrNotFound
	}
	return t, nil
}

// LoadOrCreate fetches a typed entity, constructing it with defaults when
// absent. The freshly constructed entity is not saved; callers persist it
// explicitly once mutated.
func LoadOrCreate[T Entity](ctx context.Context, s Store, kind, id string, defaults func(id string) T) (T, error) {
	t, err := Load[T](ctx, s, kind, id)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		var zero T
		return zero, err
	}
	return defaults(id), nil
}

// MemoryStore keeps all entities in process memory. It is the backend for
// tests and the staging layer in front of the Postgres store.
type MemoryStore struct {
	records map[string]Entity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Entity)}
}

func storeKey(kind, id string) string {
	return kind + "|" + strings.ToLower(id)
}

func (m *MemoryStore) Load(ctx context.Context, kind, id string) (Entity, error) {
	e, ok := m.records[storeKey(kind, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, e Entity) error {
	m.records[storeKey(e.EntityKind(), e.EntityID())] = e.Clone()
	return nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int { return len(m.records) }

// Keys returns all store keys in sorted order. Used by tests comparing
// two stores and by the Postgres flusher.
func (m *MemoryStore) Keys() []string {
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored entity for a raw key, without copying. Only the
// flusher uses this; handlers go through Load.
func (m *MemoryStore) Get(key string) (Entity, bool) {
	e, ok := m.records[key]
	return e, ok
}
