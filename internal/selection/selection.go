package selection

import (
	"context"
	"fmt"
	"sync"

	"attendsync/internal/attendance"
)

// Backend persists one selected class per owner.
type Backend interface {
	// Load returns nil when nothing is stored for owner.
	Load(ctx context.Context, owner string) (*attendance.Class, error)
	Save(ctx context.Context, owner string, c attendance.Class) error
	Clear(ctx context.Context, owner string) error
}

// Store is the selected class of one signed-in identity. The value is
// loaded from the backend when the store is opened and written back on
// every change.
type Store struct {
	backend Backend
	owner   string

	mu    sync.Mutex
	value *attendance.Class
}

// Open loads owner's persisted selection.
func Open(ctx context.Context, backend Backend, owner string) (*Store, error) {
	v, err := backend.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load selection: %w", err)
	}
	return &Store{backend: backend, owner: owner, value: v}, nil
}

// Value returns the selected class, if any.
func (s *Store) Value() (attendance.Class, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return attendance.Class{}, false
	}
	return *s.value, true
}

// Set replaces the selection; nil clears it. The new value is persisted
// before Set returns.
func (s *Store) Set(ctx context.Context, c *attendance.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		if err := s.backend.Clear(ctx, s.owner); err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}
		s.value = nil
		return nil
	}
	if err := s.backend.Save(ctx, s.owner, *c); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	v := *c
	s.value = &v
	return nil
}

// Reconcile clears the selection when its class is not in classes, which
// is a freshly fetched class list for the owner. An empty list always
// clears. It reports whether the selection was cleared.
func (s *Store) Reconcile(ctx context.Context, classes []attendance.Class) (bool, error) {
	cur, ok := s.Value()
	if !ok {
		return false, nil
	}
	for _, c := range classes {
		if c.ID == cur.ID {
			return false, nil
		}
	}
	if err := s.Set(ctx, nil); err != nil {
		return false, err
	}
	return true, nil
}
