package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// OperatorStore persists operator identities.
type OperatorStore interface {
	// Upsert inserts op, or updates role, password hash and active flag of the
	// operator with the same email. op.ID and op.CreatedAt are set to the stored values.
	Upsert(ctx context.Context, op *Operator) error
	Find(ctx context.Context, id string) (*Operator, error)
	FindByEmail(ctx context.Context, email string) (*Operator, error)
	List(ctx context.Context) ([]*Operator, error)
}

// MemoryOperators is an in-process OperatorStore.
type MemoryOperators struct {
	mu      sync.RWMutex
	byID    map[string]*Operator
	byEmail map[string]string
}

// NewMemoryOperators returns an empty store.
func NewMemoryOperators() *MemoryOperators {
	return &MemoryOperators{
		byID:    make(map[string]*Operator),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryOperators) Upsert(_ context.Context, op *Operator) error {
	if op == nil || op.ID == "" || op.Email == "" {
		return ErrInvalidInput
	}
	key := strings.ToLower(op.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byEmail[key]; ok {
		cur := m.byID[id]
		cur.Role = op.Role
		cur.PasswordHash = op.PasswordHash
		cur.IsActive = op.IsActive
		cur.UpdatedAt = op.UpdatedAt
		op.ID = cur.ID
		op.CreatedAt = cur.CreatedAt
		return nil
	}
	if _, ok := m.byID[op.ID]; ok {
		return ErrConflict
	}
	cp := *op
	m.byID[op.ID] = &cp
	m.byEmail[key] = op.ID
	return nil
}

func (m *MemoryOperators) Find(_ context.Context, id string) (*Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *MemoryOperators) FindByEmail(ctx context.Context, email string) (*Operator, error) {
	m.mu.RLock()
	id, ok := m.byEmail[strings.ToLower(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *MemoryOperators) List(context.Context) ([]*Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Operator, 0, len(m.byID))
	for _, op := range m.byID {
		cp := *op
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
