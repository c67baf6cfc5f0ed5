package auth

import (
	"context"
	"sync"
	"time"

	"vitrina.org/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store with in-process concurrency safety. It backs
// tests and DSN-less runs of the API.
type MemStore struct {
	mu     sync.RWMutex
	users  map[string]*Principal
	admins map[string]*Principal
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:  make(map[string]*Principal),
		admins: make(map[string]*Principal),
	}
}

func (s *MemStore) Users(context.Context) PrincipalStore {
	return &memNamespace{store: s, kind: KindUser}
}

func (s *MemStore) Admins(context.Context) PrincipalStore {
	return &memNamespace{store: s, kind: KindAdmin}
}

func (s *MemStore) namespace(kind Kind) map[string]*Principal {
	if kind == KindAdmin {
		return s.admins
	}
	return s.users
}

type memNamespace struct {
	store *MemStore
	kind  Kind
}

func (n *memNamespace) Create(ctx context.Context, p *Principal) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	m := n.store.namespace(n.kind)
	for _, existing := range m {
		if existing.Username == p.Username {
			return ErrAlreadyExists
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := time.Now().UTC()
	p.Kind = n.kind
	p.CreatedAt = now
	p.UpdatedAt = now
	stored := *p
	m[p.ID] = &stored
	return nil
}

func (n *memNamespace) Find(ctx context.Context, id string) (*Principal, error) {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	p, ok := n.store.namespace(n.kind)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPrincipal(p), nil
}

func (n *memNamespace) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	for _, p := range n.store.namespace(n.kind) {
		if p.Username == username {
			return copyPrincipal(p), nil
		}
	}
	return nil, ErrNotFound
}

func (n *memNamespace) SetRefreshToken(ctx context.Context, id string, token *string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	p, ok := n.store.namespace(n.kind)[id]
	if !ok {
		return ErrNotFound
	}
	if token == nil {
		p.RefreshToken = nil
	} else {
		v := *token
		p.RefreshToken = &v
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (n *memNamespace) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	p, ok := n.store.namespace(n.kind)[id]
	if !ok {
		return ErrUnauthorized
	}
	// Check-and-set under the lock: the presented token must still be the
	// single live value.
	if p.RefreshToken == nil || *p.RefreshToken != presented {
		return ErrUnauthorized
	}
	v := next
	p.RefreshToken = &v
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func copyPrincipal(p *Principal) *Principal {
	out := *p
	if p.RefreshToken != nil {
		v := *p.RefreshToken
		out.RefreshToken = &v
	}
	return &out
}
