// Package registry implements the broker registry of §3 component 4:
// a mapping from broker identifier to broker record, plus a reverse
// mapping from credential-hash to broker identifier for
// authentication lookups. It is pure in-memory state; durable writes
// are the caller's responsibility (see internal/persistence).
package registry

import (
	"sync"

	"github.com/google/uuid"

	"bourse/internal/domain"
)

// Registry is safe for concurrent read access; writes (Register,
// AdjustBalance) are expected to be serialized by the engine's
// single-writer discipline, but the mutex is kept so the occasional
// out-of-band admin read (e.g. a metrics exporter) cannot race.
type Registry struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*domain.Broker
	byCredent map[[32]byte]uuid.UUID
}

func New() *Registry {
	return &Registry{
		byID:      make(map[uuid.UUID]*domain.Broker),
		byCredent: make(map[[32]byte]uuid.UUID),
	}
}

// Register installs a broker record, created fresh or recovered from
// durable storage at startup. It overwrites any existing entry with
// the same ID, which recovery relies on to be idempotent.
func (r *Registry) Register(b *domain.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
	r.byCredent[b.CredentialHash] = b.ID
}

// Get looks a broker up by ID.
func (r *Registry) Get(id uuid.UUID) (*domain.Broker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}

// Authenticate resolves a credential hash to a broker ID, as used by
// the outer layer's (out-of-scope) authentication step.
func (r *Registry) Authenticate(hash [32]byte) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCredent[hash]
	return id, ok
}

// Balance returns a broker's current cash balance.
func (r *Registry) Balance(id uuid.UUID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return 0, false
	}
	return b.Balance, true
}

// AdjustBalance applies a signed delta to a broker's balance. It is a
// no-op (and reports false) if the broker is unknown; callers within
// the engine should never hit that path since brokers are validated
// at order admission.
func (r *Registry) AdjustBalance(id uuid.UUID, delta int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return false
	}
	b.Balance += delta
	return true
}
