package registry

import (
	"crypto/sha256"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bourse/internal/domain"
)

func TestRegister_AndGet(t *testing.T) {
	r := New()
	b := &domain.Broker{ID: uuid.New(), Name: "acme", CredentialHash: sha256.Sum256([]byte("key"))}
	r.Register(b)

	got, ok := r.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, "acme", got.Name)
}

func TestRegister_IsIdempotentOnSameID(t *testing.T) {
	r := New()
	id := uuid.New()
	r.Register(&domain.Broker{ID: id, Name: "first"})
	r.Register(&domain.Broker{ID: id, Name: "second"})

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "second", got.Name)
}

func TestAuthenticate_ResolvesCredentialHash(t *testing.T) {
	r := New()
	hash := sha256.Sum256([]byte("secret"))
	b := &domain.Broker{ID: uuid.New(), CredentialHash: hash}
	r.Register(b)

	id, ok := r.Authenticate(hash)
	require.True(t, ok)
	assert.Equal(t, b.ID, id)
}

func TestAuthenticate_UnknownHashFails(t *testing.T) {
	r := New()
	_, ok := r.Authenticate(sha256.Sum256([]byte("nope")))
	assert.False(t, ok)
}

func TestAdjustBalance_AccumulatesAndReportsUnknownBroker(t *testing.T) {
	r := New()
	id := uuid.New()
	r.Register(&domain.Broker{ID: id})

	assert.True(t, r.AdjustBalance(id, 100))
	assert.True(t, r.AdjustBalance(id, -30))

	bal, ok := r.Balance(id)
	require.True(t, ok)
	assert.Equal(t, int64(70), bal)

	assert.False(t, r.AdjustBalance(uuid.New(), 5))
}
