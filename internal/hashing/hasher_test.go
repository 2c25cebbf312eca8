package hashing

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestHasher(t *testing.T, current Pepper, previous ...Pepper) *Hasher {
	t.Helper()
	h, err := NewHasherWithParams(testParams, 2, current, previous...)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher(t, Pepper{Value: "pepper-one", Version: 1})

	encoded, err := h.Hash(ctx, "Correct-Horse-9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1,k=1$"))
	assert.NotContains(t, encoded, "Correct-Horse-9")

	ok, err := h.Verify(ctx, "Correct-Horse-9", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "correct-horse-9", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher(t, Pepper{Value: "p", Version: 1})

	a, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPreviousPepperStillVerifies(t *testing.T) {
	ctx := context.Background()
	old := newTestHasher(t, Pepper{Value: "old", Version: 1})
	encoded, err := old.Hash(ctx, "Password-1")
	require.NoError(t, err)

	rotated := newTestHasher(t, Pepper{Value: "new", Version: 2}, Pepper{Value: "old", Version: 1})
	ok, err := rotated.Verify(ctx, "Password-1", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, rotated.NeedsRehash(encoded))

	dropped := newTestHasher(t, Pepper{Value: "new", Version: 2})
	_, err = dropped.Verify(ctx, "Password-1", encoded)
	assert.ErrorIs(t, err, ErrUnknownPepper)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher(t, Pepper{Value: "p", Version: 1})

	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1024,t=1,p=1,k=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1,k=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1,k=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1,k=1$!!$aGFzaA",
	} {
		_, err := h.Verify(ctx, "x", bad)
		assert.Error(t, err, bad)
	}
}

func TestDummyVerifyAndCancelledContext(t *testing.T) {
	h := newTestHasher(t, Pepper{Value: "p", Version: 1})
	assert.NoError(t, h.VerifyDummy(context.Background(), "anything"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Fill the pool so Acquire must wait and observe the cancellation.
	require.NoError(t, h.pool.Acquire(context.Background(), 2))
	defer h.pool.Release(2)
	_, err := h.Hash(ctx, "Password-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentHashingIsBounded(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher(t, Pepper{Value: "p", Version: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			encoded, err := h.Hash(ctx, "Password-1")
			assert.NoError(t, err)
			ok, err := h.Verify(ctx, "Password-1", encoded)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
