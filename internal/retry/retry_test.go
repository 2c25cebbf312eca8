package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/autherr"
	"admin-auth-service/internal/repository"
)

func TestReadRetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := Read(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestReadRetriesOnlyOnce(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestReadStopsOnPermanentErrors(t *testing.T) {
	for _, perm := range []error{repository.ErrNotFound, autherr.ErrInvalidSession} {
		calls := 0
		err := Do(context.Background(), func(context.Context) error {
			calls++
			return perm
		})
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, calls)
	}
}

func TestReadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
