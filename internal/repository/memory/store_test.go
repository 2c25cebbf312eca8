package memory

import (
	"testing"

	"admin-auth-service/internal/repository"
	"admin-auth-service/internal/repository/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return NewStore()
	})
}
