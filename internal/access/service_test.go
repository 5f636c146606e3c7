package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mcportal/internal/models"
)

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func TestService(t *testing.T) {
	users := new(mockUsers)
	svc := NewService(users, zerolog.New(io.Discard))
	ctx := context.Background()

	users.On("GetUserByID", ctx, int64(1)).Return(&models.User{ID: 1, Username: "admin", IsAdmin: true}, nil)
	users.On("GetUserByID", ctx, int64(2)).Return(&models.User{ID: 2, Username: "steve"}, nil)
	users.On("GetUserByID", ctx, int64(3)).Return(nil, sql.ErrNoRows)
	users.On("GetUserByID", ctx, int64(4)).Return(nil, errors.New("disk on fire"))

	t.Run("AnonymousIsUnauthenticated", func(t *testing.T) {
		_, err := svc.Middleware(ctx, 0)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("DeletedUserIsUnauthenticated", func(t *testing.T) {
		_, err := svc.Middleware(ctx, 3)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("StorageErrorIsNotAccessDenied", func(t *testing.T) {
		_, err := svc.Middleware(ctx, 4)
		require.Error(t, err)
		assert.False(t, IsAccessDenied(err))
	})

	t.Run("AdminGate", func(t *testing.T) {
		actor, err := svc.AdminMiddleware(ctx, 1)
		require.NoError(t, err)
		assert.True(t, actor.IsAdmin)

		_, err = svc.AdminMiddleware(ctx, 2)
		assert.True(t, IsAccessDenied(err))
		assert.False(t, IsUnauthenticated(err))
	})
}

func TestRequireCreatorOrAdmin(t *testing.T) {
	assert.NoError(t, RequireCreatorOrAdmin(Actor{UserID: 5}, 5))
	assert.NoError(t, RequireCreatorOrAdmin(Actor{UserID: 1, IsAdmin: true}, 5))

	err := RequireCreatorOrAdmin(Actor{UserID: 6}, 5)
	assert.True(t, IsAccessDenied(fmt.Errorf("wrapped: %w", err)))
}
