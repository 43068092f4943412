package main

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbilibin2017/user-service/internal/models"
	"github.com/sbilibin2017/user-service/internal/repositories"
	"github.com/sbilibin2017/user-service/internal/services"
	"github.com/sbilibin2017/user-service/internal/session"
)

func newSeedMocks(t *testing.T) (*services.MockScopeRunner, *services.MockStore, *services.MockPasswordHasher) {
	ctrl := gomock.NewController(t)
	runner := services.NewMockScopeRunner(ctrl)
	store := services.NewMockStore(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, session.Store) error) error {
			return fn(ctx, store)
		})
	return runner, store, services.NewMockPasswordHasher(ctrl)
}

func TestSeed_EmptyTable(t *testing.T) {
	runner, store, hasher := newSeedMocks(t)

	store.EXPECT().FindMany(gomock.Any(), repositories.Everything(), 0, 1).Return([]models.User{}, nil)
	hasher.EXPECT().Hash(gomock.Any()).DoAndReturn(func(p string) (string, error) { return "hashed:" + p, nil }).Times(3)

	var inserted []*models.User
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			inserted = append(inserted, u)
			return nil
		}).Times(3)

	n, err := seed(context.Background(), runner, hasher)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, inserted, 3)
	assert.Equal(t, "admin", inserted[0].Username)
	assert.True(t, inserted[0].IsSuperuser)
	assert.Equal(t, "hashed:admin123", inserted[0].HashedPassword)
	assert.False(t, inserted[1].IsSuperuser)
	assert.Equal(t, "User Two", *inserted[2].FullName)
	for _, u := range inserted {
		assert.True(t, u.IsActive)
	}
}

func TestSeed_AlreadySeeded(t *testing.T) {
	runner, store, hasher := newSeedMocks(t)
	store.EXPECT().FindMany(gomock.Any(), repositories.Everything(), 0, 1).Return([]models.User{{ID: 1}}, nil)

	n, err := seed(context.Background(), runner, hasher)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeed_InsertError(t *testing.T) {
	runner, store, hasher := newSeedMocks(t)
	insertErr := errors.New("insert failed")

	store.EXPECT().FindMany(gomock.Any(), gomock.Any(), 0, 1).Return(nil, nil)
	hasher.EXPECT().Hash(gomock.Any()).Return("h", nil)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(insertErr)

	n, err := seed(context.Background(), runner, hasher)
	assert.ErrorIs(t, err, insertErr)
	assert.Zero(t, n)
}
