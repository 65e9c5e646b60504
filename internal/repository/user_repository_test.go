package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Grant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("adds to the balance", func(t *testing.T) {
		u := createUser(t, db, 10)
		require.NoError(t, repo.Grant(ctx, u.ID, 500))

		credits, err := repo.GetCredits(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(510), credits)
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.ErrorIs(t, repo.Grant(ctx, 999, 5), ErrUserNotFound)
	})
}

func TestUserRepository_SpendIfAvailable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	t.Run("successful spend", func(t *testing.T) {
		u := createUser(t, db, 10)
		require.NoError(t, repo.SpendIfAvailable(ctx, u.ID, 3))

		credits, err := repo.GetCredits(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(7), credits)
	})

	t.Run("exact balance", func(t *testing.T) {
		u := createUser(t, db, 4)
		require.NoError(t, repo.SpendIfAvailable(ctx, u.ID, 4))

		credits, err := repo.GetCredits(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(0), credits)
	})

	t.Run("insufficient credits leaves balance untouched", func(t *testing.T) {
		u := createUser(t, db, 3)
		assert.ErrorIs(t, repo.SpendIfAvailable(ctx, u.ID, 5), ErrInsufficientCredits)

		credits, err := repo.GetCredits(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(3), credits)
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.ErrorIs(t, repo.SpendIfAvailable(ctx, 999, 1), ErrUserNotFound)
	})

	t.Run("rolled back with the surrounding transaction", func(t *testing.T) {
		u := createUser(t, db, 10)
		boom := errors.New("boom")

		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := repo.SpendIfAvailable(ctx, u.ID, 6); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		credits, err := repo.GetCredits(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(10), credits)
	})
}

func TestUserRepository_ConcurrentSpendNeverGoesNegative(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createUser(t, db, 50)

	var wg sync.WaitGroup
	var spent, rejected atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.SpendIfAvailable(ctx, u.ID, 1)
			switch {
			case err == nil:
				spent.Add(1)
			case errors.Is(err, ErrInsufficientCredits):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	credits, err := repo.GetCredits(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), spent.Load())
	assert.Equal(t, int64(50), rejected.Load())
	assert.Equal(t, uint(0), credits)
}

func TestUserRepository_ConcurrentGrantAndSpend(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	const initial = 20
	u := createUser(t, db, initial)

	var wg sync.WaitGroup
	var spent atomic.Int64
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := repo.Grant(ctx, u.ID, 2); err != nil {
				t.Errorf("grant: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			err := repo.SpendIfAvailable(ctx, u.ID, 3)
			if err == nil {
				spent.Add(3)
				return
			}
			if !errors.Is(err, ErrInsufficientCredits) {
				t.Errorf("spend: %v", err)
			}
		}()
	}
	wg.Wait()

	credits, err := repo.GetCredits(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(initial+40*2)-spent.Load(), int64(credits))
}

func TestUserRepository_SetPlan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createUser(t, db, 0)
	require.NoError(t, repo.SetPlan(ctx, u.ID, 3))

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PlanID)
	assert.Equal(t, int64(3), *got.PlanID)

	assert.ErrorIs(t, repo.SetPlan(ctx, 999, 3), ErrUserNotFound)
}

func TestUserRepository_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewUserRepository(db).Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
