package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRepository_Seed(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	n, err := repo.Seed(ctx, model.DefaultPlans())
	require.NoError(t, err)
	assert.Equal(t, int64(len(model.DefaultPlans())), n)

	t.Run("seeding twice adds nothing", func(t *testing.T) {
		n, err := repo.Seed(ctx, model.DefaultPlans())
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	plans, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, len(model.DefaultPlans()))
	assert.Equal(t, "Test", plans[0].Name)

	got, err := repo.Get(ctx, plans[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "Standard", got.Name)
	assert.Equal(t, uint(500), got.Credits)
}

func TestPlanRepository_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewPlanRepository(db).Get(context.Background(), 77)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
