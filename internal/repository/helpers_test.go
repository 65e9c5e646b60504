package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens a private in-memory sqlite database. One open connection
// serializes statements the way row locks would on postgres.
func setupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), pg.Options())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&UserEntity{},
		&PlanEntity{},
		&TransactionEntity{},
		&MessageEntity{},
		&DeliveryReportEntity{},
	))

	return pg.New(db, db)
}

func createUser(t *testing.T, db *pg.DB, credits uint) *model.User {
	t.Helper()
	u, err := NewUserRepository(db).Create(context.Background(), &model.User{Credits: credits})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T {
	return &v
}
