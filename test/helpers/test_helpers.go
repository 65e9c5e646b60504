package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/repository"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/nimasrn/sms-credits/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB returns a fresh in-memory sqlite database with every table
// migrated, used as both the read and the write handle.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db := SetupTestGorm(t)
	return pg.New(db, db)
}

// SetupTestGorm opens one migrated in-memory sqlite database. Tests that need
// a separate replica open two and pass them to pg.New.
//
// A single connection keeps runs deterministic but also serializes every
// transaction, so concurrent tests on top of it only prove that the
// conditional UPDATE statements admit one winner. They cannot catch a
// read-then-write race.
func SetupTestGorm(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), pg.Options())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&repository.UserEntity{},
		&repository.PlanEntity{},
		&repository.TransactionEntity{},
		&repository.MessageEntity{},
		&repository.DeliveryReportEntity{},
	)
	require.NoError(t, err)
	return db
}

// SetupTestRedis starts a miniredis instance that is shut down with the test.
// The adapter is registered under a name unique to the test.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter("test-"+uuid.NewString(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestUser(t *testing.T, db *pg.DB, credits uint) *model.User {
	t.Helper()
	u, err := repository.NewUserRepository(db).Create(context.Background(), &model.User{Credits: credits})
	require.NoError(t, err)
	return u
}

func CreateTestPlan(t *testing.T, db *pg.DB, name string, credits, price uint) *model.Plan {
	t.Helper()
	entity := &repository.PlanEntity{Name: name, Credits: credits, Price: price, DurationDays: 30}
	require.NoError(t, db.Write(context.Background()).Create(entity).Error)
	plan, err := repository.NewPlanRepository(db).Get(context.Background(), entity.ID)
	require.NoError(t, err)
	return plan
}

// CreatePendingPayment inserts a PENDING subscription or recharge row as if
// the gateway had already answered with reference.
func CreatePendingPayment(t *testing.T, db *pg.DB, userID int64, planID *int64, credits uint, reference string) *model.Transaction {
	t.Helper()
	kind := model.TransactionKindRecharge
	if planID != nil {
		kind = model.TransactionKindSubscription
	}
	txn, err := repository.NewTransactionRepository(db).Create(context.Background(), &model.Transaction{
		ExternalReference: &reference,
		UserID:            userID,
		PlanID:            planID,
		Amount:            credits,
		Credits:           credits,
		Kind:              kind,
		Status:            model.TransactionStatusPending,
		Phone:             "254712345678",
	})
	require.NoError(t, err)
	return txn
}

func UserCredits(t *testing.T, db *pg.DB, userID int64) uint {
	t.Helper()
	credits, err := repository.NewUserRepository(db).GetCredits(context.Background(), userID)
	require.NoError(t, err)
	return credits
}

func CountRows(t *testing.T, db *pg.DB, entity any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Read(context.Background()).Model(entity).Where(query, args...).Count(&n).Error)
	return n
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
