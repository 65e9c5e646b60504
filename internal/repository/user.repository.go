package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// UserRepository is the credit ledger. Balances only change through single
// conditional UPDATE statements, never read-modify-write in Go.
type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if u == nil {
		u = &model.User{}
	}
	entity := toUserEntity(u)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, pg.Classify(err)
	}

	return toUserModel(entity), nil
}

func (r *UserRepository) Get(ctx context.Context, userID int64) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).
		Where("id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, pg.Classify(err)
	}

	return toUserModel(&entity), nil
}

func (r *UserRepository) GetCredits(ctx context.Context, userID int64) (uint, error) {
	var entity UserEntity
	err := r.Read(ctx).
		Select("credits").
		Where("id = ?", userID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, pg.Classify(err)
	}

	return entity.Credits, nil
}

// Grant adds amount to the balance in one atomic increment.
func (r *UserRepository) Grant(ctx context.Context, userID int64, amount uint) error {
	result := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("credits", gorm.Expr("credits + ?", amount))

	if result.Error != nil {
		return pg.Classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SpendIfAvailable decrements the balance only if it covers amount. The check
// and the decrement are the same statement, so concurrent spends can never
// push the balance below zero. Nothing changes when it fails.
func (r *UserRepository) SpendIfAvailable(ctx context.Context, userID int64, amount uint) error {
	result := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ? AND credits >= ?", userID, amount).
		Update("credits", gorm.Expr("credits - ?", amount))

	if result.Error != nil {
		return pg.Classify(result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	// zero rows: either the user is gone or the balance is short
	if _, err := r.GetCredits(ctx, userID); err != nil {
		return err
	}
	return ErrInsufficientCredits
}

func (r *UserRepository) SetPlan(ctx context.Context, userID int64, planID int64) error {
	result := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update("plan_id", planID)

	if result.Error != nil {
		return pg.Classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
