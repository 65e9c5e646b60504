package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPlanNotFound = errors.New("plan not found")

type PlanRepository struct {
	*pg.DB
}

func NewPlanRepository(db *pg.DB) *PlanRepository {
	return &PlanRepository{
		db,
	}
}

func (r *PlanRepository) List(ctx context.Context) ([]*model.Plan, error) {
	var entities []*PlanEntity
	if err := r.Read(ctx).Order("price ASC, id ASC").Find(&entities).Error; err != nil {
		return nil, pg.Classify(err)
	}
	return toPlanModels(entities), nil
}

func (r *PlanRepository) Get(ctx context.Context, planID int64) (*model.Plan, error) {
	var entity PlanEntity
	err := r.Read(ctx).Where("id = ?", planID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, pg.Classify(err)
	}
	return toPlanModel(&entity), nil
}

// Seed inserts plans whose name is not taken yet and returns how many were
// added. Existing plans are left alone, so running it twice is harmless.
func (r *PlanRepository) Seed(ctx context.Context, plans []*model.Plan) (int64, error) {
	if len(plans) == 0 {
		return 0, nil
	}
	entities := make([]*PlanEntity, len(plans))
	for i, p := range plans {
		entities[i] = toPlanEntity(p)
	}

	result := r.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&entities)
	if result.Error != nil {
		return 0, pg.Classify(result.Error)
	}
	return result.RowsAffected, nil
}
