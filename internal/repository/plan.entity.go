package repository

import "github.com/nimasrn/sms-credits/internal/model"

type PlanEntity struct {
	ID           int64  `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	Name         string `db:"name"          gorm:"column:name;not null;uniqueIndex"`
	Credits      uint   `db:"credits"       gorm:"column:credits;not null"`
	Price        uint   `db:"price"         gorm:"column:price;not null"`
	DurationDays uint   `db:"duration_days" gorm:"column:duration_days;not null;default:30"`
}

func (PlanEntity) TableName() string {
	return "plans"
}

func toPlanEntity(m *model.Plan) *PlanEntity {
	if m == nil {
		return nil
	}
	return &PlanEntity{
		ID:           m.ID,
		Name:         m.Name,
		Credits:      m.Credits,
		Price:        m.Price,
		DurationDays: m.DurationDays,
	}
}

func toPlanModel(e *PlanEntity) *model.Plan {
	if e == nil {
		return nil
	}
	return &model.Plan{
		ID:           e.ID,
		Name:         e.Name,
		Credits:      e.Credits,
		Price:        e.Price,
		DurationDays: e.DurationDays,
	}
}

func toPlanModels(entities []*PlanEntity) []*model.Plan {
	if entities == nil {
		return nil
	}
	models := make([]*model.Plan, len(entities))
	for i, e := range entities {
		models[i] = toPlanModel(e)
	}
	return models
}
