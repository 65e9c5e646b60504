package repository

import (
	"context"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
)

type DeliveryReportRepository struct {
	*pg.DB
}

func NewDeliveryReportRepository(db *pg.DB) *DeliveryReportRepository {
	return &DeliveryReportRepository{
		db,
	}
}

func (r *DeliveryReportRepository) Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error) {
	entity := toDeliveryReportEntity(dr)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, pg.Classify(err)
	}

	return toDeliveryReportModel(entity), nil
}

// ListByMessage returns the reports of a message, newest first.
func (r *DeliveryReportRepository) ListByMessage(ctx context.Context, messageID int64) ([]*model.DeliveryReport, error) {
	var entities []*DeliveryReportEntity
	err := r.Read(ctx).
		Where("message_id = ?", messageID).
		Order("id DESC").
		Find(&entities).
		Error
	if err != nil {
		return nil, pg.Classify(err)
	}
	return toDeliveryReportModels(entities), nil
}
