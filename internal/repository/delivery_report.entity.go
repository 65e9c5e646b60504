package repository

import (
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
)

type DeliveryReportEntity struct {
	ID            int64      `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	MessageID     int64      `db:"message_id"     gorm:"column:message_id;not null;index"`
	Status        string     `db:"status"         gorm:"column:status;not null;index"`
	FailureReason string     `db:"failure_reason" gorm:"column:failure_reason"`
	DeliveredAt   *time.Time `db:"delivered_at"   gorm:"column:delivered_at"`
	CreatedAt     time.Time  `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (DeliveryReportEntity) TableName() string {
	return "delivery_reports"
}

func toDeliveryReportEntity(m *model.DeliveryReport) *DeliveryReportEntity {
	if m == nil {
		return nil
	}
	return &DeliveryReportEntity{
		ID:            m.ID,
		MessageID:     m.MessageID,
		Status:        m.Status,
		FailureReason: m.FailureReason,
		DeliveredAt:   m.DeliveredAt,
		CreatedAt:     m.CreatedAt,
	}
}

func toDeliveryReportModel(e *DeliveryReportEntity) *model.DeliveryReport {
	if e == nil {
		return nil
	}
	return &model.DeliveryReport{
		ID:            e.ID,
		MessageID:     e.MessageID,
		Status:        e.Status,
		FailureReason: e.FailureReason,
		DeliveredAt:   e.DeliveredAt,
		CreatedAt:     e.CreatedAt,
	}
}

func toDeliveryReportModels(entities []*DeliveryReportEntity) []*model.DeliveryReport {
	if entities == nil {
		return nil
	}
	models := make([]*model.DeliveryReport, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryReportModel(e)
	}
	return models
}
