package repository

import (
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
)

// MessageEntity stores one recipient of one dispatch. The recipient column is
// not called "to" because that is a reserved word in SQL.
type MessageEntity struct {
	ID                int64     `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	UserID            int64     `db:"user_id"             gorm:"column:user_id;not null;index"`
	Recipient         string    `db:"recipient"           gorm:"column:recipient;not null;size:16"`
	Body              string    `db:"body"                gorm:"column:body;not null"`
	DeliveryStatus    string    `db:"delivery_status"     gorm:"column:delivery_status;not null;index"`
	ProviderMessageID string    `db:"provider_message_id" gorm:"column:provider_message_id;index"`
	Cost              string    `db:"cost"                gorm:"column:cost"`
	SentAt            time.Time `db:"sent_at"             gorm:"column:sent_at;not null;index"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:                m.ID,
		UserID:            m.UserID,
		Recipient:         m.To,
		Body:              m.Body,
		DeliveryStatus:    m.DeliveryStatus,
		ProviderMessageID: m.ProviderMessageID,
		Cost:              m.Cost,
		SentAt:            m.SentAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:                e.ID,
		UserID:            e.UserID,
		To:                e.Recipient,
		Body:              e.Body,
		DeliveryStatus:    e.DeliveryStatus,
		ProviderMessageID: e.ProviderMessageID,
		Cost:              e.Cost,
		SentAt:            e.SentAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	if entities == nil {
		return nil
	}
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
