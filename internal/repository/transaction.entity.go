package repository

import (
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"gorm.io/datatypes"
)

type TransactionEntity struct {
	ID                int64             `db:"id"                 gorm:"primaryKey;autoIncrement;column:id"`
	ExternalReference *string           `db:"external_reference" gorm:"column:external_reference;size:64;uniqueIndex"`
	AccountReference  string            `db:"account_reference"  gorm:"column:account_reference;size:64"`
	UserID            int64             `db:"user_id"            gorm:"column:user_id;not null;index"`
	PlanID            *int64            `db:"plan_id"            gorm:"column:plan_id"`
	Amount            uint              `db:"amount"             gorm:"column:amount;not null"`
	Credits           uint              `db:"credits"            gorm:"column:credits;not null;default:0"`
	Kind              string            `db:"kind"               gorm:"column:kind;not null;index"`
	Status            string            `db:"status"             gorm:"column:status;not null;index"`
	Phone             string            `db:"phone"              gorm:"column:phone;size:16"`
	ResultCode        *int              `db:"result_code"        gorm:"column:result_code"`
	ResultDesc        string            `db:"result_desc"        gorm:"column:result_desc"`
	Metadata          datatypes.JSONMap `db:"metadata"           gorm:"column:metadata"`
	CreatedAt         time.Time         `db:"created_at"         gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt         time.Time         `db:"updated_at"         gorm:"column:updated_at;autoUpdateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	var meta datatypes.JSONMap
	if m.Metadata != nil {
		meta = datatypes.JSONMap(m.Metadata)
	}
	return &TransactionEntity{
		ID:                m.ID,
		ExternalReference: m.ExternalReference,
		AccountReference:  m.AccountReference,
		UserID:            m.UserID,
		PlanID:            m.PlanID,
		Amount:            m.Amount,
		Credits:           m.Credits,
		Kind:              string(m.Kind),
		Status:            string(m.Status),
		Phone:             m.Phone,
		ResultCode:        m.ResultCode,
		ResultDesc:        m.ResultDesc,
		Metadata:          meta,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	var meta map[string]any
	if e.Metadata != nil {
		meta = map[string]any(e.Metadata)
	}
	return &model.Transaction{
		ID:                e.ID,
		ExternalReference: e.ExternalReference,
		AccountReference:  e.AccountReference,
		UserID:            e.UserID,
		PlanID:            e.PlanID,
		Amount:            e.Amount,
		Credits:           e.Credits,
		Kind:              model.TransactionKind(e.Kind),
		Status:            model.TransactionStatus(e.Status),
		Phone:             e.Phone,
		ResultCode:        e.ResultCode,
		ResultDesc:        e.ResultDesc,
		Metadata:          meta,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
