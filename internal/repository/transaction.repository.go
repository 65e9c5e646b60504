package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("external reference already exists")
)

// TransactionRepository is the payment and deduction ledger. Status only
// moves out of PENDING, and only through Transition or FailUnreferenced.
type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateReference
		}
		return nil, pg.Classify(err)
	}

	return toTransactionModel(entity), nil
}

// AttachReference sets the gateway checkout id on a PENDING row that has none
// yet.
func (r *TransactionRepository) AttachReference(ctx context.Context, id int64, reference string) error {
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND external_reference IS NULL AND status = ?", id, model.TransactionStatusPending).
		Update("external_reference", reference)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return pg.Classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// FailUnreferenced fails a PENDING row that never received a gateway
// reference. It reports whether the row changed.
func (r *TransactionRepository) FailUnreferenced(ctx context.Context, id int64, desc string) (bool, error) {
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND external_reference IS NULL AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]any{
			"status":      string(model.TransactionStatusFailed),
			"result_desc": desc,
		})

	if result.Error != nil {
		return false, pg.Classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Transition moves a PENDING payment row to a terminal status. The status
// check and the write are one UPDATE, so of any number of concurrent callers
// exactly one sees true.
func (r *TransactionRepository) Transition(ctx context.Context, reference string, status model.TransactionStatus, resultCode *int, resultDesc string, metadata map[string]any) (bool, error) {
	updates := map[string]any{
		"status":      string(status),
		"result_code": resultCode,
		"result_desc": resultDesc,
	}
	if metadata != nil {
		updates["metadata"] = datatypes.JSONMap(metadata)
	}

	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("external_reference = ? AND status = ? AND kind <> ?", reference, model.TransactionStatusPending, model.TransactionKindDeduction).
		Updates(updates)

	if result.Error != nil {
		return false, pg.Classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).
		Where("external_reference = ?", reference).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, pg.Classify(err)
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).Model(&TransactionEntity{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if len(f.Kinds) > 0 {
		q = q.Where("kind IN ?", kindsToStrings(f.Kinds))
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusesToStrings(f.Statuses))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.Until != nil {
		q = q.Where("created_at < ?", *f.Until)
	}
	// rows that never got a gateway reference are not shown to users
	q = q.Where("external_reference IS NOT NULL")

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pg.Classify(err)
	}

	order := "created_at ASC, id ASC"
	if f.Desc {
		order = "created_at DESC, id DESC"
	}
	limit, offset := page(f.Limit, f.Offset)

	var entities []*TransactionEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, pg.Classify(err)
	}

	return toTransactionModels(entities), total, nil
}

// ListPending returns up to limit PENDING payment rows created before the
// given time, oldest first.
func (r *TransactionRepository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var entities []*TransactionEntity
	err := r.Read(ctx).
		Where("status = ? AND kind IN ? AND created_at < ?",
			model.TransactionStatusPending,
			kindsToStrings([]model.TransactionKind{model.TransactionKindSubscription, model.TransactionKindRecharge}),
			createdBefore).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, pg.Classify(err)
	}
	return toTransactionModels(entities), nil
}

func kindsToStrings(kinds []model.TransactionKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func statusesToStrings(statuses []model.TransactionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// page applies the default page size of 50 and caps it at 1000.
func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
