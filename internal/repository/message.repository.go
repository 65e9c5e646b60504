package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrMessageNotFound is returned when a message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

const messageInsertBatch = 100

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

// CreateBatch inserts all messages of one dispatch. Call it inside
// WithinTransaction so the batch commits together with the deduction.
func (r *MessageRepository) CreateBatch(ctx context.Context, msgs []*model.Message) ([]*model.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	entities := make([]*MessageEntity, len(msgs))
	for i, m := range msgs {
		entities[i] = toMessageEntity(m)
	}

	if err := r.Write(ctx).CreateInBatches(entities, messageInsertBatch).Error; err != nil {
		return nil, pg.Classify(err)
	}

	return toMessageModels(entities), nil
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.filtered(ctx, f)

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pg.Classify(err)
	}

	order := "sent_at ASC, id ASC"
	if f.Desc {
		order = "sent_at DESC, id DESC"
	}
	limit, offset := page(f.Limit, f.Offset)

	var entities []*MessageEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, pg.Classify(err)
	}

	return toMessageModels(entities), total, nil
}

// Stats counts a user's messages. Anything not in a successful status counts
// as failed.
func (r *MessageRepository) Stats(ctx context.Context, userID int64) (*model.MessageStats, error) {
	var total, successful int64

	if err := r.Read(ctx).Model(&MessageEntity{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, pg.Classify(err)
	}
	err := r.Read(ctx).Model(&MessageEntity{}).
		Where("user_id = ? AND delivery_status IN ?", userID, model.SuccessfulDeliveryStatuses()).
		Count(&successful).
		Error
	if err != nil {
		return nil, pg.Classify(err)
	}

	return &model.MessageStats{
		Total:      total,
		Successful: successful,
		Failed:     total - successful,
	}, nil
}

func (r *MessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, pg.Classify(err)
	}
	return toMessageModel(&entity), nil
}

func (r *MessageRepository) UpdateDeliveryStatus(ctx context.Context, id int64, status string) error {
	result := r.Write(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Update("delivery_status", status)

	if result.Error != nil {
		return pg.Classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) filtered(ctx context.Context, f model.MessageFilter) *gorm.DB {
	q := r.Read(ctx).Model(&MessageEntity{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.To != nil && *f.To != "" {
		q = q.Where("recipient = ?", *f.To)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("delivery_status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("sent_at >= ?", *f.From)
	}
	if f.Until != nil {
		q = q.Where("sent_at < ?", *f.Until)
	}
	return q
}
