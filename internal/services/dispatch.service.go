package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/msisdn"
	"github.com/nimasrn/sms-credits/pkg/prom"
)

type MessageRepository interface {
	CreateBatch(ctx context.Context, msgs []*model.Message) ([]*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
	Stats(ctx context.Context, userID int64) (*model.MessageStats, error)
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
	UpdateDeliveryStatus(ctx context.Context, id int64, status string) error
}

type DeliveryReportRepository interface {
	Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error)
}

type MessagingGateway interface {
	Send(ctx context.Context, recipients []string, body string) (*gateway.SendResult, error)
}

type DispatchConfig struct {
	MaxRecipients int
	MaxBodyLength int
}

type DispatchService struct {
	db           Transactor
	users        UserRepository
	transactions TransactionRepository
	messages     MessageRepository
	reports      DeliveryReportRepository
	sms          MessagingGateway
	cfg          DispatchConfig
	now          func() time.Time
}

func NewDispatchService(db Transactor, users UserRepository, transactions TransactionRepository, messages MessageRepository, reports DeliveryReportRepository, sms MessagingGateway, cfg DispatchConfig) *DispatchService {
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = 1000
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = 918
	}
	return &DispatchService{
		db:           db,
		users:        users,
		transactions: transactions,
		messages:     messages,
		reports:      reports,
		sms:          sms,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Dispatch sends body to every recipient and charges one credit per
// recipient submitted to the provider, whatever the provider reports for
// each of them. The balance is checked before the provider is called. The
// decrement, the message rows and the DEDUCTION row are written in one
// transaction after the provider accepted the batch, so a provider failure
// leaves nothing behind.
func (s *DispatchService) Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return nil, ErrBodyTooLong
	}
	recipients, err := s.normalizeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}
	charge := uint(len(recipients))

	balance, err := s.primaryCredits(ctx, req.UserID)
	if err != nil {
		return nil, translate(err)
	}
	if balance < charge {
		return nil, ErrInsufficientCredits
	}

	sent, err := s.sms.Send(ctx, recipients, body)
	if err != nil {
		logger.Error("sms provider failed", "user_id", req.UserID, "recipients", len(recipients), "error", err)
		return nil, upstream("send messages", err)
	}

	results := matchResults(recipients, sent.Recipients)
	sentAt := s.now()

	err = retryTransient(ctx, "record dispatch", func(ctx context.Context) error {
		return s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := s.users.SpendIfAvailable(ctx, req.UserID, charge); err != nil {
				return err
			}

			msgs := make([]*model.Message, len(results))
			for i, r := range results {
				msgs[i] = &model.Message{
					UserID:            req.UserID,
					To:                r.Number,
					Body:              body,
					DeliveryStatus:    r.Status,
					ProviderMessageID: r.MessageID,
					Cost:              r.Cost,
					SentAt:            sentAt,
				}
			}
			if _, err := s.messages.CreateBatch(ctx, msgs); err != nil {
				return fmt.Errorf("create messages: %w", err)
			}

			reference := "ded-" + uuid.NewString()
			_, err := s.transactions.Create(ctx, &model.Transaction{
				ExternalReference: &reference,
				AccountReference:  "SMS",
				UserID:            req.UserID,
				Amount:            charge,
				Credits:           charge,
				Kind:              model.TransactionKindDeduction,
				Status:            model.TransactionStatusSuccess,
				Metadata:          map[string]any{"recipients": len(results), "provider_message": sent.Message},
			})
			if err != nil {
				return fmt.Errorf("create deduction: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			// the provider already accepted these messages
			logger.Error("messages submitted but not billed", "user_id", req.UserID, "charge", charge, "provider_message", sent.Message, "results", results)
			prom.DispatchUnbilled()
			return nil, ErrInsufficientCredits
		}
		logger.Error("failed to record dispatch", "user_id", req.UserID, "charge", charge, "provider_message", sent.Message, "error", err)
		return nil, translate(err)
	}

	prom.CreditsSpent(charge)
	countByStatus := make(map[string]int)
	for _, r := range results {
		countByStatus[r.Status]++
	}
	for status, n := range countByStatus {
		prom.DispatchRecipient(status, n)
	}

	credits, err := s.primaryCredits(ctx, req.UserID)
	if err != nil {
		credits = balance - charge
	}
	logger.Info("messages dispatched", "user_id", req.UserID, "charged", charge, "credits", credits)
	return &model.DispatchResult{Results: results, Charged: charge, Credits: credits}, nil
}

// primaryCredits reads the balance inside a write transaction so it never
// comes from a lagging read replica.
func (s *DispatchService) primaryCredits(ctx context.Context, userID int64) (uint, error) {
	var balance uint
	err := retryTransient(ctx, "balance", func(ctx context.Context) error {
		return s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			balance, err = s.users.GetCredits(ctx, userID)
			return err
		})
	})
	return balance, err
}

func (s *DispatchService) normalizeRecipients(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("%w: blank entry", ErrInvalidRecipient)
		}
		n, err := msisdn.Normalize(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, r)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	if len(out) > s.cfg.MaxRecipients {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRecipients, len(out), s.cfg.MaxRecipients)
	}
	return out, nil
}

// matchResults returns one result per submitted recipient in submission
// order. Recipients the provider left out of its answer are UNKNOWN.
func matchResults(submitted []string, reported []model.RecipientResult) []model.RecipientResult {
	byNumber := make(map[string]model.RecipientResult, len(reported))
	for _, r := range reported {
		byNumber[r.Number] = r
	}
	out := make([]model.RecipientResult, len(submitted))
	for i, n := range submitted {
		r, ok := byNumber[n]
		if !ok {
			r = model.RecipientResult{Number: n, Status: model.DeliveryStatusUnknown}
		}
		out[i] = r
	}
	return out
}

// History lists a user's messages.
func (s *DispatchService) History(ctx context.Context, userID int64, f model.MessageFilter) ([]*model.Message, int64, error) {
	f.UserID = &userID
	return s.messages.List(ctx, f)
}

func (s *DispatchService) Stats(ctx context.Context, userID int64) (*model.MessageStats, error) {
	return s.messages.Stats(ctx, userID)
}

// ApplyDeliveryReport records a delivery report and updates the message's
// status. Credits are not touched, a message is charged on submission.
func (s *DispatchService) ApplyDeliveryReport(ctx context.Context, req model.DeliveryReportRequest) (*model.DeliveryReport, error) {
	if strings.TrimSpace(req.ProviderMessageID) == "" || strings.TrimSpace(req.Status) == "" {
		return nil, ErrInvalidDeliveryRpt
	}

	msg, err := s.messages.GetByProviderID(ctx, req.ProviderMessageID)
	if err != nil {
		return nil, translate(err)
	}

	status := model.NormalizeDeliveryStatus(req.Status)
	report := &model.DeliveryReport{
		MessageID:     msg.ID,
		Status:        status,
		FailureReason: req.FailureReason,
	}
	if status == model.DeliveryStatusDelivered || status == model.DeliveryStatusSuccess {
		at := s.now()
		report.DeliveredAt = &at
	}

	var created *model.DeliveryReport
	err = retryTransient(ctx, "delivery report", func(ctx context.Context) error {
		return s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := s.messages.UpdateDeliveryStatus(ctx, msg.ID, status); err != nil {
				return err
			}
			var err error
			created, err = s.reports.Create(ctx, report)
			return err
		})
	})
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}
