package services

import (
	"context"
)

type CreditRepository interface {
	GetCredits(ctx context.Context, userID int64) (uint, error)
}

type CreditService struct {
	users CreditRepository
}

func NewCreditService(users CreditRepository) *CreditService {
	return &CreditService{users: users}
}

func (s *CreditService) Balance(ctx context.Context, userID int64) (uint, error) {
	var credits uint
	err := retryTransient(ctx, "balance", func(ctx context.Context) error {
		var err error
		credits, err = s.users.GetCredits(ctx, userID)
		return err
	})
	if err != nil {
		return 0, translate(err)
	}
	return credits, nil
}
