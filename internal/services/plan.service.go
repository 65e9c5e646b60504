package services

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nimasrn/sms-credits/internal/model"
)

type PlanRepository interface {
	List(ctx context.Context) ([]*model.Plan, error)
	Get(ctx context.Context, planID int64) (*model.Plan, error)
}

// PlanService serves the plan catalog. Plans never change once seeded, so
// entries are cached without expiry.
type PlanService struct {
	repo  PlanRepository
	cache *lru.Cache[int64, *model.Plan]
}

func NewPlanService(repo PlanRepository, cacheSize int) (*PlanService, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[int64, *model.Plan](cacheSize)
	if err != nil {
		return nil, err
	}
	return &PlanService{repo: repo, cache: cache}, nil
}

func (s *PlanService) List(ctx context.Context) ([]*model.Plan, error) {
	plans, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		s.cache.Add(p.ID, p)
	}
	return plans, nil
}

func (s *PlanService) Get(ctx context.Context, planID int64) (*model.Plan, error) {
	if p, ok := s.cache.Get(planID); ok {
		return p, nil
	}
	p, err := s.repo.Get(ctx, planID)
	if err != nil {
		return nil, translate(err)
	}
	s.cache.Add(p.ID, p)
	return p, nil
}
