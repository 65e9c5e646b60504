package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService pings every dependency concurrently and reports the ones
// that did not answer.
type HealthService struct {
	deps    map[string]Pinger
	timeout time.Duration
}

func NewHealthService(deps map[string]Pinger) *HealthService {
	return &HealthService{deps: deps, timeout: 2 * time.Second}
}

// Check returns the status of each dependency and whether all are up.
func (s *HealthService) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]string, 0, len(s.deps))
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
		results = append(results, "")
	}

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := s.deps[name].Ping(ctx); err != nil {
				results[i] = "down: " + err.Error()
				return err
			}
			results[i] = "up"
			return nil
		})
	}
	healthy := g.Wait() == nil

	status := make(map[string]string, len(names))
	for i, name := range names {
		status[name] = results[i]
	}
	return status, healthy
}
