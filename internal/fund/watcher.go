package fund

import (
	"context"
	"time"

	"stokvel/internal/metrics"
)

// StartMaturityWatcher launches a background loop that surfaces matured rounds
// still awaiting collection. It only observes; collection stays a manager call.
func (s *Service) StartMaturityWatcher(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("maturity watcher started", map[string]interface{}{
			"interval": interval.String(),
		})

		s.checkMaturities()

		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.checkMaturities()
			}
		}
	}()
}

func (s *Service) checkMaturities() {
	s.mu.Lock()
	pool := s.ledger.Pool()
	now := s.clock.Now()
	var overdue []int64
	for i := pool.ClosedRounds + 1; i <= pool.OpenedRounds; i++ {
		r, err := s.ledger.Round(i)
		if err != nil {
			continue
		}
		if !now.Before(r.MaturesAt) {
			overdue = append(overdue, i)
		}
	}
	s.mu.Unlock()

	metrics.RoundsOverdue.Set(float64(len(overdue)))
	if len(overdue) > 0 {
		s.logger.Warn("matured rounds awaiting collection", map[string]interface{}{
			"rounds": overdue,
			"count":  len(overdue),
		})
	}
}
