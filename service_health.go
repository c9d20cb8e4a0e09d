package accesskit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
)

// HealthReport summarises the state of the service dependencies.
type HealthReport struct {
	Healthy      bool               `json:"healthy"`
	Store        ComponentHealth    `json:"store"`
	Cache        *ComponentHealth   `json:"cache,omitempty"`
	Pool         *dbkit.PoolStats   `json:"pool,omitempty"`
	Transactions TransactionMetrics `json:"transactions"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// ComponentHealth is the health of one dependency.
type ComponentHealth struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Health performs a health check of the store and, when it can be pinged,
// the rule cache.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Transactions: s.txMonitor.snapshot(),
		CheckedAt:    s.now(),
	}

	report.Store = checkComponent(ctx, s.storeHealth)
	if bs, ok := s.store.(*BunStore); ok {
		if stats, ok := bs.PoolStats(); ok {
			report.Pool = &stats
		}
	}
	if p, ok := s.cache.(interface{ Ping(context.Context) error }); ok {
		c := checkComponent(ctx, p.Ping)
		report.Cache = &c
	}

	report.Healthy = report.Store.Healthy && (report.Cache == nil || report.Cache.Healthy)
	return report
}

// IsHealthy performs a simple health check of the store.
func (s *Service) IsHealthy(ctx context.Context) bool {
	return s.storeHealth(ctx) == nil
}

func (s *Service) storeHealth(ctx context.Context) error {
	if bs, ok := s.store.(*BunStore); ok {
		if db, ok := bs.db.(*dbkit.DBKit); ok {
			status := db.Health(ctx)
			if !status.Healthy {
				return NewError(ErrStorage, status.Error)
			}
			return nil
		}
	}
	return s.store.Ping(ctx)
}

func checkComponent(ctx context.Context, check func(context.Context) error) ComponentHealth {
	start := time.Now()
	err := check(ctx)
	h := ComponentHealth{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

// IsTransactionHealthy checks if transaction performance is within acceptable thresholds.
func (s *Service) IsTransactionHealthy() bool {
	metrics := s.txMonitor.snapshot()

	// If we have very few transactions, consider it healthy
	if metrics.TotalTransactions < 10 {
		return true
	}

	// Check failure rate (should be less than 5%)
	failureRate := float64(metrics.FailedTransactions) / float64(metrics.TotalTransactions)
	if failureRate > 0.05 {
		return false
	}

	// Check average duration (should be less than 1 second)
	return metrics.AverageDuration <= time.Second
}
