package accesskit

import (
	"context"
	"time"
)

// Transaction executes fn within a store transaction with automatic
// commit/rollback. If fn returns an error, the transaction is rolled back.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context, tx accesskit.Store) error {
//	    if err := tx.CreateRole(ctx, role); err != nil {
//	        return err // rolls back
//	    }
//	    return tx.CreateRule(ctx, rule)
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	start := time.Now()
	err := s.store.Transaction(ctx, fn)

	d := time.Since(start)
	s.txMonitor.record(d, err == nil)
	s.metrics.observeTransaction(d, err == nil)
	return err
}

// GetTransactionMetrics returns the in-process transaction statistics.
func (s *Service) GetTransactionMetrics() TransactionMetrics {
	return s.txMonitor.snapshot()
}

// ResetTransactionMetrics clears the in-process transaction statistics.
func (s *Service) ResetTransactionMetrics() {
	s.txMonitor.reset(s.now())
}
