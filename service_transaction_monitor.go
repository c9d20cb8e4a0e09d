package accesskit

import (
	"sync"
	"time"
)

// TransactionMetrics provides store transaction performance and failure statistics.
type TransactionMetrics struct {
	TotalTransactions      int64         `json:"total_transactions"`
	SuccessfulTransactions int64         `json:"successful_transactions"`
	FailedTransactions     int64         `json:"failed_transactions"`
	AverageDuration        time.Duration `json:"average_duration"`
	MaxDuration            time.Duration `json:"max_duration"`
	MinDuration            time.Duration `json:"min_duration"`
	LastReset              time.Time     `json:"last_reset"`
}

// transactionMonitor aggregates transaction timings in process. The
// prometheus histogram carries the same data for scraping; this copy feeds
// HealthReport.
type transactionMonitor struct {
	mu        sync.Mutex
	total     int64
	success   int64
	failure   int64
	totalDur  time.Duration
	maxDur    time.Duration
	minDur    time.Duration
	lastReset time.Time
}

func newTransactionMonitor(now time.Time) *transactionMonitor {
	return &transactionMonitor{lastReset: now}
}

func (tm *transactionMonitor) record(d time.Duration, ok bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.total++
	tm.totalDur += d
	if ok {
		tm.success++
	} else {
		tm.failure++
	}
	if d > tm.maxDur {
		tm.maxDur = d
	}
	if tm.total == 1 || d < tm.minDur {
		tm.minDur = d
	}
}

func (tm *transactionMonitor) snapshot() TransactionMetrics {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var avg time.Duration
	if tm.total > 0 {
		avg = tm.totalDur / time.Duration(tm.total)
	}
	return TransactionMetrics{
		TotalTransactions:      tm.total,
		SuccessfulTransactions: tm.success,
		FailedTransactions:     tm.failure,
		AverageDuration:        avg,
		MaxDuration:            tm.maxDur,
		MinDuration:            tm.minDur,
		LastReset:              tm.lastReset,
	}
}

func (tm *transactionMonitor) reset(now time.Time) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.total, tm.success, tm.failure = 0, 0, 0
	tm.totalDur, tm.maxDur, tm.minDur = 0, 0, 0
	tm.lastReset = now
}
