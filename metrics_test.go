package accesskit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	service, _, clock := newBootstrappedService(t, WithMetrics(metrics), WithSessionTTL(time.Hour))
	user := mustRegister(t, service, "u@x.com", RoleUser)

	_, _, err := service.Authenticate(ctx, "u@x.com", "pw1")
	require.NoError(t, err)
	_, _, err = service.Authenticate(ctx, "u@x.com", "wrong")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.logins.WithLabelValues("failure")))

	assert.False(t, service.Can(ctx, user, ResourceOrders, OpRead))
	assert.False(t, service.Can(ctx, user, ResourceOrders, OpRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(ResourceOrders, "read", Deny.String())))

	_, err = service.ResolveSession(ctx, "garbage")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolves.WithLabelValues("failure")))

	clock.Advance(2 * time.Hour)
	n, err := service.SweepSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sweptSessions))

	assert.Positive(t, testutil.CollectAndCount(metrics.txDuration))
}

func TestMetricsCacheLookups(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics(nil)
	service, _, _ := newBootstrappedService(t, WithMetrics(metrics), WithRuleCache(NewMemoryRuleCache(0)))
	admin := mustRegister(t, service, "admin@x.com", RoleAdmin)

	service.Can(ctx, admin, ResourceUsers, OpRead)
	service.Can(ctx, admin, ResourceUsers, OpRead)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeDecision("r", OpRead, Allow)
		m.observeLogin(true)
		m.observeResolve(false)
		m.observeCache(true)
		m.observeTransaction(time.Millisecond, true)
		m.observeSweep(3)
	})
}
