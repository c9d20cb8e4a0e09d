package accesskit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepSessions(t *testing.T) {
	ctx := context.Background()
	service, store, clock := newTestService(t, WithSessionTTL(time.Hour))
	p := mustRegister(t, service, "a@x.com", "")

	_, _, err := service.Authenticate(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, _, err = service.Authenticate(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	n, err := service.SweepSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(45 * time.Minute)
	n, err = service.SweepSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err := store.ListSessions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSweeperSchedule(t *testing.T) {
	service, _, _ := newTestService(t)

	w := NewSweeper(service, "")
	assert.Equal(t, DefaultSweepSchedule, w.schedule)
	require.NoError(t, w.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
	assert.NoError(t, ctx.Err())

	assert.Error(t, NewSweeper(service, "every day").Start())
}
