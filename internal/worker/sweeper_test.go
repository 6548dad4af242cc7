package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"

	"github.com/tokoku/commerce/internal/worker"
)

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestReservationSweeperRunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	rs := worker.NewReservationSweeper(sweeper, 10*time.Millisecond, nil)

	rs.Start(context.Background())
	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	rs.Stop()

	after := sweeper.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load(), "no sweeps after Stop")
}

func TestReservationSweeperSurvivesErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	rs := worker.NewReservationSweeper(sweeper, 10*time.Millisecond, nil)

	rs.Start(context.Background())
	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	rs.Stop()
}

func TestReservationSweeperStopWithoutStart(t *testing.T) {
	rs := worker.NewReservationSweeper(&countingSweeper{}, time.Minute, nil)
	rs.Stop()
}
