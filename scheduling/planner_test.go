package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-mas/core"
	"github.com/itsneelabh/gomind-mas/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannerRunOnce(t *testing.T) {
	v := newValidator(t, 50)
	var (
		mu      sync.Mutex
		results []*CapacityResult
	)
	logger := &testutil.TestLogger{}
	p := NewPlanner(fixed(Schedule{{"j1", 10}}), v,
		WithPlannerLogger(logger),
		WithPlanHandler(func(r *CapacityResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.NoError(t, err)
			results = append(results, r)
		}),
	)

	result, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 1, p.Runs())

	mu.Lock()
	require.Len(t, results, 1)
	assert.Same(t, result, results[0])
	mu.Unlock()

	assert.Len(t, logger.GetLogsByOperation("plan"), 1)
}

func TestPlannerRunOnceReportsErrors(t *testing.T) {
	v := newValidator(t, 50)
	boom := errors.New("no jobs")
	var gotErr error
	p := NewPlanner(func(context.Context) (Schedule, error) { return nil, boom }, v,
		WithPlanHandler(func(r *CapacityResult, err error) {
			assert.Nil(t, r)
			gotErr = err
		}),
	)

	_, err := p.RunOnce(context.Background())
	assert.Same(t, boom, err)
	assert.Same(t, boom, gotErr)
}

func TestPlannerStartRejectsBadSpec(t *testing.T) {
	p := NewPlanner(fixed(nil), newValidator(t, 50))
	err := p.Start(context.Background(), "not a cron")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.True(t, p.Next().IsZero())
}

func TestPlannerRunsOnSchedule(t *testing.T) {
	p := NewPlanner(fixed(Schedule{{"j1", 1}}), newValidator(t, 50), WithRunTimeout(time.Second))

	require.NoError(t, p.Start(context.Background(), "@every 1s"))
	defer p.Stop()

	assert.Error(t, p.Start(context.Background(), "@every 1s"), "second start is refused")
	assert.False(t, p.Next().IsZero())

	assert.Eventually(t, func() bool { return p.Runs() >= 1 }, 5*time.Second, 50*time.Millisecond)

	p.Stop()
	runs := p.Runs()
	assert.True(t, p.Next().IsZero())

	// stopping twice is harmless
	p.Stop()
	assert.Equal(t, runs, p.Runs())
}

func TestPlannerWeeklyDescriptor(t *testing.T) {
	p := NewPlanner(fixed(nil), newValidator(t, 50))
	require.NoError(t, p.Start(context.Background(), "@weekly"))
	defer p.Stop()

	next := p.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Zero(t, p.Runs())
}
