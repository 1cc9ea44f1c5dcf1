package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/syncer"
)

type countingRunner struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (r *countingRunner) RunScheduledSync(context.Context, time.Time) (*syncer.ScheduledResult, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return &syncer.ScheduledResult{Mode: syncer.ModeNothingToRun}, nil
}

func TestNewScheduler_InvalidCronExpression(t *testing.T) {
	_, err := newScheduler(context.Background(), "not a cron", time.UTC, &countingRunner{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.cron")
}

func TestNewScheduler_RunsJob(t *testing.T) {
	runner := &countingRunner{}
	c, err := newScheduler(context.Background(), "0 * * * *", time.UTC, runner)
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()
	assert.Equal(t, int32(1), runner.calls.Load())

	runner.err = errors.New("config table missing")
	entries[0].Job.Run()
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestNewScheduler_SkipsOverlappingTrigger(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	c, err := newScheduler(context.Background(), "@hourly", time.UTC, runner)
	require.NoError(t, err)
	job := c.Entries()[0].Job

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	job.Run() // skipped while the first run holds the lock
	assert.Equal(t, int32(1), runner.calls.Load())

	close(runner.block)
	<-done
}
