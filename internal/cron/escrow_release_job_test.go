package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tixmarket-backend/internal/escrow"
)

type fakeSweeper struct {
	report *escrow.SweepReport
	err    error
	calls  int
}

func (f *fakeSweeper) Sweep(context.Context) (*escrow.SweepReport, error) {
	f.calls++
	return f.report, f.err
}

func TestEscrowReleaseJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{report: &escrow.SweepReport{
		Cutoff:    time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		Processed: 3,
		Succeeded: 2,
		Failed:    1,
	}}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{Logger: testLogger(), Escrow: sweeper})
	require.NoError(t, err)

	assert.Equal(t, "escrow-release-sweep", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestEscrowReleaseJobPropagatesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("database unavailable")}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{Logger: testLogger(), Escrow: sweeper})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestEscrowReleaseJobRequiresDependencies(t *testing.T) {
	_, err := NewEscrowReleaseJob(EscrowReleaseJobParams{Escrow: &fakeSweeper{}})
	require.Error(t, err)
	_, err = NewEscrowReleaseJob(EscrowReleaseJobParams{Logger: testLogger()})
	require.Error(t, err)
}
