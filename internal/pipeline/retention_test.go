package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmoura/cryptopilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTickStore struct {
	deleted   int64
	deleteErr error
	calls     int
}

func (s *fakeTickStore) InsertBatch(context.Context, []domain.Tick) error { return nil }

func (s *fakeTickStore) ListRecent(context.Context, string, int) ([]domain.Tick, error) {
	return nil, nil
}

func (s *fakeTickStore) ListBefore(context.Context, time.Time, time.Time, int) ([]domain.Tick, error) {
	return nil, nil
}

func (s *fakeTickStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	s.calls++
	return s.deleted, s.deleteErr
}

type fakeCandleStore struct {
	deleted int64
	calls   int
}

func (s *fakeCandleStore) UpsertBatch(context.Context, []domain.Candle) error { return nil }

func (s *fakeCandleStore) ListRange(context.Context, string, string, time.Time, time.Time) ([]domain.Candle, error) {
	return nil, nil
}

func (s *fakeCandleStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	s.calls++
	return s.deleted, nil
}

type fakeArchiver struct {
	archived int64
	err      error
	before   time.Time
	calls    int
}

func (a *fakeArchiver) ArchiveTicks(_ context.Context, before time.Time) (int64, error) {
	a.calls++
	a.before = before
	return a.archived, a.err
}

func TestRetentionRunArchivesThenTrims(t *testing.T) {
	ticks := &fakeTickStore{deleted: 120}
	candles := &fakeCandleStore{deleted: 40}
	arch := &fakeArchiver{archived: 120}

	r := NewRetention(ticks, candles, arch, 7, testLogger())
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, arch.calls)
	assert.Equal(t, 1, ticks.calls)
	assert.Equal(t, 1, candles.calls)

	wantCutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, arch.before, time.Minute)
}

func TestRetentionRunAbortsWhenArchiveFails(t *testing.T) {
	ticks := &fakeTickStore{}
	candles := &fakeCandleStore{}
	arch := &fakeArchiver{err: errors.New("bucket unavailable")}

	r := NewRetention(ticks, candles, arch, 7, testLogger())
	err := r.Run(context.Background())
	require.Error(t, err)

	// No rows are trimmed when the cold-storage copy did not happen.
	assert.Equal(t, 0, ticks.calls)
	assert.Equal(t, 0, candles.calls)
}

func TestRetentionRunWithoutArchiver(t *testing.T) {
	ticks := &fakeTickStore{deleted: 10}
	candles := &fakeCandleStore{}

	r := NewRetention(ticks, candles, nil, 1, testLogger())
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, ticks.calls)
}

func TestRetentionRunSurfacesTrimError(t *testing.T) {
	ticks := &fakeTickStore{deleteErr: errors.New("deadlock")}
	candles := &fakeCandleStore{}

	r := NewRetention(ticks, candles, nil, 1, testLogger())
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, candles.calls)
}

func TestRetentionRunCronStopsOnCancel(t *testing.T) {
	r := NewRetention(&fakeTickStore{}, &fakeCandleStore{}, nil, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.RunCron(ctx, "0 3 * * *"), context.Canceled)
}

func TestRetentionRunCronRejectsBadExpression(t *testing.T) {
	r := NewRetention(&fakeTickStore{}, &fakeCandleStore{}, nil, 1, testLogger())
	assert.Error(t, r.RunCron(context.Background(), "not a cron"))
}

func TestParseCron(t *testing.T) {
	_, err := parseCron("0 3 * * *")
	require.NoError(t, err)

	_, err = parseCron("0 3 * *")
	assert.Error(t, err)

	_, err = parseCron("x 3 * * *")
	assert.Error(t, err)
}

func TestCronMatchesTime(t *testing.T) {
	c, err := parseCron("0 3 * * *")
	require.NoError(t, err)

	assert.True(t, c.matchesTime(time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2025, 6, 2, 3, 1, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)))

	// Monday-only at midnight.
	c, err = parseCron("0 0 * * 1")
	require.NoError(t, err)
	assert.True(t, c.matchesTime(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))  // a Monday
	assert.False(t, c.matchesTime(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC))) // a Tuesday
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC), next)

	// Already past today's trigger: roll over to tomorrow.
	next, err = nextCronTime("0 3 * * *", time.Date(2025, 6, 2, 3, 0, 30, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 3, 3, 0, 0, 0, time.UTC), next)

	// Comma lists match each listed value.
	next, err = nextCronTime("0,30 * * * *", time.Date(2025, 6, 2, 10, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), next)

	_, err = nextCronTime("bad", after)
	assert.Error(t, err)
}
