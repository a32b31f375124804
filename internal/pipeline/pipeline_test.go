package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/observability"
	"github.com/driftline/constellation-tracker/internal/pipeline"
	"github.com/driftline/constellation-tracker/internal/track"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFetcher struct {
	mu        sync.Mutex
	snapshots []domain.RawSnapshot
	errs      []error
	calls     int
	block     chan struct{} // when set, FetchFreshest waits here once entered
	entered   chan struct{}
}

func (m *mockFetcher) FetchFreshest(_ context.Context, _ int) (domain.RawSnapshot, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()

	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}

	if i < len(m.errs) && m.errs[i] != nil {
		return domain.RawSnapshot{}, m.errs[i]
	}
	if i >= len(m.snapshots) {
		i = len(m.snapshots) - 1
	}
	return m.snapshots[i], nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.ConstellationSnapshot
	err       error
}

func (m *mockPublisher) PublishSnapshot(_ context.Context, snap domain.ConstellationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, snap)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func upstreamSnapshot(data any) domain.RawSnapshot {
	return domain.RawSnapshot{Data: data, HoursAgo: 0, Source: domain.SourceUpstream}
}

func newPipeline(f pipeline.Fetcher, pub pipeline.Publisher) *pipeline.Pipeline {
	return pipeline.New(f, track.New(track.DefaultMatchRadiusKM), pub,
		clockwork.NewFakeClock(), 0, time.Minute,
		discardLogger(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestPoll_HappyPath(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{
		upstreamSnapshot([]any{[]any{10.0, 20.0}, []any{30.0, 40.0}}),
	}}
	p := newPipeline(fetcher, nil)

	require.NoError(t, p.Poll(context.Background()))

	snap, err := p.Latest()
	require.NoError(t, err)
	assert.Equal(t, domain.SourceUpstream, snap.Source)
	assert.Nil(t, snap.CacheAgeSeconds)
	require.Len(t, snap.Points, 2)
	assert.Equal(t, "b1", snap.Points[0].ID)
	assert.Equal(t, "b2", snap.Points[1].ID)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPoll_NotReadyBeforeFirstSuccess(t *testing.T) {
	p := newPipeline(&mockFetcher{errs: []error{errors.New("boom")},
		snapshots: []domain.RawSnapshot{{}}}, nil)

	_, err := p.Latest()
	assert.ErrorIs(t, err, pipeline.ErrNotReady)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPoll_FetchErrorSurfaces(t *testing.T) {
	fetchErr := errors.New("all buckets down")
	p := newPipeline(&mockFetcher{errs: []error{fetchErr}, snapshots: []domain.RawSnapshot{{}}}, nil)

	err := p.Poll(context.Background())
	assert.ErrorIs(t, err, fetchErr)

	_, err = p.Latest()
	assert.ErrorIs(t, err, pipeline.ErrNotReady)
}

func TestPoll_UnrecognizedShapeLeavesStateUntouched(t *testing.T) {
	good := []any{[]any{10.0, 20.0}, []any{30.0, 40.0}}
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{
		upstreamSnapshot(good),
		upstreamSnapshot("garbage"),
		upstreamSnapshot([]any{[]any{10.01, 20.01}, []any{30.01, 40.01}}),
	}}
	p := newPipeline(fetcher, nil)

	require.NoError(t, p.Poll(context.Background()))
	before, err := p.Latest()
	require.NoError(t, err)

	// The bad poll fails loudly but changes nothing.
	err = p.Poll(context.Background())
	var shapeErr *domain.UnrecognizedShapeError
	require.ErrorAs(t, err, &shapeErr)

	after, err := p.Latest()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Identity continuity survives the failed poll: same ids as before.
	require.NoError(t, p.Poll(context.Background()))
	third, err := p.Latest()
	require.NoError(t, err)
	require.Len(t, third.Points, 2)
	assert.Equal(t, "b1", third.Points[0].ID)
	assert.Equal(t, "b2", third.Points[1].ID)
}

func TestPoll_CacheSourceCarriesAge(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{{
		Data:            []any{[]any{1.0, 2.0}},
		HoursAgo:        3,
		Source:          domain.SourceCache,
		CacheAgeSeconds: 42,
	}}}
	p := newPipeline(fetcher, nil)

	require.NoError(t, p.Poll(context.Background()))

	snap, err := p.Latest()
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, snap.Source)
	assert.Equal(t, 3, snap.HoursAgo)
	require.NotNil(t, snap.CacheAgeSeconds)
	assert.Equal(t, int64(42), *snap.CacheAgeSeconds)
}

func TestPoll_PublishesSnapshot(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{
		upstreamSnapshot([]any{[]any{10.0, 20.0}}),
	}}
	pub := &mockPublisher{}
	p := newPipeline(fetcher, pub)

	require.NoError(t, p.Poll(context.Background()))

	require.Equal(t, 1, pub.count())
	assert.Equal(t, "b1", pub.published[0].Points[0].ID)
}

func TestPoll_PublishFailureDoesNotFailPoll(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{
		upstreamSnapshot([]any{[]any{10.0, 20.0}}),
	}}
	pub := &mockPublisher{err: errors.New("broker down")}
	p := newPipeline(fetcher, pub)

	require.NoError(t, p.Poll(context.Background()))

	snap, err := p.Latest()
	require.NoError(t, err)
	assert.Len(t, snap.Points, 1)
}

func TestPoll_OverlapGuardSkips(t *testing.T) {
	fetcher := &mockFetcher{
		snapshots: []domain.RawSnapshot{upstreamSnapshot([]any{})},
		block:     make(chan struct{}),
		entered:   make(chan struct{}, 1),
	}
	p := newPipeline(fetcher, nil)

	done := make(chan error, 1)
	go func() { done <- p.Poll(context.Background()) }()

	// Wait for the first poll to be mid-fetch, then poll again: the second
	// call must skip without touching the fetcher.
	<-fetcher.entered
	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, 1, fetcher.callCount())

	close(fetcher.block)
	require.NoError(t, <-done)

	_, err := p.Latest()
	assert.NoError(t, err)
}

func TestRun_PollsImmediatelyAndOnTicks(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{
		upstreamSnapshot([]any{[]any{10.0, 20.0}}),
	}}
	p := pipeline.New(fetcher, track.New(track.DefaultMatchRadiusKM), nil,
		clockwork.NewRealClock(), 0, 20*time.Millisecond,
		discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond, "expected the startup poll plus at least one tick")

	cancel()
	require.NoError(t, <-done)
}

func TestRun_StopsOnCancellation(t *testing.T) {
	fetcher := &mockFetcher{snapshots: []domain.RawSnapshot{upstreamSnapshot([]any{})}}
	p := pipeline.New(fetcher, track.New(track.DefaultMatchRadiusKM), nil,
		clockwork.NewRealClock(), 0, time.Hour,
		discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count int32
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		atomic.AddInt32(&count, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}
