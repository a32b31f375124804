package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/driftline/constellation-tracker/internal/adapter/httpapi"
	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	snap domain.ConstellationSnapshot
	err  error
}

func (s *stubSource) Latest() (domain.ConstellationSnapshot, error) {
	return s.snap, s.err
}

func (s *stubSource) CheckReadiness(_ context.Context) error {
	return s.err
}

type stubContextProvider struct {
	result domain.LocalContext
	err    error
}

func (s *stubContextProvider) Lookup(_ context.Context, _, _ float64) (domain.LocalContext, error) {
	return s.result, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, srv *httpapi.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func readySnapshot() domain.ConstellationSnapshot {
	return domain.ConstellationSnapshot{
		HoursAgo: 0,
		Source:   domain.SourceUpstream,
		Points: []domain.TrackedPoint{
			{CanonicalPoint: domain.CanonicalPoint{Lat: 10, Lon: 20}, ID: "b1"},
		},
		PolledAt: time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestHealthz(t *testing.T) {
	srv := httpapi.NewServer(":0", &stubSource{}, nil, discardLogger())

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	notReady := httpapi.NewServer(":0", &stubSource{err: errors.New("no snapshot available yet")}, nil, discardLogger())
	rec := get(t, notReady, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready := httpapi.NewServer(":0", &stubSource{snap: readySnapshot()}, nil, discardLogger())
	rec = get(t, ready, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConstellation_BeforeFirstPoll(t *testing.T) {
	srv := httpapi.NewServer(":0", &stubSource{err: errors.New("no snapshot available yet")}, nil, discardLogger())

	rec := get(t, srv, "/api/v1/constellation")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConstellation_ServesLatestSnapshot(t *testing.T) {
	srv := httpapi.NewServer(":0", &stubSource{snap: readySnapshot()}, nil, discardLogger())

	rec := get(t, srv, "/api/v1/constellation")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap domain.ConstellationSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.SourceUpstream, snap.Source)
	require.Len(t, snap.Points, 1)
	assert.Equal(t, "b1", snap.Points[0].ID)
	assert.Equal(t, 10.0, snap.Points[0].Lat)
}

func TestContext_DisabledProvider(t *testing.T) {
	srv := httpapi.NewServer(":0", &stubSource{}, nil, discardLogger())

	rec := get(t, srv, "/api/v1/context?lat=10&lon=20")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestContext_BadParams(t *testing.T) {
	srv := httpapi.NewServer(":0", &stubSource{}, &stubContextProvider{}, discardLogger())

	for _, path := range []string{
		"/api/v1/context",
		"/api/v1/context?lat=abc&lon=20",
		"/api/v1/context?lat=91&lon=20",
		"/api/v1/context?lat=10&lon=181",
	} {
		rec := get(t, srv, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestContext_Lookup(t *testing.T) {
	provider := &stubContextProvider{result: domain.LocalContext{
		WindDirectionDeg: 270,
		WindSpeedKnots:   35,
		RarityScore:      0.8,
		StationsNearby:   2,
	}}
	srv := httpapi.NewServer(":0", &stubSource{}, provider, discardLogger())

	rec := get(t, srv, "/api/v1/context?lat=10.5&lon=-20.25")
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.LocalContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 270.0, result.WindDirectionDeg)
	assert.Equal(t, 2, result.StationsNearby)
}

func TestContext_ProviderError(t *testing.T) {
	provider := &stubContextProvider{err: errors.New("collaborator down")}
	srv := httpapi.NewServer(":0", &stubSource{}, provider, discardLogger())

	rec := get(t, srv, "/api/v1/context?lat=10&lon=20")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
