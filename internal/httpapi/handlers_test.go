package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/flowline/internal/config"
	"github.com/jmylchreest/flowline/internal/store"
	"github.com/jmylchreest/flowline/pkg/pipeline/progress"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(config.DatabaseConfig{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1, LogLevel: "silent"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second}
	return NewServer(cfg, st, nil), st
}

func TestHandleListRuns_ReturnsPersistedRuns(t *testing.T) {
	s, st := newTestServer(t)
	_, err := st.CreateRun(context.Background(), "nightly", store.RunKindBatch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var runs []store.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "nightly", runs[0].Name)
}

func TestHandleGetRun_NotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/runs/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRunProgress_FallsBackToPersistedStateWhenNotLive(t *testing.T) {
	s, st := newTestServer(t)
	run, err := st.CreateRun(context.Background(), "enrich", store.RunKindStream)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.ID.String()+"/progress", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestHandleRunProgress_StreamsLiveTrackerEvents(t *testing.T) {
	s, st := newTestServer(t)
	run, err := st.CreateRun(context.Background(), "live-run", store.RunKindBatch)
	require.NoError(t, err)

	tr := progress.NewTracker(1, nil)
	s.RegisterTracker(run.ID.String(), tr)
	defer s.UnregisterTracker(run.ID.String())

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/runs/" + run.ID.String() + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Give the handler goroutine a moment to reach tr.Subscribe after
	// flushing headers, so this Emit isn't missed.
	time.Sleep(20 * time.Millisecond)
	tr.Emit(progress.Event{Kind: progress.PipelineStart})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	require.Contains(t, line, "pipeline:start")
}
