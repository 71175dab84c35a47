package runtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/logflow/internal/runtime/config"
	"github.com/drblury/logflow/internal/runtime/jsoncodec"
	"github.com/drblury/logflow/internal/runtime/processors"
	"github.com/drblury/logflow/internal/runtime/stats"
)

func newWebUIService(t *testing.T, origins ...string) (*Service, http.Handler) {
	t.Helper()
	svc := newTestService(t, &configpkg.Config{WebUIEnabled: true, WebUICORSAllowedOrigins: origins}, ServiceDependencies{})
	svc.StartWebUIServer()
	mux, ok := svc.httpServers[configpkg.DefaultWebUIPort]
	require.True(t, ok)
	return svc, mux
}

func TestHandleGetStatsReturnsSnapshot(t *testing.T) {
	svc, mux := newWebUIService(t, "*")
	svc.Stats().NewReceived()
	svc.Stats().NewError(errors.New("bad"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var snap stats.Snapshot
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap.Received)
	assert.EqualValues(t, 1, snap.Failed)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "bad", snap.Errors[0].Message)
}

func TestHandleResetStats(t *testing.T) {
	svc, mux := newWebUIService(t)
	svc.Stats().NewSent()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.EqualValues(t, 1, svc.Stats().Snapshot().Sent)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, svc.Stats().Snapshot().Sent)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleGetPipelines(t *testing.T) {
	svc, mux := newWebUIService(t, "https://ops.example.com")
	addPipeline(t, svc, "parse", processors.Require("message"))
	addPipeline(t, svc, "ship")
	addMemorySender(t, svc, "stdout", "ship")

	req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
	req.Header.Set("Origin", "https://OPS.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://OPS.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	var got []PipelineInfo
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "parse", got[0].Name)
	assert.Equal(t, 1, got[0].Processors)
	assert.Empty(t, got[0].Senders)
	assert.Equal(t, []string{"stdout"}, got[1].Senders)
}

func TestPreflightRequest(t *testing.T) {
	_, mux := newWebUIService(t, "*")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/stats/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestWebUIDisabled(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	svc.StartWebUIServer()
	assert.Empty(t, svc.httpServers)
}
