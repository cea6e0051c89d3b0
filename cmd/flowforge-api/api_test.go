package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowforge/pkg/cmd"
)

func setupTestApp(t *testing.T) *API {
	t.Helper()

	runtime, err := cmd.NewRuntime(context.Background(), slog.Default(), cmd.Config{
		ServiceName: "flowforge-api-test",
		DatabaseURL: "file://" + t.TempDir(),
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = runtime.Close(context.Background()) })

	return NewAPI(slog.Default(), runtime, nil)
}

func get(t *testing.T, api *API, path string) (int, string) {
	t.Helper()

	resp, err := api.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Flowforge API", body)
}

func TestAPI_LivenessAndHealth(t *testing.T) {
	api := setupTestApp(t)

	status, body := get(t, api, "/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = get(t, api, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"healthy"`)
}

func TestAPI_GetWorkflows_Empty(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/workflows")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"total_count":0`)
}

func TestAPI_TriggersDisabledWithoutBus(t *testing.T) {
	api := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/triggers", strings.NewReader(`{"source_type":"manual"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.App().Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
