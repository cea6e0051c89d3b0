package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, config map[string]any) (map[string]any, error) {
	t.Helper()

	node, err := NewHTTPNode("fetch", config, http.DefaultClient)
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1", "test", nil)

	result, err := node.Execute(context.Background(), execCtx, slog.Default())
	if err != nil {
		return nil, err
	}

	out, ok := result.(map[string]any)
	require.True(t, ok)

	return out, nil
}

func TestHTTPNode_JSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"message":"success","count":2}`))
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, 200, result["status"])
	assert.Equal(t, "OK", result["statusText"])
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, map[string]any{"message": "success", "count": float64(2)}, result["data"])
}

func TestHTTPNode_TextResponseAndErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, 502, result["status"])
	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "upstream down", result["data"])
}

func TestHTTPNode_SendsJSONBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{
		"url":     server.URL,
		"method":  "post",
		"headers": map[string]any{"Authorization": "Bearer token"},
		"body":    map[string]any{"email": "a@b.c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 201, result["status"])
}

func TestHTTPNode_StringBodyIsSentVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, "name=x", string(raw))
		assert.Empty(t, r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	_, err := execute(t, map[string]any{"url": server.URL, "method": "PUT", "body": "name=x"})
	require.NoError(t, err)
}

func TestHTTPNode_NetworkFailureIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := execute(t, map[string]any{"url": url})
	require.Error(t, err)
}

func TestHTTPNode_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := execute(t, map[string]any{"url": server.URL, "timeout": "0.05"})
	require.Error(t, err)
}

func TestNewHTTPNode_RequiresURL(t *testing.T) {
	_, err := NewHTTPNode("fetch", map[string]any{}, nil)
	require.EqualError(t, err, "missing required field 'url'")
}

func TestParseTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, ParseTimeout(map[string]any{}))
	assert.Equal(t, 5*time.Second, ParseTimeout(map[string]any{"timeout": float64(5)}))
	assert.Equal(t, 2*time.Second, ParseTimeout(map[string]any{"timeout": "2"}))
}

func TestHTTPNode_OversizedResponseIsAnError(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "at the limit", size: MaxResponseBytes},
		{name: "over the limit", size: MaxResponseBytes + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write(bytes.Repeat([]byte("a"), tt.size))
			}))
			defer server.Close()

			result, err := execute(t, map[string]any{"url": server.URL})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrResponseTooLarge)

				return
			}

			require.NoError(t, err)
			assert.Len(t, result["data"], tt.size)
		})
	}
}
