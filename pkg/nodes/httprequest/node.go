// Package httprequest provides the HTTP request node.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/protocol"
)

const (
	DefaultTimeout = 30 * time.Second

	// MaxResponseBytes bounds the body a node will buffer; larger responses fail the node.
	MaxResponseBytes = 10 << 20
)

var ErrResponseTooLarge = errors.New("response body too large")

// Request is a fully resolved outbound HTTP call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// HTTPNode issues one HTTP request per execution.
type HTTPNode struct {
	id      string
	request Request
	client  protocol.HTTPDoer
}

// NewHTTPNode creates a new HTTP request node.
func NewHTTPNode(id string, config map[string]any, client protocol.HTTPDoer) (*HTTPNode, error) {
	url, err := nodes.RequiredString(config, "url")
	if err != nil {
		return nil, err
	}

	request := Request{
		URL:     url,
		Method:  strings.ToUpper(nodes.StringOr(config, "method", http.MethodGet)),
		Headers: nodes.StringMap(config, "headers"),
		Body:    config["body"],
		Timeout: ParseTimeout(config),
	}

	return &HTTPNode{id: id, request: request, client: client}, nil
}

// ID returns the node ID.
func (n *HTTPNode) ID() string {
	return n.id
}

// Kind returns the node type.
func (n *HTTPNode) Kind() models.NodeKind {
	return models.NodeKindHTTP
}

// Execute performs the request.
func (n *HTTPNode) Execute(ctx context.Context, _ *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger.DebugContext(ctx, "Sending HTTP request", "method", n.request.Method, "url", n.request.URL)

	return Do(ctx, n.client, n.request)
}

// ParseTimeout reads "timeout" in seconds, falling back to DefaultTimeout.
func ParseTimeout(config map[string]any) time.Duration {
	if seconds, ok := nodes.Number(config, "timeout"); ok && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}

	return DefaultTimeout
}

// Do sends the request and describes the response as
// {status, statusText, ok, data, headers}. Non-2xx responses are returned,
// not raised; only transport failures produce an error.
func Do(ctx context.Context, client protocol.HTTPDoer, request Request) (map[string]any, error) {
	if client == nil {
		client = http.DefaultClient
	}

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(request.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, request.Method, request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", request.Method, request.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(raw) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: %s %s returned more than %d bytes",
			ErrResponseTooLarge, request.Method, request.URL, MaxResponseBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[strings.ToLower(key)] = resp.Header.Get(key)
	}

	return map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
		"data":       decodeBody(resp.Header.Get("Content-Type"), raw),
		"headers":    headers,
	}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch typed := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if typed == "" {
			return nil, "", nil
		}

		return strings.NewReader(typed), "", nil
	case []byte:
		return bytes.NewReader(typed), "", nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}

		return bytes.NewReader(encoded), "application/json", nil
	}
}

func decodeBody(contentType string, raw []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") && len(raw) > 0 {
		var data any
		if err := json.Unmarshal(raw, &data); err == nil {
			return data
		}
	}

	return string(raw)
}
