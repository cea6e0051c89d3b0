package httprequest

import (
	"context"
	"net/http"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

// HTTPNodeFactory creates HTTPNode instances.
type HTTPNodeFactory struct {
	client protocol.HTTPDoer
}

// NewHTTPNodeFactory creates a new HTTP request node factory. A nil client uses http.DefaultClient.
func NewHTTPNodeFactory(client protocol.HTTPDoer) protocol.NodeFactory {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPNodeFactory{client: client}
}

// Create creates a new HTTPNode instance.
func (f *HTTPNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewHTTPNode(id, config, f.client)
}

func (f *HTTPNodeFactory) Kind() models.NodeKind {
	return models.NodeKindHTTP
}

func (f *HTTPNodeFactory) Name() string {
	return "HTTP Request"
}

func (f *HTTPNodeFactory) Description() string {
	return "Performs an HTTP request and exposes status, headers and the decoded body"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *HTTPNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to request. Supports {{path}} placeholders",
				"examples":    []string{"https://api.example.com/users/{{input.userId}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers",
			},
			"body": map[string]any{
				"description": "Request body. Objects are sent as JSON",
				"type":        []string{"string", "object", "array"},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
			},
		},
		"required": []string{"url"},
	}
}
