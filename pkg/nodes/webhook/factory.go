package webhook

import (
	"context"
	"net/http"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

// WebhookNodeFactory creates WebhookNode instances.
type WebhookNodeFactory struct {
	client protocol.HTTPDoer
}

func NewWebhookNodeFactory(client protocol.HTTPDoer) protocol.NodeFactory {
	if client == nil {
		client = http.DefaultClient
	}

	return &WebhookNodeFactory{client: client}
}

func (f *WebhookNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewWebhookNode(id, config, f.client)
}

func (f *WebhookNodeFactory) Kind() models.NodeKind {
	return models.NodeKindWebhook
}

func (f *WebhookNodeFactory) Name() string {
	return "Webhook"
}

func (f *WebhookNodeFactory) Description() string {
	return "Posts a payload, or every run variable, to an external URL"
}

func (f *WebhookNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"method":  map[string]any{"type": "string", "default": "POST"},
			"headers": map[string]any{"type": "object"},
			"payload": map[string]any{"description": "Body to send. Defaults to all run variables"},
			"timeout": map[string]any{"type": "number", "default": 30},
		},
		"required": []string{"url"},
	}
}
