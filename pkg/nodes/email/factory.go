package email

import (
	"context"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type EmailNodeFactory struct {
	endpoint string
	client   protocol.HTTPDoer
}

// NewEmailNodeFactory creates email nodes posting to endpoint. An empty
// endpoint makes every email node log instead of send.
func NewEmailNodeFactory(endpoint string, client protocol.HTTPDoer) protocol.NodeFactory {
	return &EmailNodeFactory{endpoint: endpoint, client: client}
}

func (f *EmailNodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.Handler, error) {
	return NewEmailNode(id, config, f.endpoint, f.client)
}

func (f *EmailNodeFactory) Kind() models.NodeKind {
	return models.NodeKindEmail
}

func (f *EmailNodeFactory) Name() string {
	return "Email"
}

func (f *EmailNodeFactory) Description() string {
	return "Sends an email through the configured transport"
}

func (f *EmailNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "string"},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"html":    map[string]any{"type": "string"},
		},
		"required": []string{"to"},
	}
}
