// Package webhook provides the outbound webhook node.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/nodes/httprequest"
	"github.com/dukex/flowforge/pkg/protocol"
)

// WebhookNode delivers a payload to an external URL. Without an explicit
// payload the whole variable set of the run is sent.
type WebhookNode struct {
	id      string
	request httprequest.Request
	payload any
	client  protocol.HTTPDoer
}

func NewWebhookNode(id string, config map[string]any, client protocol.HTTPDoer) (*WebhookNode, error) {
	url, err := nodes.RequiredString(config, "url")
	if err != nil {
		return nil, err
	}

	return &WebhookNode{
		id: id,
		request: httprequest.Request{
			URL:     url,
			Method:  strings.ToUpper(nodes.StringOr(config, "method", http.MethodPost)),
			Headers: nodes.StringMap(config, "headers"),
			Timeout: httprequest.ParseTimeout(config),
		},
		payload: config["payload"],
		client:  client,
	}, nil
}

func (n *WebhookNode) ID() string {
	return n.id
}

func (n *WebhookNode) Kind() models.NodeKind {
	return models.NodeKindWebhook
}

func (n *WebhookNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	request := n.request

	request.Body = n.payload
	if request.Body == nil {
		request.Body = execCtx.Variables()
	}

	logger.DebugContext(ctx, "Delivering webhook", "url", request.URL)

	return httprequest.Do(ctx, n.client, request)
}
