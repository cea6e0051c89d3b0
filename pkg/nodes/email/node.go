// Package email provides the email node. Messages are posted to an HTTP
// transport endpoint when one is configured and only logged otherwise.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/nodes/httprequest"
	"github.com/dukex/flowforge/pkg/protocol"
)

// Message is the body posted to the transport endpoint.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`
}

type EmailNode struct {
	id       string
	message  Message
	endpoint string
	client   protocol.HTTPDoer
}

func NewEmailNode(id string, config map[string]any, endpoint string, client protocol.HTTPDoer) (*EmailNode, error) {
	to, err := nodes.RequiredString(config, "to")
	if err != nil {
		return nil, err
	}

	return &EmailNode{
		id: id,
		message: Message{
			To:      to,
			Subject: nodes.StringOr(config, "subject", ""),
			Body:    nodes.StringOr(config, "body", ""),
			HTML:    nodes.StringOr(config, "html", ""),
		},
		endpoint: endpoint,
		client:   client,
	}, nil
}

func (n *EmailNode) ID() string {
	return n.id
}

func (n *EmailNode) Kind() models.NodeKind {
	return models.NodeKindEmail
}

func (n *EmailNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	if n.endpoint == "" {
		logger.InfoContext(ctx, "No email transport configured, logging message", "to", n.message.To, "subject", n.message.Subject)
		execCtx.Log(models.LogLevelInfo, "Email not sent, no transport configured", n.id, map[string]any{
			"to":      n.message.To,
			"subject": n.message.Subject,
		})

		return map[string]any{"logged": true, "to": n.message.To, "subject": n.message.Subject}, nil
	}

	response, err := httprequest.Do(ctx, n.client, httprequest.Request{
		URL:     n.endpoint,
		Method:  http.MethodPost,
		Body:    n.message,
		Timeout: httprequest.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("email transport: %w", err)
	}

	if ok, _ := response["ok"].(bool); !ok {
		return nil, fmt.Errorf("email transport responded with status %v", response["status"])
	}

	return map[string]any{"sent": true, "to": n.message.To, "subject": n.message.Subject}, nil
}
