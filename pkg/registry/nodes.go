package registry

import (
	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/nodes/condition"
	"github.com/dukex/flowforge/pkg/nodes/delay"
	"github.com/dukex/flowforge/pkg/nodes/email"
	"github.com/dukex/flowforge/pkg/nodes/httprequest"
	lognode "github.com/dukex/flowforge/pkg/nodes/log"
	"github.com/dukex/flowforge/pkg/nodes/query"
	"github.com/dukex/flowforge/pkg/nodes/script"
	"github.com/dukex/flowforge/pkg/nodes/setvariable"
	"github.com/dukex/flowforge/pkg/nodes/transform"
	"github.com/dukex/flowforge/pkg/nodes/trigger"
	"github.com/dukex/flowforge/pkg/nodes/webhook"
	"github.com/dukex/flowforge/pkg/protocol"
)

// Dependencies are the collaborators built-in nodes reach out to.
type Dependencies struct {
	HTTPClient    protocol.HTTPDoer
	Documents     documents.Store
	EmailEndpoint string
}

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	exprEngine := expressions.NewExprEngine()

	r.RegisterNode(httprequest.NewHTTPNodeFactory(deps.HTTPClient))
	r.RegisterNode(webhook.NewWebhookNodeFactory(deps.HTTPClient))
	r.RegisterNode(email.NewEmailNodeFactory(deps.EmailEndpoint, deps.HTTPClient))

	if deps.Documents != nil {
		r.RegisterNode(query.NewQueryNodeFactory(deps.Documents))
	}

	r.RegisterNode(condition.NewConditionNodeFactory(exprEngine))
	r.RegisterNode(transform.NewTransformNodeFactory(transform.Engines{
		Expr: exprEngine,
		JQ:   expressions.NewJQEngine(),
	}))
	r.RegisterNode(delay.NewDelayNodeFactory())
	r.RegisterNode(lognode.NewLogNodeFactory())
	r.RegisterNode(setvariable.NewSetVariableNodeFactory())
	r.RegisterNode(script.NewScriptNodeFactory())

	for _, factory := range trigger.NewTriggerNodeFactories() {
		r.RegisterNode(factory)
	}
}
