package models

// NodeKind is the closed set of node types the engine knows how to run.
type NodeKind string

const (
	NodeKindHTTP        NodeKind = "http"
	NodeKindMongoDB     NodeKind = "mongodb"
	NodeKindCondition   NodeKind = "condition"
	NodeKindTransform   NodeKind = "transform"
	NodeKindDelay       NodeKind = "delay"
	NodeKindLog         NodeKind = "log"
	NodeKindSetVariable NodeKind = "set_variable"
	NodeKindWebhook     NodeKind = "webhook"
	NodeKindScript      NodeKind = "script"
	NodeKindEmail       NodeKind = "email"

	// Trigger kinds mark entry points and are never executed.
	NodeKindTrigger         NodeKind = "trigger"
	NodeKindFormTrigger     NodeKind = "form_trigger"
	NodeKindScheduleTrigger NodeKind = "schedule_trigger"
	NodeKindManualTrigger   NodeKind = "manual_trigger"
	NodeKindWebhookTrigger  NodeKind = "webhook_trigger"
)

// IsTrigger reports whether nodes of this kind are entry points.
func (k NodeKind) IsTrigger() bool {
	switch k {
	case NodeKindTrigger, NodeKindFormTrigger, NodeKindScheduleTrigger, NodeKindManualTrigger, NodeKindWebhookTrigger:
		return true
	default:
		return false
	}
}

// Node is a single unit of work inside a workflow graph.
type Node struct {
	ID              string         `json:"id"                          validate:"required"`
	Type            string         `json:"type,omitempty"`
	Name            string         `json:"name,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty"`
}

// Kind resolves the node type, falling back to the legacy data.type location.
func (n *Node) Kind() NodeKind {
	if n.Type != "" {
		return NodeKind(n.Type)
	}

	if kind, ok := n.Data["type"].(string); ok {
		return NodeKind(kind)
	}

	return ""
}

// Configuration resolves the node config, falling back to the legacy data.config location.
func (n *Node) Configuration() map[string]any {
	if n.Config != nil {
		return n.Config
	}

	if config, ok := n.Data["config"].(map[string]any); ok {
		return config
	}

	return map[string]any{}
}

// ContinuesOnError reports whether a failure of this node should be logged instead of aborting the run.
func (n *Node) ContinuesOnError() bool {
	if n.ContinueOnError {
		return true
	}

	flag, _ := n.Configuration()["continueOnError"].(bool)

	return flag
}
