package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/flowforge/pkg/models"
)

// WildcardIdentifier matches every source identifier.
const WildcardIdentifier = "*"

// TriggerMatcher selects the workflows a trigger event should start.
type TriggerMatcher struct {
	logger *slog.Logger
}

// MatchResult pairs a workflow with the trigger node that accepted the event.
type MatchResult struct {
	Workflow    *models.Workflow
	TriggerNode *models.Node
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchWorkflows returns at most one match per active workflow: the first
// trigger node, in declaration order, that accepts the event.
func (tm *TriggerMatcher) MatchWorkflows(event models.TriggerEvent, workflows []*models.Workflow) []MatchResult {
	results := make([]MatchResult, 0)

	for _, workflow := range workflows {
		if !workflow.IsActive() {
			continue
		}

		for _, node := range workflow.TriggerNodes() {
			matched, err := MatchTriggerNode(node, event)
			if err != nil {
				tm.logger.Warn("Trigger node rejected event",
					"workflow_slug", workflow.Slug, "node_id", node.ID, "error", err)

				continue
			}

			if matched {
				results = append(results, MatchResult{Workflow: workflow, TriggerNode: node})

				break
			}
		}
	}

	tm.logger.Debug("Completed trigger matching",
		"source_type", event.SourceType,
		"source_identifier", event.SourceIdentifier,
		"matches_found", len(results))

	return results
}

// MatchTriggerNode reports whether node accepts event. An error means the
// payload failed the node's schema or the schema itself is unusable.
func MatchTriggerNode(node *models.Node, event models.TriggerEvent) (bool, error) {
	config := node.Configuration()

	if !kindAccepts(node.Kind(), config, event.SourceType) {
		return false, nil
	}

	if !identifierAccepts(config, event.SourceIdentifier) {
		return false, nil
	}

	schema, ok := config["schema"]
	if !ok || schema == nil {
		return true, nil
	}

	if err := validatePayload(schema, event.Payload); err != nil {
		return false, err
	}

	return true, nil
}

func kindAccepts(kind models.NodeKind, config map[string]any, sourceType string) bool {
	switch kind {
	case models.NodeKindTrigger:
		configured, _ := config["sourceType"].(string)

		return configured == "" || configured == sourceType
	case models.NodeKindFormTrigger:
		return sourceType == models.SourceTypeForm
	case models.NodeKindWebhookTrigger:
		return sourceType == models.SourceTypeWebhook
	case models.NodeKindManualTrigger:
		return sourceType == models.SourceTypeManual
	case models.NodeKindScheduleTrigger:
		return sourceType == models.SourceTypeSchedule
	default:
		return false
	}
}

// identifierAccepts applies formSlug, falling back to sourceIdentifier. Unset
// and "*" accept everything.
func identifierAccepts(config map[string]any, identifier string) bool {
	expected, _ := config["formSlug"].(string)
	if expected == "" {
		expected, _ = config["sourceIdentifier"].(string)
	}

	return expected == "" || expected == WildcardIdentifier || expected == identifier
}

func validatePayload(schema any, payload map[string]any) error {
	var schemaLoader gojsonschema.JSONLoader

	switch typed := schema.(type) {
	case string:
		schemaLoader = gojsonschema.NewStringLoader(typed)
	case map[string]any:
		schemaLoader = gojsonschema.NewGoLoader(typed)
	default:
		return fmt.Errorf("unsupported schema type %T", schema)
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("invalid trigger schema: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return errors.New("payload validation errors: " + strings.Join(messages, "; "))
	}

	return nil
}

// TriggerSourceFor maps an event source type to the trigger recorded on the execution.
func TriggerSourceFor(sourceType string) models.TriggerSource {
	switch sourceType {
	case models.SourceTypeForm:
		return models.TriggerSourceForm
	case models.SourceTypeManual:
		return models.TriggerSourceManual
	case models.SourceTypeSchedule:
		return models.TriggerSourceSchedule
	default:
		return models.TriggerSourceEvent
	}
}
