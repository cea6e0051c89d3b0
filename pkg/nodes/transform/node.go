// Package transform reshapes run variables: field mapping, filtering, projection,
// merging, template rendering and jq or expr-lang programs.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/oliveagle/jsonpath"

	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/template"
)

type Mode string

const (
	ModeMap      Mode = "map"
	ModeFilter   Mode = "filter"
	ModePick     Mode = "pick"
	ModeMerge    Mode = "merge"
	ModeTemplate Mode = "template"
	ModeJQ       Mode = "jq"
	ModeExpr     Mode = "expr"
)

// ErrInvalidMapping is returned by the factory for a non-object mapping.
var ErrInvalidMapping = errors.New("mapping must be an object")

// Engines bundles the expression evaluators used by the jq and expr modes.
type Engines struct {
	Expr *expressions.ExprEngine
	JQ   *expressions.JQEngine
}

type TransformNode struct {
	id      string
	mode    Mode
	source  string
	config  map[string]any
	engines Engines
}

func NewTransformNode(id string, config map[string]any, engines Engines) (*TransformNode, error) {
	mode := Mode(nodes.StringOr(config, "mode", string(ModeMap)))

	switch mode {
	case ModeJQ, ModeExpr:
		if _, err := nodes.RequiredString(config, "expression"); err != nil {
			return nil, err
		}
	case ModeFilter:
		if _, err := nodes.RequiredString(config, "field"); err != nil {
			return nil, err
		}
	}

	if engines.Expr == nil {
		engines.Expr = expressions.NewExprEngine()
	}

	if engines.JQ == nil {
		engines.JQ = expressions.NewJQEngine()
	}

	return &TransformNode{
		id:      id,
		mode:    mode,
		source:  nodes.StringOr(config, "source", ""),
		config:  config,
		engines: engines,
	}, nil
}

func (n *TransformNode) ID() string {
	return n.id
}

func (n *TransformNode) Kind() models.NodeKind {
	return models.NodeKindTransform
}

func (n *TransformNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	variables := execCtx.Variables()
	input := n.input(variables)

	logger.DebugContext(ctx, "Transforming", "mode", n.mode, "source", n.source)

	switch n.mode {
	case ModeMap:
		mapping, ok := nodes.Map(n.config, "mapping")
		if !ok {
			return input, nil
		}

		return eachItem(input, func(item any) (any, error) {
			return applyMapping(item, mapping)
		})
	case ModeFilter:
		field, _ := nodes.String(n.config, "field")

		return filter(input, field, n.config["value"]), nil
	case ModePick:
		fields := nodes.Strings(n.config, "fields")

		return eachItem(input, func(item any) (any, error) {
			return pick(item, fields), nil
		})
	case ModeMerge:
		return merge(variables, nodes.Strings(n.config, "sources")), nil
	case ModeTemplate:
		// The executor resolved the config already; resolving again would expand
		// tokens that arrived inside variable values.
		if raw, ok := n.config["template"]; ok {
			return raw, nil
		}

		return input, nil
	case ModeJQ:
		expression, _ := nodes.String(n.config, "expression")

		return n.engines.JQ.Evaluate(ctx, expression, input)
	case ModeExpr:
		expression, _ := nodes.String(n.config, "expression")

		env := maps.Clone(variables)
		env["source"] = input

		return n.engines.Expr.Evaluate(ctx, expression, env)
	default:
		logger.WarnContext(ctx, "Unknown transform mode, passing input through", "mode", n.mode)

		return input, nil
	}
}

// input is the value at the configured source path, or every variable when unset.
func (n *TransformNode) input(variables map[string]any) any {
	if n.source == "" {
		return variables
	}

	value, found := template.Lookup(variables, n.source)
	if !found {
		return nil
	}

	return value
}

func eachItem(input any, fn func(any) (any, error)) (any, error) {
	list, ok := input.([]any)
	if !ok {
		return fn(input)
	}

	out := make([]any, 0, len(list))

	for _, item := range list {
		mapped, err := fn(item)
		if err != nil {
			return nil, err
		}

		out = append(out, mapped)
	}

	return out, nil
}

// applyMapping builds an object whose keys are the mapping keys and whose values
// are looked up in item. Paths starting with "$" are JSONPath expressions.
func applyMapping(item any, mapping map[string]any) (any, error) {
	out := make(map[string]any, len(mapping))

	for key, rawPath := range mapping {
		path, ok := rawPath.(string)
		if !ok {
			out[key] = rawPath

			continue
		}

		if strings.HasPrefix(path, "$") {
			normalized, err := expressions.Normalize(item)
			if err != nil {
				return nil, err
			}

			value, err := jsonpath.JsonPathLookup(normalized, path)
			if err != nil {
				out[key] = nil

				continue
			}

			out[key] = value

			continue
		}

		value, _ := template.Lookup(item, path)
		out[key] = value
	}

	return out, nil
}

func filter(input any, field string, expected any) any {
	list, ok := input.([]any)
	if !ok {
		return input
	}

	out := make([]any, 0, len(list))

	for _, item := range list {
		actual, found := template.Lookup(item, field)
		if !found {
			continue
		}

		if template.Stringify(actual) == template.Stringify(expected) {
			out = append(out, item)
		}
	}

	return out
}

func pick(item any, fields []string) any {
	object, ok := item.(map[string]any)
	if !ok {
		return item
	}

	out := make(map[string]any, len(fields))

	for _, field := range fields {
		if value, found := template.Lookup(object, field); found {
			out[field] = value
		}
	}

	return out
}

func merge(variables map[string]any, sources []string) map[string]any {
	out := make(map[string]any)

	for _, source := range sources {
		value, found := template.Lookup(variables, source)
		if !found {
			continue
		}

		if object, ok := value.(map[string]any); ok {
			maps.Copy(out, object)
		}
	}

	return out
}

func validateMapping(config map[string]any) error {
	raw, present := config["mapping"]
	if !present {
		return nil
	}

	if _, ok := raw.(map[string]any); !ok {
		return fmt.Errorf("%w, got %T", ErrInvalidMapping, raw)
	}

	return nil
}
