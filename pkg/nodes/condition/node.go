// Package condition provides the condition node. Its result is advisory:
// it reports which branch a value selects but never prunes downstream nodes.
package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/template"
)

// Operator compares a looked-up variable against the configured value.
type Operator string

const (
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "not_equals"
	OperatorContains           Operator = "contains"
	OperatorNotContains        Operator = "not_contains"
	OperatorGreaterThan        Operator = "greater_than"
	OperatorLessThan           Operator = "less_than"
	OperatorGreaterThanOrEqual Operator = "greater_than_or_equal"
	OperatorLessThanOrEqual    Operator = "less_than_or_equal"
	OperatorStartsWith         Operator = "starts_with"
	OperatorEndsWith           Operator = "ends_with"
	OperatorRegex              Operator = "regex"
	OperatorIsEmpty            Operator = "is_empty"
	OperatorIsNotEmpty         Operator = "is_not_empty"
	OperatorExpression         Operator = "expression"
)

// ErrUnknownOperator is returned for operators outside the supported set.
var ErrUnknownOperator = errors.New("unknown condition operator")

// ConditionNode evaluates a single comparison.
type ConditionNode struct {
	id         string
	field      string
	operator   Operator
	value      any
	expression string
	engine     *expressions.ExprEngine
}

// NewConditionNode creates a new condition node.
func NewConditionNode(id string, config map[string]any, engine *expressions.ExprEngine) (*ConditionNode, error) {
	operator := Operator(nodes.StringOr(config, "operator", string(OperatorEquals)))

	node := &ConditionNode{
		id:       id,
		operator: operator,
		value:    config["value"],
		engine:   engine,
	}

	if operator == OperatorExpression {
		expression := nodes.StringOr(config, "expression", "")
		if expression == "" {
			expression, _ = node.value.(string)
		}

		if expression == "" {
			return nil, errors.New("missing required field 'expression'")
		}

		node.expression = expression

		return node, nil
	}

	field, err := nodes.RequiredString(config, "field")
	if err != nil {
		return nil, err
	}

	node.field = field

	return node, nil
}

func (n *ConditionNode) ID() string {
	return n.id
}

func (n *ConditionNode) Kind() models.NodeKind {
	return models.NodeKindCondition
}

// Execute evaluates the condition and reports the selected branch.
func (n *ConditionNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	variables := execCtx.Variables()

	var (
		actual any
		result bool
		err    error
	)

	if n.operator == OperatorExpression {
		result, err = n.engine.EvaluateBool(ctx, n.expression, variables)
		if err != nil {
			return nil, err
		}

		actual = result
	} else {
		// Unresolved fields compare as nil.
		var found bool

		actual, found = template.Lookup(variables, n.field)
		if !found {
			actual = nil
		}

		result, err = Evaluate(n.operator, actual, n.value)
		if err != nil {
			return nil, err
		}
	}

	branch := "false"
	if result {
		branch = "true"
	}

	logger.DebugContext(ctx, "Condition evaluated", "field", n.field, "operator", n.operator, "result", result)

	output := map[string]any{
		"result":   result,
		"branch":   branch,
		"field":    n.field,
		"operator": string(n.operator),
		"value":    n.value,
		"actual":   actual,
	}

	if n.expression != "" {
		output["expression"] = n.expression
	}

	return output, nil
}

// Evaluate applies operator to actual and expected.
func Evaluate(operator Operator, actual, expected any) (bool, error) {
	switch operator {
	case OperatorEquals:
		return looseEqual(actual, expected), nil
	case OperatorNotEquals:
		return !looseEqual(actual, expected), nil
	case OperatorContains:
		return contains(actual, expected), nil
	case OperatorNotContains:
		return !contains(actual, expected), nil
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterThanOrEqual, OperatorLessThanOrEqual:
		return compareNumbers(operator, actual, expected), nil
	case OperatorStartsWith:
		return strings.HasPrefix(toText(actual), toText(expected)), nil
	case OperatorEndsWith:
		return strings.HasSuffix(toText(actual), toText(expected)), nil
	case OperatorRegex:
		pattern, ok := expected.(string)
		if !ok {
			return false, errors.New("regex operator requires a string pattern")
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}

		return actual != nil && re.MatchString(toText(actual)), nil
	case OperatorIsEmpty:
		return isEmpty(actual), nil
	case OperatorIsNotEmpty:
		return !isEmpty(actual), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
	}
}

// looseEqual compares numerically when both sides are numeric, otherwise by text.
// Configured values pass through the template resolver and often arrive as strings.
func looseEqual(actual, expected any) bool {
	if a, ok := nodes.ToNumber(actual); ok {
		if b, ok := nodes.ToNumber(expected); ok {
			return a == b
		}
	}

	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if reflect.DeepEqual(actual, expected) {
		return true
	}

	return toText(actual) == toText(expected)
}

func contains(actual, expected any) bool {
	switch typed := actual.(type) {
	case string:
		return strings.Contains(typed, toText(expected))
	case []any:
		for _, item := range typed {
			if looseEqual(item, expected) {
				return true
			}
		}

		return false
	case map[string]any:
		_, exists := typed[toText(expected)]

		return exists
	default:
		return false
	}
}

func compareNumbers(operator Operator, actual, expected any) bool {
	a, okA := nodes.ToNumber(actual)
	b, okB := nodes.ToNumber(expected)

	if !okA || !okB {
		return false
	}

	switch operator {
	case OperatorGreaterThan:
		return a > b
	case OperatorLessThan:
		return a < b
	case OperatorGreaterThanOrEqual:
		return a >= b
	default:
		return a <= b
	}
}

func isEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}

func toText(value any) string {
	if value == nil {
		return ""
	}

	return template.Stringify(value)
}
