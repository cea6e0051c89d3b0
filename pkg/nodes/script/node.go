// Package script runs user supplied JavaScript in an isolated goja runtime.
//
// The runtime exposes only three globals: input, variables (both deep copies)
// and console, whose methods append to the execution log. No module loader,
// file system or network access is installed. Script failures are returned
// as data and never fail the node.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/dukex/flowforge/pkg/expressions"
	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/nodes"
	"github.com/dukex/flowforge/pkg/template"
)

const DefaultTimeout = 5 * time.Second

var errTimeout = errors.New("script timed out")

type ScriptNode struct {
	id      string
	code    string
	timeout time.Duration
}

func NewScriptNode(id string, config map[string]any) (*ScriptNode, error) {
	code, err := nodes.RequiredString(config, "code")
	if err != nil {
		return nil, err
	}

	timeout := DefaultTimeout
	if ms, ok := nodes.Number(config, "timeout"); ok && ms > 0 {
		timeout = time.Duration(ms * float64(time.Millisecond))
	}

	return &ScriptNode{id: id, code: code, timeout: timeout}, nil
}

func (n *ScriptNode) ID() string {
	return n.id
}

func (n *ScriptNode) Kind() models.NodeKind {
	return models.NodeKindScript
}

func (n *ScriptNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	result, err := n.run(ctx, execCtx)
	if err != nil {
		logger.WarnContext(ctx, "Script failed", "node_id", n.id, "error", err)
		execCtx.Log(models.LogLevelError, "Script failed: "+err.Error(), n.id, nil)

		return map[string]any{"executed": false, "error": err.Error()}, nil
	}

	return map[string]any{"executed": true, "result": result}, nil
}

func (n *ScriptNode) run(ctx context.Context, execCtx *models.ExecutionContext) (any, error) {
	input, err := expressions.Normalize(execCtx.Input)
	if err != nil {
		return nil, err
	}

	variables, err := expressions.Normalize(execCtx.Variables())
	if err != nil {
		return nil, err
	}

	vm := goja.New()

	if err := vm.Set("input", input); err != nil {
		return nil, err
	}

	if err := vm.Set("variables", variables); err != nil {
		return nil, err
	}

	if err := vm.Set("console", n.console(vm, execCtx)); err != nil {
		return nil, err
	}

	timer := time.AfterFunc(n.timeout, func() {
		vm.Interrupt(errTimeout)
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	value, err := vm.RunString("(function() {\n" + n.code + "\n})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				if errors.Is(cause, errTimeout) {
					return nil, fmt.Errorf("%w after %s", errTimeout, n.timeout)
				}

				return nil, cause
			}
		}

		return nil, err
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	return expressions.Normalize(value.Export())
}

func (n *ScriptNode) console(vm *goja.Runtime, execCtx *models.ExecutionContext) map[string]any {
	method := func(level models.LogLevel) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, template.Stringify(arg.Export()))
			}

			execCtx.Log(level, strings.Join(parts, " "), n.id, nil)

			return vm.ToValue(nil)
		}
	}

	return map[string]any{
		"log":   method(models.LogLevelInfo),
		"info":  method(models.LogLevelInfo),
		"warn":  method(models.LogLevelWarn),
		"error": method(models.LogLevelError),
		"debug": method(models.LogLevelDebug),
	}
}
