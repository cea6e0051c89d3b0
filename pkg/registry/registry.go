// Package registry maps node kinds to the factories that build their handlers.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"

	"github.com/dukex/flowforge/pkg/models"
	"github.com/dukex/flowforge/pkg/protocol"
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[models.NodeKind]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[models.NodeKind]protocol.NodeFactory),
	}
}

// RegisterNode adds factory, replacing any factory already registered for its kind.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.Kind()] = factory
}

// IsRegistered reports whether kind has a factory.
func (r *Registry) IsRegistered(kind models.NodeKind) bool {
	_, ok := r.nodeFactories[kind]

	return ok
}

// CreateNode builds the handler for a node. Unregistered kinds get a handler
// that reports the node as skipped instead of failing the run.
func (r *Registry) CreateNode(ctx context.Context, kind models.NodeKind, id string, config map[string]any) (protocol.Handler, error) {
	factory, ok := r.nodeFactories[kind]
	if !ok {
		r.logger.WarnContext(ctx, "No handler registered for node kind", "kind", kind, "node_id", id)

		return NewSkippedHandler(id, kind), nil
	}

	handler, err := factory.Create(ctx, id, config)
	if err != nil {
		return nil, fmt.Errorf("invalid %s node configuration: %w", kind, err)
	}

	return handler, nil
}

// GetAvailableNodes returns every registered factory ordered by kind.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.NodeFactory) int {
		return strings.Compare(string(a.Kind()), string(b.Kind()))
	})

	return factories
}

// LoadNodePlugins opens every <pluginsPath>/nodes/**/*.so and registers the
// protocol.NodeFactory each one exports as the symbol "Node".
func (r *Registry) LoadNodePlugins(pluginsPath string) error {
	factories, err := loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
	if err != nil {
		return err
	}

	for _, factory := range factories {
		r.RegisterNode(factory)
	}

	return nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			// Exported variables are looked up as pointers.
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded node plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
