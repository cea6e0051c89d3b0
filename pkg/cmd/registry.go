// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowforge/pkg/documents"
	"github.com/dukex/flowforge/pkg/registry"
)

// NewRegistry registers the built-in nodes, then any plugins found under
// pluginsPath, which may override built-ins of the same kind.
func NewRegistry(log *slog.Logger, pluginsPath string, store documents.Store, emailEndpoint string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	reg.RegisterDefaultNodes(registry.Dependencies{
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Documents:     store,
		EmailEndpoint: emailEndpoint,
	})

	if pluginsPath != "" {
		if err := reg.LoadNodePlugins(pluginsPath); err != nil {
			return nil, fmt.Errorf("failed to load node plugins: %w", err)
		}
	}

	return reg, nil
}
