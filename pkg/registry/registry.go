// Package registry maps node type tags to their factories. The engine
// dispatches every node through here; capabilities (branch selection,
// signature awareness) are discovered on the created processor, never by
// switching on type tags.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vesselhq/vessel/pkg/protocol"
)

// ErrNodeTypeNotRegistered is returned when a workflow references a node
// type this build does not provide.
var ErrNodeTypeNotRegistered = errors.New("node type not registered")

// ErrInvalidNodeConfig is returned when a node config fails its factory's
// JSON schema.
var ErrInvalidNodeConfig = errors.New("invalid node configuration")

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode adds a factory; later registrations win on tag collisions.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// CreateNode builds a processor for the given type tag and instance config.
func (r *Registry) CreateNode(ctx context.Context, nodeType, nodeID string, config map[string]any) (protocol.NodeProcessor, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeTypeNotRegistered, nodeType)
	}

	processor, err := factory.Create(ctx, nodeID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create node %q of type %q: %w", nodeID, nodeType, err)
	}

	return processor, nil
}

// GetNodeFactory returns the factory for a type tag.
func (r *Registry) GetNodeFactory(nodeType string) (protocol.NodeFactory, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeTypeNotRegistered, nodeType)
	}

	return factory, nil
}

// AvailableNodes lists registered type tags, sorted.
func (r *Registry) AvailableNodes() []string {
	types := make([]string, 0, len(r.nodeFactories))
	for nodeType := range r.nodeFactories {
		types = append(types, nodeType)
	}

	sort.Strings(types)

	return types
}

// ValidateNodeConfig checks an author-supplied config against the factory's
// JSON schema. Called on workflow create/update/publish so bad configs are
// rejected before any run touches them.
func (r *Registry) ValidateNodeConfig(nodeType string, config map[string]any) error {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeTypeNotRegistered, nodeType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for %q: %w", nodeType, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w for %q: %s", ErrInvalidNodeConfig, nodeType, strings.Join(descriptions, "; "))
	}

	return nil
}
