package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Built-in resource names.
const (
	ResourceUsers        = "users"
	ResourceRoles        = "roles"
	ResourcePermissions  = "permissions"
	ResourceContentTypes = "content_types"
)

// Registry is an ordered set of resources registered for bootstrap.
type Registry struct {
	resources []Resource
	index     map[string]int
}

// NewRegistry validates and registers resources in order.
func NewRegistry(resources ...Resource) (*Registry, error) {
	reg := &Registry{index: make(map[string]int)}
	for _, r := range resources {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds a resource. Registering a name twice is an error.
func (reg *Registry) Register(r Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, dup := reg.index[r.Name]; dup {
		return fmt.Errorf("resource %s already registered", r.Name)
	}
	reg.index[r.Name] = len(reg.resources)
	reg.resources = append(reg.resources, r)
	return nil
}

// Resources returns the registered resources in registration order.
func (reg *Registry) Resources() []Resource {
	return append([]Resource(nil), reg.resources...)
}

// Lookup finds a registered resource by name.
func (reg *Registry) Lookup(name string) (Resource, bool) {
	i, ok := reg.index[name]
	if !ok {
		return Resource{}, false
	}
	return reg.resources[i], true
}

// PermissionNames lists every permission the registry declares.
func (reg *Registry) PermissionNames() []string {
	var names []string
	for _, r := range reg.resources {
		names = append(names, r.PermissionNames()...)
	}
	return names
}

// BuiltinRegistry returns the resources the service itself guards.
func BuiltinRegistry() *Registry {
	reg, err := NewRegistry(
		NewResource(ResourceUsers, FullActions),
		NewResource(ResourceRoles, FullActions),
		NewResource(ResourcePermissions, FullActions),
		NewResource(ResourceContentTypes, FullActions),
	)
	if err != nil {
		panic(err)
	}
	return reg
}

// manifest is the YAML shape accepted by LoadManifest:
//
//	resources:
//	  - name: articles
//	    actions: [full]
//	  - name: comments
//	    actions: [read, create]
type manifest struct {
	Resources []struct {
		Name    string   `yaml:"name"`
		Actions []string `yaml:"actions"`
	} `yaml:"resources"`
}

// LoadManifest reads a YAML resource manifest into a registry.
func LoadManifest(r io.Reader) (*Registry, error) {
	var m manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode resource manifest: %w", err)
	}

	reg := &Registry{index: make(map[string]int)}
	for _, entry := range m.Resources {
		actions, err := ParseActions(entry.Actions)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", entry.Name, err)
		}
		if err := reg.Register(Resource{Name: entry.Name, Actions: actions}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
