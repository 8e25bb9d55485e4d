package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/terraconstructs/gatekeeper/internal/auth"
)

// Action is one of the canonical operations a permission can grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionGet    Action = "get"
	ActionGetAll Action = "get_all"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// canonicalOrder fixes the order actions appear in after Combine.
var canonicalOrder = []Action{ActionCreate, ActionGet, ActionGetAll, ActionUpdate, ActionDelete}

// Composable action sets.
var (
	CreateActions = []Action{ActionCreate}
	ReadActions   = []Action{ActionGet, ActionGetAll}
	UpdateActions = []Action{ActionUpdate}
	DeleteActions = []Action{ActionDelete}
	FullActions   = Combine(CreateActions, ReadActions, UpdateActions, DeleteActions)
)

// Combine unions action sets, deduplicated, in canonical order.
func Combine(sets ...[]Action) []Action {
	seen := make(map[Action]bool)
	for _, set := range sets {
		for _, a := range set {
			seen[a] = true
		}
	}
	out := make([]Action, 0, len(seen))
	for _, a := range canonicalOrder {
		if seen[a] {
			out = append(out, a)
		}
	}
	return out
}

// Valid reports whether a is a canonical action.
func (a Action) Valid() bool {
	for _, c := range canonicalOrder {
		if a == c {
			return true
		}
	}
	return false
}

// ParseActions converts names to actions. Set names ("full", "read") expand
// to their members. Unknown names are rejected.
func ParseActions(names []string) ([]Action, error) {
	var sets [][]Action
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "full", "all":
			sets = append(sets, FullActions)
		case "read":
			sets = append(sets, ReadActions)
		default:
			a := Action(name)
			if !a.Valid() {
				return nil, fmt.Errorf("unknown action %q", raw)
			}
			sets = append(sets, []Action{a})
		}
	}
	return Combine(sets...), nil
}

var resourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Resource declares a resource kind and the actions it supports.
type Resource struct {
	Name    string   `yaml:"name"`
	Actions []Action `yaml:"actions"`
}

// NewResource builds a resource over the union of the given action sets.
func NewResource(name string, sets ...[]Action) Resource {
	return Resource{Name: name, Actions: Combine(sets...)}
}

// Validate checks the name and that every action is canonical.
func (r Resource) Validate() error {
	if !resourceNamePattern.MatchString(r.Name) {
		return fmt.Errorf("invalid resource name %q: use lower_snake_case", r.Name)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("resource %s declares no actions", r.Name)
	}
	for _, a := range r.Actions {
		if !a.Valid() {
			return fmt.Errorf("resource %s: unknown action %q", r.Name, a)
		}
	}
	return nil
}

// PermissionNames returns "{resource}_{action}" for each declared action,
// deduplicated and in canonical order.
func (r Resource) PermissionNames() []string {
	actions := Combine(r.Actions)
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = auth.PermissionName(r.Name, string(a))
	}
	return names
}
