package security

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is one grantable action against a ResourceType, grounded
// directly on the original ACL's Permission enum.
type Permission string

const (
	PermServerView   Permission = "server:view"
	PermServerCreate Permission = "server:create"
	PermServerModify Permission = "server:modify"
	PermServerDelete Permission = "server:delete"
	PermServerStart  Permission = "server:start"
	PermServerStop   Permission = "server:stop"

	PermClientView   Permission = "client:view"
	PermClientCreate Permission = "client:create"
	PermClientModify Permission = "client:modify"
	PermClientDelete Permission = "client:delete"

	PermResourceView   Permission = "resource:view"
	PermResourceCreate Permission = "resource:create"
	PermResourceModify Permission = "resource:modify"
	PermResourceDelete Permission = "resource:delete"

	PermToolView Permission = "tool:view"
	PermToolCall Permission = "tool:call"

	PermPromptView Permission = "prompt:view"
	PermPromptUse  Permission = "prompt:use"

	PermSamplingRequest Permission = "sampling:request"

	PermRouterView   Permission = "router:view"
	PermRouterModify Permission = "router:modify"

	PermAdminView   Permission = "admin:view"
	PermAdminModify Permission = "admin:modify"
)

// ResourceType classifies a Resource.
type ResourceType string

const (
	ResourceTypeServer   ResourceType = "server"
	ResourceTypeClient   ResourceType = "client"
	ResourceTypeResource ResourceType = "resource"
	ResourceTypeTool     ResourceType = "tool"
	ResourceTypePrompt   ResourceType = "prompt"
	ResourceTypeSampling ResourceType = "sampling"
	ResourceTypeRouter   ResourceType = "router"
	ResourceTypeAdmin    ResourceType = "admin"
)

// Resource identifies either every instance of a type (ID == "") or one
// specific instance.
type Resource struct {
	Type ResourceType
	ID   string
}

// AnyResource builds a resource matching every instance of a type.
func AnyResource(t ResourceType) Resource { return Resource{Type: t} }

// SpecificResource builds a resource matching exactly one instance.
func SpecificResource(t ResourceType, id string) Resource { return Resource{Type: t, ID: id} }

// Matches reports whether the receiver (a role's granted resource) covers
// the queried resource. A type-wide grant (ID == "") matches any id of that
// type; a specific grant only matches the identical resource, and never
// matches a type-wide query (an empty-id query never matches a specific-id
// grant).
func (r Resource) Matches(queried Resource) bool {
	if r.Type != queried.Type {
		return false
	}
	if r.ID == "" {
		return true
	}
	return r.ID == queried.ID
}

// key renders the resource as the original's "type" / "type:id" dict key.
func (r Resource) key() string {
	if r.ID == "" {
		return string(r.Type)
	}
	return string(r.Type) + ":" + r.ID
}

func parseResourceKey(key string) Resource {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return Resource{Type: ResourceType(parts[0]), ID: parts[1]}
	}
	return Resource{Type: ResourceType(parts[0])}
}

// Role groups a set of permissions per granted resource. Permissions
// supports direct lookup/iteration by Resource; order mirrors the
// original's insertion-ordered dict so HasPermission's first-match search
// is reproducible instead of following Go's randomized map iteration.
type Role struct {
	Name        string
	Description string
	Permissions map[Resource]map[Permission]struct{}
	order       []Resource
}

// NewRole creates an empty role.
func NewRole(name, description string) *Role {
	return &Role{Name: name, Description: description, Permissions: make(map[Resource]map[Permission]struct{})}
}

// AddPermission grants permission on resource.
func (r *Role) AddPermission(resource Resource, permission Permission) {
	set, ok := r.Permissions[resource]
	if !ok {
		set = make(map[Permission]struct{})
		r.Permissions[resource] = set
		r.order = append(r.order, resource)
	}
	set[permission] = struct{}{}
}

// RemovePermission revokes permission on resource, dropping the resource
// entry entirely once its permission set is empty.
func (r *Role) RemovePermission(resource Resource, permission Permission) {
	set, ok := r.Permissions[resource]
	if !ok {
		return
	}
	delete(set, permission)
	if len(set) == 0 {
		delete(r.Permissions, resource)
		r.removeFromOrder(resource)
	}
}

func (r *Role) removeFromOrder(resource Resource) {
	for i, res := range r.order {
		if res == resource {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// HasPermission reports whether the role grants permission on a resource
// matching the query. It stops at the first granted resource whose Matches
// is true, walking grants in the order they were added — matching the
// original's short-circuit-on-first-hit behavior over its insertion-ordered
// dict, rather than Go's randomized map iteration order.
func (r *Role) HasPermission(queried Resource, permission Permission) bool {
	for _, granted := range r.order {
		if granted.Matches(queried) {
			_, ok := r.Permissions[granted][permission]
			return ok
		}
	}
	return false
}

// roleDTO is the JSON shape used for role persistence, mirroring the
// original's to_dict/from_dict.
type roleDTO struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions map[string][]string `json:"permissions"`
}

func (r *Role) toDTO() roleDTO {
	dto := roleDTO{Name: r.Name, Description: r.Description, Permissions: make(map[string][]string)}
	for resource, perms := range r.Permissions {
		list := make([]string, 0, len(perms))
		for p := range perms {
			list = append(list, string(p))
		}
		dto.Permissions[resource.key()] = list
	}
	return dto
}

func roleFromDTO(dto roleDTO) *Role {
	r := NewRole(dto.Name, dto.Description)

	keys := make([]string, 0, len(dto.Permissions))
	for key := range dto.Permissions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		resource := parseResourceKey(key)
		set := make(map[Permission]struct{}, len(dto.Permissions[key]))
		for _, p := range dto.Permissions[key] {
			set[Permission(p)] = struct{}{}
		}
		r.Permissions[resource] = set
		r.order = append(r.order, resource)
	}
	return r
}

func (r Resource) String() string {
	return fmt.Sprintf("%s", r.key())
}
