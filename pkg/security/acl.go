package security

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// AccessControlList holds the role catalog and the username -> role-names
// assignments, persisted to a single JSON file, grounded on the original
// AccessControlList (_load_roles/_save_roles, add_role/remove_role,
// assign_role/revoke_role, has_permission).
type AccessControlList struct {
	mu        sync.RWMutex
	rolesFile string
	roles     map[string]*Role
	userRoles map[string][]string
	logger    *slog.Logger
}

// NewAccessControlList creates an ACL backed by rolesFile, seeded with the
// default admin/user/guest roles, then overlaid with whatever the file on
// disk already contains (a no-op if the file doesn't exist yet).
func NewAccessControlList(rolesFile string, logger *slog.Logger) *AccessControlList {
	if logger == nil {
		logger = slog.Default()
	}
	acl := &AccessControlList{
		rolesFile: rolesFile,
		roles:     make(map[string]*Role),
		userRoles: make(map[string][]string),
		logger:    logger,
	}
	acl.initializeDefaultRoles()
	acl.load()
	return acl
}

func (a *AccessControlList) initializeDefaultRoles() {
	admin := NewRole("admin", "Administrator with full access")
	for _, p := range []Permission{PermServerView, PermServerCreate, PermServerModify, PermServerDelete, PermServerStart, PermServerStop} {
		admin.AddPermission(AnyResource(ResourceTypeServer), p)
	}
	for _, p := range []Permission{PermClientView, PermClientCreate, PermClientModify, PermClientDelete} {
		admin.AddPermission(AnyResource(ResourceTypeClient), p)
	}
	for _, p := range []Permission{PermResourceView, PermResourceCreate, PermResourceModify, PermResourceDelete} {
		admin.AddPermission(AnyResource(ResourceTypeResource), p)
	}
	admin.AddPermission(AnyResource(ResourceTypeTool), PermToolView)
	admin.AddPermission(AnyResource(ResourceTypeTool), PermToolCall)
	admin.AddPermission(AnyResource(ResourceTypePrompt), PermPromptView)
	admin.AddPermission(AnyResource(ResourceTypePrompt), PermPromptUse)
	admin.AddPermission(AnyResource(ResourceTypeSampling), PermSamplingRequest)
	admin.AddPermission(AnyResource(ResourceTypeRouter), PermRouterView)
	admin.AddPermission(AnyResource(ResourceTypeRouter), PermRouterModify)
	admin.AddPermission(AnyResource(ResourceTypeAdmin), PermAdminView)
	admin.AddPermission(AnyResource(ResourceTypeAdmin), PermAdminModify)
	a.roles["admin"] = admin

	user := NewRole("user", "Standard user with limited access")
	user.AddPermission(AnyResource(ResourceTypeServer), PermServerView)
	user.AddPermission(AnyResource(ResourceTypeClient), PermClientView)
	user.AddPermission(AnyResource(ResourceTypeResource), PermResourceView)
	user.AddPermission(AnyResource(ResourceTypeTool), PermToolView)
	user.AddPermission(AnyResource(ResourceTypeTool), PermToolCall)
	user.AddPermission(AnyResource(ResourceTypePrompt), PermPromptView)
	user.AddPermission(AnyResource(ResourceTypePrompt), PermPromptUse)
	user.AddPermission(AnyResource(ResourceTypeSampling), PermSamplingRequest)
	a.roles["user"] = user

	guest := NewRole("guest", "Guest with read-only access")
	guest.AddPermission(AnyResource(ResourceTypeServer), PermServerView)
	guest.AddPermission(AnyResource(ResourceTypeResource), PermResourceView)
	a.roles["guest"] = guest
}

// Reload re-seeds the default roles and re-reads rolesFile from disk,
// overlaying it the same way NewAccessControlList does. Used to pick up an
// operator's out-of-band edit to the roles file without restarting the hub.
func (a *AccessControlList) Reload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles = make(map[string]*Role)
	a.userRoles = make(map[string][]string)
	a.initializeDefaultRoles()
	a.load()
}

type aclFile struct {
	Roles     map[string]roleDTO `json:"roles"`
	UserRoles map[string][]string `json:"user_roles"`
}

func (a *AccessControlList) load() {
	if a.rolesFile == "" {
		return
	}
	data, err := os.ReadFile(a.rolesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Error("failed to load roles file", "path", a.rolesFile, "error", err)
		}
		return
	}
	var file aclFile
	if err := json.Unmarshal(data, &file); err != nil {
		a.logger.Error("failed to parse roles file", "path", a.rolesFile, "error", err)
		return
	}
	for name, dto := range file.Roles {
		a.roles[name] = roleFromDTO(dto)
	}
	for user, roles := range file.UserRoles {
		a.userRoles[user] = roles
	}
	a.logger.Info("loaded roles", "path", a.rolesFile, "count", len(file.Roles))
}

// save persists the full role catalog and user assignments, overwriting
// the file via temp-then-rename. Caller must hold a.mu.
func (a *AccessControlList) save() error {
	if a.rolesFile == "" {
		return nil
	}
	file := aclFile{Roles: make(map[string]roleDTO, len(a.roles)), UserRoles: a.userRoles}
	for name, role := range a.roles {
		file.Roles[name] = role.toDTO()
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling roles: %w", err)
	}
	tmp := a.rolesFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp roles file: %w", err)
	}
	if err := os.Rename(tmp, a.rolesFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp roles file: %w", err)
	}
	return nil
}

// AddRole registers a new role and persists the catalog.
func (a *AccessControlList) AddRole(role *Role) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[role.Name] = role
	return a.save()
}

// RemoveRole deletes a role and strips it from every user's assignment
// list.
func (a *AccessControlList) RemoveRole(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.roles[name]; !ok {
		return fmt.Errorf("role not found: %s", name)
	}
	delete(a.roles, name)
	for user, roles := range a.userRoles {
		filtered := roles[:0]
		for _, r := range roles {
			if r != name {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			delete(a.userRoles, user)
		} else {
			a.userRoles[user] = filtered
		}
	}
	return a.save()
}

// GetRole returns a role by name.
func (a *AccessControlList) GetRole(name string) (*Role, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	role, ok := a.roles[name]
	return role, ok
}

// AssignRole grants a role to a user.
func (a *AccessControlList) AssignRole(username, roleName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.roles[roleName]; !ok {
		return fmt.Errorf("role not found: %s", roleName)
	}
	for _, r := range a.userRoles[username] {
		if r == roleName {
			return a.save()
		}
	}
	a.userRoles[username] = append(a.userRoles[username], roleName)
	return a.save()
}

// RevokeRole removes a role from a user, deleting the user's entry
// entirely if their role list becomes empty.
func (a *AccessControlList) RevokeRole(username, roleName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	roles, ok := a.userRoles[username]
	if !ok {
		return nil
	}
	filtered := roles[:0]
	for _, r := range roles {
		if r != roleName {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		delete(a.userRoles, username)
	} else {
		a.userRoles[username] = filtered
	}
	return a.save()
}

// GetUserRoles returns the role names assigned to a user.
func (a *AccessControlList) GetUserRoles(username string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	roles := a.userRoles[username]
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}

// HasPermission reports whether any role assigned to username grants
// permission on resource.
func (a *AccessControlList) HasPermission(username string, resource Resource, permission Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, roleName := range a.userRoles[username] {
		role, ok := a.roles[roleName]
		if !ok {
			continue
		}
		if role.HasPermission(resource, permission) {
			return true
		}
	}
	return false
}
