package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResource_Matches(t *testing.T) {
	any := AnyResource(ResourceTypeServer)
	specific := SpecificResource(ResourceTypeServer, "srv-1")

	assert.True(t, any.Matches(SpecificResource(ResourceTypeServer, "srv-1")))
	assert.True(t, any.Matches(any))
	assert.True(t, specific.Matches(SpecificResource(ResourceTypeServer, "srv-1")))
	assert.False(t, specific.Matches(SpecificResource(ResourceTypeServer, "srv-2")))
	assert.False(t, specific.Matches(any))
	assert.False(t, any.Matches(AnyResource(ResourceTypeClient)))
}

func TestRole_AddRemovePermission(t *testing.T) {
	role := NewRole("custom", "test role")
	resource := AnyResource(ResourceTypeTool)

	role.AddPermission(resource, PermToolView)
	assert.True(t, role.HasPermission(resource, PermToolView))
	assert.False(t, role.HasPermission(resource, PermToolCall))

	role.RemovePermission(resource, PermToolView)
	assert.False(t, role.HasPermission(resource, PermToolView))
	_, exists := role.Permissions[resource]
	assert.False(t, exists, "resource entry should be dropped once its permission set is empty")
}

func TestRole_HasPermission_PermissionInNoGrantIsFalse(t *testing.T) {
	role := NewRole("custom", "test role")
	// A type-wide grant and a specific grant, walked in insertion order.
	role.AddPermission(AnyResource(ResourceTypeServer), PermServerView)
	role.AddPermission(SpecificResource(ResourceTypeServer, "srv-1"), PermServerDelete)

	// srv-1 matches both grants; neither grants PermServerStop, so the
	// query is false whichever grant decides it.
	assert.False(t, role.HasPermission(SpecificResource(ResourceTypeServer, "srv-1"), PermServerStop))
}

func TestRole_ToDTO_FromDTO_RoundTrip(t *testing.T) {
	role := NewRole("custom", "test role")
	role.AddPermission(AnyResource(ResourceTypeServer), PermServerView)
	role.AddPermission(SpecificResource(ResourceTypeTool, "calc"), PermToolCall)

	dto := role.toDTO()
	restored := roleFromDTO(dto)

	assert.Equal(t, role.Name, restored.Name)
	assert.True(t, restored.HasPermission(AnyResource(ResourceTypeServer), PermServerView))
	assert.True(t, restored.HasPermission(SpecificResource(ResourceTypeTool, "calc"), PermToolCall))
}

func TestResource_KeyRoundTrip(t *testing.T) {
	r := SpecificResource(ResourceTypeServer, "srv-1")
	parsed := parseResourceKey(r.key())
	assert.Equal(t, r, parsed)

	any := AnyResource(ResourceTypeServer)
	parsedAny := parseResourceKey(any.key())
	assert.Equal(t, any, parsedAny)
}
