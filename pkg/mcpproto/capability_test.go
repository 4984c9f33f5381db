package mcpproto

import "testing"

func TestCapabilities_Has(t *testing.T) {
	caps := Capabilities{
		"resources": map[string]any{
			"subscribe":   true,
			"listChanged": false,
		},
		"tools": map[string]any{},
	}

	tests := []struct {
		path string
		want bool
	}{
		{"resources", true},
		{"resources.subscribe", true},
		{"resources.listChanged", false},
		{"resources.nonexistent", false},
		{"tools", true},
		{"prompts", false},
		{"resources.subscribe.extra", false},
	}

	for _, tt := range tests {
		if got := caps.Has(tt.path); got != tt.want {
			t.Errorf("Has(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCapabilities_Has_Nil(t *testing.T) {
	var caps Capabilities
	if caps.Has("resources") {
		t.Error("nil Capabilities.Has() = true, want false")
	}
}

func TestCapabilities_Set(t *testing.T) {
	caps := NewCapabilities()
	caps.Set("resources.subscribe", true)
	caps.Set("tools.listChanged", true)

	if !caps.Has("resources.subscribe") {
		t.Error("Set did not make resources.subscribe truthy")
	}
	if !caps.Has("tools.listChanged") {
		t.Error("Set did not make tools.listChanged truthy")
	}
}
