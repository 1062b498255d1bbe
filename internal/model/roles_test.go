package model

import "testing"

func TestMapRole_KnownRoles(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"AXButton", "btn"},
		{"AXStaticText", "txt"},
		{"AXTextField", "input"},
		{"AXTabGroup", "tab"},
		{"android.widget.Button", "btn"},
		{"android.widget.EditText", "input"},
		{"android.widget.Switch", "toggle"},
		{"androidx.recyclerview.widget.RecyclerView", "list"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MapRole(tt.input); got != tt.want {
				t.Errorf("MapRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMapRole_CodesPassThrough(t *testing.T) {
	for _, code := range []string{"btn", "txt", "input", "other"} {
		if got := MapRole(code); got != code {
			t.Errorf("MapRole(%q) = %q, want unchanged", code, got)
		}
	}
}

func TestMapRole_UnknownFallback(t *testing.T) {
	for _, role := range []string{"AXSlider", "SomethingElse", ""} {
		if got := MapRole(role); got != "other" {
			t.Errorf("MapRole(%q) = %q, want %q", role, got, "other")
		}
	}
}

func TestRoleForNoun(t *testing.T) {
	tests := []struct {
		noun string
		want string
		ok   bool
	}{
		{"button", "btn", true},
		{"Buttons", "btn", true},
		{"checkbox", "chk", true},
		{"item", "", false},
	}
	for _, tt := range tests {
		got, ok := RoleForNoun(tt.noun)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RoleForNoun(%q) = (%q, %v), want (%q, %v)", tt.noun, got, ok, tt.want, tt.ok)
		}
	}
}
