package platform

import (
	"testing"

	"github.com/mj1618/voxnav/internal/model"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want model.ActionKind
	}{
		{"click", model.ActionClick},
		{"Tap", model.ActionClick},
		{"long-press", model.ActionLongClick},
		{"scroll-up", model.ActionScrollUp},
		{" scroll-down ", model.ActionScrollDown},
		{"focus", model.ActionFocus},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if err != nil {
			t.Errorf("ParseAction(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAction(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseAction("juggle"); err == nil {
		t.Error("expected error for unknown action")
	}
}
