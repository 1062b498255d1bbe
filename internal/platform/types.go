package platform

import (
	"fmt"
	"strings"

	"github.com/mj1618/voxnav/internal/model"
)

// ParseAction converts a flag or request value to an ActionKind.
func ParseAction(s string) (model.ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "click", "tap", "press":
		return model.ActionClick, nil
	case "long-click", "long-press", "longclick", "hold":
		return model.ActionLongClick, nil
	case "scroll-up":
		return model.ActionScrollUp, nil
	case "scroll-down":
		return model.ActionScrollDown, nil
	case "focus":
		return model.ActionFocus, nil
	default:
		return 0, fmt.Errorf("unknown action: %q (expected click, long-click, scroll-up, scroll-down or focus)", s)
	}
}
