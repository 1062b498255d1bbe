package model

import "strings"

// RoleMap maps platform accessibility class names to compact role codes.
var RoleMap = map[string]string{
	"AXButton":                    "btn",
	"AXStaticText":                "txt",
	"AXLink":                      "lnk",
	"AXImage":                     "img",
	"AXTextField":                 "input",
	"AXTextArea":                  "input",
	"AXCheckBox":                  "chk",
	"AXSwitch":                    "toggle",
	"AXRadioButton":               "radio",
	"AXMenu":                      "menu",
	"AXMenuItem":                  "menuitem",
	"AXTabGroup":                  "tab",
	"AXList":                      "list",
	"AXRow":                       "row",
	"AXGroup":                     "group",
	"AXScrollArea":                "scroll",
	"AXToolbar":                   "toolbar",
	"AXWindow":                    "window",
	"android.widget.Button":       "btn",
	"android.widget.ImageButton":  "btn",
	"android.widget.TextView":     "txt",
	"android.widget.ImageView":    "img",
	"android.widget.EditText":     "input",
	"android.widget.CheckBox":     "chk",
	"android.widget.Switch":       "toggle",
	"android.widget.RadioButton":  "radio",
	"android.widget.ListView":     "list",
	"android.widget.ScrollView":   "scroll",
	"android.widget.FrameLayout":  "group",
	"android.widget.LinearLayout": "group",
	"android.view.ViewGroup":      "group",
	"android.view.View":           "other",

	"androidx.recyclerview.widget.RecyclerView": "list",
}

// roleCodes is the set of compact codes; codes pass through MapRole unchanged.
var roleCodes = func() map[string]bool {
	m := map[string]bool{"other": true}
	for _, code := range RoleMap {
		m[code] = true
	}
	return m
}()

// MapRole converts a raw accessibility class to a compact code. Values that
// are already compact codes are returned as-is.
func MapRole(raw string) string {
	if roleCodes[raw] {
		return raw
	}
	if short, ok := RoleMap[raw]; ok {
		return short
	}
	return "other"
}

// roleNouns maps the nouns people say ("the second button") to role codes.
var roleNouns = map[string]string{
	"button":   "btn",
	"link":     "lnk",
	"image":    "img",
	"icon":     "img",
	"field":    "input",
	"input":    "input",
	"box":      "input",
	"checkbox": "chk",
	"switch":   "toggle",
	"toggle":   "toggle",
	"radio":    "radio",
	"tab":      "tab",
	"menu":     "menuitem",
	"row":      "row",
	"list":     "list",
	"text":     "txt",
	"label":    "txt",
}

// RoleForNoun returns the role code for a spoken noun, accepting a trailing
// plural "s". Generic nouns ("item", "element") return "".
func RoleForNoun(noun string) (string, bool) {
	noun = strings.ToLower(noun)
	if code, ok := roleNouns[noun]; ok {
		return code, true
	}
	if code, ok := roleNouns[strings.TrimSuffix(noun, "s")]; ok {
		return code, true
	}
	return "", false
}
