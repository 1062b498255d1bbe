package resolver

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/spatial"
	"github.com/mj1618/voxnav/internal/textnorm"
)

// verbs maps spoken verb phrases to actions. Longer phrases are tried first.
var verbs = []struct {
	words  []string
	action model.ActionKind
}{
	{[]string{"long", "press"}, model.ActionLongClick},
	{[]string{"long", "click"}, model.ActionLongClick},
	{[]string{"long", "tap"}, model.ActionLongClick},
	{[]string{"press", "and", "hold"}, model.ActionLongClick},
	{[]string{"scroll", "up"}, model.ActionScrollUp},
	{[]string{"scroll", "down"}, model.ActionScrollDown},
	{[]string{"go", "to"}, model.ActionFocus},
	{[]string{"move", "to"}, model.ActionFocus},
	{[]string{"hold"}, model.ActionLongClick},
	{[]string{"click"}, model.ActionClick},
	{[]string{"tap"}, model.ActionClick},
	{[]string{"press"}, model.ActionClick},
	{[]string{"select"}, model.ActionClick},
	{[]string{"choose"}, model.ActionClick},
	{[]string{"open"}, model.ActionClick},
	{[]string{"hit"}, model.ActionClick},
	{[]string{"focus"}, model.ActionFocus},
	{[]string{"go"}, model.ActionFocus},
	{[]string{"move"}, model.ActionFocus},
}

// leadingFillers are the articles and prepositions between the verb and
// the target ("tap on the inbox"). Words inside the target are kept.
var leadingFillers = map[string]bool{
	"the": true, "a": true, "an": true, "on": true, "to": true, "of": true,
}

var nearestWords = map[string]bool{"nearest": true, "closest": true, "nearby": true}

// genericNouns follow an ordinal without restricting the role.
var genericNouns = map[string]bool{
	"one": true, "item": true, "items": true, "element": true, "entry": true, "option": true,
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"last": -1,
}

// ParseCommand turns normalized command text into an Intent. It accepts
// "<action> <name>", "<action> <ordinal> [noun]", "<action> <direction>",
// "<action> uuid <literal>", "<action> nearest" and bare "scroll up" /
// "scroll down".
func ParseCommand(text string) (Intent, error) {
	words := strings.Fields(textnorm.Normalize(text))
	for len(words) > 0 && words[0] == "please" {
		words = words[1:]
	}
	for len(words) > 0 && words[len(words)-1] == "please" {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return Intent{}, newError(ErrMalformedCommand, "empty command")
	}

	action, rest, ok := parseVerb(words)
	if !ok {
		return Intent{}, newError(ErrMalformedCommand, "unknown action %q", words[0])
	}

	rest = stripFillers(rest)

	// uuid literals keep their original spelling; Normalize splits on '-'.
	if len(rest) > 0 && rest[0] == "uuid" {
		return parseUUID(action, text)
	}
	if len(rest) == 0 {
		if action == model.ActionScrollUp || action == model.ActionScrollDown || action == model.ActionFocus {
			return Intent{Action: action, Target: ByFocus{}}, nil
		}
		return Intent{}, newError(ErrMalformedCommand, "%s needs a target", action)
	}

	if len(rest) == 1 {
		if dir, ok := spatial.ParseDirection(rest[0]); ok {
			return Intent{Action: action, Target: ByDirection{Direction: dir}}, nil
		}
		if nearestWords[rest[0]] {
			return Intent{Action: action, Target: ByNearest{}}, nil
		}
	}

	if idx, ok := parseOrdinal(rest); ok {
		t := ByOrdinal{Index: idx}
		var noun string
		switch {
		case len(rest) == 2 && rest[0] == "number":
		case len(rest) == 2:
			noun = rest[1]
		case len(rest) == 3 && rest[0] == "number":
			noun = rest[2]
		}
		if noun != "" && !genericNouns[noun] {
			role, ok := model.RoleForNoun(noun)
			if !ok {
				return Intent{Action: action, Target: ByName{Name: strings.Join(rest, " ")}}, nil
			}
			t.Role = role
		}
		return Intent{Action: action, Target: t}, nil
	}

	return Intent{Action: action, Target: ByName{Name: strings.Join(rest, " ")}}, nil
}

func parseVerb(words []string) (model.ActionKind, []string, bool) {
	for _, v := range verbs {
		if len(words) < len(v.words) {
			continue
		}
		match := true
		for i, w := range v.words {
			if words[i] != w {
				match = false
				break
			}
		}
		if match {
			return v.action, words[len(v.words):], true
		}
	}
	return 0, nil, false
}

func parseUUID(action model.ActionKind, raw string) (Intent, error) {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if !strings.EqualFold(f, "uuid") {
			continue
		}
		if i+1 != len(fields)-1 {
			return Intent{}, newError(ErrMalformedCommand, "uuid needs exactly one literal")
		}
		id, err := uuid.Parse(fields[i+1])
		if err != nil {
			return Intent{}, newError(ErrMalformedCommand, "invalid uuid %q: %v", fields[i+1], err)
		}
		return Intent{Action: action, Target: ByIdentity{Identity: id.String()}}, nil
	}
	return Intent{}, newError(ErrMalformedCommand, "uuid needs a literal")
}

// stripFillers drops leading fillers. The last word is always kept, so a
// target that is itself a filler ("press on") still names something.
func stripFillers(words []string) []string {
	for len(words) > 1 && leadingFillers[words[0]] {
		words = words[1:]
	}
	return words
}

// parseOrdinal reads "third", "3", "3rd", "number 3" or "last" at the start
// of words, followed by at most one noun.
func parseOrdinal(words []string) (int, bool) {
	if words[0] == "number" {
		if len(words) < 2 || len(words) > 3 {
			return 0, false
		}
		n, err := strconv.Atoi(words[1])
		return n, err == nil && n > 0
	}
	if len(words) > 2 {
		return 0, false
	}
	w := words[0]
	if n, ok := ordinalWords[w]; ok {
		return n, true
	}
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		w = strings.TrimSuffix(w, suffix)
	}
	n, err := strconv.Atoi(w)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
