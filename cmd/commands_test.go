package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
)

func settingsID(t *testing.T, c *cli) string {
	t.Helper()
	var res output.ElementsResult
	c.runJSON(&res, "list", "--container", "com.example.mail", "--text", "Settings")
	if len(res.Elements) != 1 {
		t.Fatalf("Settings not registered: %+v", res.Elements)
	}
	return res.Elements[0].Identity
}

func TestResolveCommand(t *testing.T) {
	c := newCLI(t)
	inbox := c.file("inbox.yaml", inboxYAML)

	var res ResolveResult
	c.runJSON(&res, "resolve", "--snapshot", inbox, "tap", "settings")
	if !res.OK || res.Action.Action != model.ActionClick {
		t.Fatalf("resolve = %+v", res)
	}
	if want := settingsID(t, c); res.Action.TargetIdentity != want {
		t.Errorf("target = %s, want %s", res.Action.TargetIdentity, want)
	}
}

func TestResolveCommand_Unresolvable(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("", "resolve", "--snapshot", c.file("inbox.yaml", inboxYAML), "tap spaceship")
	if !errors.Is(err, errReported) {
		t.Fatalf("err = %v, want errReported", err)
	}
	var res output.ErrorResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Kind != "unresolvable" {
		t.Errorf("error result = %+v", res)
	}
}

func TestSayCommand_LearnsFuzzyMatch(t *testing.T) {
	c := newCLI(t)
	inbox := c.file("inbox.yaml", inboxYAML)

	var first map[string]interface{}
	c.runJSON(&first, "say", "--snapshot", inbox, "--confidence", "0.9", "tap setings")
	if first["ok"] != true || first["executed"] != true {
		t.Fatalf("say = %v", first)
	}
	match := first["match"].(map[string]interface{})
	if match["text"] != "tap settings" || match["source"] != "fuzzy" {
		t.Errorf("first match = %v", match)
	}

	var corrections []model.LearnedCorrection
	c.runJSON(&corrections, "corrections")
	if len(corrections) != 1 || corrections[0].OriginalText != "tap setings" || corrections[0].CorrectedText != "tap settings" {
		t.Fatalf("corrections = %+v", corrections)
	}

	var m map[string]interface{}
	c.runJSON(&m, "match", "tap", "setings")
	if m["source"] != "learned" || m["text"] != "tap settings" {
		t.Errorf("match after learning = %v", m)
	}

	var res output.ElementsResult
	c.runJSON(&res, "list", "--container", "com.example.mail", "--text", "Settings")
	if len(res.Elements) != 1 || res.Elements[0].UseCount != 1 {
		t.Errorf("Settings use count = %+v", res.Elements)
	}
}

func TestSayCommand_RejectsConfidenceOutOfRange(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("", "say", "--snapshot", c.file("inbox.yaml", inboxYAML), "--confidence", "1.5", "tap settings"); err == nil {
		t.Error("expected error for confidence 1.5")
	}
}

func TestLearnCommand(t *testing.T) {
	c := newCLI(t)

	var got model.LearnedCorrection
	c.runJSON(&got, "learn", "--confidence", "0.8", "Go Bak!", "go back")
	if got.OriginalText != "go bak" || got.CorrectedText != "go back" || got.Confidence != 0.8 {
		t.Errorf("learned = %+v", got)
	}

	var vocab []model.VocabularyEntry
	c.runJSON(&vocab, "corrections", "--vocabulary")
	if len(vocab) == 0 {
		t.Error("expected vocabulary from the correction")
	}

	if _, err := c.run("", "learn", "Go Back", "go back"); err == nil {
		t.Error("expected error when original and corrected normalize to the same text")
	}
}

func TestDoCommand(t *testing.T) {
	c := newCLI(t)
	inbox := c.file("inbox.yaml", inboxYAML)
	steps := fmt.Sprintf(`
- ingest: { file: %q }
- say: { text: "tap setings", confidence: 0.9 }
- match: { text: "tap setings" }
- resolve: { text: "press the second button" }
- sleep: { ms: 1 }
`, inbox)

	out, err := c.run(steps, "do")
	if err != nil {
		t.Fatalf("do: %v\n%s", err, out)
	}
	var res DoResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Steps != 5 || res.Completed != 5 {
		t.Fatalf("do = %+v", res)
	}
	if len(res.Executed) != 1 || res.Executed[0].Action != model.ActionClick {
		t.Errorf("executed = %+v", res.Executed)
	}
	if got := res.Results[2].Match; got == nil || got.Text != "tap settings" {
		t.Errorf("match step = %+v", got)
	}
	if res.Results[3].Target == nil || res.Results[3].Target.TargetIdentity == "" {
		t.Errorf("resolve step = %+v", res.Results[3])
	}
}

func TestDoCommand_StopOnError(t *testing.T) {
	c := newCLI(t)
	steps := `
- say: { text: "tap settings" }
- sleep: { ms: 1 }
`
	out, err := c.run(steps, "do")
	if err != nil {
		t.Fatalf("do: %v\n%s", err, out)
	}
	var res DoResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Completed != 0 || len(res.Results) != 1 {
		t.Fatalf("do = %+v", res)
	}
	if res.Results[0].Kind != "stale_identity" && res.Results[0].Kind != "unresolvable" {
		t.Errorf("kind = %q, error = %q", res.Results[0].Kind, res.Results[0].Error)
	}

	out, err = c.run(steps, "do", "--stop-on-error=false")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Completed != 1 || len(res.Results) != 2 {
		t.Errorf("do without stop-on-error = %+v", res)
	}

	for _, bad := range []string{"", "- fly: {}\n", "not: [a list\n"} {
		out, err := c.run(bad, "do")
		if err == nil && !strings.Contains(out, `"ok":false`) {
			t.Errorf("steps %q: expected failure, got %s", bad, out)
		}
	}
}

func TestRemapCommand(t *testing.T) {
	c := newCLI(t)
	c.runJSON(&[]map[string]interface{}{}, "ingest", c.file("inbox.yaml", inboxYAML))

	var res RemapResult
	c.runJSON(&res, "remap", "com.example.mail", "--version", "2.0")
	if res.Container.Epoch != 2 || res.Container.Version != "2.0" || res.Stale != 3 {
		t.Fatalf("remap = %+v", res)
	}

	c.runJSON(&res, "remap", "com.example.mail", "--from", "2", "--to", "5")
	if res.Container.Epoch != 5 {
		t.Errorf("remap --from/--to = %+v", res)
	}

	if _, err := c.run("", "remap", "com.example.mail"); err == nil {
		t.Error("expected error without --version or --from/--to")
	}
	if _, err := c.run("", "remap", "com.example.mail", "--from", "5", "--to", "4"); err == nil {
		t.Error("expected error when remapping backwards")
	}
}

func TestPruneCommand(t *testing.T) {
	c := newCLI(t)
	c.runJSON(&[]map[string]interface{}{}, "ingest", c.file("inbox.yaml", inboxYAML))

	var res PruneResult
	c.runJSON(&res, "prune", "--max-elements", "1")
	if !res.OK || res.Elements != 2 || res.Remaining != 1 {
		t.Errorf("prune = %+v", res)
	}
	if _, err := c.run("", "prune", "--max-elements", "-1"); err == nil {
		t.Error("expected error for negative bound")
	}
}

func TestScreensCommand(t *testing.T) {
	c := newCLI(t)
	inbox := c.file("inbox.yaml", inboxYAML)
	c.runJSON(&[]map[string]interface{}{}, "ingest", inbox, inbox)

	var screens []model.Screen
	c.runJSON(&screens, "screens", "--container", "com.example.mail")
	if len(screens) != 1 || screens[0].VisitCount != 2 || screens[0].TitleHint != "Inbox" {
		t.Errorf("screens = %+v", screens)
	}
}

func TestObserveCommand(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("", "observe", c.file("a.yaml", inboxYAML), c.file("b.yaml", inboxArchiveYAML), "--ignore-bounds")
	if err != nil {
		t.Fatalf("observe: %v\n%s", err, out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var types []string
	var added []string
	for _, line := range lines {
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q: %v", line, err)
		}
		types = append(types, ev["type"].(string))
		if ev["type"] == "added" {
			added = append(added, ev["label"].(string))
		}
	}
	if types[0] != "snapshot" || types[len(types)-1] != "done" {
		t.Errorf("event types = %v", types)
	}
	if len(added) != 1 || added[0] != "Archive" {
		t.Errorf("added = %v", added)
	}
}

func TestDoCommand_Act(t *testing.T) {
	c := newCLI(t)
	c.runJSON(&[]map[string]interface{}{}, "ingest", c.file("inbox.yaml", inboxYAML))
	id := settingsID(t, c)

	steps := fmt.Sprintf(`
- act: { action: long-press, target: %q }
- act: { action: click, target: "no-such-element" }
- act: { action: wiggle, target: %q }
`, id, id)
	out, err := c.run(steps, "do", "--stop-on-error=false")
	if err != nil {
		t.Fatalf("do: %v\n%s", err, out)
	}
	var res DoResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Completed != 1 || len(res.Results) != 3 {
		t.Fatalf("do = %+v", res)
	}
	if len(res.Executed) != 1 || res.Executed[0].Action != model.ActionLongClick || res.Executed[0].TargetIdentity != id {
		t.Errorf("executed = %+v", res.Executed)
	}
	if res.Results[1].Kind != "not_found" {
		t.Errorf("unknown target kind = %q", res.Results[1].Kind)
	}
	if res.Results[2].OK {
		t.Error("expected unknown action to fail")
	}
}
