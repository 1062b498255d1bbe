package output

import (
	"bytes"
	"testing"

	"github.com/mj1618/voxnav/internal/model"
	"gopkg.in/yaml.v3"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Writer
	Writer = &buf
	t.Cleanup(func() { Writer = old })
	return &buf
}

func TestPrintYAML(t *testing.T) {
	buf := capture(t)
	result := ElementsResult{
		Container: "com.example.mail",
		Epoch:     2,
		TS:        1707500000,
		Elements: []model.Element{
			{Identity: "a1", Role: "btn", Text: "OK", Bounds: model.Bounds{X: 10, Y: 20, Width: 100, Height: 30}},
		},
	}

	if err := PrintYAML(result); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	// YAML output should be multi-line
	if bytes.Count([]byte(output), []byte("\n")) <= 1 {
		t.Errorf("YAML output should be multi-line, got:\n%s", output)
	}

	var decoded ElementsResult
	if err := yaml.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded.Container != "com.example.mail" || decoded.Epoch != 2 {
		t.Errorf("decoded %+v", decoded)
	}
	if len(decoded.Elements) != 1 || decoded.Elements[0].Text != "OK" {
		t.Errorf("elements: got %+v", decoded.Elements)
	}
}

func TestElementsResult_OmitEmpty(t *testing.T) {
	data, err := yaml.Marshal(ElementsResult{TS: 123, Elements: []model.Element{}})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["container"]; ok {
		t.Error("empty container should be omitted")
	}
	if _, ok := m["epoch"]; ok {
		t.Error("zero epoch should be omitted")
	}
	if _, ok := m["ts"]; !ok {
		t.Error("ts should always be present")
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"yaml", "json"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("agent"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestPrint_FollowsFormat(t *testing.T) {
	buf := capture(t)
	old := OutputFormat
	t.Cleanup(func() { OutputFormat = old })

	OutputFormat = FormatJSON
	if err := Print(ErrorResult{Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\"ok\":false,\"error\":\"boom\"}\n" {
		t.Errorf("json output = %q", got)
	}

	buf.Reset()
	OutputFormat = FormatYAML
	if err := Print(ErrorResult{Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "ok: false\nerror: boom\n" {
		t.Errorf("yaml output = %q", got)
	}
}
