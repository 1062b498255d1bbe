package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mj1618/voxnav/internal/model"
)

func TestPrintJSON_Compact(t *testing.T) {
	buf := capture(t)
	result := ElementsResult{
		Container: "com.example.mail",
		TS:        1707500000,
		Elements: []model.Element{
			{Identity: "a1", Role: "btn", Text: "OK", Flags: model.Flags{Clickable: true}},
		},
	}

	if err := PrintJSON(result, false); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	// Compact output should be a single line (plus newline from Encode)
	if bytes.Count([]byte(output), []byte("\n")) > 1 {
		t.Errorf("compact output should be single line, got:\n%s", output)
	}

	var decoded ElementsResult
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Container != "com.example.mail" {
		t.Errorf("container: got %q", decoded.Container)
	}
	if len(decoded.Elements) != 1 || !decoded.Elements[0].Flags.Clickable {
		t.Errorf("elements: got %+v", decoded.Elements)
	}
}

func TestPrintJSON_Pretty(t *testing.T) {
	buf := capture(t)
	if err := PrintJSON(ElementsResult{TS: 123, Elements: []model.Element{{Identity: "a1", Role: "btn"}}}, true); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	// Pretty output should have multiple lines
	if bytes.Count([]byte(output), []byte("\n")) <= 1 {
		t.Errorf("pretty output should be multi-line, got:\n%s", output)
	}
	var decoded ElementsResult
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestPrintJSON_NoHTMLEscape(t *testing.T) {
	buf := capture(t)
	if err := PrintJSON(map[string]string{"t": "Save & Close <now>"}, false); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\"t\":\"Save & Close <now>\"}\n" {
		t.Errorf("got %q", got)
	}
}
