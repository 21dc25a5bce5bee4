package llm

import "testing"

func TestDecodeJSONPlain(t *testing.T) {
	var out struct {
		Verdict string `json:"verdict"`
	}
	if err := DecodeJSON(`{"verdict":"ok"}`, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Verdict != "ok" {
		t.Errorf("got %q", out.Verdict)
	}
}

func TestDecodeJSONStripsCodeFences(t *testing.T) {
	text := "```json\n{\"ideas\": [\"a\", \"b\"]}\n```"
	var out struct {
		Ideas []string `json:"ideas"`
	}
	if err := DecodeJSON(text, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Ideas) != 2 {
		t.Errorf("expected 2 ideas, got %v", out.Ideas)
	}
}

func TestDecodeJSONUnclosedCodeFence(t *testing.T) {
	text := "```json\n{\"ideas\": [\"a\",\n\"b\"]}"
	var out struct {
		Ideas []string `json:"ideas"`
	}
	if err := DecodeJSON(text, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Ideas) != 2 {
		t.Errorf("expected 2 ideas, got %v", out.Ideas)
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var out map[string]any
	if err := DecodeJSON("not json at all", &out); err == nil {
		t.Error("expected error for non-JSON text")
	}
	if err := DecodeJSON("", &out); err == nil {
		t.Error("expected error for empty text")
	}
}
