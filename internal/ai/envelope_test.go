package ai

import (
	"encoding/json"
	"testing"
)

type typedFragment struct{ text string }

func (f typedFragment) Text() string { return f.text }

func decode(t *testing.T, raw string) Envelope {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return env
}

func TestExtractText_RecognizedShapes(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"bare string", "Hel"},
		{"bytes", []byte("Hel")},
		{"texter", typedFragment{"Hel"}},
		{"ollama chat", decode(t, `{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`)},
		{"openai delta", decode(t, `{"choices":[{"index":0,"delta":{"content":"Hel"}}]}`)},
		{"openai message", decode(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Hel"}}]}`)},
		{"content key", decode(t, `{"content":"Hel"}`)},
		{"chunk key", decode(t, `{"chunk":"Hel"}`)},
		{"generate api", decode(t, `{"response":"Hel","done":false}`)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ExtractText(c.env)
			if !ok || got != "Hel" {
				t.Errorf("ExtractText = %q, %v; want \"Hel\", true", got, ok)
			}
		})
	}
}

func TestExtractText_RecognizedButEmpty(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"empty string", ""},
		{"ollama done", decode(t, `{"message":{"role":"assistant","content":""},"done":true}`)},
		{"openai empty message", decode(t, `{"choices":[{"message":{"content":""}}]}`)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ExtractText(c.env)
			if !ok || got != "" {
				t.Errorf("ExtractText = %q, %v; want \"\", true", got, ok)
			}
		})
	}
}

func TestExtractText_Unrecognized(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"nil", nil},
		{"openai role only", decode(t, `{"choices":[{"delta":{"role":"assistant"}}]}`)},
		{"empty choices", decode(t, `{"choices":[]}`)},
		{"unknown map", decode(t, `{"foo":"bar"}`)},
		{"non-string content", decode(t, `{"content":42}`)},
		{"number", 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got, ok := ExtractText(c.env); ok {
				t.Errorf("expected unrecognized, got %q", got)
			}
		})
	}
}

func TestExtractText_NestedMessageWinsOverTopLevel(t *testing.T) {
	env := decode(t, `{"message":{"content":"inner"},"content":"outer"}`)
	if got, _ := ExtractText(env); got != "inner" {
		t.Errorf("expected nested message content first, got %q", got)
	}
}
