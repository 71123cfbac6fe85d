package ai

// Texter is implemented by typed envelopes that already know their text.
type Texter interface {
	Text() string
}

// textMatcher reports the text carried by one envelope shape.
type textMatcher func(Envelope) (string, bool)

// envelopeMatchers are tried in order; the first shape that matches wins.
var envelopeMatchers = []textMatcher{
	matchTexter,
	matchString,
	matchBytes,
	matchMessageContent,
	matchChoices,
	matchKey("content"),
	matchKey("chunk"),
	matchKey("response"),
}

// ExtractText pulls generated text out of a backend envelope. recognized is
// false when no known shape matches; a known shape may still carry "".
func ExtractText(env Envelope) (text string, recognized bool) {
	if env == nil {
		return "", false
	}
	for _, match := range envelopeMatchers {
		if text, ok := match(env); ok {
			return text, true
		}
	}
	return "", false
}

func matchTexter(env Envelope) (string, bool) {
	t, ok := env.(Texter)
	if !ok {
		return "", false
	}
	return t.Text(), true
}

func matchString(env Envelope) (string, bool) {
	s, ok := env.(string)
	return s, ok
}

func matchBytes(env Envelope) (string, bool) {
	b, ok := env.([]byte)
	return string(b), ok
}

// {"message": {"content": "..."}}
func matchMessageContent(env Envelope) (string, bool) {
	m, ok := env.(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := m["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	return content, ok
}

// {"choices": [{"delta": {"content": "..."}}]} or choices[0].message.content
func matchChoices(env Envelope) (string, bool) {
	m, ok := env.(map[string]any)
	if !ok {
		return "", false
	}
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range []string{"delta", "message"} {
		inner, ok := first[field].(map[string]any)
		if !ok {
			continue
		}
		if content, ok := inner["content"].(string); ok {
			return content, true
		}
	}
	return "", false
}

func matchKey(key string) textMatcher {
	return func(env Envelope) (string, bool) {
		m, ok := env.(map[string]any)
		if !ok {
			return "", false
		}
		s, ok := m[key].(string)
		return s, ok
	}
}
