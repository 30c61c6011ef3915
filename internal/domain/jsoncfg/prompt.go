package jsoncfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"adminpanel/internal/domain"
)

// PromptKind tags the variant held by Prompt.
type PromptKind int

const (
	PromptPlain PromptKind = iota + 1
	PromptStructured
)

// StructuredPrompt is the object form of a prompt. Fields keeps the decoded
// object as-is; field types are only checked when the prompt is resolved.
type StructuredPrompt struct {
	Fields map[string]any

	// raw keeps the original text when the object arrived JSON-encoded inside a string.
	raw string
}

// Prompt is either plain text or a structured generation parameters document.
type Prompt struct {
	Kind       PromptKind
	Text       string
	Structured *StructuredPrompt
}

// PlainPrompt builds the plain-text variant.
func PlainPrompt(text string) Prompt {
	return Prompt{Kind: PromptPlain, Text: text}
}

// Structured builds the object variant.
func Structured(sp StructuredPrompt) Prompt {
	return Prompt{Kind: PromptStructured, Structured: &sp}
}

// DecodePrompt decodes the prompt field of a request body. A JSON string is
// parsed once more: if its content is a JSON object it becomes a structured
// prompt, otherwise it is plain text.
func DecodePrompt(raw json.RawMessage) (Prompt, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Prompt{}, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Prompt{}, fmt.Errorf("%w: invalid prompt format", domain.ErrInvalidInput)
		}
		return ParsePromptText(text)
	case '{':
		fields, err := decodeObject(raw)
		if err != nil {
			return Prompt{}, fmt.Errorf("%w: invalid prompt format", domain.ErrInvalidInput)
		}
		return Structured(StructuredPrompt{Fields: fields}), nil
	default:
		return Prompt{}, fmt.Errorf("%w: invalid prompt format", domain.ErrInvalidInput)
	}
}

// ParsePromptText classifies prompt text. Text that opens a JSON object but
// is not valid JSON is rejected rather than used verbatim.
func ParsePromptText(text string) (Prompt, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return PlainPrompt(text), nil
	}
	fields, err := decodeObject([]byte(trimmed))
	if err != nil {
		return Prompt{}, fmt.Errorf("%w: malformed prompt JSON", domain.ErrInvalidInput)
	}
	return Structured(StructuredPrompt{Fields: fields, raw: text}), nil
}

func decodeObject(data []byte) (map[string]any, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid json")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Resolve returns the prompt text to submit. generation_parameters.prompts.positive
// wins over a flat prompt field.
func (p Prompt) Resolve() (string, error) {
	var text string
	switch p.Kind {
	case PromptPlain:
		text = p.Text
	case PromptStructured:
		if p.Structured == nil {
			return "", fmt.Errorf("%w: invalid prompt format", domain.ErrInvalidInput)
		}
		resolved, ok := p.Structured.lookup()
		switch {
		case ok:
			text = resolved
		case p.Structured.raw != "":
			// JSON-encoded text without either field is used as literal prompt text.
			text = p.Structured.raw
		default:
			return "", fmt.Errorf("%w: invalid prompt format", domain.ErrInvalidInput)
		}
	default:
		return "", fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidInput)
	}
	return text, nil
}

func (sp *StructuredPrompt) lookup() (string, bool) {
	if positive, ok := nestedString(sp.Fields, "generation_parameters", "prompts", "positive"); ok {
		return positive, true
	}
	if flat, ok := nestedString(sp.Fields, "prompt"); ok {
		return flat, true
	}
	return "", false
}

// nestedString follows path through nested objects and returns a non-blank
// string leaf. Any other shape along the way is treated as absent.
func nestedString(fields map[string]any, path ...string) (string, bool) {
	var cur any = fields
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur = obj[key]
	}
	text, ok := cur.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// MustMarshal encodes v or panics; used for payloads built from known types.
func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
