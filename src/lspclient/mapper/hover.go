package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// hoverResult accepts every shape of textDocument/hover contents:
// MarkupContent, a MarkedString (string or {language, value}) or an array of MarkedString.
type hoverResult struct {
	Contents json.RawMessage `json:"contents"`
}

type markedString struct {
	Kind     string `json:"kind"`
	Language string `json:"language"`
	Value    string `json:"value"`
}

// RawToHoverText renders a hover result as markdown. A null result yields an empty string.
func RawToHoverText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var result hoverResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding hover result: %w", err)
	}
	if isNull(result.Contents) {
		return "", nil
	}

	trimmed := bytes.TrimSpace(result.Contents)
	if trimmed[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return "", fmt.Errorf("decoding hover contents: %w", err)
		}
		rendered := make([]string, 0, len(parts))
		for _, part := range parts {
			text, err := renderMarked(part)
			if err != nil {
				return "", err
			}
			if text != "" {
				rendered = append(rendered, text)
			}
		}
		return strings.Join(rendered, "\n\n"), nil
	}
	return renderMarked(trimmed)
}

func renderMarked(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding hover contents: %w", err)
		}
		return s, nil
	}

	var m markedString
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", fmt.Errorf("decoding hover contents: %w", err)
	}
	// MarkupContent carries a kind; MarkedString carries a language.
	if m.Language != "" && m.Kind == "" {
		if m.Value == "" {
			return "", nil
		}
		return fmt.Sprintf("```%s\n%s\n```", m.Language, m.Value), nil
	}
	return m.Value, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
