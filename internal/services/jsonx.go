package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoJSON indicates that no parseable JSON could be recovered from a model
// response.
var ErrNoJSON = errors.New("no valid json found in response")

// strictJSONDirective is appended to a prompt when the first attempt produced
// unparseable output.
const strictJSONDirective = "\n\nIMPORTANT: Respond with the JSON value ONLY. No prose, no explanation, no markdown code fences."

// extractJSON locates the first balanced JSON object or array inside raw model
// output, tolerating surrounding prose, markdown code fences, and truncated
// tails. A top-level array is wrapped as {"title":"","modules":[...]} so every
// caller can decode the same envelope shape.
func extractJSON(raw string) (string, error) {
	content := stripCodeFences(raw)

	start := -1
	var opener byte
	for i := 0; i < len(content); i++ {
		if content[i] == '{' || content[i] == '[' {
			start = i
			opener = content[i]
			break
		}
	}
	if start == -1 {
		return "", ErrNoJSON
	}

	// Scan forward tracking string state and an opener stack so braces inside
	// string values do not count. cut/pending remember the last position where
	// a nested value completed, for repairing truncated output.
	var stack []byte
	inString := false
	escaped := false
	cut := -1
	var pending []byte
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", ErrNoJSON
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return wrapTopLevelArray(content[start:i+1], opener), nil
			}
			cut = i
			pending = append(pending[:0], stack...)
		}
	}

	// No balanced close: the output was likely truncated. Cut back to the last
	// completed value and close every container still open there.
	if cut != -1 {
		repaired := content[start : cut+1]
		for i := len(pending) - 1; i >= 0; i-- {
			if pending[i] == '{' {
				repaired += "}"
			} else {
				repaired += "]"
			}
		}
		return wrapTopLevelArray(repaired, opener), nil
	}
	return "", ErrNoJSON
}

func wrapTopLevelArray(slice string, opener byte) string {
	if opener == '[' {
		return `{"title":"","modules":` + slice + `}`
	}
	return slice
}

// stripCodeFences removes markdown code block formatting if present.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	start := 3
	// Skip the language identifier line, e.g. "json".
	if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
		start += newlineIdx + 1
	}
	if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
		content = content[start : start+endIdx]
	} else {
		content = content[start:]
	}
	return strings.TrimSpace(content)
}

// generateJSON issues prompt through the gateway and decodes the response into
// out. If the first response is empty or unparseable the same prompt is
// re-issued with a strict JSON-only directive; if that also fails, the
// caller-supplied fallback JSON is decoded instead. It never returns an error:
// malformed model output degrades to the fallback value, not a failure.
func generateJSON(ctx context.Context, gw Completer, prompt string, cfg GenerationConfig, out any, fallback string) {
	if tryGenerateJSON(ctx, gw, prompt, cfg, out) {
		return
	}
	cfg.JSONOnly = true
	if tryGenerateJSON(ctx, gw, prompt+strictJSONDirective, cfg, out) {
		return
	}
	if err := json.Unmarshal([]byte(fallback), out); err != nil {
		fmt.Fprintf(os.Stderr, "generateJSON: fallback value failed to decode: %v\n", err)
	}
}

func tryGenerateJSON(ctx context.Context, gw Completer, prompt string, cfg GenerationConfig, out any) bool {
	resp, err := gw.Complete(ctx, prompt, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generateJSON: completion failed: %v\n", err)
		return false
	}
	if strings.TrimSpace(resp) == "" {
		return false
	}
	slice, err := extractJSON(resp)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(slice), out); err != nil {
		fmt.Fprintf(os.Stderr, "generateJSON: unmarshal failed: %v\nExtracted JSON:\n%s\n", err, slice)
		return false
	}
	return true
}
