// Package llmrecover recovers a JSON array of objects from a generative
// call's raw text output when the model truncated mid-response. Strict
// parse is always attempted first; grounded on graph/builder.go's
// extractJSON for the markdown-fence-stripping and brace-hunting approach,
// generalized here from a single object to an array of objects via
// string-literal-aware brace-depth scanning.
package llmrecover

import (
	"encoding/json"
	"regexp"
	"strings"

	"campaignkb/internal/kberrors"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// RecoverArray returns a slice of raw JSON object strings from raw. It
// first attempts a strict array parse; on failure, it scans for balanced
// top-level `{...}` objects and returns each one recovered, tolerating
// truncation after the last complete object.
func RecoverArray(raw string) ([]json.RawMessage, error) {
	stripped := stripFence(raw)

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(stripped), &arr); err == nil {
		return arr, nil
	}

	objects := scanBalancedObjects(stripped)
	if len(objects) == 0 {
		return nil, kberrors.New(kberrors.ParseError, "llmrecover.RecoverArray", nil)
	}

	recovered := make([]json.RawMessage, 0, len(objects))
	for _, obj := range objects {
		if json.Valid([]byte(obj)) {
			recovered = append(recovered, json.RawMessage(obj))
		}
	}
	if len(recovered) == 0 {
		return nil, kberrors.New(kberrors.ParseError, "llmrecover.RecoverArray", nil)
	}
	return recovered, nil
}

// RecoverInto is RecoverArray followed by unmarshaling each recovered
// object into a fresh T, skipping any object that fails to decode.
func RecoverInto[T any](raw string) ([]T, error) {
	objects, err := RecoverArray(raw)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(objects))
	for _, obj := range objects {
		var v T
		if err := json.Unmarshal(obj, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, kberrors.New(kberrors.ParseError, "llmrecover.RecoverInto", nil)
	}
	return out, nil
}

func stripFence(raw string) string {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	return strings.TrimSpace(raw)
}

// scanBalancedObjects walks text tracking string-literal state and brace
// depth, emitting each top-level balanced {...} span it finds. A span left
// open at end-of-input (truncation mid-object) is dropped rather than
// emitted malformed.
func scanBalancedObjects(text string) []string {
	var objects []string
	var depth int
	var start int
	var inString bool
	var escaped bool

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					objects = append(objects, text[start:i+1])
				}
			}
		}
	}
	return objects
}
