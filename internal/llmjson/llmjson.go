// Package llmjson isolates the JSON object embedded in a language model's
// free-form reply. Models wrap output in markdown fences or chatter around
// it despite instructions not to; this is best-effort text surgery, not
// validation. Callers still handle json.Unmarshal failure.
package llmjson

import "strings"

// Sanitize strips markdown fencing and surrounding prose from raw and
// returns the text most likely to parse as a JSON object. It never fails:
// if no braces are present the trimmed input is returned unchanged so the
// caller's decode error points at the real payload.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)

	// Prefer a ```json fence anywhere in the text; fall back to a bare fence.
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		// Drop a language tag on the fence line, e.g. ```JSON.
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{}") {
			text = text[nl+1:]
		}
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	// Slice between the first { and last } to shed leading/trailing chatter.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// SanitizeArray is Sanitize for replies expected to contain a JSON array
// (the keyword-generation call returns one).
func SanitizeArray(raw string) string {
	text := strings.TrimSpace(raw)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
