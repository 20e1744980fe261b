package evaluator

import (
	"encoding/json"
	"strings"
)

// continuationSignals is the ordered list of case-insensitive keyword
// fallbacks, ported from the original evaluator's enhanced-fallback parser.
// The scan stops at the first match; since only a yes/no decision results,
// the order does not change the outcome.
var continuationSignals = []string{
	"decision: continue",
	"decision: true",
	"continue: true",
	"should continue: true",
	"continue: yes",
	"continue",
	"keep going",
	"not complete",
	"needs more",
	"insufficient",
	"incomplete",
	"missing",
	"lacking",
}

// responseAliases is the ordered list of field names checked for the
// continuation text, first non-empty trimmed value wins.
var responseAliases = []string{"response", "additional_content", "content", "message"}

// parseEvaluationResponse implements the three-tier tolerant parse
// described in SPEC_FULL.md §4.C6: strict JSON, then JSON recovered from
// mixed/fenced content, then keyword-substring fallback. It never errors;
// an unparseable reply defaults to Continue=false.
func parseEvaluationResponse(reply string) Result {
	if obj, ok := tryParseJSONObject(reply); ok {
		return objectToResult(obj, reply)
	}
	if extracted, ok := extractJSONFromMixedContent(reply); ok {
		if obj, ok := tryParseJSONObject(extracted); ok {
			return objectToResult(obj, reply)
		}
	}
	return enhancedFallback(reply)
}

func tryParseJSONObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractJSONFromMixedContent tries, in order: a ```json fence, a generic
// ``` fence containing a JSON object, then the substring from the first {
// to the last } provided it plausibly names decision/response.
func extractJSONFromMixedContent(s string) (string, bool) {
	if body, ok := fencedBlock(s, "```json"); ok {
		return body, true
	}
	if body, ok := fencedBlock(s, "```"); ok && looksLikeObject(body) {
		return body, true
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		candidate := s[start : end+1]
		lower := strings.ToLower(candidate)
		if strings.Contains(lower, "decision") && (strings.Contains(lower, "response") || strings.Contains(lower, "content")) {
			return candidate, true
		}
	}
	return "", false
}

func fencedBlock(s, fence string) (string, bool) {
	start := strings.Index(s, fence)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func looksLikeObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

// objectToResult reads `decision` (bool or fuzzy string) and the first
// non-empty response alias from a parsed JSON object.
func objectToResult(obj map[string]any, rawReply string) Result {
	decision := false
	if v, ok := obj["decision"]; ok {
		switch d := v.(type) {
		case bool:
			decision = d
		case string:
			upper := strings.ToUpper(strings.TrimSpace(d))
			decision = upper == "CONTINUE" || upper == "TRUE" || upper == "YES"
		}
	}
	var response string
	for _, alias := range responseAliases {
		if v, ok := obj[alias]; ok {
			if s, ok := v.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					response = trimmed
					break
				}
			}
		}
	}
	var reasoning string
	if v, ok := obj["reasoning"]; ok {
		if s, ok := v.(string); ok {
			reasoning = s
		}
	}
	return Result{Continue: decision, Response: response, Reasoning: reasoning}
}

// responseIndicators is the ordered list of prefixes scanned for
// continuation text in a non-JSON reply; the text runs from the indicator
// to the end of its line.
var responseIndicators = []string{
	"response:",
	"additional content:",
	"next steps:",
	"improvements needed:",
	"continue with:",
	"add:",
}

// enhancedFallback is the last-resort keyword scan over the raw reply when
// no JSON object could be recovered at all. The reply itself becomes the
// reasoning, and any continuation text found behind a response indicator
// is carried through as the response.
func enhancedFallback(reply string) Result {
	upper := strings.ToUpper(reply)
	decision := false
	for _, signal := range continuationSignals {
		if strings.Contains(upper, strings.ToUpper(signal)) {
			decision = true
			break
		}
	}
	return Result{
		Continue:  decision,
		Response:  extractResponseFromFallback(reply),
		Reasoning: reply,
	}
}

// extractResponseFromFallback pulls continuation text out of non-JSON
// content: the first line tail behind a response indicator, provided it is
// long enough to be meaningful.
func extractResponseFromFallback(content string) string {
	lower := strings.ToLower(content)
	for _, pattern := range responseIndicators {
		start := strings.Index(lower, pattern)
		if start < 0 {
			continue
		}
		remaining := strings.TrimSpace(content[start+len(pattern):])
		if end := strings.IndexByte(remaining, '\n'); end >= 0 {
			remaining = remaining[:end]
		}
		extracted := strings.TrimSpace(remaining)
		if len(extracted) > 5 {
			return extracted
		}
	}
	return ""
}
