package evaluator

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/argument-tutor/internal/model"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// decodeObject strips markdown fences and decodes the first balanced JSON
// object in text. Prose before or after the object is ignored.
func decodeObject(text string) (map[string]any, error) {
	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))

	raw, ok := firstObject(cleaned)
	if !ok {
		return nil, eris.New("no JSON object in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, eris.Wrap(err, "decode response object")
	}
	return obj, nil
}

// firstObject returns the first brace-balanced span of s. Braces inside
// string literals do not count.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(s); i++ {
		c := s[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseString returns obj[key] trimmed, when it is a string.
func parseString(obj map[string]any, key string) (string, bool) {
	v, ok := obj[key].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// parseConfidence coerces a JSON number or numeric string. Anything else
// reports false and the caller uses 0.
func parseConfidence(v any) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case json.Number:
		f, err := c.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// normalize turns a decoded object into a validated result for step.
func normalize(step model.Step, obj map[string]any) (*model.EvaluationResult, error) {
	label, _ := parseString(obj, "label")
	label = strings.ToLower(label)
	if !step.AllowsLabel(label) {
		return nil, eris.Errorf("label %q not in %v", label, step.Labels())
	}

	passed := step.Passes(label)

	feedback, ok := parseString(obj, "step_feedback")
	if !ok || feedback == "" {
		feedback = step.DefaultFeedback(passed)
	}

	confidence, ok := parseConfidence(obj["confidence"])
	if !ok {
		confidence = 0
	}

	return &model.EvaluationResult{
		Step:       step,
		Label:      label,
		Passed:     passed,
		Feedback:   feedback,
		Confidence: confidence,
	}, nil
}
