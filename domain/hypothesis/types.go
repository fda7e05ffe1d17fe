package hypothesis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"hypoforge/internal/errors"
)

// Hypothesis is a model-proposed claim about the dataset plus the benefit of
// confirming it.
type Hypothesis struct {
	Hypothesis string `json:"hypothesis"`
	Benefit    string `json:"benefit"`
}

// Set is the ordered list of hypotheses visible at one moment. A new Set
// replaces the previous one wholesale; it is never patched in place.
type Set []Hypothesis

// Clone returns an independent copy.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return append(Set(nil), s...)
}

// At resolves a position in this set.
func (s Set) At(index int) (Hypothesis, bool) {
	if index < 0 || index >= len(s) {
		return Hypothesis{}, false
	}
	return s[index], true
}

// Outcome is the (statistic, p-value) pair returned by a sandboxed test.
type Outcome struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// FromPartial extracts the hypotheses array from a partially parsed payload.
// ok is false while the payload does not (yet) hold a hypotheses array.
// Elements are checked against the strict shape: an object with exactly the
// string members hypothesis and benefit.
func FromPartial(v any) (Set, bool, error) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		return nil, false, nil
	}
	raw, isArr := obj["hypotheses"].([]any)
	if !isArr {
		return nil, false, nil
	}

	set := make(Set, 0, len(raw))
	for i, elem := range raw {
		h, err := decodeElement(elem)
		if err != nil {
			return nil, false, errors.Wrapf(err, "hypotheses[%d]", i)
		}
		set = append(set, h)
	}
	return set, true, nil
}

func decodeElement(elem any) (Hypothesis, error) {
	fields, ok := elem.(map[string]any)
	if !ok {
		return Hypothesis{}, errors.SchemaViolation(fmt.Sprintf("expected object, got %T", elem))
	}

	var extra []string
	for key := range fields {
		if key != "hypothesis" && key != "benefit" {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return Hypothesis{}, errors.SchemaViolation(fmt.Sprintf("unexpected properties %v", extra))
	}

	text, ok := fields["hypothesis"].(string)
	if !ok {
		return Hypothesis{}, errors.SchemaViolation("missing string property \"hypothesis\"")
	}
	benefit, ok := fields["benefit"].(string)
	if !ok {
		return Hypothesis{}, errors.SchemaViolation("missing string property \"benefit\"")
	}
	return Hypothesis{Hypothesis: text, Benefit: benefit}, nil
}

// OutcomeFromJSON decodes the sandbox's result value, a two-element array of
// numbers. Non-finite numbers arrive as the strings "NaN", "Infinity" and
// "-Infinity" because JSON cannot carry them.
func OutcomeFromJSON(raw json.RawMessage) (Outcome, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return Outcome{}, errors.SandboxExecution(
			fmt.Sprintf("test_hypothesis must return (statistic, p_value), got %s", abbreviate(raw)), err)
	}
	stat, err := decodeNumber(pair[0])
	if err != nil {
		return Outcome{}, errors.SandboxExecution("statistic is not a number", err)
	}
	p, err := decodeNumber(pair[1])
	if err != nil {
		return Outcome{}, errors.SandboxExecution("p_value is not a number", err)
	}
	return Outcome{Statistic: stat, PValue: p}, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	if string(raw) == "null" {
		return 0, fmt.Errorf("unexpected null")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unexpected value %s", abbreviate(raw))
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("unexpected value %q", s)
}

// SignificanceLevel is the alpha the interfaces flag results against
const SignificanceLevel = 0.05

// Significant reports whether the outcome rejects the null at alpha.
func (o Outcome) Significant(alpha float64) bool {
	return !math.IsNaN(o.PValue) && o.PValue < alpha
}

func abbreviate(raw []byte) string {
	const max = 80
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
