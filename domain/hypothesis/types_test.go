package hypothesis

import (
	"encoding/json"
	"math"
	"testing"

	"hypoforge/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPartialNotYetAnArray(t *testing.T) {
	for _, v := range []any{
		nil,
		"text",
		map[string]any{},
		map[string]any{"hypotheses": "partial"},
	} {
		set, ok, err := FromPartial(v)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, set)
	}
}

func TestFromPartialEmptyArray(t *testing.T) {
	set, ok, err := FromPartial(map[string]any{"hypotheses": []any{}})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, set)
}

func TestFromPartialDecodesElements(t *testing.T) {
	set, ok, err := FromPartial(map[string]any{"hypotheses": []any{
		map[string]any{"hypothesis": "H1", "benefit": "B1"},
		map[string]any{"hypothesis": "H2", "benefit": "B2"},
	}})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Set{{"H1", "B1"}, {"H2", "B2"}}, set)
}

func TestFromPartialRejectsBadShapes(t *testing.T) {
	cases := []any{
		[]any{"just a string"},
		[]any{map[string]any{"hypothesis": "H1"}},
		[]any{map[string]any{"hypothesis": "H1", "benefit": 3.0}},
		[]any{map[string]any{"hypothesis": "H1", "benefit": "B1", "score": 1.0}},
	}
	for _, arr := range cases {
		_, _, err := FromPartial(map[string]any{"hypotheses": arr})
		assert.True(t, errors.Is(err, errors.CodeSchemaViolation), "%v", arr)
	}
}

func TestSetCloneAndAt(t *testing.T) {
	set := Set{{"H1", "B1"}}
	clone := set.Clone()
	clone[0].Hypothesis = "changed"

	h, ok := set.At(0)
	assert.True(t, ok)
	assert.Equal(t, "H1", h.Hypothesis)
	_, ok = set.At(1)
	assert.False(t, ok)
}

func TestOutcomeFromJSON(t *testing.T) {
	o, err := OutcomeFromJSON(json.RawMessage(`[2.31, 0.021]`))
	require.NoError(t, err)
	assert.Equal(t, Outcome{Statistic: 2.31, PValue: 0.021}, o)
	assert.True(t, o.Significant(0.05))

	o, err = OutcomeFromJSON(json.RawMessage(`["NaN", "Infinity"]`))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(o.Statistic))
	assert.True(t, math.IsInf(o.PValue, 1))
	assert.False(t, o.Significant(0.05))
}

func TestOutcomeFromJSONRejectsOtherShapes(t *testing.T) {
	for _, raw := range []string{`0.5`, `[1]`, `[1, 2, 3]`, `[null, 0.1]`, `["x", 0.1]`, `{"p": 1}`} {
		_, err := OutcomeFromJSON(json.RawMessage(raw))
		assert.True(t, errors.Is(err, errors.CodeSandboxExecution), raw)
	}
}
