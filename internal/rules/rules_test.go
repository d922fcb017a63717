package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRejectsUnknownIdentifier(t *testing.T) {
	_, err := Compile("value > 5 && os_exec > 0", []string{"value", "d1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "os_exec")
}

func TestCompileRejectsUnknownFunction(t *testing.T) {
	_, err := Compile(`open("x")`, []string{"value"})
	require.Error(t, err)
}

func TestCompileRejectsMemberAccess(t *testing.T) {
	_, err := Compile("value.method()", []string{"value"})
	require.Error(t, err)
}

func TestCompileRejectsStringLiteral(t *testing.T) {
	_, err := Compile(`value > "5"`, []string{"value"})
	require.Error(t, err)
}

func TestCompileRejectsMalformed(t *testing.T) {
	_, err := Compile("value >", []string{"value"})
	require.Error(t, err)
}

func TestEvalBoolComparisons(t *testing.T) {
	cases := []struct {
		expr string
		vars map[string]float64
		want bool
	}{
		{"value > -8", map[string]float64{"value": -7}, true},
		{"value > -8", map[string]float64{"value": -10}, false},
		{"value >= 5.5 && d1 < 0", map[string]float64{"value": 5.5, "d1": -0.1}, true},
		{"value < 0 || zscore20 > 2", map[string]float64{"value": 1, "zscore20": 2.5}, true},
		{"abs(d1) > 2", map[string]float64{"d1": -3}, true},
		{"min(value, ma20) > 4", map[string]float64{"value": 5, "ma20": 4.5}, true},
		{"max(value, ma20) == 5", map[string]float64{"value": 5, "ma20": 4.5}, true},
		{"(value - ma20) * 100 > 10", map[string]float64{"value": 5.4, "ma20": 5.2}, true},
		{"true", nil, true},
		{"false", nil, false},
		{"!(value > 0)", map[string]float64{"value": -1}, true},
		{"value != 0", map[string]float64{"value": 3}, true},
	}

	for _, tc := range cases {
		idents := []string{"value", "d1", "ma20", "zscore20"}
		prog, err := Compile(tc.expr, idents)
		require.NoError(t, err, tc.expr)

		got, err := prog.EvalBool(tc.vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvalMissingVariable(t *testing.T) {
	prog, err := Compile("d5 > 2", []string{"value", "d5"})
	require.NoError(t, err)

	_, err = prog.EvalBool(map[string]float64{"value": 1})
	require.ErrorIs(t, err, ErrMissingVar)
}

func TestEvalDivisionByZero(t *testing.T) {
	prog, err := Compile("value / d1", []string{"value", "d1"})
	require.NoError(t, err)

	_, err = prog.Eval(map[string]float64{"value": 1, "d1": 0})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMissingVar)
}

func TestEvalArithmetic(t *testing.T) {
	prog, err := Compile("(effr - iorb) * 100", []string{"effr", "iorb"})
	require.NoError(t, err)

	got, err := prog.Eval(map[string]float64{"effr": 5.30, "iorb": 5.40})
	require.NoError(t, err)
	assert.InDelta(t, -10.0, got, 1e-9)
}

func TestEvalBoolNumericTruthiness(t *testing.T) {
	prog, err := Compile("value - 5", []string{"value"})
	require.NoError(t, err)

	got, err := prog.EvalBool(map[string]float64{"value": 7})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = prog.EvalBool(map[string]float64{"value": 5})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvalRejectsBooleanArithmetic(t *testing.T) {
	prog, err := Compile("true + 1", []string{})
	require.NoError(t, err)

	_, err = prog.Eval(nil)
	require.Error(t, err)
}
