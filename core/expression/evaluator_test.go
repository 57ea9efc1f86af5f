package expression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/internal/errors"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{name: "precedence", expr: "2+3*4", want: 14},
		{name: "parentheses", expr: "(2+3)*4", want: 20},
		{name: "nested functions", expr: "MIN(3,MAX(1,2))", want: 2},
		{name: "exponent with negative sign", expr: "1E-5", want: 0.00001},
		{name: "exponent inside arithmetic", expr: "2E-3-1", want: -0.998},
		{name: "lower case exponent", expr: "3e2 / 3", want: 100},
		{name: "left associative subtraction", expr: "8-2-1", want: 5},
		{name: "left associative division", expr: "16 / 4 / 2", want: 2},
		{name: "tabs and spaces", expr: "\t1 +\t 2 ", want: 3},
		{name: "decimal literals", expr: "0.5 * .5", want: 0.25},
		{name: "function after operator", expr: "1 + MAX(2, 3) * 2", want: 7},
		{name: "function operands are expressions", expr: "MAX(1+1, 4/2+1)", want: 3},
		{name: "case insensitive functions", expr: "min(4, max(5, 6))", want: 4},
		{name: "unary minus at start", expr: "-2*3", want: -6},
		{name: "unary minus after operator", expr: "2 * -3", want: -6},
		{name: "unary minus after parenthesis", expr: "(-1.5 + 2)", want: 0.5},
		{name: "unary minus as argument", expr: "MIN(-1, 0)", want: -1},
		{name: "double negation", expr: "- -2", want: 2},
		{
			name: "request pricing formula",
			expr: "(100 - (16 * 4 * 8 / 2)) * 0.01 / 1000",
			want: -0.00156,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestEvaluateSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "unclosed parenthesis", expr: "(1+2"},
		{name: "unopened parenthesis", expr: "1+2)"},
		{name: "unsubstituted operand", expr: "${in} * 2"},
		{name: "unknown function", expr: "AVG(1,2)"},
		{name: "dangling operator", expr: "1 +"},
		{name: "missing operator", expr: "1 2"},
		{name: "empty", expr: "   "},
		{name: "comma outside call", expr: "1, 2"},
		{name: "too many arguments", expr: "MIN(1,2,3)"},
		{name: "letters in number", expr: "12abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeSyntax), "got %v", err)
		})
	}
}

func TestEvaluateNonFinite(t *testing.T) {
	v, err := Evaluate("1 / 0")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, 1))

	v, err = Evaluate("0 / 0")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	v, err = Evaluate("NaN + 1")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	v, err = Evaluate("-Infinity * 2")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))
}

func TestTokenizeKeepsExponentSign(t *testing.T) {
	tokens, err := Tokenize("1.5E-3-2")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, TokenNumber, tokens[0].Type)
	assert.Equal(t, "1.5E-3", tokens[0].Text)
	assert.Equal(t, TokenMinus, tokens[1].Type)
	assert.Equal(t, TokenNumber, tokens[2].Type)
}

func TestToRPN(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{expr: "2+3*4", want: "2 3 4 * +"},
		{expr: "(2+3)*4", want: "2 3 + 4 *"},
		{expr: "MIN(3,MAX(1,2))", want: "3 1 2 MAX MIN"},
		{expr: "2 * -3", want: "2 3 NEG *"},
		{expr: "-2 * 3", want: "2 NEG 3 *"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			tokens, err := Tokenize(tt.expr)
			require.NoError(t, err)
			rpn, err := ToRPN(tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, formatTokens(rpn))
		})
	}
}
