package expression

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// placeholderPattern matches ${name} operand references in a formula
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Reference is one ${name} placeholder found in a formula
type Reference struct {
	Name      string
	RawString string
}

// ExtractReferences returns the distinct placeholders of formula in order of
// first appearance.
func ExtractReferences(formula string) []Reference {
	var refs []Reference
	seen := make(map[string]bool)

	for _, m := range placeholderPattern.FindAllStringSubmatch(formula, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		refs = append(refs, Reference{Name: m[1], RawString: m[0]})
	}
	return refs
}

// ReferenceNames returns the sorted distinct placeholder names of formula
func ReferenceNames(formula string) []string {
	refs := ExtractReferences(formula)
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	sort.Strings(names)
	return names
}

// Substitute replaces every ${name} in formula with the literal form of
// values[name]. Placeholders without a value are left in place and will fail
// tokenization.
func Substitute(formula string, values map[string]float64) string {
	return placeholderPattern.ReplaceAllStringFunc(formula, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := values[name]
		if !ok {
			return m
		}
		return FormatValue(v)
	})
}

// FormatValue renders v as a literal the tokenizer reads back exactly.
// Negative values are parenthesized so they stay a single operand after a
// binary operator.
func FormatValue(v float64) string {
	var s string
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		s = "-Infinity"
	default:
		s = decimal.NewFromFloat(v).String()
	}
	if strings.HasPrefix(s, "-") {
		return "(" + s + ")"
	}
	return s
}
