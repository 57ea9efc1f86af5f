// Package postproc implements the post-processing rule engine: operands that
// filter and bucket tagged cost and usage values, and the processor that
// derives new values from them hour by hour.
package postproc

import (
	"regexp"
	"strings"

	"costrules/internal/errors"
)

// GroupPlaceholder is replaced by a captured group when a filter is used as an
// output template.
const GroupPlaceholder = "${group}"

// TagFilter is a full-match regular expression bound to one tag dimension.
// The same pattern doubles as an output template: Substitute replaces
// ${group} with a value captured by another operand.
type TagFilter struct {
	raw string
	re  *regexp.Regexp
}

// NewTagFilter compiles pattern. A ${group} placeholder matches anything when
// the filter is used for matching.
func NewTagFilter(pattern string) (*TagFilter, error) {
	expr := strings.ReplaceAll(pattern, GroupPlaceholder, "(.*)")
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "invalid tag pattern %q", pattern)
	}
	return &TagFilter{raw: pattern, re: re}, nil
}

// Match returns the first capture group of value, or the whole value when the
// pattern has no group.
func (f *TagFilter) Match(value string) (string, bool) {
	m := f.re.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// Applies reports whether value matches the pattern
func (f *TagFilter) Applies(value string) bool {
	return f.re.MatchString(value)
}

// Substitute instantiates the template with group
func (f *TagFilter) Substitute(group string) string {
	return strings.ReplaceAll(f.raw, GroupPlaceholder, group)
}

// Captures reports whether Match returns a capture group rather than the whole value
func (f *TagFilter) Captures() bool {
	return f.re.NumSubexp() > 0
}

// IsTemplate reports whether the pattern carries a ${group} placeholder
func (f *TagFilter) IsTemplate() bool {
	return strings.Contains(f.raw, GroupPlaceholder)
}

// IsLiteral reports whether the pattern matches exactly one string, itself
func (f *TagFilter) IsLiteral() bool {
	return !f.IsTemplate() && regexp.QuoteMeta(f.raw) == f.raw
}

func (f *TagFilter) String() string {
	return f.raw
}
