package postproc

import (
	"strings"

	"costrules/core/types"
)

const bucketSeparator = "\x1f"

// Aggregation describes a grouping: the fixed dimensions and user tag slots
// that stay distinct when concrete tag groups are reduced to buckets.
// Everything else collapses. An empty grouping yields one global bucket.
type Aggregation struct {
	keys     [types.NumKeys]bool
	userTags []bool
}

// NewAggregation retains keys and the user tag slots flagged in userTags
func NewAggregation(keys []types.Key, userTags []bool) Aggregation {
	a := Aggregation{userTags: append([]bool(nil), userTags...)}
	for _, k := range keys {
		a.keys[k] = true
	}
	return a
}

// GroupBy reports whether dimension k is retained
func (a Aggregation) GroupBy(k types.Key) bool {
	return a.keys[k]
}

// GroupByUserTag reports whether user tag slot i is retained
func (a Aggregation) GroupByUserTag(i int) bool {
	return i >= 0 && i < len(a.userTags) && a.userTags[i]
}

// IsGlobal reports whether every tag group falls into the same bucket
func (a Aggregation) IsGlobal() bool {
	for _, g := range a.keys {
		if g {
			return false
		}
	}
	for _, g := range a.userTags {
		if g {
			return false
		}
	}
	return true
}

// Reduce builds the bucket of a tag group whose per-dimension values are
// values and whose user tag slots are userTags.
func (a Aggregation) Reduce(values [types.NumKeys]string, userTags []string) AggregationTagGroup {
	var b AggregationTagGroup
	for k, v := range values {
		if a.keys[k] {
			b.values[k] = v
			b.grouped |= 1 << k
		}
	}

	if len(a.userTags) > 0 {
		slots := make([]string, len(a.userTags))
		for i := range slots {
			if a.userTags[i] && i < len(userTags) {
				slots[i] = userTags[i]
			}
		}
		b.userTags = encodeSlots(slots)
	}
	return b
}

// ReduceTagGroup reduces tg using its own identities
func (a Aggregation) ReduceTagGroup(tg types.TagGroup) AggregationTagGroup {
	return a.Reduce(identities(tg), tg.UserTags())
}

// Compatible reports whether values agree with bucket on every retained
// dimension. values and userTags must be passed in the form they had when
// the bucket was reduced, so a bucket holding a captured group is compared
// against captured groups rather than raw identities.
func (a Aggregation) Compatible(bucket AggregationTagGroup, values [types.NumKeys]string, userTags []string) bool {
	for _, k := range types.Keys() {
		if a.keys[k] && bucket.values[k] != values[k] {
			return false
		}
	}
	for i, g := range a.userTags {
		if !g {
			continue
		}
		var v string
		if i < len(userTags) {
			v = userTags[i]
		}
		if bucket.UserTag(i) != v {
			return false
		}
	}
	return true
}

func identities(tg types.TagGroup) [types.NumKeys]string {
	var values [types.NumKeys]string
	for _, k := range types.Keys() {
		values[k] = tg.Identity(k)
	}
	return values
}

// AggregationTagGroup is a bucket: the retained values of a reduced tag
// group. It is comparable and used directly as a map key.
type AggregationTagGroup struct {
	values   [types.NumKeys]string
	grouped  uint8
	fallback uint8
	userTags string
}

// Value returns the bucket value of dimension k. Collapsed dimensions have a
// value only when the input operand pins them to a single literal.
func (b AggregationTagGroup) Value(k types.Key) (string, bool) {
	if (b.grouped|b.fallback)&(1<<k) == 0 {
		return "", false
	}
	return b.values[k], true
}

// Grouped reports whether dimension k was retained
func (b AggregationTagGroup) Grouped(k types.Key) bool {
	return b.grouped&(1<<k) != 0
}

// UserTag returns the retained value of user tag slot i, or ""
func (b AggregationTagGroup) UserTag(i int) string {
	if b.userTags == "" {
		return ""
	}
	slots := strings.Split(b.userTags, bucketSeparator)
	if i < 0 || i >= len(slots) {
		return ""
	}
	return slots[i]
}

func (b AggregationTagGroup) withFallback(k types.Key, v string) AggregationTagGroup {
	if b.Grouped(k) {
		return b
	}
	b.values[k] = v
	b.fallback |= 1 << k
	return b
}

func (b AggregationTagGroup) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, k := range types.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, ok := b.Value(k)
		switch {
		case !ok:
			v = "*"
		case v == "":
			v = "-"
		}
		sb.WriteString(v)
	}
	if b.userTags != "" {
		for _, t := range strings.Split(b.userTags, bucketSeparator) {
			if t == "" {
				t = "-"
			}
			sb.WriteString(", ")
			sb.WriteString(t)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func encodeSlots(slots []string) string {
	end := len(slots)
	for end > 0 && slots[end-1] == "" {
		end--
	}
	return strings.Join(slots[:end], bucketSeparator)
}
