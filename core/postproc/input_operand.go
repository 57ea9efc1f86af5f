package postproc

import (
	"strings"

	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

// InputOperand is the "in" operand of a rule: it selects the tag groups a
// rule reads and reduces them to buckets.
type InputOperand struct {
	*Operand
	agg Aggregation

	// literal values of collapsed dimensions the operand pins to one value
	static    [types.NumKeys]string
	hasStatic uint8
}

func newInputOperand(cfg *OperandConfig, services types.Services) (*InputOperand, error) {
	base, err := newOperand(InOperand, cfg, services, dataset.Usage)
	if err != nil {
		return nil, err
	}

	keys := types.Keys()
	if cfg.GroupBy != nil {
		keys = keys[:0]
		for _, token := range cfg.GroupBy {
			k, err := types.ParseKey(token)
			if err != nil {
				return nil, errors.Wrapf(errors.TypeConfig, err, "operand %q groupBy", InOperand)
			}
			keys = append(keys, k)
		}
	}

	userTags := make([]bool, services.NumUserTags())
	if cfg.GroupByTags == nil {
		for i := range userTags {
			userTags[i] = true
		}
	} else {
		for _, name := range cfg.GroupByTags {
			i, ok := services.UserTags.UserTagIndex(name)
			if !ok || i >= len(userTags) {
				return nil, errors.Configf("operand %q groupByTags: unknown user tag %q", InOperand, name)
			}
			userTags[i] = true
		}
	}

	in := &InputOperand{Operand: base, agg: NewAggregation(keys, userTags)}
	for _, k := range types.Keys() {
		if in.agg.GroupBy(k) {
			continue
		}
		if v, ok := base.policies[k].static(); ok {
			in.static[k] = v
			in.hasStatic |= 1 << k
		}
	}

	if in.single && in.HasAggregation() {
		return nil, errors.Configf("operand %q is single but aggregates tag groups", InOperand)
	}
	return in, nil
}

// Aggregation returns the grouping of the operand
func (in *InputOperand) Aggregation() Aggregation {
	return in.agg
}

// HasProduct reports whether the operand constrains the product dimension
func (in *InputOperand) HasProduct() bool {
	return in.policies[types.KeyProduct].Kind != Unrestricted
}

// MatchesProduct reports whether p passes the operand's product constraint
func (in *InputOperand) MatchesProduct(p types.Product) bool {
	_, ok := in.policies[types.KeyProduct].Matches(p.ServiceCode)
	return ok
}

// carries reports whether buckets hold a value for dimension k
func (in *InputOperand) carries(k types.Key) bool {
	return in.agg.GroupBy(k) || in.hasStatic&(1<<k) != 0
}

// HasAggregation reports whether a bucket can stand for more than one
// concrete tag group.
func (in *InputOperand) HasAggregation() bool {
	for _, k := range types.Keys() {
		p := in.policies[k]
		if p.Kind == AllowList && (len(p.Values) > 1 || p.Exclude) {
			return true
		}
		if !in.agg.GroupBy(k) {
			if _, ok := p.static(); !ok {
				return true
			}
			continue
		}
		if p.Kind == Pattern && p.Filter.Captures() {
			return true
		}
	}
	for i := range in.userTags {
		if !in.agg.GroupByUserTag(i) {
			return true
		}
		if p := in.userTags[i]; p.Kind == Pattern && p.Filter.Captures() {
			return true
		}
	}
	return false
}

// AggregateTagGroup reduces tg to its bucket. Dimensions are tested in fixed
// order and the first non-match rejects tg. Captured groups replace the
// dimension's value in the bucket.
func (in *InputOperand) AggregateTagGroup(tg types.TagGroup) (AggregationTagGroup, bool) {
	var values [types.NumKeys]string
	for _, k := range types.Keys() {
		v, ok := in.policies[k].Matches(tg.Identity(k))
		if !ok {
			return AggregationTagGroup{}, false
		}
		values[k] = v
	}

	var slots []string
	if len(in.userTags) > 0 {
		slots = make([]string, len(in.userTags))
		for i, p := range in.userTags {
			v, ok := p.Matches(tg.UserTag(i))
			if !ok {
				return AggregationTagGroup{}, false
			}
			slots[i] = v
		}
	}

	bucket := in.agg.Reduce(values, slots)
	for _, k := range types.Keys() {
		if in.hasStatic&(1<<k) != 0 {
			bucket = bucket.withFallback(k, in.static[k])
		}
	}
	return bucket, true
}

// Matches reports whether the concrete tag group tg belongs to bucket. tg is
// reduced the way AggregateTagGroup does it, captures included, before the
// retained dimensions are compared.
func (in *InputOperand) Matches(bucket AggregationTagGroup, tg types.TagGroup) bool {
	var values [types.NumKeys]string
	for _, k := range types.Keys() {
		v, ok := in.policies[k].Matches(tg.Identity(k))
		if !ok {
			return false
		}
		values[k] = v
	}
	var slots []string
	if len(in.userTags) > 0 {
		slots = make([]string, len(in.userTags))
		for i, p := range in.userTags {
			v, ok := p.Matches(tg.UserTag(i))
			if !ok {
				return false
			}
			slots[i] = v
		}
	}
	return in.agg.Compatible(bucket, values, slots)
}

// CacheKey returns the canonical string of bucket: per dimension in fixed
// order, the retained value or the operand's static value.
func (in *InputOperand) CacheKey(bucket AggregationTagGroup) string {
	var sb strings.Builder
	for _, k := range types.Keys() {
		if k > 0 {
			sb.WriteString(bucketSeparator)
		}
		if v, ok := bucket.Value(k); ok {
			sb.WriteString(v)
		}
	}
	for i := range in.userTags {
		sb.WriteString(bucketSeparator)
		if in.agg.GroupByUserTag(i) {
			sb.WriteString(bucket.UserTag(i))
		}
	}
	return sb.String()
}
