package postproc

import (
	"sort"

	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

// BucketExplanation describes one input bucket of a rule for one hour: the
// concrete tag groups it merges and the tag groups its results write.
type BucketExplanation struct {
	Bucket  AggregationTagGroup
	Key     string
	Value   float64
	Members []types.TagGroup
	Outputs []types.TagGroup
}

// Explain reports how the rule called name buckets hour of the given dataset
// context without modifying data. Use types.NonResource for the non-resource
// context.
func (p *Processor) Explain(data *dataset.CostAndUsage, name string, product types.Product, hour int) ([]BucketExplanation, error) {
	var cfg *RuleConfig
	for _, c := range p.configs {
		if c.Name == name {
			cfg = c
			break
		}
	}
	if cfg == nil {
		return nil, errors.NotFound("rule", name)
	}

	rule, err := NewRule(cfg, p.services)
	if err != nil {
		return nil, err
	}

	input := data.Get(rule.in.Kind(), product)
	if input == nil {
		return nil, errors.NotFound(rule.in.Kind().String()+" context", product.ServiceCode)
	}
	if hour < 0 || hour >= input.Len() {
		return nil, errors.Newf(errors.TypeNotFound, "hour %d out of range [0, %d)", hour, input.Len())
	}

	values := input.Interval(hour)
	ps := &pass{Processor: p, rule: rule, data: data, scope: product}
	sums := ps.aggregate(values)

	var result []BucketExplanation
	for _, b := range sortedBuckets(rule.in, sums) {
		exp := BucketExplanation{Bucket: b.bucket, Key: b.key, Value: sums[b.bucket]}

		for tg := range values {
			if rule.in.Matches(b.bucket, tg) {
				exp.Members = append(exp.Members, tg)
			}
		}
		sort.Slice(exp.Members, func(i, j int) bool {
			return exp.Members[i].String() < exp.Members[j].String()
		})

		for _, res := range rule.results {
			tg, ok, err := res.out.TagGroup(b.bucket, p.services)
			if err != nil {
				return nil, err
			}
			if ok {
				exp.Outputs = append(exp.Outputs, tg)
			}
		}
		result = append(result, exp)
	}
	return result, nil
}
