package postproc

import (
	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

// ResultOperand designates the tag group a rule writes for each bucket
type ResultOperand struct {
	*Operand
}

func newResultOperand(name string, cfg *OperandConfig, services types.Services) (*ResultOperand, error) {
	base, err := newOperand(name, cfg, services, dataset.Cost)
	if err != nil {
		return nil, err
	}
	if base.HasAggregation() {
		return nil, errors.Configf("result operand %q must designate a single tag group", name)
	}
	return &ResultOperand{Operand: base}, nil
}

// TagGroup builds the output tag group of bucket. It fails when the operand
// aggregates, since a result must target exactly one tag group.
func (r *ResultOperand) TagGroup(bucket AggregationTagGroup, services types.Services) (types.TagGroup, bool, error) {
	if r.HasAggregation() {
		return types.TagGroup{}, false, errors.Newf(errors.TypeInternal, "result operand %q has aggregation", r.name)
	}
	return r.Operand.TagGroup(bucket, services)
}
