package postproc

import (
	"fmt"
	"slices"

	"costrules/core/dataset"
	"costrules/core/types"
	"costrules/internal/errors"
)

// PolicyKind selects how an operand constrains one dimension
type PolicyKind int

const (
	// Unrestricted matches every value and passes it through unchanged
	Unrestricted PolicyKind = iota
	// AllowList matches explicit values, or everything but them when excluded
	AllowList
	// Pattern matches a TagFilter and may capture a group
	Pattern
)

func (k PolicyKind) String() string {
	switch k {
	case AllowList:
		return "allow-list"
	case Pattern:
		return "pattern"
	}
	return "unrestricted"
}

// Policy is the constraint of one operand on one dimension
type Policy struct {
	Kind    PolicyKind
	Values  []string
	Exclude bool
	Filter  *TagFilter
}

// Matches tests identity against the policy. It returns the value the
// dimension contributes to a bucket: the captured group for patterns, the
// identity itself otherwise.
func (p Policy) Matches(identity string) (string, bool) {
	switch p.Kind {
	case AllowList:
		if len(p.Values) == 0 {
			return identity, true
		}
		return identity, slices.Contains(p.Values, identity) != p.Exclude
	case Pattern:
		return p.Filter.Match(identity)
	}
	return identity, true
}

// aggregates reports whether more than one concrete value can satisfy the
// policy when it is used to build an output.
func (p Policy) aggregates() bool {
	return p.Kind == AllowList && (len(p.Values) > 1 || (p.Exclude && len(p.Values) > 0))
}

// static returns the single literal the policy pins the dimension to, if any
func (p Policy) static() (string, bool) {
	switch p.Kind {
	case AllowList:
		if len(p.Values) == 1 && !p.Exclude {
			return p.Values[0], true
		}
	case Pattern:
		if p.Filter.IsLiteral() {
			return p.Filter.String(), true
		}
	}
	return "", false
}

// Operand is a named filter and output template over tag groups, compiled
// once per rule and read-only afterwards.
type Operand struct {
	name     string
	kind     dataset.Kind
	policies [types.NumKeys]Policy
	userTags []Policy
	monthly  bool
	single   bool
}

func newOperand(name string, cfg *OperandConfig, services types.Services, defaultKind dataset.Kind) (*Operand, error) {
	if cfg == nil {
		cfg = &OperandConfig{}
	}
	o := &Operand{
		name:     name,
		kind:     defaultKind,
		userTags: make([]Policy, services.NumUserTags()),
		monthly:  cfg.Monthly,
		single:   cfg.Single,
	}

	if cfg.Type != "" {
		kind, err := dataset.ParseKind(cfg.Type)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "operand %q", name)
		}
		o.kind = kind
	}

	excluded := make(map[types.Key]bool)
	for _, token := range cfg.Exclude {
		k, err := types.ParseKey(token)
		if err != nil || k > types.KeyZone {
			return nil, errors.Configf("operand %q: exclude supports Account, Region and Zone, got %q", name, token)
		}
		excluded[k] = true
	}

	lists := map[types.Key][]string{
		types.KeyAccount: cfg.Accounts,
		types.KeyRegion:  cfg.Regions,
		types.KeyZone:    cfg.Zones,
	}
	patterns := [types.NumKeys]string{cfg.Account, cfg.Region, cfg.Zone, cfg.Product, cfg.Operation, cfg.UsageType}

	for _, k := range types.Keys() {
		policy, err := buildPolicy(k, lists[k], patterns[k], excluded[k], services)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "operand %q", name)
		}
		o.policies[k] = policy
	}

	for tagName, pattern := range cfg.UserTags {
		i, ok := services.UserTags.UserTagIndex(tagName)
		if !ok || i >= len(o.userTags) {
			return nil, errors.Configf("operand %q: unknown user tag %q", name, tagName)
		}
		filter, err := NewTagFilter(pattern)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "operand %q user tag %q", name, tagName)
		}
		o.userTags[i] = Policy{Kind: Pattern, Filter: filter}
	}

	return o, nil
}

func buildPolicy(k types.Key, list []string, pattern string, exclude bool, services types.Services) (Policy, error) {
	switch {
	case len(list) > 0 && pattern != "":
		return Policy{}, fmt.Errorf("%s has both an allow-list and a pattern", k)
	case len(list) > 0:
		values := make([]string, len(list))
		for i, v := range list {
			// unresolvable values are kept as written and simply never match
			values[i], _ = services.Canonical(k, v)
		}
		return Policy{Kind: AllowList, Values: values, Exclude: exclude}, nil
	case pattern != "":
		if exclude {
			return Policy{}, fmt.Errorf("exclude on %s requires an allow-list", k)
		}
		filter, err := NewTagFilter(pattern)
		if err != nil {
			return Policy{}, err
		}
		return Policy{Kind: Pattern, Filter: filter}, nil
	}
	return Policy{Kind: Unrestricted, Exclude: exclude}, nil
}

// Name returns the operand name
func (o *Operand) Name() string { return o.name }

// Kind returns whether the operand reads or writes cost or usage
func (o *Operand) Kind() dataset.Kind { return o.kind }

// Monthly reports whether the operand stands for a total over every hour of the pass
func (o *Operand) Monthly() bool { return o.monthly }

// Single reports whether the operand ignores the input bucket's values
func (o *Operand) Single() bool { return o.single }

// Policy returns the constraint on dimension k
func (o *Operand) Policy(k types.Key) Policy { return o.policies[k] }

// UserTagPolicy returns the constraint on user tag slot i
func (o *Operand) UserTagPolicy(i int) Policy {
	if i < 0 || i >= len(o.userTags) {
		return Policy{}
	}
	return o.userTags[i]
}

// HasAggregation reports whether the operand covers more than one concrete
// value on some dimension and so cannot be inverted to a single tag group.
func (o *Operand) HasAggregation() bool {
	for _, p := range o.policies {
		if p.aggregates() {
			return true
		}
	}
	return false
}

// validateTemplates checks that every ${group} template can be filled from
// the buckets of in.
func (o *Operand) validateTemplates(in *InputOperand) error {
	for _, k := range types.Keys() {
		p := o.policies[k]
		if p.Kind != Pattern || !p.Filter.IsTemplate() {
			continue
		}
		if o.single {
			return errors.Configf("operand %q is single but its %s pattern %q needs a group", o.name, k, p.Filter)
		}
		if !in.carries(k) {
			return errors.Configf("operand %q: %s pattern %q needs a group the %q operand does not keep", o.name, k, p.Filter, InOperand)
		}
	}
	for i, p := range o.userTags {
		if p.Kind == Pattern && p.Filter.IsTemplate() && (o.single || !in.agg.GroupByUserTag(i)) {
			return errors.Configf("operand %q: user tag pattern %q needs a group the %q operand does not keep", o.name, p.Filter, InOperand)
		}
	}
	return nil
}

// TagGroup builds the concrete tag group the operand designates for bucket.
// Patterns output their text with ${group} filled from the bucket, and
// allow-lists contribute their only value. Any other dimension inherits the
// bucket's value unless the operand is single. It returns false when the catalog
// cannot resolve a resulting value.
func (o *Operand) TagGroup(bucket AggregationTagGroup, services types.Services) (types.TagGroup, bool, error) {
	var tg types.TagGroup
	for _, k := range types.Keys() {
		v, has := bucket.Value(k)
		identity, err := o.outputValue(o.policies[k], v, has, k.String())
		if err != nil {
			return types.TagGroup{}, false, err
		}
		if !services.Assign(&tg, k, identity) {
			return types.TagGroup{}, false, nil
		}
	}

	if len(o.userTags) > 0 {
		slots := make([]string, len(o.userTags))
		for i, p := range o.userTags {
			v := bucket.UserTag(i)
			identity, err := o.outputValue(p, v, v != "", fmt.Sprintf("user tag %d", i))
			if err != nil {
				return types.TagGroup{}, false, err
			}
			slots[i] = identity
		}
		tg = tg.WithUserTags(slots)
	}
	return tg, true, nil
}

func (o *Operand) outputValue(p Policy, bucketValue string, has bool, dim string) (string, error) {
	switch p.Kind {
	case Pattern:
		if p.Filter.IsTemplate() && !has {
			return "", errors.Newf(errors.TypeInternal, "operand %q: bucket has no %s value for %q", o.name, dim, p.Filter)
		}
		return p.Filter.Substitute(bucketValue), nil
	case AllowList:
		if p.aggregates() {
			return "", errors.Newf(errors.TypeInternal, "operand %q aggregates %s and has no single output value", o.name, dim)
		}
		if len(p.Values) == 1 {
			return p.Values[0], nil
		}
	}
	if o.single || !has {
		return "", nil
	}
	return bucketValue, nil
}
