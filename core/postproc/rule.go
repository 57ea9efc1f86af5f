package postproc

import (
	"fmt"
	"sort"
	"time"

	"costrules/core/dataset"
	"costrules/core/expression"
	"costrules/core/types"
	"costrules/internal/errors"
)

// Rule is the compiled form of a RuleConfig
type Rule struct {
	name  string
	start time.Time
	end   time.Time

	in       *InputOperand
	operands map[string]*Operand
	results  []*ruleResult
}

// ruleResult is one output operand with a formula per channel
type ruleResult struct {
	id       string
	out      *ResultOperand
	formulas map[dataset.Kind]string
	refs     []string
}

// NewRule validates cfg and compiles its operands and formulas
func NewRule(cfg *RuleConfig, services types.Services) (*Rule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := services.Validate(); err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "rule %q", cfg.Name)
	}

	start, err := ParseMonth(cfg.Start)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "rule %q start", cfg.Name)
	}
	end, err := ParseMonth(cfg.End)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeConfig, err, "rule %q end", cfg.Name)
	}
	if !end.After(start) {
		return nil, errors.Configf("rule %q ends (%s) before it starts (%s)", cfg.Name, cfg.End, cfg.Start)
	}

	in, err := newInputOperand(cfg.Operands[InOperand], services)
	if err != nil {
		return nil, err
	}

	r := &Rule{
		name:     cfg.Name,
		start:    start,
		end:      end,
		in:       in,
		operands: make(map[string]*Operand),
	}

	for _, name := range sortedNames(cfg.Operands) {
		if name == InOperand || name == OutOperand {
			continue
		}
		o, err := newOperand(name, cfg.Operands[name], services, dataset.Usage)
		if err != nil {
			return nil, err
		}
		if o.HasAggregation() {
			return nil, errors.Configf("operand %q must designate a single tag group", name)
		}
		if err := o.validateTemplates(in); err != nil {
			return nil, err
		}
		r.operands[name] = o
	}

	for i := range cfg.Results {
		result, err := r.compileResult(&cfg.Results[i], cfg.Operands[OutOperand], services)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeConfig, err, "rule %q result %d", cfg.Name, i)
		}
		result.id = fmt.Sprintf("%s[%d]", OutOperand, i)
		r.results = append(r.results, result)
	}
	return r, nil
}

func (r *Rule) compileResult(cfg *ResultConfig, out *OperandConfig, services types.Services) (*ruleResult, error) {
	operandCfg := cfg.Result
	if operandCfg == nil {
		operandCfg = out
	}
	if operandCfg == nil {
		return nil, errors.Configf("result has no operand and the rule has no %q operand", OutOperand)
	}

	operand, err := newResultOperand(OutOperand, operandCfg, services)
	if err != nil {
		return nil, err
	}
	if err := operand.validateTemplates(r.in); err != nil {
		return nil, err
	}

	result := &ruleResult{out: operand, formulas: make(map[dataset.Kind]string)}
	if cfg.Value != "" {
		result.formulas[operand.Kind()] = cfg.Value
	}
	if cfg.Cost != "" {
		result.formulas[dataset.Cost] = cfg.Cost
	}
	if cfg.Usage != "" {
		result.formulas[dataset.Usage] = cfg.Usage
	}
	if len(result.formulas) == 0 {
		return nil, errors.Config("result has no formula")
	}

	seen := make(map[string]bool)
	probe := make(map[string]float64)
	for _, formula := range result.formulas {
		for _, name := range expression.ReferenceNames(formula) {
			if name != InOperand && r.operands[name] == nil {
				return nil, errors.Configf("formula %q references unknown operand %q", formula, name)
			}
			if !seen[name] {
				seen[name] = true
				result.refs = append(result.refs, name)
			}
			probe[name] = 1
		}
		if _, err := expression.Evaluate(expression.Substitute(formula, probe)); err != nil {
			return nil, err
		}
	}
	sort.Strings(result.refs)
	return result, nil
}

func sortedNames(m map[string]*OperandConfig) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the rule name
func (r *Rule) Name() string { return r.name }

// Start returns the first instant the rule is active
func (r *Rule) Start() time.Time { return r.start }

// End returns the first instant the rule is no longer active
func (r *Rule) End() time.Time { return r.end }

// In returns the input operand
func (r *Rule) In() *InputOperand { return r.in }

// Operand returns the auxiliary operand called name
func (r *Rule) Operand(name string) (*Operand, bool) {
	o, ok := r.operands[name]
	return o, ok
}

// IsActive reports whether t falls in [start, end)
func (r *Rule) IsActive(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.start) && t.Before(r.end)
}
