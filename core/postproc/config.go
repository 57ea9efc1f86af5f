package postproc

import (
	"time"

	"costrules/internal/errors"
)

// Operand names with a fixed role
const (
	InOperand  = "in"
	OutOperand = "out"
)

// monthLayout is the YYYY-MM form of rule start and end
const monthLayout = "2006-01"

// OperandConfig is the declarative form of one operand.
//
// A nil GroupBy retains every fixed dimension and an empty one retains none;
// GroupByTags behaves the same for user tags. Only the "in" operand groups.
type OperandConfig struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	Accounts []string `json:"accounts,omitempty" yaml:"accounts,omitempty"`
	Regions  []string `json:"regions,omitempty" yaml:"regions,omitempty"`
	Zones    []string `json:"zones,omitempty" yaml:"zones,omitempty"`

	Account   string `json:"account,omitempty" yaml:"account,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Zone      string `json:"zone,omitempty" yaml:"zone,omitempty"`
	Product   string `json:"product,omitempty" yaml:"product,omitempty"`
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`
	UsageType string `json:"usageType,omitempty" yaml:"usageType,omitempty"`

	UserTags map[string]string `json:"userTags,omitempty" yaml:"userTags,omitempty"`

	GroupBy     []string `json:"groupBy" yaml:"groupBy"`
	GroupByTags []string `json:"groupByTags" yaml:"groupByTags"`
	Exclude     []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	Monthly bool `json:"monthly,omitempty" yaml:"monthly,omitempty"`
	Single  bool `json:"single,omitempty" yaml:"single,omitempty"`
}

// ResultConfig is one output of a rule. Value is the formula for the result
// operand's own type; Cost and Usage target a channel explicitly. When Result
// is nil the rule's "out" operand is used.
type ResultConfig struct {
	Result *OperandConfig `json:"result,omitempty" yaml:"result,omitempty"`
	Value  string         `json:"value,omitempty" yaml:"value,omitempty"`
	Cost   string         `json:"cost,omitempty" yaml:"cost,omitempty"`
	Usage  string         `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// RuleConfig is the declarative form of one rule
type RuleConfig struct {
	Name     string                    `json:"name" yaml:"name"`
	Start    string                    `json:"start" yaml:"start"`
	End      string                    `json:"end" yaml:"end"`
	Operands map[string]*OperandConfig `json:"operands" yaml:"operands"`
	Results  []ResultConfig            `json:"results" yaml:"results"`
}

// Validate checks the mandatory fields
func (c *RuleConfig) Validate() error {
	switch {
	case c.Name == "":
		return errors.Config("rule has no name")
	case c.Start == "":
		return errors.Configf("rule %q has no start", c.Name)
	case c.End == "":
		return errors.Configf("rule %q has no end", c.Name)
	case c.Operands[InOperand] == nil:
		return errors.Configf("rule %q has no %q operand", c.Name, InOperand)
	case len(c.Results) == 0:
		return errors.Configf("rule %q has no results", c.Name)
	}
	return nil
}

// ParseMonth parses a YYYY-MM month boundary in UTC
func ParseMonth(s string) (time.Time, error) {
	t, err := time.ParseInLocation(monthLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.TypeConfig, err, "invalid month %q (expected YYYY-MM)", s)
	}
	return t, nil
}
