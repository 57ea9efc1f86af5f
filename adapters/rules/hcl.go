package rules

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"costrules/core/postproc"
	"costrules/internal/errors"
)

type hclFile struct {
	Rules []hclRule `hcl:"rule,block"`
}

type hclRule struct {
	Name     string       `hcl:"name,label"`
	Start    string       `hcl:"start"`
	End      string       `hcl:"end"`
	Operands []hclOperand `hcl:"operand,block"`
	Results  []hclResult  `hcl:"result,block"`
}

type hclOperand struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclResult struct {
	Value   string           `hcl:"value,optional"`
	Cost    string           `hcl:"cost,optional"`
	Usage   string           `hcl:"usage,optional"`
	Operand *hclInlineResult `hcl:"operand,block"`
}

type hclInlineResult struct {
	Body hcl.Body `hcl:",remain"`
}

// hclOperandBody mirrors postproc.OperandConfig. The grouping attributes are
// kept as expressions so an omitted list can be told apart from an empty one.
type hclOperandBody struct {
	Type string `hcl:"type,optional"`

	Accounts []string `hcl:"accounts,optional"`
	Regions  []string `hcl:"regions,optional"`
	Zones    []string `hcl:"zones,optional"`

	Account   string `hcl:"account,optional"`
	Region    string `hcl:"region,optional"`
	Zone      string `hcl:"zone,optional"`
	Product   string `hcl:"product,optional"`
	Operation string `hcl:"operation,optional"`
	UsageType string `hcl:"usage_type,optional"`

	UserTags map[string]string `hcl:"user_tags,optional"`

	GroupBy     hcl.Expression `hcl:"group_by,optional"`
	GroupByTags hcl.Expression `hcl:"group_by_tags,optional"`
	Exclude     []string       `hcl:"exclude,optional"`

	Monthly bool `hcl:"monthly,optional"`
	Single  bool `hcl:"single,optional"`
}

func parseHCL(filename string, src []byte) ([]*postproc.RuleConfig, error) {
	var f hclFile
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return nil, errors.Parsing("decode "+filename, err)
	}

	configs := make([]*postproc.RuleConfig, 0, len(f.Rules))
	for _, r := range f.Rules {
		cfg := &postproc.RuleConfig{
			Name:     r.Name,
			Start:    r.Start,
			End:      r.End,
			Operands: make(map[string]*postproc.OperandConfig, len(r.Operands)),
		}

		for _, o := range r.Operands {
			if _, dup := cfg.Operands[o.Name]; dup {
				return nil, errors.Newf(errors.TypeParsing, "%s: rule %q declares operand %q twice", filename, r.Name, o.Name)
			}
			operand, err := decodeOperand(o.Body)
			if err != nil {
				return nil, errors.Parsing(filename+": rule "+r.Name+" operand "+o.Name, err)
			}
			cfg.Operands[o.Name] = operand
		}

		for _, res := range r.Results {
			result := postproc.ResultConfig{Value: res.Value, Cost: res.Cost, Usage: res.Usage}
			if res.Operand != nil {
				operand, err := decodeOperand(res.Operand.Body)
				if err != nil {
					return nil, errors.Parsing(filename+": rule "+r.Name+" result operand", err)
				}
				result.Result = operand
			}
			cfg.Results = append(cfg.Results, result)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func decodeOperand(body hcl.Body) (*postproc.OperandConfig, error) {
	var b hclOperandBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, diags
	}

	groupBy, err := decodeList(b.GroupBy)
	if err != nil {
		return nil, err
	}
	groupByTags, err := decodeList(b.GroupByTags)
	if err != nil {
		return nil, err
	}

	return &postproc.OperandConfig{
		Type:        b.Type,
		Accounts:    b.Accounts,
		Regions:     b.Regions,
		Zones:       b.Zones,
		Account:     b.Account,
		Region:      b.Region,
		Zone:        b.Zone,
		Product:     b.Product,
		Operation:   b.Operation,
		UsageType:   b.UsageType,
		UserTags:    b.UserTags,
		GroupBy:     groupBy,
		GroupByTags: groupByTags,
		Exclude:     b.Exclude,
		Monthly:     b.Monthly,
		Single:      b.Single,
	}, nil
}

// decodeList returns nil for an omitted attribute and a non-nil slice otherwise
func decodeList(expr hcl.Expression) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}

	var list []string
	if diags := gohcl.DecodeExpression(expr, nil, &list); diags.HasErrors() {
		return nil, diags
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}
