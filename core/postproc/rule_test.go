package postproc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrules/internal/errors"
)

// requestsRule is the data transfer conversion rule used across the tests
func requestsRule(name string) *RuleConfig {
	return &RuleConfig{
		Name:  name,
		Start: "2020-01",
		End:   "2020-02",
		Operands: map[string]*OperandConfig{
			"in":   {Product: "ProductX", UsageType: "(..)-Requests-.*"},
			"data": {UsageType: "${group}-DataTransfer-Out-Bytes"},
			"out":  {Type: "cost", UsageType: "${group}-Requests"},
		},
		Results: []ResultConfig{
			{Value: "(${in} - (${data} * 4 * 8 / 2)) * 0.01 / 1000"},
		},
	}
}

func TestNewRule(t *testing.T) {
	rule, err := NewRule(requestsRule("requests"), newTestServices())
	require.NoError(t, err)

	assert.Equal(t, "requests", rule.Name())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), rule.Start())
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), rule.End())
	require.Len(t, rule.results, 1)
	assert.Equal(t, []string{"data", "in"}, rule.results[0].refs)

	_, ok := rule.Operand("data")
	assert.True(t, ok)
	_, ok = rule.Operand("out")
	assert.False(t, ok, "out is a result, not an auxiliary operand")
}

func TestRuleIsActive(t *testing.T) {
	rule, err := NewRule(requestsRule("requests"), newTestServices())
	require.NoError(t, err)

	assert.True(t, rule.IsActive(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rule.IsActive(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, rule.IsActive(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, rule.IsActive(time.Date(2019, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestNewRuleConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RuleConfig)
	}{
		{"missing name", func(c *RuleConfig) { c.Name = "" }},
		{"missing start", func(c *RuleConfig) { c.Start = "" }},
		{"missing end", func(c *RuleConfig) { c.End = "" }},
		{"missing in", func(c *RuleConfig) { delete(c.Operands, "in") }},
		{"no results", func(c *RuleConfig) { c.Results = nil }},
		{"bad month", func(c *RuleConfig) { c.Start = "2020-13" }},
		{"end before start", func(c *RuleConfig) { c.End = "2019-06" }},
		{"no formula", func(c *RuleConfig) { c.Results = []ResultConfig{{}} }},
		{"unknown placeholder", func(c *RuleConfig) { c.Results[0].Value = "${in} * ${rate}" }},
		{"unbalanced formula", func(c *RuleConfig) { c.Results[0].Value = "(${in} + 1" }},
		{"no out operand", func(c *RuleConfig) { delete(c.Operands, "out") }},
		{"aggregating result", func(c *RuleConfig) {
			c.Results[0].Result = &OperandConfig{Accounts: []string{"Account1", "Account2"}}
		}},
		{"aggregating auxiliary operand", func(c *RuleConfig) {
			c.Operands["data"].Regions = []string{"us-east-1", "us-west-2"}
		}},
		{"template without group", func(c *RuleConfig) {
			c.Operands["in"] = &OperandConfig{Product: "ProductX", GroupBy: []string{"Product"}}
		}},
		{"single template", func(c *RuleConfig) { c.Operands["data"].Single = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := requestsRule("requests")
			tt.mutate(cfg)
			_, err := NewRule(cfg, newTestServices())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeConfig), "got %v", err)
		})
	}
}

func TestNewRuleChannels(t *testing.T) {
	cfg := requestsRule("channels")
	cfg.Results = []ResultConfig{
		{Result: &OperandConfig{Type: "usage", UsageType: "${group}-Total"}, Value: "${in}"},
		{Cost: "${in} * 0.5", Usage: "${in}"},
	}

	rule, err := NewRule(cfg, newTestServices())
	require.NoError(t, err)
	require.Len(t, rule.results, 2)

	assert.Len(t, rule.results[0].formulas, 1)
	assert.Equal(t, "out[1]", rule.results[1].id)
	assert.Len(t, rule.results[1].formulas, 2)
}
