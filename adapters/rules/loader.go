// Package rules loads post-processing rule configurations from HCL, YAML and
// JSON files.
//
// YAML and JSON files hold a top-level "rules" list using the field names of
// postproc.RuleConfig. HCL files declare one block per rule:
//
//	rule "requests" {
//	  start = "2020-01"
//	  end   = "2020-02"
//
//	  operand "in" {
//	    product    = "ProductX"
//	    usage_type = "(..)-Requests-.*"
//	  }
//	  operand "out" {
//	    type       = "cost"
//	    usage_type = "$${group}-Requests"
//	  }
//
//	  result {
//	    value = "$${in} * 0.01"
//	  }
//	}
//
// HCL reserves ${...} for templates, so placeholders are written $${...}.
package rules

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"costrules/core/postproc"
	"costrules/internal/errors"
)

// ruleFile is the YAML and JSON document layout
type ruleFile struct {
	Rules []*postproc.RuleConfig `json:"rules" yaml:"rules"`
}

// LoadFiles loads every file in order and concatenates their rules
func LoadFiles(paths ...string) ([]*postproc.RuleConfig, error) {
	var configs []*postproc.RuleConfig
	for _, path := range paths {
		rules, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		configs = append(configs, rules...)
	}
	return configs, nil
}

// LoadFile loads the rules of one file, choosing the format by extension
func LoadFile(path string) ([]*postproc.RuleConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeNotFound, err, "read rule file %s", path)
	}
	return Parse(path, src)
}

// Parse decodes src; filename selects the format and labels diagnostics
func Parse(filename string, src []byte) ([]*postproc.RuleConfig, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		return parseHCL(filename, src)
	case ".yaml", ".yml":
		var f ruleFile
		if err := yaml.Unmarshal(src, &f); err != nil {
			return nil, errors.Parsing("decode "+filename, err)
		}
		return f.Rules, nil
	case ".json":
		var f ruleFile
		if err := json.Unmarshal(src, &f); err != nil {
			return nil, errors.Parsing("decode "+filename, err)
		}
		return f.Rules, nil
	}
	return nil, errors.Newf(errors.TypeParsing, "unsupported rule file %s (expected .hcl, .yaml, .yml or .json)", filename)
}
