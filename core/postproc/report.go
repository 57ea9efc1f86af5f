package postproc

import (
	"sync"
	"time"
)

// Report summarizes one processing run
type Report struct {
	RunID         string        `json:"runId"`
	Applied       []RuleRun     `json:"applied"`
	Skipped       []RuleSkip    `json:"skipped,omitempty"`
	Failed        []RuleFailure `json:"failed,omitempty"`
	ValuesWritten int           `json:"valuesWritten"`
	Duration      time.Duration `json:"duration"`

	mu sync.Mutex
}

// RuleRun records a rule that ran to completion
type RuleRun struct {
	Name          string `json:"name"`
	ValuesWritten int    `json:"valuesWritten"`
}

// RuleSkip records a rule that was not run
type RuleSkip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RuleFailure records a rule whose configuration or execution failed
type RuleFailure struct {
	Name    string `json:"name"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Skip reasons
const (
	SkipInactive  = "inactive for the dataset period"
	SkipNoProduct = "input operand has no product"
)

// OK reports whether no rule failed
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

func (r *Report) applied(name string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Applied = append(r.Applied, RuleRun{Name: name, ValuesWritten: n})
	r.ValuesWritten += n
}

func (r *Report) skip(name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, RuleSkip{Name: name, Reason: reason})
}

func (r *Report) fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, RuleFailure{Name: name, Message: err.Error(), Err: err})
}
