// Package dataset holds the hour-indexed (or month-indexed) cost and usage
// maps the rule engine reads and writes.
package dataset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"costrules/core/types"
)

// Kind selects the cost or the usage side of a dataset
type Kind int

const (
	// Cost values are amounts of money
	Cost Kind = iota
	// Usage values are quantities in the usage type's unit
	Usage
)

// String returns the configuration token of the kind
func (k Kind) String() string {
	if k == Usage {
		return "usage"
	}
	return "cost"
}

// ParseKind resolves "cost" or "usage", ignoring case
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cost":
		return Cost, nil
	case "usage":
		return Usage, nil
	}
	return 0, fmt.Errorf("unknown value type %q (expected cost or usage)", s)
}

// Interval is the granularity of one dataset slot
type Interval string

const (
	// Hourly datasets hold one map per hour of the month
	Hourly Interval = "hourly"
	// Monthly datasets hold one map per month
	Monthly Interval = "monthly"
)

// ReadWriteData is a sequence of tag group to value maps, one per interval.
//
// It performs no locking: concurrent readers are fine, writers must be
// serialized by the caller.
type ReadWriteData struct {
	intervals []map[types.TagGroup]float64
}

// NewReadWriteData creates data with n empty intervals
func NewReadWriteData(n int) *ReadWriteData {
	d := &ReadWriteData{intervals: make([]map[types.TagGroup]float64, n)}
	for i := range d.intervals {
		d.intervals[i] = make(map[types.TagGroup]float64)
	}
	return d
}

// Len returns the number of intervals
func (d *ReadWriteData) Len() int {
	return len(d.intervals)
}

// Interval returns the map of interval i. Callers must not modify it.
func (d *ReadWriteData) Interval(i int) map[types.TagGroup]float64 {
	if i < 0 || i >= len(d.intervals) {
		return nil
	}
	return d.intervals[i]
}

// Get returns the value of tg in interval i
func (d *ReadWriteData) Get(i int, tg types.TagGroup) (float64, bool) {
	m := d.Interval(i)
	if m == nil {
		return 0, false
	}
	v, ok := m[tg]
	return v, ok
}

// Put stores v for tg in interval i, overwriting any previous value
func (d *ReadWriteData) Put(i int, tg types.TagGroup, v float64) {
	d.intervals[i][tg] = v
}

// Add accumulates v onto tg in interval i
func (d *ReadWriteData) Add(i int, tg types.TagGroup, v float64) {
	d.intervals[i][tg] += v
}

// Remove deletes tg from interval i
func (d *ReadWriteData) Remove(i int, tg types.TagGroup) {
	delete(d.intervals[i], tg)
}

// Sum returns the total of tg across all intervals
func (d *ReadWriteData) Sum(tg types.TagGroup) float64 {
	var total float64
	for _, m := range d.intervals {
		total += m[tg]
	}
	return total
}

// Total returns the sum of every value in the data
func (d *ReadWriteData) Total() float64 {
	var total float64
	for _, m := range d.intervals {
		for _, v := range m {
			total += v
		}
	}
	return total
}

// TagGroups returns every tag group present in any interval
func (d *ReadWriteData) TagGroups() []types.TagGroup {
	seen := make(map[types.TagGroup]struct{})
	var result []types.TagGroup
	for _, m := range d.intervals {
		for tg := range m {
			if _, ok := seen[tg]; !ok {
				seen[tg] = struct{}{}
				result = append(result, tg)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result
}

// CostAndUsage is the complete dataset of one processing run: cost and usage
// data per product context, plus the non-resource context keyed by
// types.NonResource.
type CostAndUsage struct {
	Start    time.Time
	Interval Interval

	size  int
	cost  map[types.Product]*ReadWriteData
	usage map[types.Product]*ReadWriteData
}

// New creates an empty dataset of size intervals starting at start
func New(start time.Time, interval Interval, size int) *CostAndUsage {
	return &CostAndUsage{
		Start:    start.UTC(),
		Interval: interval,
		size:     size,
		cost:     make(map[types.Product]*ReadWriteData),
		usage:    make(map[types.Product]*ReadWriteData),
	}
}

// HoursInMonth returns the number of hourly intervals of the month containing t
func HoursInMonth(t time.Time) int {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return int(first.AddDate(0, 1, 0).Sub(first).Hours())
}

// Size returns the number of intervals
func (c *CostAndUsage) Size() int {
	return c.size
}

func (c *CostAndUsage) side(kind Kind) map[types.Product]*ReadWriteData {
	if kind == Usage {
		return c.usage
	}
	return c.cost
}

// Get returns the data of kind for product, or nil when the context does not exist
func (c *CostAndUsage) Get(kind Kind, product types.Product) *ReadWriteData {
	return c.side(kind)[product]
}

// GetOrCreate returns the data of kind for product, creating the context on demand
func (c *CostAndUsage) GetOrCreate(kind Kind, product types.Product) *ReadWriteData {
	m := c.side(kind)
	d, ok := m[product]
	if !ok {
		d = NewReadWriteData(c.size)
		m[product] = d
	}
	return d
}

// Products returns the per-product contexts present on either side, sorted by
// service code. The non-resource context is not included.
func (c *CostAndUsage) Products() []types.Product {
	seen := make(map[types.Product]struct{})
	var result []types.Product
	for _, m := range []map[types.Product]*ReadWriteData{c.cost, c.usage} {
		for p := range m {
			if p.IsNonResource() {
				continue
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				result = append(result, p)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ServiceCode < result[j].ServiceCode
	})
	return result
}
