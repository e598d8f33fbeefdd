// Package query implements the restricted aggregation pipeline over a
// Dataset: filter, group + aggregate, sort, limit.
//
// The executor never returns raw rows: a plan must carry a grouping column
// and an aggregation kind, and its output is one row per group. Full-row
// access goes through the accessor's read operations instead.
package query

import (
	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/taberr"
)

// DefaultLimit caps result groups when the caller does not set a limit.
const DefaultLimit = 100

// Op is a filter comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpLt       Op = "<"
	OpGe       Op = ">="
	OpLe       Op = "<="
	OpContains Op = "contains"
)

// Filter is one (column, operator, value) clause. Clauses naming unknown
// columns are no-ops, tolerating speculative filter lists from callers.
type Filter struct {
	Column string
	Op     Op
	Value  dataset.Value
}

// Agg is an aggregation kind from the closed set.
type Agg string

const (
	AggSum     Agg = "sum"
	AggAvg     Agg = "avg"
	AggCount   Agg = "count"
	AggMin     Agg = "min"
	AggMax     Agg = "max"
	AggMedian  Agg = "median"
	AggStd     Agg = "std"
	AggVar     Agg = "var"
	AggFirst   Agg = "first"
	AggLast    Agg = "last"
	AggNunique Agg = "nunique"
)

// Plan is the transient specification for one query call.
type Plan struct {
	Filters   []Filter
	GroupBy   string
	Agg       Agg
	AggColumn string
	OrderBy   string
	Desc      bool
	Limit     int
}

// validOps is the closed operator set.
var validOps = map[Op]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpLt: {}, OpGe: {}, OpLe: {}, OpContains: {},
}

// reducers maps each aggregation kind to its reduction over the group's
// aggregate-column values. count and nunique are handled separately since
// they operate on the group itself.
var reducers = map[Agg]func(vals []dataset.Value) dataset.Value{
	AggSum:    reduceSum,
	AggAvg:    reduceAvg,
	AggMin:    reduceMin,
	AggMax:    reduceMax,
	AggMedian: reduceMedian,
	AggStd:    reduceStd,
	AggVar:    reduceVar,
	AggFirst:  reduceFirst,
	AggLast:   reduceLast,
}

// Validate checks the plan at construction time: unknown aggregation kinds
// and malformed filters fail here, not during execution. It also applies
// the default limit.
func (p *Plan) Validate() error {
	if p.GroupBy == "" || p.Agg == "" {
		return taberr.New(taberr.AggregationError,
			"query requires group_by and aggregation; use read, read_head, or read_tail for raw rows")
	}
	if _, ok := reducers[p.Agg]; !ok && p.Agg != AggCount && p.Agg != AggNunique {
		return taberr.New(taberr.AggregationError, "unknown aggregation %q", p.Agg)
	}
	if p.Agg != AggCount && p.Agg != AggNunique && p.AggColumn == "" {
		return taberr.New(taberr.AggregationError,
			"aggregation %q requires aggregate_column", p.Agg)
	}
	for _, f := range p.Filters {
		if f.Column == "" {
			return taberr.New(taberr.FilterError, "filter is missing a column")
		}
		op := f.Op
		if op == "" {
			op = OpEq
		}
		if _, ok := validOps[op]; !ok {
			return taberr.New(taberr.FilterError, "unknown filter operator %q", f.Op)
		}
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return nil
}

// outputColumn names the aggregate column of the result, mirroring the
// input: the aggregate column when one is given, the aggregation name
// otherwise.
func (p *Plan) outputColumn() string {
	if p.AggColumn != "" {
		return p.AggColumn
	}
	return string(p.Agg)
}
