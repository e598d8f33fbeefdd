// Stateless filter -> group+aggregate -> sort -> limit pipeline.

package query

import (
	"math"
	"sort"
	"strings"

	"github.com/tabserve/tabserve/internal/dataset"
	"github.com/tabserve/tabserve/internal/taberr"
)

// Result is the reduced output of one query. When the output has exactly
// two columns (the usual group/value shape) Labels and Values carry the
// compact paired-arrays form alongside the row matrix.
type Result struct {
	Columns []string
	Rows    [][]dataset.Value
	Labels  []dataset.Value
	Values  []dataset.Value
}

// Execute runs the plan over the dataset. The plan must have passed
// Validate; Execute revalidates to protect the no-raw-rows contract.
func Execute(ds *dataset.Dataset, p *Plan) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// Unknown-column tolerance covers filter clauses only. The grouping and
	// aggregate columns must exist, otherwise a typo would be
	// indistinguishable from genuinely empty data.
	if ds.ColumnIndex(p.GroupBy) < 0 {
		return nil, taberr.New(taberr.ColumnNotFound, "column %q not found", p.GroupBy)
	}
	aggIdx := -1
	if p.AggColumn != "" {
		if aggIdx = ds.ColumnIndex(p.AggColumn); aggIdx < 0 {
			return nil, taberr.New(taberr.ColumnNotFound, "column %q not found", p.AggColumn)
		}
	}

	rows := applyFilters(ds, p.Filters)

	groups, order := groupRows(ds, rows, p.GroupBy)
	out := make([][]dataset.Value, 0, len(order))
	for _, key := range order {
		g := groups[key]
		out = append(out, []dataset.Value{g.label, aggregate(p, ds, g.rows, aggIdx)})
	}

	columns := []string{p.GroupBy, p.outputColumn()}
	res := &Result{Columns: columns, Rows: out}

	if i := indexOf(columns, p.OrderBy); i >= 0 {
		sort.SliceStable(res.Rows, func(a, b int) bool {
			c := dataset.Compare(res.Rows[a][i], res.Rows[b][i])
			if p.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if len(res.Rows) > p.Limit {
		res.Rows = res.Rows[:p.Limit]
	}

	// Compact paired form for the standard two-column shape.
	res.Labels = make([]dataset.Value, len(res.Rows))
	res.Values = make([]dataset.Value, len(res.Rows))
	for i, row := range res.Rows {
		res.Labels[i] = row[0]
		res.Values[i] = row[1]
	}
	return res, nil
}

type group struct {
	label dataset.Value
	rows  [][]dataset.Value
}

// groupRows buckets rows by the grouping column, preserving first-seen
// group order. Execute has already verified the column exists.
func groupRows(ds *dataset.Dataset, rows [][]dataset.Value, groupBy string) (map[string]*group, []string) {
	gi := ds.ColumnIndex(groupBy)
	groups := map[string]*group{}
	var order []string
	if gi < 0 {
		return groups, order
	}
	for _, row := range rows {
		key := row[gi].String()
		g, ok := groups[key]
		if !ok {
			g = &group{label: row[gi]}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}
	return groups, order
}

func aggregate(p *Plan, ds *dataset.Dataset, rows [][]dataset.Value, aggIdx int) dataset.Value {
	switch p.Agg {
	case AggCount:
		return dataset.IntValue(int64(len(rows)))
	case AggNunique:
		return dataset.IntValue(int64(countDistinct(rows, aggIdx)))
	}
	vals := make([]dataset.Value, 0, len(rows))
	for _, row := range rows {
		if aggIdx >= 0 && aggIdx < len(row) {
			vals = append(vals, row[aggIdx])
		}
	}
	return reducers[p.Agg](vals)
}

// countDistinct counts distinct aggregate-column values in the group, or
// distinct whole rows when no aggregate column was given.
func countDistinct(rows [][]dataset.Value, aggIdx int) int {
	seen := map[string]struct{}{}
	for _, row := range rows {
		var key string
		if aggIdx >= 0 && aggIdx < len(row) {
			if row[aggIdx].IsNull() {
				continue
			}
			key = row[aggIdx].String()
		} else {
			parts := make([]string, len(row))
			for i, v := range row {
				parts[i] = v.String()
			}
			key = strings.Join(parts, "\x1f")
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func applyFilters(ds *dataset.Dataset, filters []Filter) [][]dataset.Value {
	rows := ds.Rows
	for _, f := range filters {
		ci := ds.ColumnIndex(f.Column)
		if ci < 0 {
			continue // unknown column: clause is a no-op
		}
		op := f.Op
		if op == "" {
			op = OpEq
		}
		kept := rows[:0:0]
		for _, row := range rows {
			if matches(row[ci], op, f.Value) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}
	return rows
}

func matches(cell dataset.Value, op Op, want dataset.Value) bool {
	if op == OpContains {
		return strings.Contains(cell.String(), want.String())
	}
	// Null cells never satisfy ordered comparisons, only explicit (in)equality.
	if cell.IsNull() && op != OpEq && op != OpNe {
		return false
	}
	c := dataset.Compare(cell, want)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	case OpGe:
		return c >= 0
	case OpLe:
		return c <= 0
	default:
		return false
	}
}

// numeric extracts the float values of the group, skipping nulls and
// non-numeric cells the way the aggregations of the source system do.
func numeric(vals []dataset.Value) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.Float(); ok {
			out = append(out, f)
		}
	}
	return out
}

func reduceSum(vals []dataset.Value) dataset.Value {
	nums := numeric(vals)
	if len(nums) == 0 {
		return dataset.NullValue()
	}
	var sum float64
	for _, f := range nums {
		sum += f
	}
	return floatOrInt(sum, allInt(vals))
}

func reduceAvg(vals []dataset.Value) dataset.Value {
	nums := numeric(vals)
	if len(nums) == 0 {
		return dataset.NullValue()
	}
	var sum float64
	for _, f := range nums {
		sum += f
	}
	return dataset.FloatValue(sum / float64(len(nums)))
}

func reduceMin(vals []dataset.Value) dataset.Value {
	return extremum(vals, func(c int) bool { return c < 0 })
}

func reduceMax(vals []dataset.Value) dataset.Value {
	return extremum(vals, func(c int) bool { return c > 0 })
}

// extremum works on the total value order, so min/max also apply to
// strings and timestamps.
func extremum(vals []dataset.Value, better func(int) bool) dataset.Value {
	best := dataset.NullValue()
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if best.IsNull() || better(dataset.Compare(v, best)) {
			best = v
		}
	}
	return best
}

func reduceMedian(vals []dataset.Value) dataset.Value {
	nums := numeric(vals)
	if len(nums) == 0 {
		return dataset.NullValue()
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return dataset.FloatValue(nums[mid])
	}
	return dataset.FloatValue((nums[mid-1] + nums[mid]) / 2)
}

// variance returns the sample variance (n-1 denominator).
func variance(nums []float64) (float64, bool) {
	if len(nums) < 2 {
		return 0, false
	}
	var sum float64
	for _, f := range nums {
		sum += f
	}
	mean := sum / float64(len(nums))
	var sq float64
	for _, f := range nums {
		d := f - mean
		sq += d * d
	}
	return sq / float64(len(nums)-1), true
}

func reduceVar(vals []dataset.Value) dataset.Value {
	v, ok := variance(numeric(vals))
	if !ok {
		return dataset.NullValue()
	}
	return dataset.FloatValue(v)
}

func reduceStd(vals []dataset.Value) dataset.Value {
	v, ok := variance(numeric(vals))
	if !ok {
		return dataset.NullValue()
	}
	return dataset.FloatValue(math.Sqrt(v))
}

func reduceFirst(vals []dataset.Value) dataset.Value {
	for _, v := range vals {
		if !v.IsNull() {
			return v
		}
	}
	return dataset.NullValue()
}

func reduceLast(vals []dataset.Value) dataset.Value {
	for i := len(vals) - 1; i >= 0; i-- {
		if !vals[i].IsNull() {
			return vals[i]
		}
	}
	return dataset.NullValue()
}

// floatOrInt narrows a whole-valued sum back to an integer when every
// input was an integer.
func floatOrInt(f float64, wasInt bool) dataset.Value {
	if wasInt && f == math.Trunc(f) {
		return dataset.IntValue(int64(f))
	}
	return dataset.FloatValue(f)
}

func allInt(vals []dataset.Value) bool {
	any := false
	for _, v := range vals {
		switch v.Kind() {
		case dataset.KindInt:
			any = true
		case dataset.KindNull:
		default:
			return false
		}
	}
	return any
}

func indexOf(ss []string, s string) int {
	if s == "" {
		return -1
	}
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
