// Package store provides the queryable record store behind the anomaly
// detector, the column profiler and the records API. Two backends implement
// the same contract: an in-memory columnar store and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"apache-log-sentinel/internal/model"
)

// ErrUnknownColumn reports a query referencing a column outside the record
// schema. Column names are interpolated into SQL, so the whitelist is strict.
var ErrUnknownColumn = errors.New("unknown column")

// columnNames is the canonical record schema in display order.
var columnNames = []string{
	"remote_host",
	"remote_logname",
	"remote_user",
	"timestamp",
	"request_line",
	"method",
	"path",
	"protocol",
	"status_code",
	"response_size",
	"referer",
	"user_agent",
	"request_time",
	"virtual_host",
	"server_port",
	"hour",
	"date",
	"file_extension",
}

var columnSet = buildColumnSet()

// identRegex bounds caller-supplied output names, which end up inside SQL.
var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func buildColumnSet() map[string]bool {
	set := make(map[string]bool, len(columnNames))
	for _, name := range columnNames {
		set[name] = true
	}
	return set
}

// Columns returns the queryable column names in canonical order.
func Columns() []string {
	out := make([]string, len(columnNames))
	copy(out, columnNames)
	return out
}

// ValidColumn reports whether name is part of the record schema.
func ValidColumn(name string) bool {
	return columnSet[name]
}

// Op is a predicate operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "!="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpNotNull Op = "IS NOT NULL"
)

// Predicate restricts rows (in Where) or aggregated groups (in Having, where
// Column names an aggregate alias).
type Predicate struct {
	Column string
	Op     Op
	Value  interface{}
}

// TimeRange restricts records to Start <= timestamp <= End. Bounds are
// timestamp strings; either side may be empty for a half-open range.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AggFunc names an aggregate computation.
type AggFunc string

const (
	AggCount         AggFunc = "count"          // rows in group
	AggCountIf       AggFunc = "count_if"       // rows matching Cond
	AggCountNotNull  AggFunc = "count_not_null" // non-null, non-empty values of Column
	AggCountDistinct AggFunc = "count_distinct" // distinct non-null, non-empty values
	AggMin           AggFunc = "min"
	AggMax           AggFunc = "max"
	AggAvg           AggFunc = "avg"
	AggAvgLength     AggFunc = "avg_length" // average text length of non-null values
)

// Aggregate is one aggregate output column. As is the result field name.
// Numeric forces a numeric cast for min/max (avg always casts); a value that
// does not cast makes the query fail, which callers treat per their
// degradation rules.
type Aggregate struct {
	Func    AggFunc
	Column  string
	Cond    *Predicate
	As      string
	Numeric bool
}

// Percent adds a column As computed as the named aggregate's share of the
// grand total: the row count matching Where and Time without grouping,
// multiplied by 100.
type Percent struct {
	Of string
	As string
}

// OrderBy sorts by a selected column or aggregate alias.
type OrderBy struct {
	Column string
	Desc   bool
}

// Query describes one store read. With GroupBy (or any aggregate) set, the
// result is one row per group; otherwise one row per record projecting
// Columns.
type Query struct {
	Columns    []string
	Aggregates []Aggregate
	Where      []Predicate
	Time       *TimeRange
	GroupBy    []string
	Having     []Predicate
	Percent    *Percent
	OrderBy    []OrderBy
	Limit      int
	Offset     int
}

// Store is the queryable record store contract.
type Store interface {
	Insert(ctx context.Context, records []model.LogRecord) error
	Select(ctx context.Context, q Query) ([]Row, error)
	Reset(ctx context.Context) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Row is one result row keyed by column name or aggregate alias. Numeric
// values may arrive as text depending on the backend, so access goes through
// the coercing getters.
type Row map[string]interface{}

// Int coerces the named field to int64, defaulting to 0.
func (r Row) Int(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float coerces the named field to float64, defaulting to 0.
func (r Row) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Text coerces the named field to a string, defaulting to "".
func (r Row) Text(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// timeBoundLayouts are the accepted formats for time-range bounds.
var timeBoundLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseTimeBound parses one time-range bound string.
func ParseTimeBound(value string) (time.Time, error) {
	for _, layout := range timeBoundLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time bound %q", value)
}

// validateQuery rejects unknown columns and malformed aggregates before any
// backend work. This is the single gate in front of SQL identifier
// interpolation.
func validateQuery(q Query) error {
	for _, col := range q.Columns {
		if !ValidColumn(col) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
	}
	for _, col := range q.GroupBy {
		if !ValidColumn(col) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
	}
	aliases := make(map[string]bool)
	for _, agg := range q.Aggregates {
		if !identRegex.MatchString(agg.As) {
			return fmt.Errorf("invalid aggregate output name %q", agg.As)
		}
		aliases[agg.As] = true
		if agg.Column != "" && !ValidColumn(agg.Column) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, agg.Column)
		}
		switch agg.Func {
		case AggCount:
		case AggCountIf:
			if agg.Cond == nil {
				return fmt.Errorf("count_if needs a condition")
			}
			if !ValidColumn(agg.Cond.Column) {
				return fmt.Errorf("%w: %s", ErrUnknownColumn, agg.Cond.Column)
			}
		case AggCountNotNull, AggCountDistinct, AggMin, AggMax, AggAvg, AggAvgLength:
			if agg.Column == "" {
				return fmt.Errorf("%s needs a column", agg.Func)
			}
		default:
			return fmt.Errorf("unknown aggregate function %q", agg.Func)
		}
	}
	for _, p := range q.Where {
		if !ValidColumn(p.Column) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, p.Column)
		}
	}
	for _, p := range q.Having {
		if !aliases[p.Column] {
			return fmt.Errorf("having references unknown aggregate %q", p.Column)
		}
	}
	if q.Percent != nil {
		if !aliases[q.Percent.Of] {
			return fmt.Errorf("percent references unknown aggregate %q", q.Percent.Of)
		}
		if !identRegex.MatchString(q.Percent.As) {
			return fmt.Errorf("invalid percent output name %q", q.Percent.As)
		}
	}
	for _, ob := range q.OrderBy {
		if !ValidColumn(ob.Column) && !aliases[ob.Column] && (q.Percent == nil || ob.Column != q.Percent.As) {
			return fmt.Errorf("%w: order by %s", ErrUnknownColumn, ob.Column)
		}
	}
	return nil
}
