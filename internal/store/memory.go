package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"apache-log-sentinel/internal/model"
)

// columnValue extracts one column from a record. A nil result is a null.
var columnValue = map[string]func(*model.LogRecord) interface{}{
	"remote_host":    func(r *model.LogRecord) interface{} { return r.RemoteHost },
	"remote_logname": func(r *model.LogRecord) interface{} { return optStr(r.RemoteLogname) },
	"remote_user":    func(r *model.LogRecord) interface{} { return optStr(r.RemoteUser) },
	"timestamp":      func(r *model.LogRecord) interface{} { return r.Timestamp },
	"request_line":   func(r *model.LogRecord) interface{} { return r.RequestLine },
	"method":         func(r *model.LogRecord) interface{} { return r.Method },
	"path":           func(r *model.LogRecord) interface{} { return r.Path },
	"protocol":       func(r *model.LogRecord) interface{} { return r.Protocol },
	"status_code":    func(r *model.LogRecord) interface{} { return int64(r.StatusCode) },
	"response_size":  func(r *model.LogRecord) interface{} { return optInt(r.ResponseSize) },
	"referer":        func(r *model.LogRecord) interface{} { return optStr(r.Referer) },
	"user_agent":     func(r *model.LogRecord) interface{} { return optStr(r.UserAgent) },
	"request_time":   func(r *model.LogRecord) interface{} { return optFloat(r.RequestTime) },
	"virtual_host":   func(r *model.LogRecord) interface{} { return optStr(r.VirtualHost) },
	"server_port": func(r *model.LogRecord) interface{} {
		if r.ServerPort == nil {
			return nil
		}
		return int64(*r.ServerPort)
	},
	"hour":           func(r *model.LogRecord) interface{} { return int64(r.Hour) },
	"date":           func(r *model.LogRecord) interface{} { return r.Date },
	"file_extension": func(r *model.LogRecord) interface{} { return r.FileExtension },
}

func optStr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// MemStore keeps the record set in memory. Reads take a shared lock, so
// concurrent detector passes are safe; writes only happen between analysis
// runs.
type MemStore struct {
	mu      sync.RWMutex
	records []model.LogRecord
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

// Insert implements Store.
func (s *MemStore) Insert(ctx context.Context, records []model.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Reset implements Store.
func (s *MemStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// DeleteBefore implements Store.
func (s *MemStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for i := range s.records {
		if !s.records[i].Timestamp.Before(cutoff) {
			kept = append(kept, s.records[i])
		}
	}
	deleted := int64(len(s.records) - len(kept))
	s.records = kept
	return deleted, nil
}

// Close implements Store.
func (s *MemStore) Close() error {
	return nil
}

// Len returns the stored record count.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Select implements Store.
func (s *MemStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.filter(q)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if len(q.GroupBy) == 0 && len(q.Aggregates) == 0 {
		rows = s.project(matched, q.Columns)
	} else {
		rows, err = s.aggregate(matched, q)
		if err != nil {
			return nil, err
		}
	}

	rows = filterHaving(rows, q.Having)
	sortRows(rows, q.OrderBy)
	return sliceRows(rows, q.Offset, q.Limit), nil
}

// filter returns the indices of records matching Where and Time.
func (s *MemStore) filter(q Query) ([]int, error) {
	var start, end *time.Time
	if q.Time != nil {
		if q.Time.Start != "" {
			ts, err := ParseTimeBound(q.Time.Start)
			if err != nil {
				return nil, err
			}
			start = &ts
		}
		if q.Time.End != "" {
			ts, err := ParseTimeBound(q.Time.End)
			if err != nil {
				return nil, err
			}
			end = &ts
		}
	}

	matched := make([]int, 0, len(s.records))
	for i := range s.records {
		record := &s.records[i]
		if start != nil && record.Timestamp.Before(*start) {
			continue
		}
		if end != nil && record.Timestamp.After(*end) {
			continue
		}
		ok := true
		for _, p := range q.Where {
			if !matchRecord(record, p) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, i)
		}
	}
	return matched, nil
}

func (s *MemStore) project(matched []int, columns []string) []Row {
	if len(columns) == 0 {
		columns = columnNames
	}
	rows := make([]Row, 0, len(matched))
	for _, i := range matched {
		record := &s.records[i]
		row := make(Row, len(columns))
		for _, col := range columns {
			row[col] = columnValue[col](record)
		}
		rows = append(rows, row)
	}
	return rows
}

// aggregate groups the matched records and computes each aggregate. Group
// order is first appearance, which keeps results deterministic without an
// ORDER BY.
func (s *MemStore) aggregate(matched []int, q Query) ([]Row, error) {
	groups := make(map[string][]int)
	order := []string{}
	for _, i := range matched {
		record := &s.records[i]
		var sb strings.Builder
		for _, col := range q.GroupBy {
			sb.WriteString(stringValue(columnValue[col](record)))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	if len(q.GroupBy) == 0 {
		// Aggregates without grouping yield a single row, even when
		// nothing matched.
		if len(order) == 0 {
			order = append(order, "")
			groups[""] = nil
		}
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		idx := groups[key]
		row := make(Row)
		if len(idx) > 0 {
			record := &s.records[idx[0]]
			for _, col := range q.GroupBy {
				row[col] = columnValue[col](record)
			}
		}
		for _, agg := range q.Aggregates {
			value, err := s.computeAggregate(idx, agg)
			if err != nil {
				return nil, err
			}
			row[agg.As] = value
		}
		if q.Percent != nil {
			total := len(matched)
			if total > 0 {
				row[q.Percent.As] = row.Float(q.Percent.Of) / float64(total) * 100.0
			} else {
				row[q.Percent.As] = 0.0
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *MemStore) computeAggregate(idx []int, agg Aggregate) (interface{}, error) {
	switch agg.Func {
	case AggCount:
		return int64(len(idx)), nil

	case AggCountIf:
		var n int64
		for _, i := range idx {
			if matchRecord(&s.records[i], *agg.Cond) {
				n++
			}
		}
		return n, nil

	case AggCountNotNull:
		var n int64
		for _, i := range idx {
			if v := columnValue[agg.Column](&s.records[i]); v != nil && stringValue(v) != "" {
				n++
			}
		}
		return n, nil

	case AggCountDistinct:
		seen := make(map[string]struct{})
		for _, i := range idx {
			if v := columnValue[agg.Column](&s.records[i]); v != nil && stringValue(v) != "" {
				seen[stringValue(v)] = struct{}{}
			}
		}
		return int64(len(seen)), nil

	case AggMin, AggMax:
		if agg.Numeric {
			return s.numericExtreme(idx, agg)
		}
		var best interface{}
		for _, i := range idx {
			v := columnValue[agg.Column](&s.records[i])
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp := compareValues(v, best)
			if (agg.Func == AggMin && cmp < 0) || (agg.Func == AggMax && cmp > 0) {
				best = v
			}
		}
		return best, nil

	case AggAvg:
		var sum float64
		var n int64
		for _, i := range idx {
			v := columnValue[agg.Column](&s.records[i])
			if v == nil || stringValue(v) == "" {
				continue
			}
			f, err := numericValue(v)
			if err != nil {
				return nil, fmt.Errorf("failed to cast %s value: %w", agg.Column, err)
			}
			sum += f
			n++
		}
		if n == 0 {
			return nil, nil
		}
		return sum / float64(n), nil

	case AggAvgLength:
		var sum int64
		var n int64
		for _, i := range idx {
			v := columnValue[agg.Column](&s.records[i])
			if v == nil {
				continue
			}
			sum += int64(len(stringValue(v)))
			n++
		}
		if n == 0 {
			return nil, nil
		}
		return float64(sum) / float64(n), nil

	default:
		return nil, fmt.Errorf("unknown aggregate function %q", agg.Func)
	}
}

func (s *MemStore) numericExtreme(idx []int, agg Aggregate) (interface{}, error) {
	var best *float64
	for _, i := range idx {
		v := columnValue[agg.Column](&s.records[i])
		if v == nil || stringValue(v) == "" {
			continue
		}
		f, err := numericValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to cast %s value: %w", agg.Column, err)
		}
		if best == nil {
			val := f
			best = &val
			continue
		}
		if (agg.Func == AggMin && f < *best) || (agg.Func == AggMax && f > *best) {
			*best = f
		}
	}
	if best == nil {
		return nil, nil
	}
	return *best, nil
}

// matchRecord evaluates one predicate against a record. Null never matches.
func matchRecord(record *model.LogRecord, p Predicate) bool {
	value := columnValue[p.Column](record)
	if value == nil {
		return false
	}
	return matchValue(value, p)
}

func matchValue(value interface{}, p Predicate) bool {
	if p.Op == OpNotNull {
		return value != nil
	}
	if value == nil {
		return false
	}
	cmp := compareValues(value, p.Value)
	switch p.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

func filterHaving(rows []Row, having []Predicate) []Row {
	if len(having) == 0 {
		return rows
	}
	out := rows[:0]
	for _, row := range rows {
		ok := true
		for _, p := range having {
			if !matchValue(row[p.Column], p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func sortRows(rows []Row, orderBy []OrderBy) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for _, ob := range orderBy {
			cmp := compareValues(rows[a][ob.Column], rows[b][ob.Column])
			if cmp == 0 {
				continue
			}
			if ob.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func sliceRows(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return []Row{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// compareValues orders two values, coercing numerics and timestamps before
// falling back to string comparison. Nulls sort first.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if ta, ok := a.(time.Time); ok {
		tb, err := coerceTime(b)
		if err == nil {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}

	fa, errA := numericValue(a)
	fb, errB := numericValue(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(stringValue(a), stringValue(b))
}

func coerceTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return ParseTimeBound(t)
	default:
		return time.Time{}, fmt.Errorf("not a timestamp: %v", v)
	}
}

func numericValue(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format("2006-01-02 15:04:05")
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}
