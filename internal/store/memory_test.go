package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"apache-log-sentinel/internal/model"
)

func testRecord(t *testing.T, host, ts, path string, status int) model.LogRecord {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", ts)
	if err != nil {
		t.Fatalf("bad fixture timestamp %q: %v", ts, err)
	}
	return model.LogRecord{
		RemoteHost:    host,
		Timestamp:     parsed,
		RequestLine:   "GET " + path + " HTTP/1.1",
		Method:        "GET",
		Path:          path,
		Protocol:      "HTTP/1.1",
		StatusCode:    status,
		Hour:          parsed.Hour(),
		Date:          parsed.Format("2006-01-02"),
		FileExtension: model.NoExtension,
	}
}

func seededStore(t *testing.T, records []model.LogRecord) *MemStore {
	t.Helper()
	s := NewMemStore()
	if err := s.Insert(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
	return s
}

// TestSelectProjection reads raw rows with ordering and paging.
func TestSelectProjection(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
		testRecord(t, "10.0.0.2", "2023-10-10 11:00:00", "/b", 404),
		testRecord(t, "10.0.0.3", "2023-10-10 12:00:00", "/c", 500),
	})

	rows, err := s.Select(context.Background(), Query{
		Columns: []string{"remote_host", "path", "status_code"},
		OrderBy: []OrderBy{{Column: "status_code", Desc: true}},
		Limit:   2,
		Offset:  1,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Text("path") != "/b" || rows[1].Text("path") != "/a" {
		t.Errorf("unexpected page: %v then %v", rows[0]["path"], rows[1]["path"])
	}
	t.Log("✓ Projection with order, limit and offset")
}

// TestGroupByAggregates covers count, count_if and count_distinct per group.
func TestGroupByAggregates(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:01:00", "/b", 404),
		testRecord(t, "10.0.0.1", "2023-10-10 10:02:00", "/b", 500),
		testRecord(t, "10.0.0.2", "2023-10-10 10:03:00", "/a", 200),
	})

	rows, err := s.Select(context.Background(), Query{
		GroupBy: []string{"remote_host"},
		Aggregates: []Aggregate{
			{Func: AggCount, As: "frequency"},
			{Func: AggCountIf, Cond: &Predicate{Column: "status_code", Op: OpGte, Value: 400}, As: "errors"},
			{Func: AggCountDistinct, Column: "path", As: "unique_paths"},
		},
		OrderBy: []OrderBy{{Column: "frequency", Desc: true}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(rows))
	}
	top := rows[0]
	if top.Text("remote_host") != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1 first, got %q", top.Text("remote_host"))
	}
	if top.Int("frequency") != 3 || top.Int("errors") != 2 || top.Int("unique_paths") != 2 {
		t.Errorf("unexpected aggregates: freq=%d errors=%d paths=%d",
			top.Int("frequency"), top.Int("errors"), top.Int("unique_paths"))
	}
	t.Log("✓ Grouped aggregates computed")
}

// TestTimeRangeInclusive keeps records exactly on both boundaries.
func TestTimeRangeInclusive(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 09:59:59", "/early", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/start", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 11:00:00", "/mid", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 12:00:00", "/end", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 12:00:01", "/late", 200),
	})

	rows, err := s.Select(context.Background(), Query{
		Columns: []string{"path"},
		Time:    &TimeRange{Start: "2023-10-10 10:00:00", End: "2023-10-10 12:00:00"},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows inside the range, got %d", len(rows))
	}
	if rows[0].Text("path") != "/start" || rows[2].Text("path") != "/end" {
		t.Errorf("boundary records missing: %v", rows)
	}
	t.Log("✓ Time range includes both boundaries")
}

// TestPercentOfTotal computes each group's share of the filtered total.
func TestPercentOfTotal(t *testing.T) {
	records := []model.LogRecord{}
	for i := 0; i < 3; i++ {
		records = append(records, testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200))
	}
	records = append(records, testRecord(t, "10.0.0.2", "2023-10-10 10:00:00", "/b", 200))
	s := seededStore(t, records)

	rows, err := s.Select(context.Background(), Query{
		GroupBy:    []string{"remote_host"},
		Aggregates: []Aggregate{{Func: AggCount, As: "frequency"}},
		Percent:    &Percent{Of: "frequency", As: "percentage"},
		OrderBy:    []OrderBy{{Column: "frequency", Desc: true}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got := rows[0].Float("percentage"); got != 75.0 {
		t.Errorf("expected 75%%, got %v", got)
	}
	if got := rows[1].Float("percentage"); got != 25.0 {
		t.Errorf("expected 25%%, got %v", got)
	}
	t.Log("✓ Percent of grand total")
}

// TestHavingFiltersGroups drops groups below the threshold.
func TestHavingFiltersGroups(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:01:00", "/a", 200),
		testRecord(t, "10.0.0.2", "2023-10-10 10:02:00", "/b", 200),
	})

	rows, err := s.Select(context.Background(), Query{
		GroupBy:    []string{"remote_host"},
		Aggregates: []Aggregate{{Func: AggCount, As: "frequency"}},
		Having:     []Predicate{{Column: "frequency", Op: OpGt, Value: 1}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Text("remote_host") != "10.0.0.1" {
		t.Errorf("expected only the repeated host, got %v", rows)
	}
}

// TestNumericAggregates covers min/max/avg with casts and the null handling
// of count_not_null and avg.
func TestNumericAggregates(t *testing.T) {
	size := func(n int64) *int64 { return &n }
	records := []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:01:00", "/b", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:02:00", "/c", 200),
	}
	records[0].ResponseSize = size(100)
	records[1].ResponseSize = size(300)
	// third record has no response size

	s := seededStore(t, records)
	rows, err := s.Select(context.Background(), Query{
		Aggregates: []Aggregate{
			{Func: AggMin, Column: "response_size", Numeric: true, As: "min_size"},
			{Func: AggMax, Column: "response_size", Numeric: true, As: "max_size"},
			{Func: AggAvg, Column: "response_size", As: "avg_size"},
			{Func: AggCountNotNull, Column: "response_size", As: "present"},
			{Func: AggAvgLength, Column: "path", As: "avg_path_len"},
		},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	row := rows[0]
	if row.Float("min_size") != 100 || row.Float("max_size") != 300 {
		t.Errorf("min/max wrong: %v / %v", row["min_size"], row["max_size"])
	}
	if row.Float("avg_size") != 200 {
		t.Errorf("avg should skip nulls, got %v", row["avg_size"])
	}
	if row.Int("present") != 2 {
		t.Errorf("expected 2 non-null sizes, got %d", row.Int("present"))
	}
	if row.Float("avg_path_len") != 2 {
		t.Errorf("expected avg path length 2, got %v", row["avg_path_len"])
	}
	t.Log("✓ Numeric aggregates with nulls")
}

// TestNumericCastFailure makes a forced numeric cast on text fail the query,
// mirroring the SQL backend.
func TestNumericCastFailure(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
	})

	_, err := s.Select(context.Background(), Query{
		Aggregates: []Aggregate{{Func: AggMax, Column: "path", Numeric: true, As: "max_path"}},
	})
	if err == nil {
		t.Fatal("expected cast failure for non-numeric column")
	}
}

// TestAggregatesWithoutGroups returns exactly one row even on empty input.
func TestAggregatesWithoutGroups(t *testing.T) {
	s := NewMemStore()
	rows, err := s.Select(context.Background(), Query{
		Aggregates: []Aggregate{{Func: AggCount, As: "total"}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Int("total") != 0 {
		t.Errorf("expected single zero-count row, got %v", rows)
	}
}

// TestUnknownColumnRejected guards the schema whitelist.
func TestUnknownColumnRejected(t *testing.T) {
	s := NewMemStore()
	tests := []struct {
		name string
		q    Query
	}{
		{name: "Projection", q: Query{Columns: []string{"nope"}}},
		{name: "GroupBy", q: Query{GroupBy: []string{"nope"}, Aggregates: []Aggregate{{Func: AggCount, As: "n"}}}},
		{name: "Where", q: Query{Where: []Predicate{{Column: "nope", Op: OpEq, Value: 1}}}},
		{name: "Aggregate", q: Query{Aggregates: []Aggregate{{Func: AggMax, Column: "nope", As: "m"}}}},
		{name: "OrderBy", q: Query{OrderBy: []OrderBy{{Column: "nope"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Select(context.Background(), tt.q); !errors.Is(err, ErrUnknownColumn) {
				t.Errorf("expected ErrUnknownColumn, got %v", err)
			}
		})
	}
	t.Log("✓ Unknown columns rejected")
}

// TestNullNeverMatches keeps records with absent values out of predicate hits.
func TestNullNeverMatches(t *testing.T) {
	agent := "curl/8.0"
	records := []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
		testRecord(t, "10.0.0.2", "2023-10-10 10:01:00", "/b", 200),
	}
	records[0].UserAgent = &agent

	s := seededStore(t, records)
	rows, err := s.Select(context.Background(), Query{
		Columns: []string{"remote_host"},
		Where:   []Predicate{{Column: "user_agent", Op: OpNe, Value: "something"}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Text("remote_host") != "10.0.0.1" {
		t.Errorf("null agent should not match: %v", rows)
	}
}

// TestDeleteBefore trims old records and reports the count.
func TestDeleteBefore(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-01 10:00:00", "/old", 200),
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/new", 200),
	})

	cutoff, _ := time.Parse("2006-01-02 15:04:05", "2023-10-05 00:00:00")
	deleted, err := s.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if deleted != 1 || s.Len() != 1 {
		t.Errorf("expected 1 deleted 1 kept, got deleted=%d len=%d", deleted, s.Len())
	}
}

// TestResetClears empties the store for a reload.
func TestResetClears(t *testing.T) {
	s := seededStore(t, []model.LogRecord{
		testRecord(t, "10.0.0.1", "2023-10-10 10:00:00", "/a", 200),
	})
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store after reset, got %d", s.Len())
	}
}
