package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
)

// PostgresStore keeps the record set in the access_logs table and compiles
// queries to SQL. The *sql.DB handle stays owned by the caller.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// insertColumnCount follows the access_logs column list in insertChunk.
const insertColumnCount = 18

// Insert implements Store. Records go in chunked multi-row statements, each
// chunk retried with exponential backoff before the whole load fails.
func (s *PostgresStore) Insert(ctx context.Context, records []model.LogRecord) error {
	for start := 0; start < len(records); start += config.InsertBatchSize {
		end := start + config.InsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.insertChunkWithRetry(ctx, records[start:end]); err != nil {
			return fmt.Errorf("failed to insert records %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *PostgresStore) insertChunkWithRetry(ctx context.Context, records []model.LogRecord) error {
	backoff := config.InsertRetryBaseDelay
	var err error
	for attempt := 1; attempt <= config.InsertMaxAttempts; attempt++ {
		if err = s.insertChunk(ctx, records); err == nil {
			return nil
		}
		if attempt == config.InsertMaxAttempts {
			break
		}
		log.Printf("[Store] Insert attempt %d/%d failed, retrying in %v: %v",
			attempt, config.InsertMaxAttempts, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func (s *PostgresStore) insertChunk(ctx context.Context, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO access_logs (
		remote_host, remote_logname, remote_user, timestamp,
		request_line, method, path, protocol,
		status_code, response_size, referer, user_agent,
		request_time, virtual_host, server_port,
		hour, date, file_extension
	) VALUES `)

	args := make([]interface{}, 0, len(records)*insertColumnCount)
	for i := range records {
		r := &records[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for col := 0; col < insertColumnCount; col++ {
			if col > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", i*insertColumnCount+col+1)
		}
		sb.WriteByte(')')
		args = append(args,
			r.RemoteHost, r.RemoteLogname, r.RemoteUser, r.Timestamp,
			r.RequestLine, r.Method, r.Path, r.Protocol,
			r.StatusCode, r.ResponseSize, r.Referer, r.UserAgent,
			r.RequestTime, r.VirtualHost, r.ServerPort,
			r.Hour, r.Date, r.FileExtension,
		)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert chunk of %d records: %w", len(records), err)
	}
	return nil
}

// Reset implements Store.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE access_logs"); err != nil {
		return fmt.Errorf("failed to truncate access_logs: %w", err)
	}
	return nil
}

// DeleteBefore removes records older than the cutoff and returns how many
// were deleted.
func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM access_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	return deleted, nil
}

// Close implements Store. The database handle is shared with other
// components, so its lifecycle stays with the caller.
func (s *PostgresStore) Close() error {
	return nil
}

// Select implements Store.
func (s *PostgresStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	sqlText, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]interface{}, len(names))
		pointers := make([]interface{}, len(names))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// queryBuilder accumulates the arg list while clauses are assembled, so the
// same condition can be emitted twice (WHERE and the grand-total subquery)
// with fresh placeholders.
type queryBuilder struct {
	args []interface{}
}

func (b *queryBuilder) add(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// predicateExpr renders one predicate. String-typed values compare against
// the column cast to text, so text predicates stay valid on numeric columns
// and match the in-memory comparison rules.
func (b *queryBuilder) predicateExpr(p Predicate) string {
	if p.Op == OpNotNull {
		return fmt.Sprintf("%s IS NOT NULL", p.Column)
	}
	if s, ok := p.Value.(string); ok {
		return fmt.Sprintf("CAST(%s AS TEXT) %s %s", p.Column, p.Op, b.add(s))
	}
	return fmt.Sprintf("%s %s %s", p.Column, p.Op, b.add(p.Value))
}

func (b *queryBuilder) whereClause(q Query) (string, error) {
	conditions := []string{}
	for _, p := range q.Where {
		conditions = append(conditions, b.predicateExpr(p))
	}
	if q.Time != nil {
		if q.Time.Start != "" {
			ts, err := ParseTimeBound(q.Time.Start)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, fmt.Sprintf("timestamp >= %s", b.add(ts)))
		}
		if q.Time.End != "" {
			ts, err := ParseTimeBound(q.Time.End)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, fmt.Sprintf("timestamp <= %s", b.add(ts)))
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), nil
}

func (b *queryBuilder) aggregateExpr(agg Aggregate) string {
	switch agg.Func {
	case AggCount:
		return "COUNT(*)"
	case AggCountIf:
		return fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", b.predicateExpr(*agg.Cond))
	case AggCountNotNull:
		return fmt.Sprintf("COUNT(NULLIF(CAST(%s AS TEXT), ''))", agg.Column)
	case AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT NULLIF(CAST(%s AS TEXT), ''))", agg.Column)
	case AggMin, AggMax:
		fn := "MIN"
		if agg.Func == AggMax {
			fn = "MAX"
		}
		if agg.Numeric {
			return fmt.Sprintf("%s(CAST(NULLIF(CAST(%s AS TEXT), '') AS DOUBLE PRECISION))", fn, agg.Column)
		}
		return fmt.Sprintf("%s(%s)", fn, agg.Column)
	case AggAvg:
		return fmt.Sprintf("AVG(CAST(NULLIF(CAST(%s AS TEXT), '') AS DOUBLE PRECISION))", agg.Column)
	case AggAvgLength:
		return fmt.Sprintf("AVG(LENGTH(CAST(%s AS TEXT)))", agg.Column)
	default:
		return "NULL"
	}
}

func buildSelect(q Query) (string, []interface{}, error) {
	b := &queryBuilder{}

	aggByAlias := make(map[string]Aggregate, len(q.Aggregates))
	for _, agg := range q.Aggregates {
		aggByAlias[agg.As] = agg
	}

	selectParts := []string{}
	grouped := len(q.GroupBy) > 0 || len(q.Aggregates) > 0
	if grouped {
		for _, col := range q.GroupBy {
			selectParts = append(selectParts, col)
		}
	} else {
		columns := q.Columns
		if len(columns) == 0 {
			columns = columnNames
		}
		selectParts = append(selectParts, columns...)
	}
	for _, agg := range q.Aggregates {
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", b.aggregateExpr(agg), agg.As))
	}

	where, err := b.whereClause(q)
	if err != nil {
		return "", nil, err
	}

	if q.Percent != nil {
		// Share of the grand total: the ungrouped row count under the
		// same WHERE conditions.
		subWhere, err := b.whereClause(q)
		if err != nil {
			return "", nil, err
		}
		numerator := b.aggregateExpr(aggByAlias[q.Percent.Of])
		selectParts = append(selectParts, fmt.Sprintf(
			"%s * 100.0 / NULLIF((SELECT COUNT(*) FROM access_logs%s), 0) AS %s",
			numerator, subWhere, q.Percent.As))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectParts, ", "))
	sb.WriteString(" FROM access_logs")
	sb.WriteString(where)

	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(q.GroupBy, ", "))
	}

	if len(q.Having) > 0 {
		parts := make([]string, 0, len(q.Having))
		for _, p := range q.Having {
			// Aliases are not visible in HAVING, so the aggregate
			// expression is repeated.
			expr := b.aggregateExpr(aggByAlias[p.Column])
			parts = append(parts, fmt.Sprintf("%s %s %s", expr, p.Op, b.add(p.Value)))
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, ob := range q.OrderBy {
			direction := "ASC"
			if ob.Desc {
				direction = "DESC"
			}
			parts = append(parts, fmt.Sprintf("%s %s", ob.Column, direction))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}

	return sb.String(), b.args, nil
}

// Health pings the backing database, for readiness reporting.
func (s *PostgresStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.QueryTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		log.Printf("[Store] Database ping failed: %v", err)
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
