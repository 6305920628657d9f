package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/store"
)

// ProfileService computes per-column metadata for the exploration dashboard.
// A column whose queries fail still gets a placeholder entry so it stays
// visible downstream.
type ProfileService struct {
	store store.Store
}

func NewProfileService(st store.Store) *ProfileService {
	return &ProfileService{store: st}
}

// AnalyzeAllColumns profiles every record column.
func (s *ProfileService) AnalyzeAllColumns(ctx context.Context) map[string]model.ColumnMetadata {
	columns := store.Columns()
	log.Printf("[Profile] Analyzing %d columns", len(columns))

	profiles := make(map[string]model.ColumnMetadata, len(columns))
	for _, column := range columns {
		meta, err := s.analyzeColumn(ctx, column)
		if err != nil {
			log.Printf("[Profile] Column %s failed: %v", column, err)
			profiles[column] = s.placeholderProfile(ctx, column)
			continue
		}
		profiles[column] = meta
	}
	return profiles
}

// AnalyzeColumn profiles a single column. Unknown names are rejected; query
// failures degrade to the placeholder entry the way the full pass does.
func (s *ProfileService) AnalyzeColumn(ctx context.Context, column string) (model.ColumnMetadata, error) {
	if !store.ValidColumn(column) {
		return model.ColumnMetadata{}, fmt.Errorf("unknown column %q", column)
	}
	meta, err := s.analyzeColumn(ctx, column)
	if err != nil {
		log.Printf("[Profile] Column %s failed: %v", column, err)
		return s.placeholderProfile(ctx, column), nil
	}
	return meta, nil
}

func (s *ProfileService) analyzeColumn(ctx context.Context, column string) (model.ColumnMetadata, error) {
	stats, err := s.store.Select(ctx, store.Query{
		Aggregates: []store.Aggregate{
			{Func: store.AggCount, As: "total_count"},
			{Func: store.AggCountNotNull, Column: column, As: "present_count"},
			{Func: store.AggCountDistinct, Column: column, As: "cardinality"},
		},
	})
	if err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("failed to read basic stats: %w", err)
	}
	if len(stats) != 1 {
		return model.ColumnMetadata{}, fmt.Errorf("expected one stats row, got %d", len(stats))
	}
	total := stats[0].Int("total_count")
	nullCount := total - stats[0].Int("present_count")
	cardinality := stats[0].Int("cardinality")

	sampleRows, err := s.store.Select(ctx, store.Query{
		GroupBy:    []string{column},
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Where:      []store.Predicate{{Column: column, Op: store.OpNe, Value: ""}},
		Limit:      config.ProfileSampleLimit,
	})
	if err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("failed to read sample values: %w", err)
	}
	samples := make([]interface{}, 0, len(sampleRows))
	sampleTexts := make([]string, 0, len(sampleRows))
	for _, row := range sampleRows {
		samples = append(samples, row[column])
		sampleTexts = append(sampleTexts, row.Text(column))
	}

	topRows, err := s.store.Select(ctx, store.Query{
		GroupBy:    []string{column},
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Where:      []store.Predicate{{Column: column, Op: store.OpNe, Value: ""}},
		OrderBy:    []store.OrderBy{{Column: "frequency", Desc: true}},
		Limit:      config.ProfileTopValuesLimit,
	})
	if err != nil {
		return model.ColumnMetadata{}, fmt.Errorf("failed to read top values: %w", err)
	}
	mostCommon := make([]model.MostCommonValue, 0, len(topRows))
	for _, row := range topRows {
		frequency := row.Int("frequency")
		entry := model.MostCommonValue{Value: row[column], Frequency: int(frequency)}
		if total > 0 {
			entry.Percentage = float64(frequency) * 100.0 / float64(total)
		}
		mostCommon = append(mostCommon, entry)
	}

	analysisType, minValue, maxValue, avgLength := s.classifyColumn(ctx, column, sampleTexts, cardinality, total)

	return model.ColumnMetadata{
		Name:         column,
		DataType:     inferDataType(sampleTexts),
		Cardinality:  int(cardinality),
		NullCount:    int(nullCount),
		TotalCount:   int(total),
		SampleValues: samples,
		MinValue:     minValue,
		MaxValue:     maxValue,
		AvgLength:    avgLength,
		MostCommon:   mostCommon,
		AnomalyScore: anomalyScore(cardinality, total, nullCount, mostCommon),
		AnalysisType: analysisType,
	}, nil
}

// classifyColumn picks the analysis type and fetches the extra statistics it
// calls for. A failing statistics query falls through to the next candidate
// type instead of failing the column.
func (s *ProfileService) classifyColumn(ctx context.Context, column string, samples []string, cardinality, total int64) (model.AnalysisType, interface{}, interface{}, *float64) {
	if strings.Contains(strings.ToLower(column), "time") {
		rows, err := s.store.Select(ctx, store.Query{
			Aggregates: []store.Aggregate{
				{Func: store.AggMin, Column: column, As: "min_value"},
				{Func: store.AggMax, Column: column, As: "max_value"},
			},
			Where: []store.Predicate{{Column: column, Op: store.OpNotNull}},
		})
		if err == nil && len(rows) == 1 {
			return model.AnalysisTemporal, rows[0]["min_value"], rows[0]["max_value"], nil
		}
	}

	numeric := 0
	for _, sample := range samples {
		if isNumericText(sample) {
			numeric++
		}
	}
	if len(samples) > 0 && float64(numeric) >= float64(len(samples))*config.ProfileNumericRatio {
		rows, err := s.store.Select(ctx, store.Query{
			Aggregates: []store.Aggregate{
				{Func: store.AggMin, Column: column, As: "min_value", Numeric: true},
				{Func: store.AggMax, Column: column, As: "max_value", Numeric: true},
				{Func: store.AggAvgLength, Column: column, As: "avg_length"},
			},
			Where: []store.Predicate{{Column: column, Op: store.OpNe, Value: ""}},
		})
		if err == nil && len(rows) == 1 {
			return model.AnalysisNumerical, rows[0]["min_value"], rows[0]["max_value"], floatField(rows[0], "avg_length")
		}
	}

	if float64(cardinality) > float64(total)*config.ProfileTextCardinality {
		rows, err := s.store.Select(ctx, store.Query{
			Aggregates: []store.Aggregate{{Func: store.AggAvgLength, Column: column, As: "avg_length"}},
			Where:      []store.Predicate{{Column: column, Op: store.OpNe, Value: ""}},
		})
		if err == nil && len(rows) == 1 {
			return model.AnalysisText, nil, nil, floatField(rows[0], "avg_length")
		}
	}

	return model.AnalysisCategorical, nil, nil, nil
}

// placeholderProfile marks a column whose analysis failed while keeping it
// visible to consumers.
func (s *ProfileService) placeholderProfile(ctx context.Context, column string) model.ColumnMetadata {
	total := int64(1)
	rows, err := s.store.Select(ctx, store.Query{
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "total_count"}},
	})
	if err == nil && len(rows) == 1 {
		total = rows[0].Int("total_count")
	}

	return model.ColumnMetadata{
		Name:         column,
		DataType:     model.ColumnTypeUnknown,
		Cardinality:  1,
		NullCount:    0,
		TotalCount:   int(total),
		SampleValues: []interface{}{"(analysis failed)"},
		MostCommon:   []model.MostCommonValue{},
		AnomalyScore: 0.1,
		AnalysisType: model.AnalysisCategorical,
	}
}

// TimeSpan returns the earliest and latest record timestamps, or "Unknown"
// when the store is empty or unreadable.
func (s *ProfileService) TimeSpan(ctx context.Context) model.DatasetTimeRange {
	unknown := model.DatasetTimeRange{Earliest: "Unknown", Latest: "Unknown"}

	rows, err := s.store.Select(ctx, store.Query{
		Aggregates: []store.Aggregate{
			{Func: store.AggMin, Column: "timestamp", As: "earliest"},
			{Func: store.AggMax, Column: "timestamp", As: "latest"},
		},
	})
	if err != nil {
		log.Printf("[Profile] Failed to read time span: %v", err)
		return unknown
	}
	if len(rows) != 1 || rows[0]["earliest"] == nil || rows[0]["latest"] == nil {
		return unknown
	}
	return model.DatasetTimeRange{
		Earliest: rows[0].Text("earliest"),
		Latest:   rows[0].Text("latest"),
	}
}

// AnalyzeColumnGroup returns the joint value-tuple frequencies across the
// named columns, most frequent first.
func (s *ProfileService) AnalyzeColumnGroup(ctx context.Context, columns []string, window *store.TimeRange, limit int) (*model.ColumnGroupAnalysis, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns given")
	}
	if len(columns) > config.ProfileGroupMaxColumns {
		return nil, fmt.Errorf("too many columns: %d exceeds the limit of %d", len(columns), config.ProfileGroupMaxColumns)
	}
	if limit <= 0 {
		limit = config.ProfileGroupLimit
	}

	where := make([]store.Predicate, 0, len(columns))
	for _, column := range columns {
		where = append(where, store.Predicate{Column: column, Op: store.OpNe, Value: ""})
	}

	rows, err := s.store.Select(ctx, store.Query{
		GroupBy:    columns,
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Where:      where,
		Time:       window,
		Percent:    &store.Percent{Of: "frequency", As: "percentage"},
		OrderBy:    []store.OrderBy{{Column: "frequency", Desc: true}},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze column group: %w", err)
	}

	groups := make([]model.ColumnGroupRow, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]interface{}, len(columns))
		for _, column := range columns {
			values[column] = row[column]
		}
		groups = append(groups, model.ColumnGroupRow{
			Values:     values,
			Frequency:  int(row.Int("frequency")),
			Percentage: row.Float("percentage"),
		})
	}

	return &model.ColumnGroupAnalysis{
		Columns:     columns,
		Groups:      groups,
		TotalGroups: len(groups),
	}, nil
}

// inferDataType guesses a semantic type from sample values.
func inferDataType(samples []string) model.ColumnDataType {
	if len(samples) == 0 {
		return model.ColumnTypeUnknown
	}

	allQuads := true
	for _, sample := range samples {
		if !isDottedQuad(sample) {
			allQuads = false
			break
		}
	}
	if allQuads {
		return model.ColumnTypeIPAddress
	}

	for _, sample := range samples {
		if strings.HasPrefix(sample, "http://") || strings.HasPrefix(sample, "https://") || strings.HasPrefix(sample, "/") {
			return model.ColumnTypeURL
		}
	}

	for _, sample := range samples {
		lower := strings.ToLower(sample)
		if strings.Contains(lower, "mozilla") || strings.Contains(lower, "chrome") || strings.Contains(lower, "safari") {
			return model.ColumnTypeUserAgent
		}
	}

	allNumeric := true
	for _, sample := range samples {
		if !isNumericText(sample) {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		return model.ColumnTypeNumeric
	}

	return model.ColumnTypeString
}

// anomalyScore rates how much a column deviates from an unremarkable shape,
// additive and capped at 1.0.
func anomalyScore(cardinality, total, nullCount int64, mostCommon []model.MostCommonValue) float64 {
	score := 0.0
	denom := float64(total)
	if denom < 1 {
		denom = 1
	}

	if float64(cardinality)/denom > 0.5 {
		score += 0.3
	}
	if float64(nullCount)/denom > 0.1 {
		score += 0.2
	}
	if len(mostCommon) > 1 {
		top := mostCommon[0].Percentage
		if top > 80 {
			score += 0.3
		} else if top < 5 && cardinality > 100 {
			score += 0.2
		}
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

func isDottedQuad(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func isNumericText(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func floatField(row store.Row, key string) *float64 {
	if row[key] == nil {
		return nil
	}
	f := row.Float(key)
	return &f
}
