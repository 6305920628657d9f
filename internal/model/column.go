package model

type ColumnDataType string

const (
	ColumnTypeIPAddress ColumnDataType = "ip_address"
	ColumnTypeURL       ColumnDataType = "url"
	ColumnTypeUserAgent ColumnDataType = "user_agent"
	ColumnTypeNumeric   ColumnDataType = "numeric"
	ColumnTypeString    ColumnDataType = "string"
	ColumnTypeUnknown   ColumnDataType = "unknown"
)

type AnalysisType string

const (
	AnalysisCategorical AnalysisType = "categorical"
	AnalysisNumerical   AnalysisType = "numerical"
	AnalysisTemporal    AnalysisType = "temporal"
	AnalysisText        AnalysisType = "text"
)

// MostCommonValue is one entry of a column's top-values list.
type MostCommonValue struct {
	Value      interface{} `json:"value"`
	Frequency  int         `json:"frequency"`
	Percentage float64     `json:"percentage"`
}

// ColumnMetadata is the descriptive profile of one record-set column.
type ColumnMetadata struct {
	Name         string            `json:"name"`
	DataType     ColumnDataType    `json:"data_type"`
	Cardinality  int               `json:"cardinality"`
	NullCount    int               `json:"null_count"`
	TotalCount   int               `json:"total_count"`
	SampleValues []interface{}     `json:"sample_values"`
	MinValue     interface{}       `json:"min_value,omitempty"`
	MaxValue     interface{}       `json:"max_value,omitempty"`
	AvgLength    *float64          `json:"avg_length,omitempty"`
	MostCommon   []MostCommonValue `json:"most_common"`
	AnomalyScore float64           `json:"anomaly_score"`
	AnalysisType AnalysisType      `json:"analysis_type"`
}

// ColumnGroupRow is one row of a joint drill-down across several columns.
type ColumnGroupRow struct {
	Values     map[string]interface{} `json:"values"`
	Frequency  int                    `json:"frequency"`
	Percentage float64                `json:"percentage"`
}

// ColumnGroupAnalysis is the result of a joint drill-down, most frequent
// value-tuple first.
type ColumnGroupAnalysis struct {
	Columns     []string         `json:"columns"`
	Groups      []ColumnGroupRow `json:"groups"`
	TotalGroups int              `json:"total_groups"`
}

// DatasetTimeRange is the observed timestamp span of the record set.
type DatasetTimeRange struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}
