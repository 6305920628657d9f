package model

import (
	"time"
)

// Details carries rule-specific diagnostic values. Values are limited to
// strings, integers, floats and booleans so findings stay flat under JSON.
type Details map[string]interface{}

// AbusePattern is one scored finding from the record-set rules.
type AbusePattern struct {
	ID           string      `json:"id"`
	PatternType  PatternType `json:"pattern_type"`
	Severity     Severity    `json:"severity"`
	Description  string      `json:"description"`
	AffectedIPs  []string    `json:"affected_ips"`
	RequestCount int         `json:"request_count"`
	Confidence   float64     `json:"confidence"`
	Details      Details     `json:"details"`
}

// AbuseReport groups the findings of one full pass by rule.
type AbuseReport struct {
	BruteForce  []AbusePattern `json:"brute_force"`
	DDoS        []AbusePattern `json:"ddos"`
	Scanning    []AbusePattern `json:"scanning"`
	BotBehavior []AbusePattern `json:"bot_behavior"`
}

// All flattens the report in rule order.
func (r *AbuseReport) All() []AbusePattern {
	out := make([]AbusePattern, 0, len(r.BruteForce)+len(r.DDoS)+len(r.Scanning)+len(r.BotBehavior))
	out = append(out, r.BruteForce...)
	out = append(out, r.DDoS...)
	out = append(out, r.Scanning...)
	out = append(out, r.BotBehavior...)
	return out
}

// AnomalyAlert is one scored finding from the store-driven rules.
type AnomalyAlert struct {
	ID              string      `json:"id"`
	AlertType       AlertType   `json:"alert_type"`
	Severity        Severity    `json:"severity"`
	Column          string      `json:"column"`
	Description     string      `json:"description"`
	Value           interface{} `json:"value"`
	Frequency       int         `json:"frequency"`
	Percentage      float64     `json:"percentage"`
	Baseline        *float64    `json:"baseline,omitempty"`
	Deviation       *float64    `json:"deviation,omitempty"`
	TimeWindow      *string     `json:"time_window,omitempty"`
	Recommendations []string    `json:"recommendations"`

	// Optional source enrichment (country/ASN), filled by the serving layer.
	GeoCountry *string `json:"geo_country,omitempty"`
	GeoOrg     *string `json:"geo_org,omitempty"`
}

// RuleFailure records a sub-rule whose query failed and contributed nothing.
type RuleFailure struct {
	Rule  string `json:"rule"`
	Error string `json:"error"`
}

// AnomalyReport is the result of one detection pass. DegradedRules lists the
// sub-rules that failed; the pass itself is always structurally complete.
type AnomalyReport struct {
	Alerts        []AnomalyAlert `json:"alerts"`
	DegradedRules []RuleFailure  `json:"degraded_rules,omitempty"`
}

// SecuritySummary condenses a detection pass for the dashboard.
type SecuritySummary struct {
	TotalAlerts     int            `json:"total_alerts"`
	CriticalCount   int            `json:"critical_count"`
	HighCount       int            `json:"high_count"`
	MediumCount     int            `json:"medium_count"`
	AlertTypes      map[string]int `json:"alert_types"`
	TopAlerts       []AnomalyAlert `json:"top_alerts"`
	Recommendations []string       `json:"recommendations"`
	DegradedRules   []RuleFailure  `json:"degraded_rules,omitempty"`
}

// AnalysisRun records one ingestion + analysis pass.
type AnalysisRun struct {
	ID            string         `json:"id"`
	TriggeredBy   string         `json:"triggered_by"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DurationMS    int64          `json:"duration_ms"`
	Files         []string       `json:"files"`
	ParsedRecords int            `json:"parsed_records"`
	FailedLines   int            `json:"failed_lines"`
	PatternCounts map[string]int `json:"pattern_counts"`
	AlertCount    int            `json:"alert_count"`
	DegradedRules []RuleFailure  `json:"degraded_rules,omitempty"`
	Error         string         `json:"error,omitempty"`
}

const (
	RunTriggerStartup  = "startup"
	RunTriggerSchedule = "schedule"
	RunTriggerAPI      = "api"
)
