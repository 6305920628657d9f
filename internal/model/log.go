package model

import (
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity onto the total order critical > high > medium > low.
// Unknown severities rank below low so they sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type PatternType string

const (
	PatternBruteForce  PatternType = "brute_force"
	PatternDDoS        PatternType = "ddos"
	PatternScanning    PatternType = "scanning"
	PatternBotBehavior PatternType = "bot_behavior"
)

type AlertType string

const (
	AlertSpike           AlertType = "spike"
	AlertOutlier         AlertType = "outlier"
	AlertPatternBreak    AlertType = "pattern_break"
	AlertThresholdBreach AlertType = "threshold_breach"
)

// NoExtension marks records whose request path carries no file suffix.
const NoExtension = "no_extension"

// LogRecord is one successfully parsed access-log line. Optional source fields
// use pointers; a nil pointer means the log carried the "-" placeholder or the
// configured format does not capture the field at all.
type LogRecord struct {
	RemoteHost    string   `json:"remote_host"`
	RemoteLogname *string  `json:"remote_logname,omitempty"`
	RemoteUser    *string  `json:"remote_user,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	RequestLine   string   `json:"request_line"`
	StatusCode    int      `json:"status_code"`
	ResponseSize  *int64   `json:"response_size,omitempty"`
	Referer       *string  `json:"referer,omitempty"`
	UserAgent     *string  `json:"user_agent,omitempty"`
	RequestTime   *float64 `json:"request_time,omitempty"`
	VirtualHost   *string  `json:"virtual_host,omitempty"`
	ServerPort    *int     `json:"server_port,omitempty"`

	// Derived during ingestion
	Method        string `json:"method"`
	Path          string `json:"path"`
	Protocol      string `json:"protocol"`
	Hour          int    `json:"hour"`
	Date          string `json:"date"`
	FileExtension string `json:"file_extension"`
}

// UserAgentString returns the agent text or "" when absent.
func (r *LogRecord) UserAgentString() string {
	if r.UserAgent == nil {
		return ""
	}
	return *r.UserAgent
}

// RefererString returns the referer text or "" when absent.
func (r *LogRecord) RefererString() string {
	if r.Referer == nil {
		return ""
	}
	return *r.Referer
}

type RecordListResponse struct {
	Data       []LogRecord `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}
