package config

import "time"

// Application version
const AppVersion = "0.4.2"

// Health status constants
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusHealthy    = "healthy"
	StatusUnhealthy  = "unhealthy"
	StatusDisabled   = "disabled"
	StatusDegraded   = "degraded"
	StatusConnecting = "connecting"
)

// Store backends
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Ingestion defaults
const (
	DefaultLogFormat     = "combined"
	MaxFailedLineSamples = 10
	DefaultLogBufferSize = 64 * 1024
	MaxLogBufferSize     = 1024 * 1024
	MaxLineDisplayLength = 200
)

// Brute force rule defaults
const (
	BruteForceMinAttempts    = 50
	BruteForceErrorThreshold = 0.8
)

// DDoS rule defaults
const (
	DDoSRequestThreshold    = 1000
	DDoSUniquePathThreshold = 5
	DDoSCriticalMultiplier  = 5
)

// Scanning rule defaults
const (
	ScanMin404Requests         = 20
	ScanPathDiversityThreshold = 0.8
)

// Bot behavior rule defaults
const (
	BotSingleIPRequestThreshold = 100
	BotMaxPatterns              = 10
	BotExplicitConfidence       = 0.9
	BotHeuristicConfidence      = 0.6
)

// IP anomaly thresholds
const (
	IPAnomalyMinRequests      = 1000
	IPAnomalyMinPercent       = 5.0
	IPAnomalyTopN             = 20
	IPAnomalyCriticalRequests = 10000
	IPAnomalyHighRequests     = 5000
	IPAnomalyMediumPercent    = 10.0
	IPAnomalyErrorRate        = 0.5
	IPAnomalyFocusedDiversity = 0.1
)

// Status-code anomaly thresholds (percent of all requests)
const (
	StatusAnomaly5xxPercent      = 5.0
	StatusAnomaly404Percent      = 20.0
	StatusAnomalyAuthPercent     = 10.0
	StatusAnomalyPressurePercent = 1.0
)

// User-agent anomaly thresholds
const (
	AgentAnomalyMinFrequency       = 100
	AgentAnomalyTopN               = 50
	AgentAnomalySingleIPFrequency  = 1000
	AgentAnomalyLexiconFrequency   = 500
	AgentAnomalyMinLength          = 10
	AgentAnomalyMinSpaces          = 2
	AgentAnomalyHighPercent        = 10.0
	AgentAnomalyDisplayValueLength = 100
)

// Path anomaly thresholds
const (
	PathAnomalyMinFrequency       = 50
	PathAnomalyTopN               = 100
	PathAnomaly404Ratio           = 0.8
	PathAnomaly404MinFrequency    = 100
	PathAnomalyLexiconFrequency   = 200
	PathAnomalyFewSourceIPs       = 3
	PathAnomalyFewSourceFrequency = 500
	PathAnomalyHighPercent        = 5.0
	PathAnomalyMixed404Ratio      = 0.5
)

// Temporal anomaly thresholds
const (
	TemporalDeviationThreshold = 2.0
	TemporalHighDeviation      = 5.0
)

// Response-size anomaly thresholds
const (
	SizeAnomalyMinFrequency  = 100
	SizeAnomalyTopN          = 20
	SizeAnomalyLargeBytes    = 10000000
	SizeAnomalyLargeMinCount = 10
	SizeAnomalySmallBytes    = 100
	SizeAnomalySmallPercent  = 20.0
)

// Column profiling constants
const (
	ProfileSampleLimit      = 10
	ProfileTopValuesLimit   = 10
	ProfileNumericRatio     = 0.8
	ProfileTextCardinality  = 0.1
	ProfileGroupLimit       = 100
	ProfileGroupMaxColumns  = 5
)

// Summary constants
const (
	SummaryTopAlerts          = 10
	SummaryRecommendationPool = 20
	SummaryMaxRecommendations = 10
	TopThreatsDefaultLimit    = 10
)

// Pagination defaults
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// Postgres store constants
const (
	InsertBatchSize      = 500
	InsertMaxAttempts    = 3
	InsertRetryBaseDelay = 200 * time.Millisecond
	DefaultRetentionDays = 0
	QueryTimeout         = 30 * time.Second
)

// Cache constants. Cached summaries are keyed by app version so an upgrade
// never reads a stale shape.
const (
	SummaryCacheTTL = 5 * time.Minute
	SummaryCacheKey = "security:summary:" + AppVersion
	RunHistoryLimit = 50
)

// Server constants
const (
	HSTSMaxAge     = 31536000 // 1 year in seconds
	ContextTimeout = 30 * time.Second
	BodyLimit      = "1M"
)

// System stats constants
const (
	CPUSamplingDuration = 500 * time.Millisecond
)
