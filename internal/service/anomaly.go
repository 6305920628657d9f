package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/store"
)

// suspiciousAgentIndicators extends the bot lexicon with attack-tool markers
// for the user-agent anomaly rule.
var suspiciousAgentIndicators = buildAgentIndicators()

func buildAgentIndicators() []string {
	out := make([]string, 0, len(botIndicators)+4)
	out = append(out, botIndicators...)
	return append(out, "scan", "test", "exploit", "attack")
}

// browserTokens identify mainstream browser user agents.
var browserTokens = []string{"mozilla", "chrome", "safari", "firefox"}

// sensitivePathPatterns mark paths worth flagging when hit in volume.
var sensitivePathPatterns = []string{
	"admin", "login", "wp-", "phpmyadmin", "sql", "config",
	"backup", "test", "dev", "debug", ".env", "api/", "shell",
}

// AnomalyService runs the store-driven anomaly rules. Each sub-rule issues
// aggregate queries and degrades to no findings when its query fails, so one
// broken rule never aborts a detection pass.
type AnomalyService struct {
	store store.Store
}

func NewAnomalyService(st store.Store) *AnomalyService {
	return &AnomalyService{store: st}
}

type anomalyRule struct {
	name string
	run  func(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error)
}

// DetectAll runs every sub-rule, optionally restricted to an inclusive time
// window, and returns the combined alerts ordered by severity then frequency.
// Failed sub-rules are reported in DegradedRules.
func (s *AnomalyService) DetectAll(ctx context.Context, window *store.TimeRange) *model.AnomalyReport {
	rules := []anomalyRule{
		{name: "ip", run: s.detectIPAnomalies},
		{name: "status_code", run: s.detectStatusAnomalies},
		{name: "user_agent", run: s.detectUserAgentAnomalies},
		{name: "path", run: s.detectPathAnomalies},
		{name: "temporal", run: s.detectTemporalAnomalies},
		{name: "response_size", run: s.detectResponseSizeAnomalies},
	}

	report := &model.AnomalyReport{Alerts: []model.AnomalyAlert{}}
	for _, rule := range rules {
		alerts, err := rule.run(ctx, window)
		if err != nil {
			log.Printf("[Anomaly] Rule %s degraded: %v", rule.name, err)
			report.DegradedRules = append(report.DegradedRules, model.RuleFailure{
				Rule:  rule.name,
				Error: err.Error(),
			})
			continue
		}
		report.Alerts = append(report.Alerts, alerts...)
	}

	sort.SliceStable(report.Alerts, func(a, b int) bool {
		ra, rb := report.Alerts[a].Severity.Rank(), report.Alerts[b].Severity.Rank()
		if ra != rb {
			return ra > rb
		}
		return report.Alerts[a].Frequency > report.Alerts[b].Frequency
	})
	return report
}

// SecuritySummary buckets a detection pass by severity and alert type and
// surfaces deduplicated recommendations from the strongest alerts.
func (s *AnomalyService) SecuritySummary(ctx context.Context, window *store.TimeRange) *model.SecuritySummary {
	report := s.DetectAll(ctx, window)

	summary := &model.SecuritySummary{
		TotalAlerts:     len(report.Alerts),
		AlertTypes:      map[string]int{},
		TopAlerts:       []model.AnomalyAlert{},
		Recommendations: []string{},
		DegradedRules:   report.DegradedRules,
	}

	for _, alert := range report.Alerts {
		switch alert.Severity {
		case model.SeverityCritical:
			summary.CriticalCount++
		case model.SeverityHigh:
			summary.HighCount++
		case model.SeverityMedium:
			summary.MediumCount++
		}
		summary.AlertTypes[string(alert.AlertType)]++
	}

	top := report.Alerts
	if len(top) > config.SummaryTopAlerts {
		top = top[:config.SummaryTopAlerts]
	}
	summary.TopAlerts = top

	pool := report.Alerts
	if len(pool) > config.SummaryRecommendationPool {
		pool = pool[:config.SummaryRecommendationPool]
	}
	seen := map[string]bool{}
	for _, alert := range pool {
		for _, rec := range alert.Recommendations {
			if seen[rec] {
				continue
			}
			seen[rec] = true
			summary.Recommendations = append(summary.Recommendations, rec)
			if len(summary.Recommendations) >= config.SummaryMaxRecommendations {
				return summary
			}
		}
	}
	return summary
}

// detectIPAnomalies flags hosts dominating traffic volume.
func (s *AnomalyService) detectIPAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy: []string{"remote_host"},
		Aggregates: []store.Aggregate{
			{Func: store.AggCount, As: "request_count"},
			{Func: store.AggCountIf, Cond: &store.Predicate{Column: "status_code", Op: store.OpGte, Value: 400}, As: "error_count"},
			{Func: store.AggCountIf, Cond: &store.Predicate{Column: "status_code", Op: store.OpEq, Value: 404}, As: "not_found_count"},
			{Func: store.AggCountDistinct, Column: "path", As: "unique_paths"},
			{Func: store.AggCountDistinct, Column: "user_agent", As: "unique_agents"},
		},
		Where:   []store.Predicate{{Column: "remote_host", Op: store.OpNe, Value: ""}},
		Time:    window,
		Percent: &store.Percent{Of: "request_count", As: "percentage"},
		OrderBy: []store.OrderBy{{Column: "request_count", Desc: true}},
		Limit:   config.IPAnomalyTopN,
	})
	if err != nil {
		return nil, err
	}

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		requestCount := row.Int("request_count")
		percentage := row.Float("percentage")
		if requestCount <= config.IPAnomalyMinRequests && percentage <= config.IPAnomalyMinPercent {
			continue
		}

		errorRate := 0.0
		pathDiversity := 0.0
		if requestCount > 0 {
			errorRate = float64(row.Int("error_count")) / float64(requestCount)
			pathDiversity = float64(row.Int("unique_paths")) / float64(requestCount)
		}

		severity := model.SeverityLow
		recommendations := []string{}
		if requestCount > config.IPAnomalyCriticalRequests {
			severity = model.SeverityCritical
			recommendations = append(recommendations, "Investigate potential DDoS attack")
		} else if requestCount > config.IPAnomalyHighRequests {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "Monitor for sustained high activity")
		} else if percentage > config.IPAnomalyMediumPercent {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Review traffic patterns from this IP")
		}

		if errorRate > config.IPAnomalyErrorRate {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "High error rate suggests scanning/brute force")
		}

		if pathDiversity < config.IPAnomalyFocusedDiversity && requestCount > config.IPAnomalyMinRequests {
			recommendations = append(recommendations, "Low path diversity indicates focused attack")
		}

		ip := row.Text("remote_host")
		alerts = append(alerts, model.AnomalyAlert{
			ID:              uuid.New().String(),
			AlertType:       model.AlertSpike,
			Severity:        severity,
			Column:          "remote_host",
			Description:     fmt.Sprintf("IP %s generated %s requests (%.1f%% of total)", ip, withCommas(requestCount), percentage),
			Value:           ip,
			Frequency:       int(requestCount),
			Percentage:      percentage,
			Recommendations: recommendations,
		})
	}
	return alerts, nil
}

// detectStatusAnomalies flags unhealthy status-code distributions.
func (s *AnomalyService) detectStatusAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy:    []string{"status_code"},
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Time:       window,
		Percent:    &store.Percent{Of: "frequency", As: "percentage"},
		OrderBy:    []store.OrderBy{{Column: "frequency", Desc: true}},
	})
	if err != nil {
		return nil, err
	}

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		statusCode := int(row.Int("status_code"))
		frequency := row.Int("frequency")
		percentage := row.Float("percentage")

		severity := model.SeverityLow
		recommendations := []string{}
		switch {
		case statusCode >= 500 && percentage > config.StatusAnomaly5xxPercent:
			severity = model.SeverityCritical
			recommendations = append(recommendations, "High server error rate - investigate backend issues")
		case statusCode == 404 && percentage > config.StatusAnomaly404Percent:
			severity = model.SeverityHigh
			recommendations = append(recommendations, "High 404 rate suggests scanning activity")
		case (statusCode == 401 || statusCode == 403) && percentage > config.StatusAnomalyAuthPercent:
			severity = model.SeverityMedium
			recommendations = append(recommendations, "High authentication failure rate")
		case (statusCode == 429 || statusCode == 503) && percentage > config.StatusAnomalyPressurePercent:
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Rate limiting or service unavailability detected")
		}

		if len(recommendations) == 0 {
			continue
		}
		alerts = append(alerts, model.AnomalyAlert{
			ID:              uuid.New().String(),
			AlertType:       model.AlertThresholdBreach,
			Severity:        severity,
			Column:          "status_code",
			Description:     fmt.Sprintf("Status code %d appears in %.1f%% of requests", statusCode, percentage),
			Value:           statusCode,
			Frequency:       int(frequency),
			Percentage:      percentage,
			Recommendations: recommendations,
		})
	}
	return alerts, nil
}

// detectUserAgentAnomalies flags automation and attack-tool user agents.
func (s *AnomalyService) detectUserAgentAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy: []string{"user_agent"},
		Aggregates: []store.Aggregate{
			{Func: store.AggCount, As: "frequency"},
			{Func: store.AggCountDistinct, Column: "remote_host", As: "unique_ips"},
		},
		Where:   []store.Predicate{{Column: "user_agent", Op: store.OpNe, Value: ""}},
		Time:    window,
		Having:  []store.Predicate{{Column: "frequency", Op: store.OpGt, Value: config.AgentAnomalyMinFrequency}},
		Percent: &store.Percent{Of: "frequency", As: "percentage"},
		OrderBy: []store.OrderBy{{Column: "frequency", Desc: true}},
		Limit:   config.AgentAnomalyTopN,
	})
	if err != nil {
		return nil, err
	}

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		agent := row.Text("user_agent")
		frequency := row.Int("frequency")
		percentage := row.Float("percentage")
		uniqueIPs := row.Int("unique_ips")
		agentLower := strings.ToLower(agent)

		severity := model.SeverityLow
		recommendations := []string{}

		if uniqueIPs == 1 && frequency > config.AgentAnomalySingleIPFrequency {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Single IP with high frequency suggests automation")
		}

		if containsAny(agentLower, suspiciousAgentIndicators) && frequency > config.AgentAnomalyLexiconFrequency {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Potential malicious bot activity detected")
		}

		if utf8.RuneCountInString(agent) < config.AgentAnomalyMinLength ||
			strings.Count(agent, " ") < config.AgentAnomalyMinSpaces {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Unusually short or simple user agent string")
		}

		if percentage > config.AgentAnomalyHighPercent && !containsAny(agentLower, browserTokens) {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "High frequency non-browser user agent")
		}

		if len(recommendations) == 0 {
			continue
		}
		alerts = append(alerts, model.AnomalyAlert{
			ID:              uuid.New().String(),
			AlertType:       model.AlertPatternBreak,
			Severity:        severity,
			Column:          "user_agent",
			Description:     fmt.Sprintf("Suspicious user agent with %s requests (%.1f%%)", withCommas(frequency), percentage),
			Value:           truncateValue(agent, config.AgentAnomalyDisplayValueLength),
			Frequency:       int(frequency),
			Percentage:      percentage,
			Recommendations: recommendations,
		})
	}
	return alerts, nil
}

// detectPathAnomalies flags probing and attacks on sensitive endpoints.
func (s *AnomalyService) detectPathAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy: []string{"path"},
		Aggregates: []store.Aggregate{
			{Func: store.AggCount, As: "frequency"},
			{Func: store.AggCountDistinct, Column: "remote_host", As: "unique_ips"},
			{Func: store.AggCountIf, Cond: &store.Predicate{Column: "status_code", Op: store.OpEq, Value: 404}, As: "not_found_count"},
		},
		Where:   []store.Predicate{{Column: "path", Op: store.OpNe, Value: ""}},
		Time:    window,
		Having:  []store.Predicate{{Column: "frequency", Op: store.OpGt, Value: config.PathAnomalyMinFrequency}},
		Percent: &store.Percent{Of: "frequency", As: "percentage"},
		OrderBy: []store.OrderBy{{Column: "frequency", Desc: true}},
		Limit:   config.PathAnomalyTopN,
	})
	if err != nil {
		return nil, err
	}

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		path := row.Text("path")
		frequency := row.Int("frequency")
		percentage := row.Float("percentage")
		uniqueIPs := row.Int("unique_ips")
		notFound := row.Int("not_found_count")

		notFoundRatio := 0.0
		if frequency > 0 {
			notFoundRatio = float64(notFound) / float64(frequency)
		}
		suspicious := containsAny(strings.ToLower(path), sensitivePathPatterns)

		severity := model.SeverityLow
		recommendations := []string{}

		if notFoundRatio > config.PathAnomaly404Ratio && frequency > config.PathAnomaly404MinFrequency {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "High 404 rate suggests scanning for vulnerabilities")
		}

		if suspicious && frequency > config.PathAnomalyLexiconFrequency {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "Potential attack on sensitive endpoint")
		}

		if uniqueIPs < config.PathAnomalyFewSourceIPs && frequency > config.PathAnomalyFewSourceFrequency {
			if severity != model.SeverityHigh {
				severity = model.SeverityMedium
			}
			recommendations = append(recommendations, "Few IPs accessing path frequently - potential attack")
		}

		if percentage > config.PathAnomalyHighPercent && (suspicious || notFoundRatio > config.PathAnomalyMixed404Ratio) {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "High percentage of suspicious path requests")
		}

		if len(recommendations) == 0 {
			continue
		}
		alerts = append(alerts, model.AnomalyAlert{
			ID:              uuid.New().String(),
			AlertType:       model.AlertPatternBreak,
			Severity:        severity,
			Column:          "path",
			Description:     fmt.Sprintf("Suspicious path '%s' accessed %s times (%.1f%%)", path, withCommas(frequency), percentage),
			Value:           path,
			Frequency:       int(frequency),
			Percentage:      percentage,
			Recommendations: recommendations,
		})
	}
	return alerts, nil
}

// detectTemporalAnomalies flags hours whose traffic spikes far above the
// per-hour average.
func (s *AnomalyService) detectTemporalAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy:    []string{"hour"},
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Time:       window,
		OrderBy:    []store.OrderBy{{Column: "hour"}},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []model.AnomalyAlert{}, nil
	}

	var total int64
	for _, row := range rows {
		total += row.Int("frequency")
	}
	mean := float64(total) / float64(len(rows))

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		frequency := row.Int("frequency")
		deviation := 0.0
		if mean > 0 {
			deviation = (float64(frequency) - mean) / mean
		}
		if deviation <= config.TemporalDeviationThreshold {
			continue
		}

		severity := model.SeverityMedium
		if deviation > config.TemporalHighDeviation {
			severity = model.SeverityHigh
		}

		hour := int(row.Int("hour"))
		baseline := mean
		dev := deviation
		alerts = append(alerts, model.AnomalyAlert{
			ID:        uuid.New().String(),
			AlertType: model.AlertSpike,
			Severity:  severity,
			Column:    "timestamp",
			Description: fmt.Sprintf("Traffic spike at hour %d:00 - %s requests (%.0f%% above average)",
				hour, withCommas(frequency), deviation*100),
			Value:      fmt.Sprintf("%d:00", hour),
			Frequency:  int(frequency),
			Percentage: float64(frequency) / float64(total) * 100,
			Baseline:   &baseline,
			Deviation:  &dev,
			Recommendations: []string{
				"Investigate traffic spike during this hour",
				"Check for coordinated attacks or unusual events",
			},
		})
	}
	return alerts, nil
}

// detectResponseSizeAnomalies flags very large and suspiciously small
// responses.
func (s *AnomalyService) detectResponseSizeAnomalies(ctx context.Context, window *store.TimeRange) ([]model.AnomalyAlert, error) {
	rows, err := s.store.Select(ctx, store.Query{
		GroupBy:    []string{"response_size"},
		Aggregates: []store.Aggregate{{Func: store.AggCount, As: "frequency"}},
		Where:      []store.Predicate{{Column: "response_size", Op: store.OpGt, Value: 0}},
		Time:       window,
		Having:     []store.Predicate{{Column: "frequency", Op: store.OpGt, Value: config.SizeAnomalyMinFrequency}},
		Percent:    &store.Percent{Of: "frequency", As: "percentage"},
		OrderBy:    []store.OrderBy{{Column: "response_size", Desc: true}},
		Limit:      config.SizeAnomalyTopN,
	})
	if err != nil {
		return nil, err
	}

	alerts := []model.AnomalyAlert{}
	for _, row := range rows {
		size := row.Int("response_size")
		frequency := row.Int("frequency")
		percentage := row.Float("percentage")

		severity := model.SeverityLow
		recommendations := []string{}
		if size > config.SizeAnomalyLargeBytes && frequency > config.SizeAnomalyLargeMinCount {
			severity = model.SeverityHigh
			recommendations = append(recommendations, "Large response sizes may indicate data exfiltration")
		} else if size < config.SizeAnomalySmallBytes && percentage > config.SizeAnomalySmallPercent {
			severity = model.SeverityMedium
			recommendations = append(recommendations, "Many small responses may indicate errors or blocked requests")
		}

		if len(recommendations) == 0 {
			continue
		}
		alerts = append(alerts, model.AnomalyAlert{
			ID:        uuid.New().String(),
			AlertType: model.AlertOutlier,
			Severity:  severity,
			Column:    "response_size",
			Description: fmt.Sprintf("Unusual response size %s bytes in %s requests (%.1f%%)",
				withCommas(size), withCommas(frequency), percentage),
			Value:           size,
			Frequency:       int(frequency),
			Percentage:      percentage,
			Recommendations: recommendations,
		})
	}
	return alerts, nil
}

// truncateValue bounds a displayed value, marking the cut with an ellipsis.
func truncateValue(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}

// withCommas renders an integer with thousands separators.
func withCommas(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
