package service

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
)

// botIndicators mark a user agent as an explicit bot when present in its
// lowercased text.
var botIndicators = []string{
	"bot", "crawler", "spider", "scraper", "python", "curl",
	"wget", "automation", "headless", "phantom", "selenium",
}

// AbuseService runs the request-pattern abuse rules directly over the
// in-memory record set.
type AbuseService struct{}

func NewAbuseService() *AbuseService {
	return &AbuseService{}
}

// AnalyzeAllPatterns runs every abuse rule and returns the findings grouped
// by pattern type.
func (s *AbuseService) AnalyzeAllPatterns(records []model.LogRecord) *model.AbuseReport {
	report := &model.AbuseReport{
		BruteForce:  s.DetectBruteForce(records),
		DDoS:        s.DetectDDoS(records),
		Scanning:    s.DetectScanning(records),
		BotBehavior: s.DetectBotBehavior(records),
	}
	log.Printf("[Abuse] Analysis complete: %d brute force, %d ddos, %d scanning, %d bot patterns",
		len(report.BruteForce), len(report.DDoS), len(report.Scanning), len(report.BotBehavior))
	return report
}

// TopThreats flattens a report and returns the strongest findings, ordered
// by severity rank then confidence, both descending.
func (s *AbuseService) TopThreats(report *model.AbuseReport, limit int) []model.AbusePattern {
	all := report.All()
	sort.SliceStable(all, func(a, b int) bool {
		ra, rb := all[a].Severity.Rank(), all[b].Severity.Rank()
		if ra != rb {
			return ra > rb
		}
		return all[a].Confidence > all[b].Confidence
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

type hostHourKey struct {
	host string
	hour int
}

type bruteForceStats struct {
	total  int
	errors int
	paths  map[string]struct{}
}

// DetectBruteForce flags hosts with a concentrated burst of failed requests
// within a single hour of the day.
func (s *AbuseService) DetectBruteForce(records []model.LogRecord) []model.AbusePattern {
	groups := make(map[hostHourKey]*bruteForceStats)
	for i := range records {
		r := &records[i]
		key := hostHourKey{host: r.RemoteHost, hour: r.Hour}
		stats := groups[key]
		if stats == nil {
			stats = &bruteForceStats{paths: make(map[string]struct{})}
			groups[key] = stats
		}
		stats.total++
		if r.StatusCode >= 400 {
			stats.errors++
		}
		stats.paths[r.Path] = struct{}{}
	}

	keys := make([]hostHourKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].host != keys[b].host {
			return keys[a].host < keys[b].host
		}
		return keys[a].hour < keys[b].hour
	})

	patterns := []model.AbusePattern{}
	for _, key := range keys {
		stats := groups[key]
		if stats.total < config.BruteForceMinAttempts {
			continue
		}
		errorRate := float64(stats.errors) / float64(stats.total)
		if errorRate < config.BruteForceErrorThreshold {
			continue
		}

		confidence := clampConfidence((errorRate-config.BruteForceErrorThreshold)*2 +
			float64(stats.total)/config.BruteForceMinAttempts*0.3)
		severity := model.SeverityMedium
		if confidence > 0.8 {
			severity = model.SeverityHigh
		}

		patterns = append(patterns, model.AbusePattern{
			ID:           uuid.New().String(),
			PatternType:  model.PatternBruteForce,
			Severity:     severity,
			Description:  fmt.Sprintf("High error rate (%.1f%%) with %d requests", errorRate*100, stats.total),
			AffectedIPs:  []string{key.host},
			RequestCount: stats.total,
			Confidence:   confidence,
			Details: model.Details{
				"error_rate":   errorRate,
				"hour":         key.hour,
				"unique_paths": len(stats.paths),
			},
		})
	}
	return patterns
}

type ddosStats struct {
	total   int
	success int
	paths   map[string]struct{}
	agents  map[string]struct{}
}

// DetectDDoS flags hosts sending high volume against very few paths.
func (s *AbuseService) DetectDDoS(records []model.LogRecord) []model.AbusePattern {
	groups := make(map[string]*ddosStats)
	for i := range records {
		r := &records[i]
		stats := groups[r.RemoteHost]
		if stats == nil {
			stats = &ddosStats{paths: make(map[string]struct{}), agents: make(map[string]struct{})}
			groups[r.RemoteHost] = stats
		}
		stats.total++
		if r.StatusCode == 200 {
			stats.success++
		}
		stats.paths[r.Path] = struct{}{}
		if r.UserAgent != nil {
			stats.agents[*r.UserAgent] = struct{}{}
		}
	}

	hosts := sortedKeys(groups)
	patterns := []model.AbusePattern{}
	for _, host := range hosts {
		stats := groups[host]
		if stats.total < config.DDoSRequestThreshold || len(stats.paths) > config.DDoSUniquePathThreshold {
			continue
		}

		pathDiversity := float64(len(stats.paths)) / float64(stats.total)
		successRate := float64(stats.success) / float64(stats.total)
		confidence := clampConfidence(float64(stats.total)/config.DDoSRequestThreshold*0.5 +
			(1-pathDiversity)*0.5)

		severity := model.SeverityHigh
		if stats.total > config.DDoSRequestThreshold*config.DDoSCriticalMultiplier {
			severity = model.SeverityCritical
		}

		patterns = append(patterns, model.AbusePattern{
			ID:           uuid.New().String(),
			PatternType:  model.PatternDDoS,
			Severity:     severity,
			Description:  fmt.Sprintf("High volume (%d requests) targeting few paths", stats.total),
			AffectedIPs:  []string{host},
			RequestCount: stats.total,
			Confidence:   confidence,
			Details: model.Details{
				"unique_paths":   len(stats.paths),
				"success_rate":   successRate,
				"path_diversity": pathDiversity,
				"unique_agents":  len(stats.agents),
			},
		})
	}
	return patterns
}

type scanStats struct {
	notFound int
	paths    map[string]struct{}
	agents   map[string]struct{}
}

// DetectScanning flags hosts probing many distinct nonexistent paths.
func (s *AbuseService) DetectScanning(records []model.LogRecord) []model.AbusePattern {
	groups := make(map[string]*scanStats)
	for i := range records {
		r := &records[i]
		if r.StatusCode != 404 {
			continue
		}
		stats := groups[r.RemoteHost]
		if stats == nil {
			stats = &scanStats{paths: make(map[string]struct{}), agents: make(map[string]struct{})}
			groups[r.RemoteHost] = stats
		}
		stats.notFound++
		stats.paths[r.Path] = struct{}{}
		if r.UserAgent != nil {
			stats.agents[*r.UserAgent] = struct{}{}
		}
	}
	if len(groups) == 0 {
		return []model.AbusePattern{}
	}

	hosts := sortedKeys(groups)
	patterns := []model.AbusePattern{}
	for _, host := range hosts {
		stats := groups[host]
		if stats.notFound < config.ScanMin404Requests {
			continue
		}
		diversity := float64(len(stats.paths)) / float64(stats.notFound)
		if diversity < config.ScanPathDiversityThreshold {
			continue
		}

		confidence := clampConfidence((diversity-config.ScanPathDiversityThreshold)*2 +
			float64(stats.notFound)/config.ScanMin404Requests*0.3)

		patterns = append(patterns, model.AbusePattern{
			ID:           uuid.New().String(),
			PatternType:  model.PatternScanning,
			Severity:     model.SeverityMedium,
			Description:  fmt.Sprintf("High path diversity in 404s (%d unique paths)", len(stats.paths)),
			AffectedIPs:  []string{host},
			RequestCount: stats.notFound,
			Confidence:   confidence,
			Details: model.Details{
				"unique_404_paths":   len(stats.paths),
				"path_diversity_404": diversity,
				"unique_agents":      len(stats.agents),
			},
		})
	}
	return patterns
}

type botStats struct {
	total int
	ips   map[string]struct{}
	paths map[string]struct{}
}

// DetectBotBehavior flags user agents that either identify as automation or
// hammer the server from a single address. Records without a user agent are
// not grouped. The result keeps agent order and is capped, not re-sorted.
func (s *AbuseService) DetectBotBehavior(records []model.LogRecord) []model.AbusePattern {
	groups := make(map[string]*botStats)
	for i := range records {
		r := &records[i]
		if r.UserAgent == nil {
			continue
		}
		stats := groups[*r.UserAgent]
		if stats == nil {
			stats = &botStats{ips: make(map[string]struct{}), paths: make(map[string]struct{})}
			groups[*r.UserAgent] = stats
		}
		stats.total++
		stats.ips[r.RemoteHost] = struct{}{}
		stats.paths[r.Path] = struct{}{}
	}

	agents := sortedKeys(groups)
	patterns := []model.AbusePattern{}
	for _, agent := range agents {
		stats := groups[agent]
		explicitBot := containsAny(strings.ToLower(agent), botIndicators)
		singleIPVolume := stats.total > config.BotSingleIPRequestThreshold && len(stats.ips) == 1
		if !explicitBot && !singleIPVolume {
			continue
		}

		confidence := config.BotHeuristicConfidence
		severity := model.SeverityMedium
		if explicitBot {
			confidence = config.BotExplicitConfidence
			severity = model.SeverityLow
		}

		patterns = append(patterns, model.AbusePattern{
			ID:           uuid.New().String(),
			PatternType:  model.PatternBotBehavior,
			Severity:     severity,
			Description:  fmt.Sprintf("Bot-like user agent with %d requests", stats.total),
			AffectedIPs:  []string{},
			RequestCount: stats.total,
			Confidence:   confidence,
			Details: model.Details{
				"user_agent":      agent,
				"unique_ips":      len(stats.ips),
				"unique_paths":    len(stats.paths),
				"is_explicit_bot": explicitBot,
			},
		})
		if len(patterns) >= config.BotMaxPatterns {
			break
		}
	}
	return patterns
}

func clampConfidence(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
