package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/ingest"
	"apache-log-sentinel/internal/metrics"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/store"
)

// AnalysisService runs full ingestion and analysis passes and keeps the
// results the handlers serve from: the parsed record set, the abuse report
// for it, and a bounded history of runs.
type AnalysisService struct {
	store    store.Store
	ingester *ingest.Ingester
	abuse    *AbuseService
	anomaly  *AnomalyService
	metrics  *metrics.Metrics
	geoip    *GeoIPService

	// runMu serializes passes so a scheduled run and an API reload never
	// rebuild the store concurrently.
	runMu sync.Mutex

	mu      sync.RWMutex
	records []model.LogRecord
	report  *model.AbuseReport
	runs    []model.AnalysisRun
}

func NewAnalysisService(st store.Store, ing *ingest.Ingester, abuse *AbuseService, anomaly *AnomalyService) *AnalysisService {
	return &AnalysisService{
		store:    st,
		ingester: ing,
		abuse:    abuse,
		anomaly:  anomaly,
	}
}

// SetMetrics attaches the collectors finished runs report into.
func (s *AnalysisService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetGeoIP attaches the enrichment source. Patterns are annotated once per
// run, so the served report is safe for concurrent readers.
func (s *AnalysisService) SetGeoIP(g *GeoIPService) {
	s.geoip = g
}

// Run ingests the given files, rebuilds the store from the parsed records,
// and analyzes the new record set. The pass is recorded in the run history
// whether it succeeds or fails. Earlier results stay served until a pass
// succeeds.
func (s *AnalysisService) Run(ctx context.Context, files []string, trigger string) (*model.AnalysisRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := model.AnalysisRun{
		ID:          uuid.New().String(),
		TriggeredBy: trigger,
		StartedAt:   time.Now().UTC(),
		Files:       append([]string{}, files...),
	}
	log.Printf("[Analysis] Run %s (%s) starting over %d files", run.ID, trigger, len(files))

	result, err := s.ingester.IngestFiles(ctx, files)
	if result != nil {
		run.ParsedRecords = result.ParsedCount
		run.FailedLines = result.FailedCount
	}
	if err != nil {
		return s.finishRun(run, fmt.Errorf("failed to ingest files: %w", err))
	}

	if err := s.store.Reset(ctx); err != nil {
		return s.finishRun(run, fmt.Errorf("failed to reset store: %w", err))
	}
	if err := s.store.Insert(ctx, result.Records); err != nil {
		return s.finishRun(run, fmt.Errorf("failed to load records: %w", err))
	}

	report := s.abuse.AnalyzeAllPatterns(result.Records)
	if s.geoip != nil {
		s.geoip.AnnotateThreats(report.BruteForce)
		s.geoip.AnnotateThreats(report.DDoS)
		s.geoip.AnnotateThreats(report.Scanning)
		s.geoip.AnnotateThreats(report.BotBehavior)
	}
	anomalies := s.anomaly.DetectAll(ctx, nil)

	run.PatternCounts = map[string]int{
		"brute_force":  len(report.BruteForce),
		"ddos":         len(report.DDoS),
		"scanning":     len(report.Scanning),
		"bot_behavior": len(report.BotBehavior),
	}
	run.AlertCount = len(anomalies.Alerts)
	run.DegradedRules = anomalies.DegradedRules

	s.mu.Lock()
	s.records = result.Records
	s.report = report
	s.mu.Unlock()

	if s.metrics != nil {
		severities := make(map[string]int)
		for _, alert := range anomalies.Alerts {
			severities[string(alert.Severity)]++
		}
		s.metrics.SetFindings(len(result.Records), severities, run.PatternCounts, len(anomalies.DegradedRules))
	}

	return s.finishRun(run, nil)
}

func (s *AnalysisService) finishRun(run model.AnalysisRun, err error) (*model.AnalysisRun, error) {
	run.FinishedAt = time.Now().UTC()
	run.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	if err != nil {
		run.Error = err.Error()
	}

	s.mu.Lock()
	s.runs = append([]model.AnalysisRun{run}, s.runs...)
	if len(s.runs) > config.RunHistoryLimit {
		s.runs = s.runs[:config.RunHistoryLimit]
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRun(run.TriggeredBy, err != nil, float64(run.DurationMS)/1000, run.FailedLines)
	}

	if err != nil {
		log.Printf("[Analysis] Run %s failed after %dms: %v", run.ID, run.DurationMS, err)
		return &run, err
	}
	log.Printf("[Analysis] Run %s finished in %dms: %d records, %d alerts, %d degraded rules",
		run.ID, run.DurationMS, run.ParsedRecords, run.AlertCount, len(run.DegradedRules))
	return &run, nil
}

// Records returns the record set of the last successful run. Callers treat
// the slice as read-only.
func (s *AnalysisService) Records() []model.LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *AnalysisService) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// AbuseReport returns the report computed during the last successful run, or
// an empty report before the first one.
func (s *AnalysisService) AbuseReport() *model.AbuseReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return s.abuse.AnalyzeAllPatterns(nil)
	}
	return s.report
}

// TopThreats flattens the current abuse report into a severity-ordered list.
func (s *AnalysisService) TopThreats(limit int) []model.AbusePattern {
	return s.abuse.TopThreats(s.AbuseReport(), limit)
}

// Runs returns the run history, most recent first.
func (s *AnalysisService) Runs() []model.AnalysisRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnalysisRun, len(s.runs))
	copy(out, s.runs)
	return out
}
