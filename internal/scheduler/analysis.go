package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/pkg/cache"
)

// AnalysisScheduler re-runs ingestion and analysis on a cron schedule and
// keeps the cached security summary warm between runs.
type AnalysisScheduler struct {
	analysis   *service.AnalysisService
	anomaly    *service.AnomalyService
	redisCache *cache.RedisClient
	files      []string
	schedule   string

	cronScheduler *cron.Cron
	running       bool
}

func NewAnalysisScheduler(
	analysis *service.AnalysisService,
	anomaly *service.AnomalyService,
	redisCache *cache.RedisClient,
	files []string,
	schedule string,
) *AnalysisScheduler {
	return &AnalysisScheduler{
		analysis:      analysis,
		anomaly:       anomaly,
		redisCache:    redisCache,
		files:         files,
		schedule:      schedule,
		cronScheduler: cron.New(),
	}
}

// Start registers the configured schedule and begins running. With no
// schedule configured, or an invalid one, the scheduler stays idle.
func (s *AnalysisScheduler) Start() {
	if s.running || s.schedule == "" {
		return
	}

	entryID, err := s.cronScheduler.AddFunc(s.schedule, s.runAnalysis)
	if err != nil {
		log.Printf("[AnalysisScheduler] Invalid cron schedule '%s': %v", s.schedule, err)
		return
	}

	s.cronScheduler.Start()
	s.running = true

	for _, entry := range s.cronScheduler.Entries() {
		if entry.ID == entryID {
			log.Printf("[AnalysisScheduler] Re-analysis scheduled: %s (next run: %s)",
				s.schedule, entry.Next.Format("2006-01-02 15:04:05"))
			break
		}
	}
}

// RunNow triggers an immediate pass (for manual refresh).
func (s *AnalysisScheduler) RunNow() {
	go s.runAnalysis()
}

func (s *AnalysisScheduler) Stop() {
	if !s.running {
		return
	}
	s.cronScheduler.Stop()
	s.running = false
	log.Println("[AnalysisScheduler] Stopped")
}

func (s *AnalysisScheduler) runAnalysis() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.analysis.Run(ctx, s.files, model.RunTriggerSchedule); err != nil {
		log.Printf("[AnalysisScheduler] Scheduled run failed: %v", err)
		return
	}
	s.refreshSummary(ctx)
}

// refreshSummary rewrites the cached summary after a successful run so
// dashboard reads never serve findings from the previous record set.
func (s *AnalysisScheduler) refreshSummary(ctx context.Context) {
	if s.redisCache == nil {
		return
	}

	summary := s.anomaly.SecuritySummary(ctx, nil)
	payload, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[AnalysisScheduler] Failed to encode summary: %v", err)
		return
	}
	if err := s.redisCache.Set(ctx, config.SummaryCacheKey, string(payload), config.SummaryCacheTTL); err != nil {
		log.Printf("[AnalysisScheduler] Failed to refresh summary cache: %v", err)
	}
}
