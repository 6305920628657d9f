package scheduler

import (
	"context"
	"log"
	"time"

	"apache-log-sentinel/internal/store"
)

// RetentionScheduler deletes stored records older than the retention period.
// It runs once at startup and then daily at midnight.
type RetentionScheduler struct {
	store         store.Store
	retentionDays int
	stopCh        chan struct{}
}

func NewRetentionScheduler(st store.Store, retentionDays int) *RetentionScheduler {
	return &RetentionScheduler{
		store:         st,
		retentionDays: retentionDays,
		stopCh:        make(chan struct{}),
	}
}

func (s *RetentionScheduler) Start() {
	if s.retentionDays <= 0 {
		log.Println("[RetentionScheduler] Retention disabled (RETENTION_DAYS not set)")
		return
	}

	log.Printf("[RetentionScheduler] Started (daily at midnight, retention: %d days)", s.retentionDays)

	// Initial check on startup
	s.run()

	go func() {
		now := time.Now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		initialDelay := nextMidnight.Sub(now)

		log.Printf("[RetentionScheduler] Next run scheduled in %v (at midnight)", initialDelay)

		select {
		case <-time.After(initialDelay):
			s.run()
		case <-s.stopCh:
			return
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopCh:
				log.Println("[RetentionScheduler] Stopped")
				return
			}
		}
	}()
}

func (s *RetentionScheduler) Stop() {
	close(s.stopCh)
}

func (s *RetentionScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[RetentionScheduler] Failed to enforce retention: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[RetentionScheduler] Deleted %d records older than %s (retention: %d days)",
			deleted, cutoff.Format("2006-01-02"), s.retentionDays)
	}
}
