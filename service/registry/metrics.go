package registry

import (
	"time"

	"github.com/stepflow/stepflow/internal/clock"
)

// Load classifies how busy the engine is from the active-run count.
type Load string

const (
	LoadLow    Load = "low"
	LoadMedium Load = "medium"
	LoadHigh   Load = "high"
)

// Metrics aggregates counts across active and settled runs.
type Metrics struct {
	Total           int           `json:"total"`
	Running         int           `json:"running"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	Aborted         int           `json:"aborted"`
	AverageDuration time.Duration `json:"averageDuration"`
	SuccessRate     float64       `json:"successRate"`
}

// StatusSummary is a coarse operational snapshot.
type StatusSummary struct {
	ActiveCount       int       `json:"activeCount"`
	SystemLoad        Load      `json:"systemLoad"`
	CompletedLastHour int       `json:"completedLastHour"`
	FailedLastHour    int       `json:"failedLastHour"`
	Timestamp         time.Time `json:"timestamp"`
}

// Metrics computes per-status counts, the average duration over settled
// runs and the success rate completed/(completed+failed+aborted).
func (s *Service) Metrics() Metrics {
	s.mux.RLock()
	defer s.mux.RUnlock()

	m := Metrics{Running: len(s.active)}
	var total time.Duration
	for _, record := range s.history {
		switch record.Status {
		case StatusCompleted:
			m.Completed++
		case StatusFailed:
			m.Failed++
		case StatusAborted:
			m.Aborted++
		}
		total += record.SettledAt.Sub(record.StartedAt)
	}
	m.Total = m.Running + m.Completed + m.Failed + m.Aborted
	if settled := len(s.history); settled > 0 {
		m.AverageDuration = total / time.Duration(settled)
	}
	if done := m.Completed + m.Failed + m.Aborted; done > 0 {
		m.SuccessRate = float64(m.Completed) / float64(done)
	}
	return m
}

// StatusSummary derives system load from the active-run count (>10 high,
// >5 medium, else low) and trailing-hour outcome counts from history.
func (s *Service) StatusSummary() StatusSummary {
	now := clock.Now()
	cutoff := now.Add(-time.Hour)

	s.mux.RLock()
	defer s.mux.RUnlock()

	summary := StatusSummary{
		ActiveCount: len(s.active),
		Timestamp:   now,
	}
	switch {
	case summary.ActiveCount > 10:
		summary.SystemLoad = LoadHigh
	case summary.ActiveCount > 5:
		summary.SystemLoad = LoadMedium
	default:
		summary.SystemLoad = LoadLow
	}
	for _, record := range s.history {
		if record.SettledAt.Before(cutoff) {
			continue
		}
		switch record.Status {
		case StatusCompleted:
			summary.CompletedLastHour++
		case StatusFailed:
			summary.FailedLastHour++
		}
	}
	return summary
}
