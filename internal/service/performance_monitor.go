package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// View names recorded by the monitor
const (
	ViewTopHoldings      = "top_holdings"
	ViewThresholdChanges = "threshold_changes"
)

// DefaultSlowQueryThreshold marks a view as slow. A cold range of a month
// at four requests in flight normally completes well inside it.
const DefaultSlowQueryThreshold = 10 * time.Second

// PerformanceMonitor tracks end to end latency of the shareholding views
type PerformanceMonitor struct {
	mu            sync.RWMutex
	samples       map[string][]time.Duration
	daysServed    int64
	slowQueries   int64
	totalQueries  int64
	maxSamples    int
	slowThreshold time.Duration
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		samples:       make(map[string][]time.Duration),
		maxSamples:    1000, // Keep last 1000 samples per view
		slowThreshold: DefaultSlowQueryThreshold,
	}
}

// SetSlowThreshold changes the duration above which a query counts as slow
func (pm *PerformanceMonitor) SetSlowThreshold(d time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.slowThreshold = d
}

// RecordQuery records one successful view computation over days days
func (pm *PerformanceMonitor) RecordQuery(ctx context.Context, view string, duration time.Duration, days int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.totalQueries++
	pm.daysServed += int64(days)

	samples := append(pm.samples[view], duration)
	if len(samples) > pm.maxSamples {
		samples = samples[len(samples)-pm.maxSamples:]
	}
	pm.samples[view] = samples

	if duration > pm.slowThreshold {
		pm.slowQueries++
	}
}

// GetStats returns current performance statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		TotalQueries: pm.totalQueries,
		SlowQueries:  pm.slowQueries,
		DaysServed:   pm.daysServed,
		Views:        make(map[string]*ViewStats, len(pm.samples)),
	}

	for view, samples := range pm.samples {
		if len(samples) == 0 {
			continue
		}

		sorted := make([]time.Duration, len(samples))
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}

		stats.Views[view] = &ViewStats{
			Samples: len(sorted),
			AvgMs:   float64(total.Milliseconds()) / float64(len(sorted)),
			P95Ms:   float64(percentile(sorted, 0.95).Milliseconds()),
			P99Ms:   float64(percentile(sorted, 0.99).Milliseconds()),
		}
	}

	return stats
}

// percentile reads a percentile from an ascending slice
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Reset resets all performance metrics
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples = make(map[string][]time.Duration)
	pm.daysServed = 0
	pm.slowQueries = 0
	pm.totalQueries = 0
}

// CheckPerformance reports views whose p95 exceeds the slow threshold
func (pm *PerformanceMonitor) CheckPerformance() *PerformanceCheck {
	stats := pm.GetStats()

	pm.mu.RLock()
	limit := float64(pm.slowThreshold.Milliseconds())
	pm.mu.RUnlock()

	check := &PerformanceCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	views := make([]string, 0, len(stats.Views))
	for view := range stats.Views {
		views = append(views, view)
	}
	sort.Strings(views)

	for _, view := range views {
		if p95 := stats.Views[view].P95Ms; p95 > limit {
			check.Passed = false
			check.Issues = append(check.Issues,
				fmt.Sprintf("P95 %s time (%.0fms) exceeds %.0fms threshold", view, p95, limit))
		}
	}

	return check
}

// PerformanceStats contains performance statistics
type PerformanceStats struct {
	TotalQueries int64                 `json:"totalQueries"`
	SlowQueries  int64                 `json:"slowQueries"`
	DaysServed   int64                 `json:"daysServed"`
	Views        map[string]*ViewStats `json:"views"`
}

// ViewStats contains latency figures for one view
type ViewStats struct {
	Samples int     `json:"samples"`
	AvgMs   float64 `json:"avgMs"`
	P95Ms   float64 `json:"p95Ms"`
	P99Ms   float64 `json:"p99Ms"`
}

// PerformanceCheck contains performance check results
type PerformanceCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}
