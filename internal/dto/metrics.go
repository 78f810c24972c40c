package dto

import "time"

// MetricsSnapshot is a small JSON view over process counters.
type MetricsSnapshot struct {
	RequestsTotal    uint64    `json:"requests_total"`
	CacheHitRatio    float64   `json:"cache_hit_ratio"`
	PaymentsLinked   uint64    `json:"payments_linked"`
	PaymentsUnlinked uint64    `json:"payments_unlinked"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
}
