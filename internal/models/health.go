package models

import "time"

// HealthStatus is the overall service health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// Worse returns the more severe of two statuses.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if s.rank() >= other.rank() {
		return s
	}
	return other
}

func (s HealthStatus) rank() int {
	switch s {
	case HealthCritical:
		return 2
	case HealthDegraded:
		return 1
	}
	return 0
}

// DependencyHealth is the probed state of one external dependency.
type DependencyHealth struct {
	Status    HealthStatus  `json:"status"`
	LatencyMs int64         `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"-"`
}

// HealthSnapshot aggregates dependency probes and fleet statistics.
type HealthSnapshot struct {
	Status       HealthStatus                `json:"status"`
	Issues       []string                    `json:"issues"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
	FleetByPhase map[WarmupPhase]int         `json:"fleet_by_phase"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// Alert is one entry in the health monitor's in-memory alert log.
type Alert struct {
	Message    string       `json:"message"`
	Severity   HealthStatus `json:"severity"`
	OccurredAt time.Time    `json:"occurred_at"`
}
