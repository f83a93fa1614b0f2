package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
)

// DependencyProbe checks one external dependency's reachability.
type DependencyProbe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the DependencyProbe interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// MonitorConfig holds the thresholds that trip degraded status.
type MonitorConfig struct {
	StorageLatencyThreshold time.Duration
	FailedAccountThreshold  int
	ErrorEventThreshold     int
	ErrorEventWindow        time.Duration
	ProbeTimeout            time.Duration
	MaxAlerts               int
}

// DefaultMonitorConfig returns the reference thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		StorageLatencyThreshold: 1 * time.Second,
		FailedAccountThreshold:  10,
		ErrorEventThreshold:     50,
		ErrorEventWindow:        1 * time.Hour,
		ProbeTimeout:            5 * time.Second,
		MaxAlerts:               200,
	}
}

// Monitor aggregates dependency probes and fleet statistics into one health
// snapshot, and keeps an in-memory alert log. It is read-only with respect
// to account state and safe to run concurrently with sweeps.
type Monitor struct {
	storageProbe DependencyProbe
	triggerProbe DependencyProbe
	repo         models.AccountRepository
	events       models.ErrorEventRepository
	logger       *slog.Logger
	config       MonitorConfig
	now          func() time.Time

	mu     sync.Mutex
	alerts []models.Alert
}

// NewMonitor constructs a monitor. The storage probe checks the persistence
// layer; the trigger probe checks the sweep scheduling dependency.
func NewMonitor(
	storageProbe DependencyProbe,
	triggerProbe DependencyProbe,
	repo models.AccountRepository,
	events models.ErrorEventRepository,
	logger *slog.Logger,
	config MonitorConfig,
) *Monitor {
	return &Monitor{
		storageProbe: storageProbe,
		triggerProbe: triggerProbe,
		repo:         repo,
		events:       events,
		logger:       logger,
		config:       config,
		now:          time.Now,
	}
}

// PerformHealthCheck probes every dependency and combines the outcomes with
// fleet statistics. Status is the worst of all triggered levels; issues hold
// one human-readable string per triggered condition.
func (m *Monitor) PerformHealthCheck(ctx context.Context) models.HealthSnapshot {
	now := m.now()
	snapshot := models.HealthSnapshot{
		Status:       models.HealthHealthy,
		Issues:       []string{},
		Dependencies: make(map[string]models.DependencyHealth),
		CheckedAt:    now,
	}

	storage := m.probe(ctx, m.storageProbe)
	snapshot.Dependencies["storage"] = storage

	storageDown := storage.Status == models.HealthCritical
	if storageDown {
		snapshot.Status = snapshot.Status.Worse(models.HealthCritical)
		snapshot.Issues = append(snapshot.Issues, fmt.Sprintf("storage unreachable: %s", storage.Error))
	} else if storage.Latency > m.config.StorageLatencyThreshold {
		snapshot.Status = snapshot.Status.Worse(models.HealthDegraded)
		snapshot.Issues = append(snapshot.Issues,
			fmt.Sprintf("storage responding slowly: %dms (threshold %dms)",
				storage.Latency.Milliseconds(), m.config.StorageLatencyThreshold.Milliseconds()))
		dep := snapshot.Dependencies["storage"]
		dep.Status = models.HealthDegraded
		snapshot.Dependencies["storage"] = dep
	}

	trigger := m.probe(ctx, m.triggerProbe)
	snapshot.Dependencies["sweep_trigger"] = trigger
	if trigger.Status == models.HealthCritical {
		// The trigger being down alone is degraded; combined with storage
		// failure the service is effectively dead.
		level := models.HealthDegraded
		if storageDown {
			level = models.HealthCritical
		}
		snapshot.Status = snapshot.Status.Worse(level)
		snapshot.Issues = append(snapshot.Issues, fmt.Sprintf("sweep trigger unavailable: %s", trigger.Error))
		dep := snapshot.Dependencies["sweep_trigger"]
		dep.Status = level
		snapshot.Dependencies["sweep_trigger"] = dep
	}

	// Fleet statistics only make sense when storage answers.
	if !storageDown {
		if counts, err := m.repo.CountByPhase(ctx); err == nil {
			snapshot.FleetByPhase = counts
			if failed := counts[models.PhaseFailed]; failed > m.config.FailedAccountThreshold {
				snapshot.Status = snapshot.Status.Worse(models.HealthDegraded)
				snapshot.Issues = append(snapshot.Issues,
					fmt.Sprintf("%d accounts in failed state (threshold %d)", failed, m.config.FailedAccountThreshold))
			}
		} else {
			m.logger.Warn("fleet count unavailable during health check", "error", err)
		}

		if m.events != nil {
			cutoff := now.Add(-m.config.ErrorEventWindow)
			if count, err := m.events.CountSince(ctx, cutoff); err == nil {
				if count > m.config.ErrorEventThreshold {
					snapshot.Status = snapshot.Status.Worse(models.HealthDegraded)
					snapshot.Issues = append(snapshot.Issues,
						fmt.Sprintf("%d error events in the last %s (threshold %d)",
							count, m.config.ErrorEventWindow, m.config.ErrorEventThreshold))
				}
			} else {
				m.logger.Warn("error event count unavailable during health check", "error", err)
			}
		}
	}

	m.recordAlerts(snapshot)
	return snapshot
}

func (m *Monitor) probe(ctx context.Context, p DependencyProbe) models.DependencyHealth {
	now := m.now()
	dep := models.DependencyHealth{Status: models.HealthHealthy, CheckedAt: now}
	if p == nil {
		return dep
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := p.Probe(probeCtx)
	dep.Latency = time.Since(start)
	dep.LatencyMs = dep.Latency.Milliseconds()

	if err != nil {
		dep.Status = models.HealthCritical
		dep.Error = err.Error()
	}
	return dep
}

// recordAlerts appends one alert per issue in a non-healthy snapshot.
func (m *Monitor) recordAlerts(snapshot models.HealthSnapshot) {
	if snapshot.Status == models.HealthHealthy {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, issue := range snapshot.Issues {
		m.alerts = append(m.alerts, models.Alert{
			Message:    issue,
			Severity:   snapshot.Status,
			OccurredAt: snapshot.CheckedAt,
		})
	}
	if len(m.alerts) > m.config.MaxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.config.MaxAlerts:]
	}
}

// Alerts returns a copy of the alert log, newest last.
func (m *Monitor) Alerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// ClearAlerts empties the in-memory alert log. Idempotent; never touches
// account state.
func (m *Monitor) ClearAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = nil
}

// SetNowFunc overrides the monitor's clock. Test hook.
func (m *Monitor) SetNowFunc(now func() time.Time) {
	m.now = now
}
