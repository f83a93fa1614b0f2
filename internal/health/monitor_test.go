package health

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/karmaloop/karmaloop/internal/database"
	"github.com/karmaloop/karmaloop/internal/models"
	"log/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() MonitorConfig {
	cfg := DefaultMonitorConfig()
	cfg.StorageLatencyThreshold = 20 * time.Millisecond
	cfg.ProbeTimeout = time.Second
	return cfg
}

func okProbe(context.Context) error { return nil }

func newTestMonitor(storage, trigger ProbeFunc, cfg MonitorConfig) (*Monitor, *database.MemoryAccountRepository, *database.MemoryErrorEventRepository) {
	repo := database.NewMemoryAccountRepository()
	events := database.NewMemoryErrorEventRepository()
	monitor := NewMonitor(storage, trigger, repo, events, testLogger(), cfg)
	return monitor, repo, events
}

func TestHealthCheckAllHealthy(t *testing.T) {
	monitor, _, _ := newTestMonitor(okProbe, okProbe, testConfig())

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthHealthy {
		t.Fatalf("expected healthy, got %s (%v)", snapshot.Status, snapshot.Issues)
	}
	if len(snapshot.Issues) != 0 {
		t.Errorf("expected no issues, got %v", snapshot.Issues)
	}
	if len(monitor.Alerts()) != 0 {
		t.Errorf("healthy checks must not record alerts, got %d", len(monitor.Alerts()))
	}
}

func TestHealthCheckStorageDown(t *testing.T) {
	storage := ProbeFunc(func(context.Context) error { return errors.New("connection refused") })
	monitor, _, _ := newTestMonitor(storage, okProbe, testConfig())

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthCritical {
		t.Fatalf("expected critical, got %s", snapshot.Status)
	}
	if len(snapshot.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %v", snapshot.Issues)
	}
	if !strings.Contains(snapshot.Issues[0], "storage unreachable") {
		t.Errorf("unexpected issue text: %s", snapshot.Issues[0])
	}
	if snapshot.Dependencies["storage"].Status != models.HealthCritical {
		t.Errorf("expected storage dependency critical, got %s", snapshot.Dependencies["storage"].Status)
	}
}

func TestHealthCheckSlowStorageDegrades(t *testing.T) {
	storage := ProbeFunc(func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	monitor, _, _ := newTestMonitor(storage, okProbe, testConfig())

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Status)
	}
	if len(snapshot.Issues) != 1 {
		t.Fatalf("slow storage must yield exactly one issue, got %v", snapshot.Issues)
	}
	if !strings.Contains(snapshot.Issues[0], "storage responding slowly") {
		t.Errorf("unexpected issue text: %s", snapshot.Issues[0])
	}
	if snapshot.Dependencies["storage"].Status != models.HealthDegraded {
		t.Errorf("expected storage dependency degraded, got %s", snapshot.Dependencies["storage"].Status)
	}
}

func TestHealthCheckTriggerDownAloneIsDegraded(t *testing.T) {
	trigger := ProbeFunc(func(context.Context) error { return errors.New("not running") })
	monitor, _, _ := newTestMonitor(okProbe, trigger, testConfig())

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthDegraded {
		t.Fatalf("expected degraded with storage healthy, got %s", snapshot.Status)
	}
	if !strings.Contains(snapshot.Issues[0], "sweep trigger unavailable") {
		t.Errorf("unexpected issue text: %s", snapshot.Issues[0])
	}
}

func TestHealthCheckBothDownIsCritical(t *testing.T) {
	fail := ProbeFunc(func(context.Context) error { return errors.New("down") })
	monitor, _, _ := newTestMonitor(fail, fail, testConfig())

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthCritical {
		t.Fatalf("expected critical, got %s", snapshot.Status)
	}
	if len(snapshot.Issues) != 2 {
		t.Errorf("expected both issues reported, got %v", snapshot.Issues)
	}
}

func TestHealthCheckFailedAccountThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.FailedAccountThreshold = 2
	monitor, repo, _ := newTestMonitor(okProbe, okProbe, cfg)

	for i := 0; i < 3; i++ {
		account := &models.Account{Username: string(rune('a' + i)), Phase: models.PhaseFailed}
		if err := repo.Store(context.Background(), account); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Status)
	}
	if !strings.Contains(snapshot.Issues[0], "accounts in failed state") {
		t.Errorf("unexpected issue text: %s", snapshot.Issues[0])
	}
	if snapshot.FleetByPhase[models.PhaseFailed] != 3 {
		t.Errorf("expected fleet counts in snapshot, got %v", snapshot.FleetByPhase)
	}
}

func TestHealthCheckErrorEventThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorEventThreshold = 2
	monitor, _, events := newTestMonitor(okProbe, okProbe, cfg)

	for i := 0; i < 3; i++ {
		err := events.Store(context.Background(), models.ErrorEvent{
			Kind:    models.ErrorEventActionFailed,
			Message: "boom",
		})
		if err != nil {
			t.Fatalf("store event: %v", err)
		}
	}

	snapshot := monitor.PerformHealthCheck(context.Background())
	if snapshot.Status != models.HealthDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Status)
	}
	if !strings.Contains(snapshot.Issues[0], "error events") {
		t.Errorf("unexpected issue text: %s", snapshot.Issues[0])
	}
}

func TestDegradedChecksRecordAlerts(t *testing.T) {
	trigger := ProbeFunc(func(context.Context) error { return errors.New("stalled") })
	monitor, _, _ := newTestMonitor(okProbe, trigger, testConfig())

	monitor.PerformHealthCheck(context.Background())
	monitor.PerformHealthCheck(context.Background())

	alerts := monitor.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Severity != models.HealthDegraded {
		t.Errorf("expected degraded severity, got %s", alerts[0].Severity)
	}
}

func TestAlertLogBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAlerts = 5
	trigger := ProbeFunc(func(context.Context) error { return errors.New("stalled") })
	monitor, _, _ := newTestMonitor(okProbe, trigger, cfg)

	for i := 0; i < 10; i++ {
		monitor.PerformHealthCheck(context.Background())
	}

	if got := len(monitor.Alerts()); got != 5 {
		t.Errorf("expected alert log capped at 5, got %d", got)
	}
}

func TestClearAlertsIdempotent(t *testing.T) {
	trigger := ProbeFunc(func(context.Context) error { return errors.New("stalled") })
	monitor, _, _ := newTestMonitor(okProbe, trigger, testConfig())

	monitor.PerformHealthCheck(context.Background())
	if len(monitor.Alerts()) == 0 {
		t.Fatal("expected at least one alert before clearing")
	}

	monitor.ClearAlerts()
	if got := len(monitor.Alerts()); got != 0 {
		t.Fatalf("expected empty log after clear, got %d", got)
	}

	// Clearing an already-empty log is a no-op, not an error.
	monitor.ClearAlerts()
	if got := len(monitor.Alerts()); got != 0 {
		t.Fatalf("expected empty log after second clear, got %d", got)
	}
}

func TestWorseStatusOrdering(t *testing.T) {
	if got := models.HealthHealthy.Worse(models.HealthDegraded); got != models.HealthDegraded {
		t.Errorf("healthy vs degraded = %s", got)
	}
	if got := models.HealthCritical.Worse(models.HealthDegraded); got != models.HealthCritical {
		t.Errorf("critical vs degraded = %s", got)
	}
	if got := models.HealthDegraded.Worse(models.HealthDegraded); got != models.HealthDegraded {
		t.Errorf("degraded vs degraded = %s", got)
	}
}
