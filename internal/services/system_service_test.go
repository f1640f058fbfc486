package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Critical: true},
			"redis":     {Status: domain.HealthStatusError},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock(start.Add(5 * time.Minute)),
		Build:            BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "staging", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("non-critical failure should degrade, got %s", report.Status)
	}
	if report.Version != "1.4.0" || report.Environment != "staging" || report.Uptime != 5*time.Minute {
		t.Fatalf("unexpected metadata %+v", report)
	}
}

func TestSystemServiceCriticalFailureIsError(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusError, Critical: true}},
	}}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo, Clock: fixedClock(testNow)})
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
}

func TestSystemServicePropagatesCollectError(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("boom")}
	svc, _ := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if repo.calls != 1 {
		t.Fatalf("expected one collect call, got %d", repo.calls)
	}
}
