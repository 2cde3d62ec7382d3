package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Mocks
// =============================================================================

type stubChecker struct {
	err   error
	calls atomic.Int32
}

func (s *stubChecker) Health(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

// =============================================================================
// Tests
// =============================================================================

func TestCheckHealth(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name       string
		storeErr   error
		backupErr  error
		wantStatus SystemStatus
	}{
		{"all healthy", nil, nil, StatusHealthy},
		{"backup down degrades", nil, down, StatusDegraded},
		{"store down is critical", down, nil, StatusCritical},
		{"both down", down, down, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(time.Minute,
				Component{Name: "store", Critical: true, Checker: &stubChecker{err: tt.storeErr}},
				Component{Name: "backup", Checker: &stubChecker{err: tt.backupErr}},
			)

			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.wantStatus {
				t.Errorf("status = %s, want %s", report.SystemStatus, tt.wantStatus)
			}
			if len(report.Components) != 2 {
				t.Fatalf("components = %d, want 2", len(report.Components))
			}
			if tt.storeErr != nil && report.Components["store"].Error == "" {
				t.Error("store error not reported")
			}
		})
	}
}

func TestCheckHealthCachesReport(t *testing.T) {
	c := &stubChecker{}
	m := NewMonitor(time.Minute, Component{Name: "store", Critical: true, Checker: c})

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())
	if got := c.calls.Load(); got != 1 {
		t.Errorf("checker calls = %d, want 1", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	m := NewMonitor(time.Minute,
		Component{Name: "store", Critical: true, Checker: CheckerFunc(func(ctx context.Context) error {
			return errors.New("down")
		})},
	)
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed: %v", err)
	}
	defer resp.Body.Close()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Components["store"].Status != StatusCritical {
		t.Errorf("report = %+v", report)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("metrics content type = %q", ct)
	}
}
