package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL limits how often components are actually probed.
const DefaultCacheTTL = 10 * time.Second

// Monitor aggregates health status from the registered components.
type Monitor struct {
	components []Component
	timeout    time.Duration
	cacheTTL   time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. cacheTTL <= 0 uses DefaultCacheTTL.
func NewMonitor(cacheTTL time.Duration, components ...Component) *Monitor {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Monitor{
		components: components,
		timeout:    3 * time.Second,
		cacheTTL:   cacheTTL,
	}
}

// CheckHealth probes every component, reusing a recent report when one exists.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.components)),
	}

	for _, c := range m.components {
		h := m.probe(ctx, c)
		report.Components[c.Name] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func (m *Monitor) probe(ctx context.Context, c Component) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := c.Checker.Health(ctx)
	h := ComponentHealth{
		Name:      c.Name,
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		h.Error = err.Error()
		h.Status = StatusDegraded
		if c.Critical {
			h.Status = StatusCritical
		}
	}
	return h
}

func worst(a, b SystemStatus) SystemStatus {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
