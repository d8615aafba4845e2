package api

import (
	"context"
	"sync"
	"time"
)

// SystemStatus represents the health state of the service or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// HealthReport contains the full health report.
type HealthReport struct {
	Status     SystemStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Check probes one component.
type Check func(ctx context.Context) ComponentHealth

// Monitor aggregates component checks. Reports are cached briefly so
// health probes don't hammer the node.
type Monitor struct {
	checks   map[string]Check
	cacheFor time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport HealthReport
}

func NewMonitor(cacheFor time.Duration) *Monitor {
	return &Monitor{checks: make(map[string]Check), cacheFor: cacheFor}
}

// Register adds a named check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
	m.lastCheck = time.Time{}
}

// CheckHealth runs every check. The worst component status wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.cacheFor {
		return m.lastReport
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := HealthReport{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, len(m.checks)),
	}
	for name, check := range m.checks {
		h := check(ctx)
		report.Components[name] = h
		if h.Status == StatusCritical {
			report.Status = StatusCritical
		} else if h.Status == StatusDegraded && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	report.CheckedAt = time.Now().UTC()

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
