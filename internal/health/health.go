// Package health tracks component health for the /health endpoint
package health

import (
	"sort"
	"sync"
	"time"
)

// Overall status values
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents overall system health
type Status struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Critical  bool      `json:"critical,omitempty"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Probe reports a component's health on demand
type Probe func() (healthy bool, message string)

type probe struct {
	fn       Probe
	critical bool
}

// Checker tracks health of system components. Components are either pushed
// with SetComponent or polled through registered probes on every GetStatus.
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	components map[string]Check
	probes     map[string]probe
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		version:    version,
		startTime:  time.Now(),
		components: make(map[string]Check),
		probes:     make(map[string]probe),
	}
}

// SetComponent updates a component's health status
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.components[name]
	c.components[name] = Check{
		Healthy:   healthy,
		Critical:  prev.Critical,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// Register adds a polled component. A failing critical component makes the
// whole service unhealthy rather than degraded.
func (c *Checker) Register(name string, critical bool, fn Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe{fn: fn, critical: critical}
}

// refresh runs every probe outside the lock, then stores the results
func (c *Checker) refresh() {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for k, v := range c.probes {
		probes[k] = v
	}
	c.mu.RUnlock()

	if len(probes) == 0 {
		return
	}

	now := time.Now()
	results := make(map[string]Check, len(probes))
	for name, p := range probes {
		ok, msg := p.fn()
		results[name] = Check{Healthy: ok, Critical: p.critical, Message: msg, LastCheck: now}
	}

	c.mu.Lock()
	for k, v := range results {
		c.components[k] = v
	}
	c.mu.Unlock()
}

// GetStatus polls probes and returns the overall health status
func (c *Checker) GetStatus() Status {
	c.refresh()

	c.mu.RLock()
	defer c.mu.RUnlock()

	status := StatusOK
	components := make(map[string]Check, len(c.components))
	for k, check := range c.components {
		components[k] = check
		if check.Healthy {
			continue
		}
		if check.Critical {
			status = StatusUnhealthy
		} else if status == StatusOK {
			status = StatusDegraded
		}
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Components:    components,
	}
}

// IsHealthy returns true if all components are healthy
func (c *Checker) IsHealthy() bool {
	return c.GetStatus().Status == StatusOK
}

// Failing lists the names of unhealthy components, sorted
func (c *Checker) Failing() []string {
	st := c.GetStatus()
	var names []string
	for name, check := range st.Components {
		if !check.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
