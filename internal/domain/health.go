package domain

import (
	"sort"
	"time"
)

// Readiness levels, from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is one probe result (firestore, secretManager, broker).
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// Failed reports whether the probe returned anything but ok.
func (c SystemHealthCheck) Failed() bool {
	return c.Status != "" && c.Status != HealthStatusOK
}

// SystemHealthReport is what /readyz renders.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Ready is true only when the overall status is ok; degraded instances leave the load balancer.
func (r SystemHealthReport) Ready() bool {
	return r.Status == HealthStatusOK
}

// CheckNames returns the probe names in lexical order.
func (r SystemHealthReport) CheckNames() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
