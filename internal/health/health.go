package health

import (
	"context"
	"fmt"
	"time"

	"swiftdrop/server/internal/store"
)

// sweeperGrace is added to two sweep intervals before a silent sweeper is reported unhealthy.
const sweeperGrace = 5 * time.Second

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Detail  string        `json:"detail,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Detail != "" {
			s += fmt.Sprintf(" %s", c.Detail)
		}
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

type Registry interface {
	Stats() store.Stats
}

type Sweeper interface {
	StartedAt() time.Time
	LastTick() time.Time
	Interval() time.Duration
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, reg Registry, sw Sweeper) HealthStatus {
	checks := []CheckResult{
		checkRegistry(ctx, reg),
		checkSweeper(ctx, sw, time.Now()),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkRegistry(ctx context.Context, reg Registry) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "registry"}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	st := reg.Stats()
	result.Detail = fmt.Sprintf("sessions=%d devices=%d", st.Sessions, st.Devices)
	result.Latency = time.Since(start)
	result.OK = true
	return result
}

func checkSweeper(ctx context.Context, sw Sweeper, now time.Time) (result CheckResult) {
	start := time.Now()
	result.Name = "sweeper"
	defer func() { result.Latency = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}
	started := sw.StartedAt()
	if started.IsZero() {
		result.Error = "sweeper not running"
		return result
	}

	budget := 2*sw.Interval() + sweeperGrace
	last := sw.LastTick()
	if last.IsZero() {
		if now.Sub(started) > budget {
			result.Error = fmt.Sprintf("no sweep since start %s ago", now.Sub(started).Round(time.Second))
			return result
		}
		result.Detail = "waiting for first sweep"
		result.OK = true
		return result
	}
	if age := now.Sub(last); age > budget {
		result.Error = fmt.Sprintf("last sweep %s ago (interval %s)", age.Round(time.Second), sw.Interval())
		return result
	}
	result.Detail = fmt.Sprintf("last sweep %s ago", now.Sub(last).Round(time.Millisecond))
	result.OK = true
	return result
}
