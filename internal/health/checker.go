// Package health reports readiness of the server's backing stores over gRPC health and HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CheckFunc reports whether one dependency is reachable.
type CheckFunc func(ctx context.Context) error

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) CheckFunc { return p.PingContext }

// Checker runs named dependency checks and mirrors the overall result into a gRPC health server.
// With no checks registered the service is always serving.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	grpc   *health.Server
	log    *slog.Logger
}

func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{checks: make(map[string]CheckFunc), grpc: health.NewServer(), log: log}
}

// Add registers a check under name. A nil check is ignored.
func (c *Checker) Add(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// GRPCServer returns the grpc.health.v1 implementation kept in sync by Check.
func (c *Checker) GRPCServer() healthpb.HealthServer { return c.grpc }

// Check runs every check and returns the failures by name. The gRPC serving status is updated
// to match.
func (c *Checker) Check(ctx context.Context) map[string]error {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	failed := map[string]error{}
	for _, n := range names {
		c.mu.RLock()
		check := c.checks[n]
		c.mu.RUnlock()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			failed[n] = err
		}
	}
	status := healthpb.HealthCheckResponse_SERVING
	if len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.grpc.SetServingStatus("", status)
	return failed
}

// Run re-checks every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for name, err := range c.Check(ctx) {
				c.log.WarnContext(ctx, "health check failed", "check", name, "error", err)
			}
		}
	}
}

// Shutdown marks the service not serving so load balancers drain it.
func (c *Checker) Shutdown() { c.grpc.Shutdown() }

// ServeHTTP answers 200 {"status":"ok"} or 503 with the failing checks.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	failed := c.Check(r.Context())
	body := map[string]any{"status": "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		code = http.StatusServiceUnavailable
		errs := make(map[string]string, len(failed))
		for n, err := range failed {
			errs[n] = err.Error()
		}
		body = map[string]any{"status": "unavailable", "checks": errs}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
