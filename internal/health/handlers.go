package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The server clears it when shutdown starts so load balancers
// stop routing before connections drain.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency. Optional probes are reported without failing readiness.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// RedisProbe pings the session store.
func RedisProbe(client *redis.Client) Probe {
	return Probe{Name: "redis", Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Probes  []Probe
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe within Timeout and answers 503 when a required one fails or the
// server is shutting down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.Probes)+1)
	healthy := len(h.Probes) > 0
	for _, p := range h.Probes {
		if err := h.run(r.Context(), p); err != nil {
			checks[p.Name] = err.Error()
			if !p.Optional {
				healthy = false
			}
			continue
		}
		checks[p.Name] = "ok"
	}
	if !ready.Load() {
		checks["server"] = "shutting down"
		healthy = false
	}

	code, status := http.StatusOK, "ok"
	if !healthy {
		code, status = http.StatusServiceUnavailable, "unavailable"
	}
	common.JSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h Handler) run(ctx context.Context, p Probe) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}
