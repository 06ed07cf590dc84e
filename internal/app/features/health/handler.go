// internal/app/features/health/handler.go
//
// Package health answers load balancer checks. A request passes only when
// the metadata database and the blob backend both respond.
package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Dependency is one backing service the check covers.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// Database pings the primary of the metadata store.
func Database(client *mongo.Client) Dependency {
	return Dependency{Name: "database", Check: func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}}
}

// Storage wraps a blob backend check.
func Storage(check func(ctx context.Context) error) Dependency {
	return Dependency{Name: "storage", Check: check}
}

type Handler struct {
	backend string
	deps    []Dependency
	log     *zap.Logger
}

func NewHandler(backend string, logger *zap.Logger, deps ...Dependency) *Handler {
	return &Handler{backend: backend, deps: deps, log: logger}
}

type report struct {
	Status  string            `json:"status"`
	Backend string            `json:"backend,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// Serve handles GET and HEAD /health. Every dependency shares one ping
// budget; any failure turns the answer into 503 with status "degraded".
// Error details go to the log, never to the response.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	rep := report{Status: "ok", Backend: h.backend, Checks: make(map[string]string, len(h.deps))}
	code := http.StatusOK
	for _, d := range h.deps {
		if err := d.Check(ctx); err != nil {
			h.log.Error("health: dependency unavailable", zap.String("dependency", d.Name), zap.Error(err))
			rep.Checks[d.Name] = "unavailable"
			rep.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[d.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
