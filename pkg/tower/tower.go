package tower

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentfarm/agentfarm/pkg/health"
	"github.com/agentfarm/agentfarm/pkg/registry"
)

// probeTimeout bounds each dashboard liveness probe so one stuck project
// never stalls a Tower request against all the others.
const probeTimeout = time.Second

// Row is one project entry in GET / (§4.7, SUPPLEMENTARY DETAIL).
type Row struct {
	Path     string `json:"path"`
	BasePort int    `json:"basePort"`
	Alive    bool   `json:"alive"`
}

// Server lists every registered project and its dashboard's current
// liveness.
type Server struct {
	reg *registry.Registry
	log zerolog.Logger
}

// New creates a Tower Server over reg.
func New(reg *registry.Registry, logger zerolog.Logger) *Server {
	return &Server{reg: reg, log: logger}
}

// ServeHTTP implements http.Handler. GET / returns the JSON array of rows;
// any other method is rejected.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allocations, err := s.reg.List()
	if err != nil {
		http.Error(w, "failed to list port registry", http.StatusInternalServerError)
		return
	}

	rows := make([]Row, 0, len(allocations))
	for _, a := range allocations {
		row := Row{Path: a.Path, BasePort: a.BasePort}
		if a.Exists {
			row.Alive = s.probe(r.Context(), a.BasePort)
		}
		rows = append(rows, row)
	}

	writeJSON(w, rows)
}

// probe checks whether a project's dashboard responds at /api/state,
// probed fresh rather than cached (SPEC_FULL's resolution of the Open
// Question).
func (s *Server) probe(ctx context.Context, basePort int) bool {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	checker := health.NewHTTPChecker(fmt.Sprintf("http://127.0.0.1:%d/api/state", basePort)).
		WithTimeout(probeTimeout)
	return checker.Check(checkCtx).Healthy
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
