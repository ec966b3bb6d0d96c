package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agentfarm/agentfarm/pkg/metrics"
	"github.com/agentfarm/agentfarm/pkg/orchestrator"
	"github.com/agentfarm/agentfarm/pkg/pathsafe"
	"github.com/agentfarm/agentfarm/pkg/proxy"
	"github.com/agentfarm/agentfarm/pkg/storage"
	"github.com/agentfarm/agentfarm/pkg/types"
)

// Server is the Dashboard Server for one project (§4.6).
type Server struct {
	projectRoot string
	basePort    int
	store       *storage.Store
	orch        *orchestrator.Orchestrator
	uiDir       string
	log         zerolog.Logger

	router chi.Router
}

// Config configures a Server.
type Config struct {
	ProjectRoot string
	BasePort    int
	Store       *storage.Store
	Orchestrator *orchestrator.Orchestrator
	UIDir       string // optional static asset directory for the dashboard bundle
}

// New builds a Server with all routes registered.
func New(cfg Config, logger zerolog.Logger) *Server {
	s := &Server{
		projectRoot: cfg.ProjectRoot,
		basePort:    cfg.BasePort,
		store:       cfg.Store,
		orch:        cfg.Orchestrator,
		uiDir:       cfg.UIDir,
		log:         logger,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.securityGate)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowCredentials: false,
	}))
	r.Use(s.instrument)

	r.Get("/api/state", s.handleState)
	r.Post("/api/tabs/file", s.handleTabFile)
	r.Post("/api/tabs/builder", s.handleTabBuilder)
	r.Post("/api/tabs/shell", s.handleTabShell)
	r.Delete("/api/tabs/{id}", s.handleTabDelete)
	r.Post("/api/stop", s.handleStop)
	r.Get("/open-file", s.handleOpenFile)
	r.Get("/file", s.handleFile)
	r.Get("/api/projectlist-exists", s.handleProjectListExists)

	p := proxy.New(s.orch.ResolveTerminal)
	r.Handle("/terminal/*", p)

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Get("/*", s.handleStatic)

	return r
}

// securityGate rejects requests whose Host, port aside, is not exactly
// localhost, 127.0.0.1, or a *.localhost name (DNS rebinding defense), and
// whose Origin, if present, names a host outside that same set (§4.6
// Security).
func (s *Server) securityGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := stripPort(r.Host)
		if !isLocalHost(host) {
			writeJSONError(w, http.StatusBadRequest, "invalid host")
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			if u, err := url.ParseRequestURI(origin); err != nil || !isLocalHost(stripPort(u.Host)) {
				writeJSONError(w, http.StatusBadRequest, "invalid origin")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		metrics.DashboardRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.DashboardRequestDuration, route)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost")
}

func stripPort(hostport string) string {
	if i := strings.LastIndex(hostport, ":"); i != -1 {
		return hostport[:i]
	}
	return hostport
}

// handleState returns the current state snapshot (§4.6 GET /api/state),
// after running autocleanup over utility and annotation rows.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.AutoCleanup(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("autocleanup failed during /api/state poll")
	}
	state, err := s.orch.Status()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type tabFileRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleTabFile(w http.ResponseWriter, r *http.Request) {
	var req tabFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := pathsafe.Validate(s.projectRoot, req.Path); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	annotation, err := s.orch.SpawnAnnotation(r.Context(), s.basePort, req.Path, types.AnnotationParentArchitect, "")
	if err != nil {
		s.writeSpawnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": annotation.ID, "port": annotation.Port})
}

type tabBuilderRequest struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

func (s *Server) handleTabBuilder(w http.ResponseWriter, r *http.Request) {
	var req tabBuilderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	builder, err := s.orch.Spawn(r.Context(), s.basePort, orchestrator.SpawnOptions{
		Mode:     orchestrator.SpawnWorktree,
		Name:     req.Name,
		TaskText: req.Task,
	})
	if err != nil {
		s.writeSpawnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, builder)
}

type tabShellRequest struct {
	Name     string `json:"name"`
	Worktree bool   `json:"worktree"`
}

func (s *Server) handleTabShell(w http.ResponseWriter, r *http.Request) {
	var req tabShellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	util, err := s.orch.SpawnUtil(r.Context(), s.basePort, orchestrator.SpawnUtilOptions{
		Name:     req.Name,
		Worktree: req.Worktree,
	})
	if err != nil {
		s.writeSpawnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, util)
}

func (s *Server) handleTabDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	switch {
	case strings.HasPrefix(id, "util-"):
		err = s.orch.DeleteUtil(r.Context(), strings.TrimPrefix(id, "util-"))
	case strings.HasPrefix(id, "annotation-"):
		err = s.orch.DeleteAnnotation(strings.TrimPrefix(id, "annotation-"))
	case strings.HasPrefix(id, "builder-"):
		err = s.orch.Cleanup(r.Context(), strings.TrimPrefix(id, "builder-"), false)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown tab id")
		return
	}
	if err != nil {
		s.writeSpawnError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "stop failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOpenFile serves a tiny HTML page that posts a cross-document
// message naming the path and line, then closes itself (§4.6).
func (s *Server) handleOpenFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	line := r.URL.Query().Get("line")
	if _, err := pathsafe.Validate(s.projectRoot, path); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	payload, _ := json.Marshal(map[string]string{"path": path, "line": line})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!doctype html><html><body><script>
window.opener && window.opener.postMessage(` + string(payload) + `, window.location.origin);
window.close();
</script></body></html>`))
}

// handleFile returns raw file bytes with path validation (§4.6 GET /file).
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	resolved, err := pathsafe.Validate(s.projectRoot, path)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Write(data)
}

func (s *Server) handleProjectListExists(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(filepath.Join(s.projectRoot, "codev", "projects.json"))
	writeJSON(w, http.StatusOK, map[string]bool{"exists": err == nil})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.uiDir == "" {
		http.NotFound(w, r)
		return
	}
	http.FileServer(http.Dir(s.uiDir)).ServeHTTP(w, r)
}

func (s *Server) writeSpawnError(w http.ResponseWriter, err error) {
	switch err {
	case orchestrator.ErrTabLimit:
		writeJSONError(w, http.StatusConflict, err.Error())
	case storage.ErrPortConflict:
		writeJSONError(w, http.StatusConflict, err.Error())
	case storage.ErrNotFound:
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the Dashboard Server bound to 127.0.0.1:basePort+0 unless
// allowInsecureRemote is set, and blocks until the context is cancelled,
// draining in-flight connections with a 2s grace (§5 Cancellation).
func Serve(ctx context.Context, handler http.Handler, basePort int, allowInsecureRemote bool) error {
	addr := "127.0.0.1:" + strconv.Itoa(basePort)
	if allowInsecureRemote {
		addr = "0.0.0.0:" + strconv.Itoa(basePort)
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
