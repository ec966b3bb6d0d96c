package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/agentfarm/agentfarm/pkg/log"
	"github.com/agentfarm/agentfarm/pkg/metrics"
)

// Resolver maps a terminal id (architect, builder-<id>, util-<id>) to the
// loopback port of its bridge process, reading a fresh State Store snapshot
// on every call — the proxy layer never caches the pid-to-port mapping
// (Design Notes §9).
type Resolver func(id string) (port int, ok bool, err error)

// Proxy is the Dashboard Server's /terminal/<id> reverse proxy. Adapted
// directly from the teacher's pkg/ingress/proxy.go: same Director
// customization, same X-Forwarded-* headers, same bad-gateway error
// handling, here resolving one backend per request instead of load
// balancing across a service's replicas.
type Proxy struct {
	resolve Resolver
}

// New creates a Proxy that resolves terminal ids via resolve.
func New(resolve Resolver) *Proxy {
	return &Proxy{resolve: resolve}
}

// errorBody is the JSON shape returned on 404/502 (§6).
type errorBody struct {
	Error string `json:"error"`
}

// ServeHTTP strips the /terminal/<id> prefix and forwards to the resolved
// backend. WebSocket upgrade requests are detected and handed to
// TunnelWebSocket instead, since ReverseProxy does not itself speak the
// upgrade handshake transparently for this module's purposes.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitTerminalPath(r.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown terminal id")
		metrics.ProxyRequestsTotal.WithLabelValues("not_found").Inc()
		return
	}

	port, found, err := p.resolve(id)
	if err != nil {
		log.Error(fmt.Sprintf("resolve terminal %s: %v", id, err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		metrics.ProxyRequestsTotal.WithLabelValues("bad_gateway").Inc()
		return
	}
	if !found {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown terminal id %q", id))
		metrics.ProxyRequestsTotal.WithLabelValues("not_found").Inc()
		return
	}

	backendAddr := fmt.Sprintf("127.0.0.1:%d", port)

	if isWebsocketUpgrade(r) {
		TunnelWebSocket(w, r, backendAddr, rest)
		return
	}

	targetURL, err := url.Parse(fmt.Sprintf("http://%s", backendAddr))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "invalid backend address")
		return
	}

	rp := httputil.NewSingleHostReverseProxy(targetURL)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = rest
		req.Host = backendAddr
		// X-Forwarded-For is filled in by ReverseProxy with the client IP.
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	failed := false
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		failed = true
		log.Warn(fmt.Sprintf("proxy error for terminal %s (%s): %v", id, backendAddr, err))
		writeJSONError(w, http.StatusBadGateway, "terminal bridge unavailable")
		metrics.ProxyRequestsTotal.WithLabelValues("bad_gateway").Inc()
	}

	rp.ServeHTTP(w, r)
	if !failed {
		metrics.ProxyRequestsTotal.WithLabelValues("ok").Inc()
	}
}

// splitTerminalPath extracts <id> and the remaining sub-path from
// /terminal/<id>[/...].
func splitTerminalPath(path string) (id, rest string, ok bool) {
	const prefix = "/terminal/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	id = parts[0]
	if id == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		rest = "/" + parts[1]
	} else {
		rest = "/"
	}
	return id, rest, true
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Connection"), "upgrade") ||
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
