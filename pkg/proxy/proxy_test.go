package proxy

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestProxyForwardsRequest verifies the reverse-proxy equivalence property
// (§8): a request to /terminal/<id>/... reaches the resolved backend with
// the id prefix stripped and forwarding headers set, and the backend's
// response round-trips unchanged.
func TestProxyForwardsRequest(t *testing.T) {
	var gotPath string
	var gotForwardedFor, gotForwardedProto string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
		gotForwardedProto = r.Header.Get("X-Forwarded-Proto")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hello from backend"))
	}))
	defer backend.Close()

	port := backendPort(t, backend)
	p := New(func(id string) (int, bool, error) {
		if id == "builder-0001" {
			return port, true, nil
		}
		return 0, false, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/terminal/builder-0001/xterm.js", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != "hello from backend" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "hello from backend")
	}
	if gotPath != "/xterm.js" {
		t.Errorf("backend saw path %q, want %q", gotPath, "/xterm.js")
	}
	if gotForwardedFor != "203.0.113.7" {
		t.Errorf("X-Forwarded-For = %q, want %q", gotForwardedFor, "203.0.113.7")
	}
	if gotForwardedProto != "http" {
		t.Errorf("X-Forwarded-Proto = %q, want %q", gotForwardedProto, "http")
	}
}

// TestProxyForwardsRootPath verifies a request for /terminal/<id> with no
// trailing sub-path is forwarded as "/", not the empty string.
func TestProxyForwardsRootPath(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	port := backendPort(t, backend)
	p := New(func(id string) (int, bool, error) {
		return port, true, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/terminal/architect", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if gotPath != "/" {
		t.Errorf("backend saw path %q, want %q", gotPath, "/")
	}
}

// TestProxyUnknownID verifies a request whose id the resolver does not
// recognize returns 404 with the {"error": "..."} JSON shape (§6).
func TestProxyUnknownID(t *testing.T) {
	p := New(func(id string) (int, bool, error) {
		return 0, false, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/terminal/ghost/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	assertErrorBody(t, rec)
}

// TestProxyResolverError verifies a resolver error surfaces as a 500 with
// the same JSON error shape, without leaking the underlying error string.
func TestProxyResolverError(t *testing.T) {
	p := New(func(id string) (int, bool, error) {
		return 0, false, errors.New("state store unavailable")
	})

	req := httptest.NewRequest(http.MethodGet, "/terminal/builder-0001/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	body := assertErrorBody(t, rec)
	if body.Error != "internal error" {
		t.Errorf("error body leaked resolver detail: %q", body.Error)
	}
}

// TestProxyNonTerminalPath verifies requests outside /terminal/ are 404s,
// since Proxy is mounted only under that prefix.
func TestProxyNonTerminalPath(t *testing.T) {
	p := New(func(id string) (int, bool, error) {
		return 0, false, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func assertErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Error("error body has empty Error field")
	}
	return body
}

func backendPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	addr, ok := srv.Listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("backend listener address is not TCP: %v", srv.Listener.Addr())
	}
	return addr.Port
}

// TestSplitTerminalPath is a pure-function table test over the path-parsing
// logic that separates the terminal id from its sub-path.
func TestSplitTerminalPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantID   string
		wantRest string
		wantOK   bool
	}{
		{"architect no subpath", "/terminal/architect", "architect", "/", true},
		{"builder with subpath", "/terminal/builder-0001/xterm.js", "builder-0001", "/xterm.js", true},
		{"nested subpath", "/terminal/util-0003/ws/socket", "util-0003", "/ws/socket", true},
		{"trailing slash only", "/terminal/builder-0002/", "builder-0002", "/", true},
		{"wrong prefix", "/api/terminal/architect", "", "", false},
		{"no id", "/terminal/", "", "", false},
		{"empty path", "", "", "", false},
		{"root path", "/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, rest, ok := splitTerminalPath(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("splitTerminalPath(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if id != tt.wantID {
				t.Errorf("splitTerminalPath(%q) id = %q, want %q", tt.path, id, tt.wantID)
			}
			if rest != tt.wantRest {
				t.Errorf("splitTerminalPath(%q) rest = %q, want %q", tt.path, rest, tt.wantRest)
			}
		})
	}
}

// TestIsWebsocketUpgrade covers the Connection-header detection used to
// route a request to TunnelWebSocket instead of the plain reverse proxy.
func TestIsWebsocketUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		connection string
		want       bool
	}{
		{"exact upgrade", "Upgrade", true},
		{"mixed case", "UPGRADE", true},
		{"keep-alive, upgrade", "keep-alive, Upgrade", true},
		{"plain keep-alive", "keep-alive", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/terminal/architect", nil)
			if tt.connection != "" {
				req.Header.Set("Connection", tt.connection)
			}
			if got := isWebsocketUpgrade(req); got != tt.want {
				t.Errorf("isWebsocketUpgrade() = %v, want %v", got, tt.want)
			}
		})
	}
}
