package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalHost(t *testing.T) {
	assert.True(t, isLocalHost("localhost"))
	assert.True(t, isLocalHost("127.0.0.1"))
	assert.False(t, isLocalHost("evil.example.com"))
	assert.False(t, isLocalHost(""))
}

func TestStripPort(t *testing.T) {
	assert.Equal(t, "localhost", stripPort("localhost:4200"))
	assert.Equal(t, "127.0.0.1", stripPort("127.0.0.1:4200"))
	assert.Equal(t, "localhost", stripPort("localhost"))
}

func TestSecurityGate_RejectsForeignHost(t *testing.T) {
	s := &Server{}
	var called bool
	h := s.securityGate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "http://evil.example.com/api/state", nil)
	req.Host = "evil.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityGate_AllowsLocalhost(t *testing.T) {
	s := &Server{}
	var called bool
	h := s.securityGate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "http://localhost:4200/api/state", nil)
	req.Host = "localhost:4200"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleFile_RejectsPathTraversal(t *testing.T) {
	s := &Server{projectRoot: t.TempDir()}
	req := httptest.NewRequest(http.MethodGet, "/file?path=../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	s.handleFile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOpenFile_RejectsPathTraversal(t *testing.T) {
	s := &Server{projectRoot: t.TempDir()}
	req := httptest.NewRequest(http.MethodGet, "/open-file?path=%2e%2e/etc/passwd&line=1", nil)
	rec := httptest.NewRecorder()
	s.handleOpenFile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
