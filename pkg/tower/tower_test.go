package tower

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_RespondsTrueForHealthyDashboard(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	port := backend.Listener.Addr().(*net.TCPAddr).Port
	s := &Server{log: zerolog.Nop()}
	require.True(t, s.probe(context.Background(), port))
}

func TestProbe_RespondsFalseWhenNothingListening(t *testing.T) {
	s := &Server{log: zerolog.Nop()}
	assert.False(t, s.probe(context.Background(), 1)) // port 1 requires root; nothing listens there in tests
}

func TestServeHTTP_RejectsNonGet(t *testing.T) {
	s := &Server{log: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
