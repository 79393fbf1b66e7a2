package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestServer(config HttpConfig) *HttpServer {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	return NewHttpServer(HttpServerParams{
		Context: context.Background(),
		Config:  config,
		Handlers: []*HttpHandler{
			AsHttpHandler("GET /health", ok).Handler,
		},
		Logger: zap.NewNop(),
	})
}

func TestHttpServer_RoutesHandlers(t *testing.T) {
	s := newTestServer(HttpConfig{Host: "localhost", Port: 8080})

	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Equal(t, "localhost:8080", s.server.Addr)
}

func TestHttpServer_Cors(t *testing.T) {
	s := newTestServer(HttpConfig{Cors: CorsConfig{AllowedOrigins: []string{"http://panel.local"}}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://panel.local")

	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "http://panel.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.local")

	w = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHttpServer_CorsDisabled(t *testing.T) {
	s := newTestServer(HttpConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://panel.local")

	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
