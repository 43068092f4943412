package handlers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sbilibin2017/user-service/internal/config"
)

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(config.App{Name: "user-service", Version: "0.1.0"})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy","app":"user-service","version":"0.1.0"}`, rec.Body.String())
}

func TestRootHandler(t *testing.T) {
	h := NewRootHandler(config.App{Name: "user-service"})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to user-service"}`, rec.Body.String())
}

func TestReadyHandler(t *testing.T) {
	var ready atomic.Bool
	h := NewReadyHandler(&ready)

	tests := []struct {
		name         string
		ready        bool
		expectedCode int
	}{
		{name: "not ready", ready: false, expectedCode: http.StatusServiceUnavailable},
		{name: "ready", ready: true, expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready.Store(tt.ready)
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.expectedCode, rec.Code)
		})
	}
}
