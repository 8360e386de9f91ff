package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRouterRegistersRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := &MockBookingUseCase{}
	mockService.On("ReleaseTable", mock.Anything, 3).Return(nil)

	router := NewRouter(RouterParams{
		Reservations: NewReservationHandler(mockService, nil, nil),
		Waitlist:     NewWaitlistHandler(&MockWaitlistUseCase{}, nil),
		Gatherer:     prometheus.NewRegistry(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tables/3/release", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))

	mockService.AssertExpectations(t)
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterParams{Health: map[string]Pinger{
		"store": stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)
}

func TestRecovererReturnsInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterParams{})
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL_ERROR"`)
}
