package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_backend_order_state_transitions_total",
		Help: "Order state transitions.",
	}, []string{"from", "to"})
	registry.MustRegister(counter)
	counter.WithLabelValues("CREATED", "PAID").Inc()

	router := gin.New()
	router.GET("/metrics", NewMetricsHandler(registry).Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "channel_backend_order_state_transitions_total")
	assert.Contains(t, body, `from="CREATED",to="PAID"`)
}

func TestMetricsHandlerEmptyRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/metrics", NewMetricsHandler(prometheus.NewRegistry()).Handler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
