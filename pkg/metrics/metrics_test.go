package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetricsWith(prometheus.NewRegistry(), "test")

	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/items/1", "/items/2", "/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequests.WithLabelValues(http.MethodGet, "/items/:id", "204")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.APIRequests))
}

func TestSeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetricsWith(prometheus.NewRegistry(), "a")
		NewMetricsWith(prometheus.NewRegistry(), "a")
	})
}
