package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsUnknownKeys(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "paystack"),
		attribute.String("reference", "SFP-01H"),
		attribute.String("email", "ama@example.com"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
}

func TestRecordReconcileCountsOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "storefront"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordReconcile(ctx, "paystack", "webhook", "completed")
	m.RecordReconcile(ctx, "paystack", "webhook", "completed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sum := counterValue(t, rm, "storefront_payments_reconciled_total")
	assert.Equal(t, int64(2), sum)
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	httpMetrics, err := NewHTTPMetrics(Config{}, provider)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterValue(t, rm, "storefront_http_requests_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated(context.Background(), "GHS")
	m.RecordWebhook(context.Background(), "paystack", "charge.success", "processed")
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
