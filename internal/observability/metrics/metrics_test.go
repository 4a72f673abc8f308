package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "created"),
		attribute.String("user_id", "456"),
		attribute.String("ticket_id", "789"),
		attribute.String("provider", "stripe"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.ElementsMatch(t, []attribute.Key{"outcome", "provider"}, keys)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPurchase(context.Background(), "created", true)
		m.RecordPayout(context.Background(), "transferred", 1200)
		m.RecordOverCapacity(context.Background())
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "stagepass"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotNil(t, m.purchases)
	assert.NotNil(t, m.rateLimitDenied)

	httpMetrics, err := NewHTTPMetrics(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotNil(t, httpMetrics.GinMiddleware())
}
