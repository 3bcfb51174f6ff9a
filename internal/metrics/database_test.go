package metrics_test

import (
	"context"
	"testing"

	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
	"github.com/Mizumo-prjkt/openattendance/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func gauge(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "%s is not an int64 gauge", name)
			require.Len(t, g.DataPoints, 1)
			return g.DataPoints[0].Value, true
		}
	}
	return 0, false
}

func TestDatabasePoolGauges(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	meter := provider.Meter("test")

	dm, err := metrics.NewDatabaseMetrics(meter)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	_, found := gauge(t, rm, "db.connections.max_open")
	assert.False(t, found, "no pool is observed before RegisterDB")

	bunDB := testdb.New(t)
	bunDB.DB.SetMaxOpenConns(3)
	require.NoError(t, dm.RegisterDB(bunDB.DB, meter))

	require.NoError(t, reader.Collect(ctx, &rm))
	maxOpen, found := gauge(t, rm, "db.connections.max_open")
	require.True(t, found)
	assert.EqualValues(t, 3, maxOpen)

	for _, name := range []string{"db.connections.open", "db.connections.idle", "db.connections.in_use"} {
		_, found := gauge(t, rm, name)
		assert.True(t, found, name)
	}
}
