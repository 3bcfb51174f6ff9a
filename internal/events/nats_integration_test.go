package events_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/events"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForListeningPort("4222/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return "nats://" + host + ":" + port.Port()
}

func TestNATSPublisherIntegration(t *testing.T) {
	if os.Getenv("OPENATTENDANCE_NATS_TESTS") != "1" {
		t.Skip("set OPENATTENDANCE_NATS_TESTS=1 to run against a NATS container")
	}

	url := startNATS(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("openattendance.>", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := events.NewNATSPublisher(url, "openattendance", logger, metrics.NewMock().Messaging)
	require.NoError(t, err)
	defer p.Close()

	err = p.Publish(context.Background(), events.Event{
		Type:       events.TypeCheckIn,
		Key:        "S-100",
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "openattendance."+events.TypeCheckIn, msg.Subject)
		var got events.Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "S-100", got.Key)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}
