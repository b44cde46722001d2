//go:build integration

package kafka_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/operion-engine/pkg/channels/kafka"
	"github.com/dukex/operion-engine/pkg/eventbus"
	"github.com/dukex/operion-engine/pkg/events"
	"github.com/dukex/operion-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupBroker(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("test-cluster"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(container))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	err = admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false)
	require.NoError(t, err)

	return brokers[0]
}

func TestCreateChannel_DeliversTaskCreated(t *testing.T) {
	broker := setupBroker(t)

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, []string{broker}, "operion-engine-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(slog.New(slog.DiscardHandler), pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	var received atomic.Int32

	require.NoError(t, bus.Handle(events.TaskCreatedEvent, func(_ context.Context, event any) error {
		created, ok := event.(*events.TaskCreated)
		if ok && created.TaskID == "task-1" {
			received.Add(1)
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))

	task := &models.Task{TaskID: "task-1", FlowSessionID: "session-1", Stage: models.StageProduction}

	// The consumer group joins asynchronously and starts at the newest offset.
	assert.Eventually(t, func() bool {
		_ = bus.Publish(ctx, task.FlowSessionID, events.NewTaskCreated(task))

		return received.Load() > 0
	}, time.Minute, 2*time.Second)
}
