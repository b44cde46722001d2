package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/operion-engine/pkg/channels/gochannel"
	"github.com/dukex/operion-engine/pkg/channels/kafka"
	"github.com/dukex/operion-engine/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus returns nil when provider is empty; the engine then runs on its own
// wake signal only.
func NewEventBus(provider, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "":
		return nil, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, kafka.ParseBrokers(kafkaBrokers), "operion-engine")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventBus, provider)
	}
}
