package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/nocturnelabs/vigil/pkg/channels/gochannel"
	"github.com/nocturnelabs/vigil/pkg/channels/kafka"
	"github.com/nocturnelabs/vigil/pkg/eventbus"
)

// NewEventBus creates the event bus for the given provider. "kafka" connects
// to the brokers in KAFKA_BROKERS; anything else uses the in-process
// gochannel bus.
func NewEventBus(provider string, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			return nil, fmt.Errorf("create kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("create gochannel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	}
}
