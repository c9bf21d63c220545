package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher returns a kafka publisher when brokers are configured.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, order events disabled")
		return NewNopPublisher()
	}

	topic := strings.TrimSpace(cfg.Kafka.OrderTopic)
	publisher := NewKafkaPublisher(cfg.Kafka.Brokers, topic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	log.Info("order events enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", topic),
	)
	return publisher
}
