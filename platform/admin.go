package platform

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// topicConn is the slice of kafka.Conn the admin depends on.
type topicConn interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	Close() error
}

// TopicAdmin performs topic provisioning against a running platform.
type TopicAdmin struct {
	logger zerolog.Logger
	dial   func(ctx context.Context, endpoint string) (topicConn, error)
}

func NewTopicAdmin(logger zerolog.Logger) *TopicAdmin {
	return &TopicAdmin{
		logger: logger.With().Str("component", "topics").Logger(),
		dial: func(ctx context.Context, endpoint string) (topicConn, error) {
			return kafka.DialContext(ctx, "tcp", endpoint)
		},
	}
}

// Create provisions the test topic.
func (a *TopicAdmin) Create(ctx context.Context, endpoint, name string, partitions, replicationFactor int) error {
	conn, err := a.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             name,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", name, err)
	}
	a.logger.Info().Str("topic", name).Int("partitions", partitions).Msg("Topic created")
	return nil
}

// Delete removes the test topic. Deletion runs during teardown, so callers
// typically log rather than propagate its error.
func (a *TopicAdmin) Delete(ctx context.Context, endpoint, name string) error {
	conn, err := a.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	if err := conn.DeleteTopics(name); err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", name, err)
	}
	a.logger.Info().Str("topic", name).Msg("Topic deleted")
	return nil
}
