package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	created   []kafka.TopicConfig
	deleted   []string
	createErr error
	deleteErr error
	closed    bool
}

func (c *fakeConn) CreateTopics(topics ...kafka.TopicConfig) error {
	c.created = append(c.created, topics...)
	return c.createErr
}

func (c *fakeConn) DeleteTopics(topics ...string) error {
	c.deleted = append(c.deleted, topics...)
	return c.deleteErr
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestAdmin(conn *fakeConn, dialErr error) *TopicAdmin {
	a := NewTopicAdmin(zerolog.Nop())
	a.dial = func(ctx context.Context, endpoint string) (topicConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
	return a
}

func TestTopicAdmin_Create(t *testing.T) {
	conn := &fakeConn{}
	a := newTestAdmin(conn, nil)

	err := a.Create(context.Background(), "localhost:9092", "benchmark-x", 3, 1)
	require.NoError(t, err)
	require.Len(t, conn.created, 1)
	require.Equal(t, kafka.TopicConfig{Topic: "benchmark-x", NumPartitions: 3, ReplicationFactor: 1}, conn.created[0])
	require.True(t, conn.closed)
}

func TestTopicAdmin_CreateErrors(t *testing.T) {
	a := newTestAdmin(nil, errors.New("refused"))
	require.Error(t, a.Create(context.Background(), "localhost:9092", "t", 1, 1))

	conn := &fakeConn{createErr: errors.New("topic exists")}
	a = newTestAdmin(conn, nil)
	require.Error(t, a.Create(context.Background(), "localhost:9092", "t", 1, 1))
	require.True(t, conn.closed)
}

func TestTopicAdmin_Delete(t *testing.T) {
	conn := &fakeConn{}
	a := newTestAdmin(conn, nil)

	err := a.Delete(context.Background(), "localhost:9092", "benchmark-x")
	require.NoError(t, err)
	require.Equal(t, []string{"benchmark-x"}, conn.deleted)
	require.True(t, conn.closed)

	conn.deleteErr = errors.New("unknown topic")
	require.Error(t, a.Delete(context.Background(), "localhost:9092", "benchmark-x"))
}
