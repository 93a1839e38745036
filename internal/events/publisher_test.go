package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_PublishSyncCompleted(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}

	syncedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	err := publisher.PublishSyncCompleted(context.Background(), SyncCompleted{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		DeviceType:   "apple_watch",
		Status:       "synced",
		Success:      true,
		MetricsCount: 2,
		SyncedAt:     syncedAt,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "dev-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventTypeSyncCompleted, string(msg.Headers[0].Value))

	var decoded SyncCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, EventTypeSyncCompleted, decoded.EventType)
	assert.Equal(t, 2, decoded.MetricsCount)
	assert.True(t, decoded.SyncedAt.Equal(syncedAt))
	assert.Nil(t, decoded.NextSyncAt)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker unavailable")}
	publisher := &KafkaPublisher{writer: writer}

	err := publisher.PublishSyncCompleted(context.Background(), SyncCompleted{DeviceID: "dev-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishSyncCompleted(context.Background(), SyncCompleted{}))
	assert.NoError(t, p.Close())
}
