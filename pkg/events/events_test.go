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

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByConversation(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := New(NegotiationUpdated, "conv-1", "alice", at, map[string]string{"status": "countered"})
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "conv-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "negotiation.updated", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, NegotiationUpdated, decoded.Type)
	assert.Equal(t, "alice", decoded.ActorID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&fakeWriter{err: boom}, nil)

	err := p.Publish(context.Background(), New(MeetupCreated, "c", "a", time.Now(), nil))
	assert.ErrorIs(t, err, boom)
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a := New(MessageCreated, "c", "u", time.Now(), nil)
	b := New(MessageCreated, "c", "u", time.Now(), nil)
	assert.NotEqual(t, a.ID, b.ID)

	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), a))
	assert.NoError(t, p.Close())
}
