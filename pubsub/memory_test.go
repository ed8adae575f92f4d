package pubsub

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroadcastSkipsSender(t *testing.T) {
	b := NewMemoryBroker(nil)
	ctx := context.Background()

	var gotA, gotB []Event
	a := b.Channel("typing:c1").On(KindBroadcast, "typing", func(ev Event) { gotA = append(gotA, ev) })
	bb := b.Channel("typing:c1").On(KindBroadcast, "typing", func(ev Event) { gotB = append(gotB, ev) })
	a.Subscribe(nil)
	bb.Subscribe(nil)

	require.NoError(t, a.Send(ctx, "typing", map[string]any{"user_id": "u1", "is_typing": true}))

	assert.Empty(t, gotA)
	require.Len(t, gotB, 1)
	assert.Equal(t, "typing:c1", gotB[0].Topic)

	var payload struct {
		UserID   string `json:"user_id"`
		IsTyping bool   `json:"is_typing"`
	}
	require.NoError(t, gotB[0].Decode(&payload))
	assert.Equal(t, "u1", payload.UserID)
	assert.True(t, payload.IsTyping)
}

func TestMemoryFilterByEventName(t *testing.T) {
	b := NewMemoryBroker(nil)
	ctx := context.Background()

	var named, all int
	recv := b.Channel("t").
		On(KindBroadcast, "wanted", func(Event) { named++ }).
		On(KindBroadcast, Any, func(Event) { all++ })
	recv.Subscribe(nil)
	send := b.Channel("t").Subscribe(nil)

	require.NoError(t, send.Send(ctx, "wanted", nil))
	require.NoError(t, send.Send(ctx, "other", nil))

	assert.Equal(t, 1, named)
	assert.Equal(t, 2, all)
}

func TestMemorySendBeforeSubscribe(t *testing.T) {
	b := NewMemoryBroker(nil)
	ch := b.Channel("t")
	assert.ErrorIs(t, ch.Send(context.Background(), "x", nil), ErrNotSubscribed)
	assert.ErrorIs(t, ch.Track(context.Background(), nil), ErrNotSubscribed)
}

func TestMemoryPresenceSnapshots(t *testing.T) {
	b := NewMemoryBroker(nil)
	ctx := context.Background()

	var syncs int
	watcher := b.Channel(PresenceGlobal, WithPresenceKey("w")).
		On(KindPresence, PresenceSync, func(Event) { syncs++ })
	watcher.Subscribe(nil)
	assert.Equal(t, 1, syncs, "joiner receives the current state")

	alice := b.Channel(PresenceGlobal, WithPresenceKey("alice")).Subscribe(nil)
	bob := b.Channel(PresenceGlobal, WithPresenceKey("bob")).Subscribe(nil)

	require.NoError(t, alice.Track(ctx, map[string]string{"device": "phone"}))
	require.NoError(t, bob.Track(ctx, nil))

	keys := watcher.PresenceState().Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"alice", "bob"}, keys)

	require.NoError(t, alice.Untrack(ctx))
	assert.Equal(t, []string{"bob"}, watcher.PresenceState().Keys())

	require.NoError(t, b.RemoveChannel(bob))
	assert.Empty(t, watcher.PresenceState().Keys())
	assert.Empty(t, b.State(PresenceGlobal).Keys())
}

func TestMemoryRemoveChannelIsIdempotent(t *testing.T) {
	b := NewMemoryBroker(nil)

	var statuses []Status
	ch := b.Channel("t").Subscribe(func(s Status, _ error) { statuses = append(statuses, s) })
	require.Equal(t, 1, b.Subscribers("t"))

	require.NoError(t, b.RemoveChannel(ch))
	require.NoError(t, b.RemoveChannel(ch))

	assert.Equal(t, 1, b.Removed())
	assert.Equal(t, 0, b.Active())
	assert.Equal(t, 0, b.Subscribers("t"))
	assert.Equal(t, []Status{StatusSubscribed, StatusClosed}, statuses)
	assert.ErrorIs(t, ch.Send(context.Background(), "x", nil), ErrChannelClosed)
}

func TestMemoryDeniedTopic(t *testing.T) {
	b := NewMemoryBroker(nil)
	denied := errors.New("not a member")
	b.Deny("read-receipts-c1", denied)

	var status Status
	var got error
	b.Channel("read-receipts-c1").Subscribe(func(s Status, err error) {
		status = s
		got = err
	})

	assert.Equal(t, StatusChannelError, status)
	assert.ErrorIs(t, got, denied)
	assert.Equal(t, 0, b.Subscribers("read-receipts-c1"))
}

func TestMemoryEmitChange(t *testing.T) {
	b := NewMemoryBroker(nil)

	var got Event
	b.Channel("conversation-status:c1").
		On(KindChange, Any, func(ev Event) { got = ev }).
		Subscribe(nil)

	require.NoError(t, b.EmitChange("conversation-status:c1", "negotiation_status", "UPDATE", map[string]string{"status": "accepted"}))

	assert.Equal(t, KindChange, got.Kind)
	assert.Equal(t, "negotiation_status", got.Name)
	assert.Equal(t, "UPDATE", got.Action)
	assert.JSONEq(t, `{"status":"accepted"}`, string(got.Payload))
}
