package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/pubsub"
)

func joinAs(t *testing.T, b *pubsub.MemoryBroker, userID string) pubsub.Channel {
	t.Helper()
	ch := b.Channel(pubsub.PresenceGlobal, pubsub.WithPresenceKey(userID)).Subscribe(nil)
	require.NoError(t, ch.Track(context.Background(), PresencePayload{UserID: userID}))
	return ch
}

func TestPresenceTracksOnSubscribe(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, NewScheduler(clock.NewMock()), nil)

	p.Start(context.Background(), "me")

	assert.Equal(t, Synced, p.State())
	assert.True(t, p.IsOnline("me"))
	assert.Equal(t, []string{"me"}, b.State(pubsub.PresenceGlobal).Keys())
}

func TestPresenceSnapshotReplacement(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	p.Start(context.Background(), "me")

	a := joinAs(t, b, "A")
	joinAs(t, b, "B")
	assert.True(t, p.IsOnline("A"))
	assert.True(t, p.IsOnline("B"))
	assert.False(t, p.IsOnline("C"))

	require.NoError(t, b.RemoveChannel(a))
	joinAs(t, b, "C")

	assert.False(t, p.IsOnline("A"))
	assert.True(t, p.IsOnline("B"))
	assert.True(t, p.IsOnline("C"))
	assert.Equal(t, []string{"B", "C", "me"}, p.OnlineUserIDs())
}

func TestPresenceOnChange(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)

	var last []string
	p.OnChange(func(ids []string) { last = ids })
	p.Start(context.Background(), "me")
	joinAs(t, b, "A")

	assert.Equal(t, []string{"A", "me"}, last)
}

func TestPresenceAppStateTransitions(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	ctx := context.Background()
	p.Start(ctx, "me")

	p.SetAppState(ctx, AppBackground)
	assert.Empty(t, b.State(pubsub.PresenceGlobal).Keys())
	assert.False(t, p.IsOnline("me"))
	assert.Equal(t, Synced, p.State(), "background keeps the subscription")

	p.SetAppState(ctx, AppForeground)
	assert.Equal(t, []string{"me"}, b.State(pubsub.PresenceGlobal).Keys())
	assert.True(t, p.IsOnline("me"))
}

func TestPresenceStartInBackgroundDoesNotTrack(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	ctx := context.Background()

	p.SetAppState(ctx, AppBackground)
	p.Start(ctx, "me")

	assert.Equal(t, Synced, p.State())
	assert.Empty(t, b.State(pubsub.PresenceGlobal).Keys())
}

func TestPresenceTrackFailureKeepsSnapshot(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	ctx := context.Background()

	joinAs(t, b, "A")
	b.FailPresence(errors.New("broker down"), errors.New("broker down"))
	p.Start(ctx, "me")

	assert.Equal(t, Synced, p.State())
	assert.Equal(t, []string{"A"}, p.OnlineUserIDs())

	p.SetAppState(ctx, AppBackground)
	assert.Equal(t, []string{"A"}, p.OnlineUserIDs())
}

func TestPresenceEmptyUserOpensNothing(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)

	p.Start(context.Background(), "")

	assert.Equal(t, 0, b.Opened())
	assert.Equal(t, Disconnected, p.State())
}

func TestPresenceDeniedChannel(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	b.Deny(pubsub.PresenceGlobal, errors.New("denied"))
	p := NewPresenceTracker(b, nil, nil)

	p.Start(context.Background(), "me")
	assert.Equal(t, Disconnected, p.State())
}

func TestPresenceCloseTearsDownOnce(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	p.Start(context.Background(), "me")
	p.Start(context.Background(), "me")
	require.Equal(t, 1, b.Opened())

	p.Close()
	p.Close()

	assert.Equal(t, 1, b.Removed())
	assert.Equal(t, 0, b.Active())
	assert.Equal(t, Disconnected, p.State())
	assert.False(t, p.IsOnline("me"))
	assert.Empty(t, b.State(pubsub.PresenceGlobal).Keys())
}

func TestPresenceSwitchingUser(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	p := NewPresenceTracker(b, nil, nil)
	ctx := context.Background()

	p.Start(ctx, "first")
	p.Start(ctx, "second")

	assert.Equal(t, 2, b.Opened())
	assert.Equal(t, 1, b.Removed())
	assert.Equal(t, []string{"second"}, b.State(pubsub.PresenceGlobal).Keys())
	assert.Equal(t, []string{"second"}, p.OnlineUserIDs())
}
