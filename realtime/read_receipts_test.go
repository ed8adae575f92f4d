package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pubsub"
)

func pushReceipt(t *testing.T, b *pubsub.MemoryBroker, conversationID, userID, messageID string) {
	t.Helper()
	err := b.EmitChange(pubsub.ReadReceiptsTopic(conversationID), ReadReceiptsTable, "UPDATE", models.ReadReceipt{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: messageID,
	})
	require.NoError(t, err)
}

func TestMarkAsReadDedup(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{}
	r := NewReadReceiptSync(b, backend, nil, "me", nil)
	defer r.Close()
	ctx := context.Background()

	r.SetScope(ctx, "c1", "other")

	require.NoError(t, r.MarkAsRead(ctx, "m1"))
	require.NoError(t, r.MarkAsRead(ctx, "m1"))
	require.NoError(t, r.MarkAsRead(ctx, "m2"))
	require.NoError(t, r.MarkAsRead(ctx, "m1"))

	assert.Equal(t, []string{"c1/m1", "c1/m2", "c1/m1"}, backend.markedCalls())
}

func TestMarkAsReadFailureAllowsRetry(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{}
	notifier := &recordingNotifier{}
	r := NewReadReceiptSync(b, backend, notifier, "me", nil)
	defer r.Close()
	ctx := context.Background()
	r.SetScope(ctx, "c1", "other")

	backend.failMarks(errors.New("offline"))
	assert.Error(t, r.MarkAsRead(ctx, "m1"))
	assert.Equal(t, 1, notifier.count())

	backend.failMarks(nil)
	require.NoError(t, r.MarkAsRead(ctx, "m1"))
	assert.Equal(t, []string{"c1/m1"}, backend.markedCalls())
}

func TestMarkAsReadScopeResetsDedup(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{}
	r := NewReadReceiptSync(b, backend, nil, "me", nil)
	defer r.Close()
	ctx := context.Background()

	r.SetScope(ctx, "c1", "other")
	require.NoError(t, r.MarkAsRead(ctx, "m1"))
	r.SetScope(ctx, "c2", "other")
	require.NoError(t, r.MarkAsRead(ctx, "m1"))

	assert.Equal(t, []string{"c1/m1", "c2/m1"}, backend.markedCalls())
}

func TestMarkAsReadWithoutConversation(t *testing.T) {
	backend := &fakeBackend{}
	r := NewReadReceiptSync(pubsub.NewMemoryBroker(nil), backend, nil, "me", nil)

	require.NoError(t, r.MarkAsRead(context.Background(), "m1"))
	assert.Empty(t, backend.markedCalls())
}

func TestReadPathDisabledWithoutCounterpart(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{}
	r := NewReadReceiptSync(b, backend, nil, "me", nil)
	defer r.Close()
	ctx := context.Background()

	r.SetScope(ctx, "c1", "")

	assert.Equal(t, 0, b.Opened())
	calls, _ := backend.receiptCounts()
	assert.Equal(t, 0, calls)

	require.NoError(t, r.MarkAsRead(ctx, "m1"), "the write path only needs a conversation")
	assert.Equal(t, []string{"c1/m1"}, backend.markedCalls())
}

func TestReadPathInitialQueryAndPush(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{
		receipt: func(_ context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
			return &models.ReadReceipt{ConversationID: conversationID, UserID: userID, LastReadMessageID: "m3"}, nil
		},
	}
	r := NewReadReceiptSync(b, backend, nil, "me", nil)
	defer r.Close()

	r.SetScope(context.Background(), "c1", "other")
	require.Eventually(t, func() bool { return r.OtherLastReadID() == "m3" }, time.Second, time.Millisecond)

	pushReceipt(t, b, "c1", "other", "m4")
	assert.Equal(t, "m4", r.OtherLastReadID())

	pushReceipt(t, b, "c1", "me", "m9")
	assert.Equal(t, "m4", r.OtherLastReadID(), "own pointer is not the counterpart's")
}

func TestReadPathPushWinsOverInFlightQuery(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	gate := make(chan struct{})
	backend := &fakeBackend{
		receipt: func(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
			if err := waitOrDone(ctx, gate); err != nil {
				return nil, err
			}
			return &models.ReadReceipt{ConversationID: conversationID, UserID: userID, LastReadMessageID: "m3"}, nil
		},
	}
	r := NewReadReceiptSync(b, backend, nil, "me", nil)
	defer r.Close()

	r.SetScope(context.Background(), "c1", "other")
	require.Eventually(t, func() bool {
		calls, _ := backend.receiptCounts()
		return calls == 1
	}, time.Second, time.Millisecond)

	pushReceipt(t, b, "c1", "other", "m5")
	close(gate)

	require.Eventually(t, func() bool {
		_, returned := backend.receiptCounts()
		return returned == 1
	}, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return r.OtherLastReadID() == "m5" }, 100*time.Millisecond, time.Millisecond)
	assert.Never(t, func() bool { return r.OtherLastReadID() != "m5" }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestReadPathQueryFailureNotifies(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	notifier := &recordingNotifier{}
	backend := &fakeBackend{
		receipt: func(context.Context, string, string) (*models.ReadReceipt, error) {
			return nil, errors.New("500")
		},
	}
	r := NewReadReceiptSync(b, backend, notifier, "me", nil)
	defer r.Close()

	r.SetScope(context.Background(), "c1", "other")
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "", r.OtherLastReadID())
}

func TestReadPathCloseCancelsQuery(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	notifier := &recordingNotifier{}
	backend := &fakeBackend{
		receipt: func(ctx context.Context, _, _ string) (*models.ReadReceipt, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := NewReadReceiptSync(b, backend, notifier, "me", nil)

	r.SetScope(context.Background(), "c1", "other")
	r.Close()
	r.Close()

	_, returned := backend.receiptCounts()
	assert.Equal(t, 1, returned)
	assert.Equal(t, 0, notifier.count(), "cancellation is not a user-visible failure")
	assert.Equal(t, 1, b.Removed())
	assert.Equal(t, 0, b.Active())
}
