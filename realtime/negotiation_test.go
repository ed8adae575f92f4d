package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pubsub"
)

func statusOf(s models.NegotiationState) *models.NegotiationStatus {
	return &models.NegotiationStatus{ConversationID: "c1", Status: s}
}

func emitStatusChange(t *testing.T, b *pubsub.MemoryBroker, conversationID string) {
	t.Helper()
	require.NoError(t, b.EmitChange(pubsub.ConversationStatusTopic(conversationID), "negotiation_status", "UPDATE", map[string]string{"conversation_id": conversationID}))
}

func TestNegotiationRefetchOnNotify(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)

	var mu sync.Mutex
	current := models.NegotiationPending
	backend := &fakeBackend{
		status: func(context.Context, int, string) (*models.NegotiationStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			return statusOf(current), nil
		},
	}
	s := NewNegotiationStatusSync(b, backend, nil, nil)
	defer s.Close()

	s.SetScope(context.Background(), "c1")
	require.Eventually(t, func() bool {
		st := s.Status()
		return st != nil && st.Status == models.NegotiationPending
	}, time.Second, time.Millisecond)

	mu.Lock()
	current = models.NegotiationAccepted
	mu.Unlock()
	emitStatusChange(t, b, "c1")

	require.Eventually(t, func() bool {
		return s.Status().Status == models.NegotiationAccepted
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, backend.statusCallCount())
}

func TestNegotiationAppliesOnlyLatestRefetch(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)

	slow := make(chan struct{})
	backend := &fakeBackend{
		status: func(ctx context.Context, call int, _ string) (*models.NegotiationStatus, error) {
			switch call {
			case 1:
				return statusOf(models.NegotiationPending), nil
			case 2:
				if err := waitOrDone(ctx, slow); err != nil {
					return nil, err
				}
				return statusOf(models.NegotiationCountered), nil
			default:
				return statusOf(models.NegotiationDeclined), nil
			}
		},
	}
	s := NewNegotiationStatusSync(b, backend, nil, nil)
	defer s.Close()

	var mu sync.Mutex
	var applied []models.NegotiationState
	s.OnChange(func(st *models.NegotiationStatus) {
		mu.Lock()
		applied = append(applied, st.Status)
		mu.Unlock()
	})

	s.SetScope(context.Background(), "c1")
	require.Eventually(t, func() bool { return s.Status() != nil }, time.Second, time.Millisecond)

	emitStatusChange(t, b, "c1")
	require.Eventually(t, func() bool { return backend.statusCallCount() == 2 }, time.Second, time.Millisecond)
	emitStatusChange(t, b, "c1")
	require.Eventually(t, func() bool {
		st := s.Status()
		return st != nil && st.Status == models.NegotiationDeclined
	}, time.Second, time.Millisecond)

	close(slow)
	assert.Never(t, func() bool { return s.Status().Status != models.NegotiationDeclined }, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.NegotiationState{models.NegotiationPending, models.NegotiationDeclined}, applied)
}

func TestNegotiationFetchFailureNotifies(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	notifier := &recordingNotifier{}
	backend := &fakeBackend{
		status: func(context.Context, int, string) (*models.NegotiationStatus, error) {
			return nil, errors.New("unavailable")
		},
	}
	s := NewNegotiationStatusSync(b, backend, notifier, nil)
	defer s.Close()

	s.SetScope(context.Background(), "c1")
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, time.Millisecond)
	assert.Nil(t, s.Status())
}

func TestNegotiationScopeLifecycle(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)
	backend := &fakeBackend{
		status: func(_ context.Context, _ int, id string) (*models.NegotiationStatus, error) {
			return &models.NegotiationStatus{ConversationID: id, Status: models.NegotiationPending}, nil
		},
	}
	s := NewNegotiationStatusSync(b, backend, nil, nil)
	ctx := context.Background()

	s.SetScope(ctx, "")
	assert.Equal(t, 0, b.Opened())
	assert.Equal(t, 0, backend.statusCallCount())

	s.SetScope(ctx, "c1")
	s.SetScope(ctx, "c1")
	assert.Equal(t, 1, b.Opened())

	s.SetScope(ctx, "c2")
	require.Eventually(t, func() bool {
		st := s.Status()
		return st != nil && st.ConversationID == "c2"
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, b.Removed())

	s.Close()
	s.Close()
	assert.Equal(t, 2, b.Removed())
	assert.Equal(t, 0, b.Active())
	assert.Nil(t, s.Status())
}

func TestMeetupSyncRefetchesOnNotify(t *testing.T) {
	b := pubsub.NewMemoryBroker(nil)

	var mu sync.Mutex
	status := models.MeetupProposed
	backend := &fakeBackend{
		meetup: func(_ context.Context, id string) (*models.Meetup, error) {
			mu.Lock()
			defer mu.Unlock()
			return &models.Meetup{ID: id, Status: status}, nil
		},
	}
	s := NewMeetupSync(b, backend, nil, nil)
	defer s.Close()

	s.SetScope(context.Background(), "m1")
	require.Eventually(t, func() bool { return s.Meetup() != nil }, time.Second, time.Millisecond)

	mu.Lock()
	status = models.MeetupConfirmed
	mu.Unlock()
	require.NoError(t, b.EmitChange(pubsub.MeetupUpdatesTopic("m1"), "meetups", "UPDATE", nil))

	require.Eventually(t, func() bool {
		return s.Meetup().Status == models.MeetupConfirmed
	}, time.Second, time.Millisecond)
}

func TestMeetupSyncBuildsWithoutBackend(t *testing.T) {
	assert.NotPanics(t, func() {
		m := NewMeetupSync(pubsub.NewMemoryBroker(nil), nil, nil, nil)
		m.Close()
	})
}
