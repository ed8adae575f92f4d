package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/akinalp/tradechat/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	errs   []error
}

func (n *recordingNotifier) Error(title string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.errs = append(n.errs, err)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

// fakeBackend records writes and lets tests script or gate reads.
type fakeBackend struct {
	mu sync.Mutex

	marked  []string
	markErr error

	receiptCalls    int
	receiptReturned int
	receipt         func(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error)

	statusCalls int
	status      func(ctx context.Context, call int, conversationID string) (*models.NegotiationStatus, error)

	meetup func(ctx context.Context, meetupID string) (*models.Meetup, error)

	sent   []models.CreateMessageRequest
	send   func(ctx context.Context, conversationID string, req models.CreateMessageRequest) (*models.Message, error)
	update func(ctx context.Context, conversationID string, to models.NegotiationState) (*models.NegotiationStatus, error)
}

func (f *fakeBackend) MarkRead(_ context.Context, conversationID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, conversationID+"/"+messageID)
	return nil
}

func (f *fakeBackend) markedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marked...)
}

func (f *fakeBackend) failMarks(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markErr = err
}

func (f *fakeBackend) GetReadReceipt(ctx context.Context, conversationID, userID string) (*models.ReadReceipt, error) {
	f.mu.Lock()
	f.receiptCalls++
	fn := f.receipt
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.receiptReturned++
		f.mu.Unlock()
	}()

	if fn == nil {
		return &models.ReadReceipt{ConversationID: conversationID, UserID: userID}, nil
	}
	return fn(ctx, conversationID, userID)
}

func (f *fakeBackend) receiptCounts() (calls, returned int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiptCalls, f.receiptReturned
}

func (f *fakeBackend) GetNegotiationStatus(ctx context.Context, conversationID string) (*models.NegotiationStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	call, fn := f.statusCalls, f.status
	f.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no status scripted")
	}
	return fn(ctx, call, conversationID)
}

func (f *fakeBackend) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeBackend) GetMeetup(ctx context.Context, meetupID string) (*models.Meetup, error) {
	f.mu.Lock()
	fn := f.meetup
	f.mu.Unlock()

	if fn == nil {
		return &models.Meetup{ID: meetupID, Status: models.MeetupProposed}, nil
	}
	return fn(ctx, meetupID)
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID string, req models.CreateMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	fn := f.send
	f.mu.Unlock()

	if fn == nil {
		return &models.Message{ID: "m1", ConversationID: conversationID, Type: req.Type}, nil
	}
	return fn(ctx, conversationID, req)
}

func (f *fakeBackend) sentMessages() []models.CreateMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CreateMessageRequest(nil), f.sent...)
}

func (f *fakeBackend) UpdateNegotiation(ctx context.Context, conversationID string, to models.NegotiationState) (*models.NegotiationStatus, error) {
	f.mu.Lock()
	fn := f.update
	f.mu.Unlock()

	if fn == nil {
		return &models.NegotiationStatus{ConversationID: conversationID, Status: to}, nil
	}
	return fn(ctx, conversationID, to)
}

// waitOrDone blocks until gate is closed or ctx is cancelled.
func waitOrDone(ctx context.Context, gate <-chan struct{}) error {
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
