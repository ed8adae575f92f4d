package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/models"
	"github.com/akinalp/tradechat/pkg/guard"
	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/pubsub"
)

// ReadReceiptsTable is the change name the server uses for pointer moves.
const ReadReceiptsTable = "read_receipts"

// ReadReceiptSync writes the local user's read pointer and follows the
// counterpart's.
type ReadReceiptSync struct {
	port     pubsub.Port
	backend  ReadReceiptBackend
	notifier Notifier
	log      *zap.Logger
	userID   string
	lastSent guard.Dedup[string]

	mu             sync.Mutex
	conversationID string
	otherUserID    string
	ch             pubsub.Channel
	otherLastRead  string
	pushed         bool
	gen            uint64
	cancelFetch    context.CancelFunc
	fetches        sync.WaitGroup
	onChange       func(messageID string)
}

// NewReadReceiptSync returns an inactive sync for userID. A nil notifier
// drops failures.
func NewReadReceiptSync(port pubsub.Port, backend ReadReceiptBackend, notifier Notifier, userID string, log *zap.Logger) *ReadReceiptSync {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ReadReceiptSync{
		port:     port,
		backend:  backend,
		notifier: notifier,
		log:      logger.OrNop(log).Named("read_receipts"),
		userID:   userID,
	}
}

// OnChange registers fn to receive the counterpart's pointer.
func (r *ReadReceiptSync) OnChange(fn func(messageID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// SetScope switches conversation and counterpart. The write path needs
// only a conversation id; the read path (point query and subscription)
// needs both ids.
func (r *ReadReceiptSync) SetScope(ctx context.Context, conversationID, otherUserID string) {
	r.mu.Lock()
	if conversationID == r.conversationID && otherUserID == r.otherUserID {
		r.mu.Unlock()
		return
	}
	old := r.detachLocked()
	r.conversationID = conversationID
	r.otherUserID = otherUserID
	r.lastSent.Reset()
	if conversationID == "" || otherUserID == "" {
		r.mu.Unlock()
		r.remove(old)
		return
	}

	gen := r.gen
	ch := r.port.Channel(pubsub.ReadReceiptsTopic(conversationID))
	ch.On(pubsub.KindChange, ReadReceiptsTable, func(ev pubsub.Event) { r.handlePush(gen, ev) })
	r.ch = ch

	fetchCtx, cancel := context.WithCancel(ctx)
	r.cancelFetch = cancel
	r.fetches.Add(1)
	r.mu.Unlock()

	r.remove(old)
	ch.Subscribe(func(status pubsub.Status, err error) {
		if status != pubsub.StatusSubscribed {
			r.log.Debug("read receipt channel unavailable", zap.String("status", string(status)), zap.Error(err))
		}
	})
	go r.fetch(fetchCtx, gen, conversationID, otherUserID)
}

// MarkAsRead writes the local pointer. Repeating the last id is a no-op;
// any other id is written. A failed write is reported and forgotten so the
// same id can be retried.
func (r *ReadReceiptSync) MarkAsRead(ctx context.Context, messageID string) error {
	r.mu.Lock()
	conversationID := r.conversationID
	r.mu.Unlock()
	if conversationID == "" || messageID == "" {
		return nil
	}
	if !r.lastSent.Check(messageID) {
		return nil
	}

	if err := r.backend.MarkRead(ctx, conversationID, messageID); err != nil {
		r.lastSent.Forget(messageID)
		r.notifier.Error("Couldn't mark conversation as read", err)
		return err
	}
	return nil
}

// OtherLastReadID returns the counterpart's pointer, or "".
func (r *ReadReceiptSync) OtherLastReadID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.otherLastRead
}

// Close tears down the scope and waits for an in-flight point query to
// return.
func (r *ReadReceiptSync) Close() {
	r.mu.Lock()
	old := r.detachLocked()
	r.conversationID, r.otherUserID = "", ""
	r.lastSent.Reset()
	r.mu.Unlock()

	r.remove(old)
	r.fetches.Wait()
}

func (r *ReadReceiptSync) fetch(ctx context.Context, gen uint64, conversationID, otherUserID string) {
	defer r.fetches.Done()

	rr, err := r.backend.GetReadReceipt(ctx, conversationID, otherUserID)

	r.mu.Lock()
	if gen != r.gen || r.pushed {
		r.mu.Unlock()
		return
	}
	if err != nil {
		r.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			r.notifier.Error("Couldn't load read receipts", err)
		}
		return
	}
	var id string
	if rr != nil {
		id = rr.LastReadMessageID
	}
	changed := id != r.otherLastRead
	r.otherLastRead = id
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil && changed {
		fn(id)
	}
}

func (r *ReadReceiptSync) handlePush(gen uint64, ev pubsub.Event) {
	var rr models.ReadReceipt
	if err := ev.Decode(&rr); err != nil {
		r.log.Debug("malformed read receipt push", zap.Error(err))
		return
	}

	r.mu.Lock()
	if gen != r.gen || rr.UserID != r.otherUserID || rr.ConversationID != r.conversationID {
		r.mu.Unlock()
		return
	}
	r.pushed = true
	changed := rr.LastReadMessageID != r.otherLastRead
	r.otherLastRead = rr.LastReadMessageID
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil && changed {
		fn(rr.LastReadMessageID)
	}
}

func (r *ReadReceiptSync) detachLocked() pubsub.Channel {
	old := r.ch
	r.ch = nil
	r.gen++
	r.pushed = false
	r.otherLastRead = ""
	if r.cancelFetch != nil {
		r.cancelFetch()
		r.cancelFetch = nil
	}
	return old
}

func (r *ReadReceiptSync) remove(ch pubsub.Channel) {
	if ch == nil {
		return
	}
	if err := r.port.RemoveChannel(ch); err != nil {
		r.log.Debug("remove read receipt channel failed", zap.Error(err))
	}
}
