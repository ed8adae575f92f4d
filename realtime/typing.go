package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pkg/guard"
	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/pubsub"
)

// TypingEvent is the broadcast event name for typing pulses.
const TypingEvent = "typing"

const (
	DefaultTypingThrottle = 2 * time.Second
	DefaultTypingExpiry   = 3 * time.Second
)

// TypingPayload is the body of a typing pulse.
type TypingPayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// TypingConfig tunes the coordinator. Zero values use the defaults.
type TypingConfig struct {
	Throttle time.Duration
	Expiry   time.Duration
}

// TypingCoordinator broadcasts the local user's typing pulses for one
// conversation and derives whether the counterpart is typing.
type TypingCoordinator struct {
	port     pubsub.Port
	sched    *Scheduler
	log      *zap.Logger
	userID   string
	expiry   time.Duration
	throttle *guard.Throttle

	mu             sync.Mutex
	conversationID string
	ch             pubsub.Channel
	otherTyping    bool
	gen            uint64
	pulse          uint64
	cancelExpiry   CancelFunc
	onChange       func(typing bool)
}

// NewTypingCoordinator returns an inactive coordinator for userID.
func NewTypingCoordinator(port pubsub.Port, sched *Scheduler, userID string, cfg TypingConfig, log *zap.Logger) *TypingCoordinator {
	if sched == nil {
		sched = NewScheduler(nil)
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultTypingThrottle
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTypingExpiry
	}
	return &TypingCoordinator{
		port:     port,
		sched:    sched,
		log:      logger.OrNop(log).Named("typing"),
		userID:   userID,
		expiry:   cfg.Expiry,
		throttle: guard.NewThrottle(cfg.Throttle, sched.Clock()),
	}
}

// OnChange registers fn to receive the counterpart's typing state.
func (t *TypingCoordinator) OnChange(fn func(typing bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// SetConversation switches to conversationID. An empty id only tears down.
func (t *TypingCoordinator) SetConversation(conversationID string) {
	t.mu.Lock()
	if conversationID == t.conversationID && (t.ch != nil || conversationID == "") {
		t.mu.Unlock()
		return
	}
	old, changed := t.detachLocked()
	t.conversationID = conversationID
	t.throttle.Reset()
	if conversationID == "" {
		fn := t.onChange
		t.mu.Unlock()
		t.remove(old)
		t.notify(fn, changed, false)
		return
	}

	gen := t.gen
	ch := t.port.Channel(pubsub.TypingTopic(conversationID))
	ch.On(pubsub.KindBroadcast, TypingEvent, func(ev pubsub.Event) { t.handlePulse(gen, ev) })
	t.ch = ch
	fn := t.onChange
	t.mu.Unlock()

	t.remove(old)
	t.notify(fn, changed, false)
	ch.Subscribe(func(status pubsub.Status, err error) {
		if status != pubsub.StatusSubscribed {
			t.log.Debug("typing channel unavailable", zap.String("status", string(status)), zap.Error(err))
		}
	})
}

// SendTypingStart broadcasts a start pulse, at most once per throttle
// window. A pulse that fails to go out (the channel is not subscribed
// yet, the connection dropped) gives the window back so the next
// keystroke tries again.
func (t *TypingCoordinator) SendTypingStart(ctx context.Context) {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil || !t.throttle.Allow() {
		return
	}
	if err := t.send(ctx, ch, true); err != nil {
		t.throttle.Reset()
	}
}

// SendTypingStop broadcasts a stop pulse and re-opens the throttle so the
// next start goes out immediately.
func (t *TypingCoordinator) SendTypingStop(ctx context.Context) {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return
	}
	t.throttle.Reset()
	t.send(ctx, ch, false)
}

// IsOtherUserTyping reports the counterpart's typing state.
func (t *TypingCoordinator) IsOtherUserTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.otherTyping
}

// Close leaves the channel and clears any pending expiry.
func (t *TypingCoordinator) Close() {
	t.SetConversation("")
}

func (t *TypingCoordinator) send(ctx context.Context, ch pubsub.Channel, typing bool) error {
	err := ch.Send(ctx, TypingEvent, TypingPayload{UserID: t.userID, IsTyping: typing})
	if err != nil {
		t.log.Debug("typing pulse not sent", zap.Bool("is_typing", typing), zap.Error(err))
	}
	return err
}

func (t *TypingCoordinator) handlePulse(gen uint64, ev pubsub.Event) {
	var p TypingPayload
	if err := ev.Decode(&p); err != nil {
		t.log.Debug("malformed typing pulse", zap.Error(err))
		return
	}
	if p.UserID == t.userID {
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	if t.cancelExpiry != nil {
		t.cancelExpiry()
		t.cancelExpiry = nil
	}
	t.pulse++
	changed := t.otherTyping != p.IsTyping
	t.otherTyping = p.IsTyping
	if p.IsTyping {
		armed := t.pulse
		t.cancelExpiry = t.sched.Schedule(func() { t.expire(armed) }, t.expiry)
	}
	fn := t.onChange
	t.mu.Unlock()

	t.notify(fn, changed, p.IsTyping)
}

// expire clears the typing flag unless a newer pulse or a scope change
// happened since the timer was armed.
func (t *TypingCoordinator) expire(pulse uint64) {
	t.mu.Lock()
	if pulse != t.pulse || !t.otherTyping {
		t.mu.Unlock()
		return
	}
	t.otherTyping = false
	t.cancelExpiry = nil
	fn := t.onChange
	t.mu.Unlock()

	t.notify(fn, true, false)
}

func (t *TypingCoordinator) detachLocked() (pubsub.Channel, bool) {
	old := t.ch
	t.ch = nil
	t.gen++
	t.pulse++
	if t.cancelExpiry != nil {
		t.cancelExpiry()
		t.cancelExpiry = nil
	}
	changed := t.otherTyping
	t.otherTyping = false
	return old, changed
}

func (t *TypingCoordinator) remove(ch pubsub.Channel) {
	if ch == nil {
		return
	}
	if err := t.port.RemoveChannel(ch); err != nil {
		t.log.Debug("remove typing channel failed", zap.Error(err))
	}
}

func (t *TypingCoordinator) notify(fn func(bool), changed, typing bool) {
	if fn != nil && changed {
		fn(typing)
	}
}
