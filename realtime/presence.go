package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/pubsub"
)

// ConnState is the presence channel's connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Synced
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Synced:
		return "synced"
	}
	return "disconnected"
}

// AppState is the application's foreground/background state.
type AppState string

const (
	AppForeground AppState = "foreground"
	AppBackground AppState = "background"
)

// PresencePayload is what a client tracks on the global presence channel.
type PresencePayload struct {
	UserID   string    `json:"user_id"`
	OnlineAt time.Time `json:"online_at"`
}

// PresenceTracker maintains the set of online user ids from the global
// presence channel. Each sync replaces the whole set.
type PresenceTracker struct {
	port  pubsub.Port
	sched *Scheduler
	log   *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	userID   string
	ch       pubsub.Channel
	state    ConnState
	appState AppState
	online   map[string]struct{}
	gen      uint64
	onChange func(ids []string)
}

// NewPresenceTracker returns an inactive tracker in the foreground state.
func NewPresenceTracker(port pubsub.Port, sched *Scheduler, log *zap.Logger) *PresenceTracker {
	if sched == nil {
		sched = NewScheduler(nil)
	}
	return &PresenceTracker{
		port:     port,
		sched:    sched,
		log:      logger.OrNop(log).Named("presence"),
		ctx:      context.Background(),
		appState: AppForeground,
		online:   make(map[string]struct{}),
	}
}

// OnChange registers fn to receive the sorted online ids after each sync.
func (p *PresenceTracker) OnChange(fn func(ids []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Start joins the global presence channel as userID. An empty userID
// leaves the tracker disconnected. Starting with the current user again is
// a no-op.
func (p *PresenceTracker) Start(ctx context.Context, userID string) {
	p.mu.Lock()
	if userID == p.userID && p.ch != nil {
		p.mu.Unlock()
		return
	}
	old := p.detachLocked()
	p.userID = userID
	p.ctx = ctx
	if userID == "" {
		p.mu.Unlock()
		p.remove(old)
		return
	}

	gen := p.gen
	ch := p.port.Channel(pubsub.PresenceGlobal, pubsub.WithPresenceKey(userID))
	ch.On(pubsub.KindPresence, pubsub.PresenceSync, func(pubsub.Event) { p.handleSync(gen, ch) })
	p.ch = ch
	p.state = Connecting
	p.mu.Unlock()

	p.remove(old)
	ch.Subscribe(func(status pubsub.Status, err error) { p.handleStatus(gen, ch, status, err) })
}

// SetAppState re-tracks on foreground and untracks on background. Both are
// best effort.
func (p *PresenceTracker) SetAppState(ctx context.Context, s AppState) {
	p.mu.Lock()
	if p.appState == s {
		p.mu.Unlock()
		return
	}
	p.appState = s
	ch, synced, userID := p.ch, p.state == Synced, p.userID
	p.mu.Unlock()

	if ch == nil || !synced {
		return
	}
	if s == AppForeground {
		p.track(ctx, ch, userID)
		return
	}
	if err := ch.Untrack(ctx); err != nil {
		p.log.Debug("untrack failed", zap.Error(err))
	}
}

// IsOnline reports whether userID is in the latest snapshot.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

// OnlineUserIDs returns the latest snapshot, sorted.
func (p *PresenceTracker) OnlineUserIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedLocked()
}

// State returns the connection state.
func (p *PresenceTracker) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close leaves the presence channel and forgets the snapshot.
func (p *PresenceTracker) Close() {
	p.mu.Lock()
	old := p.detachLocked()
	p.userID = ""
	p.mu.Unlock()

	p.remove(old)
}

func (p *PresenceTracker) handleStatus(gen uint64, ch pubsub.Channel, status pubsub.Status, err error) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	switch status {
	case pubsub.StatusSubscribed:
		p.state = Synced
	default:
		p.state = Disconnected
	}
	foreground, userID, ctx := p.appState == AppForeground, p.userID, p.ctx
	p.mu.Unlock()

	if status != pubsub.StatusSubscribed {
		if err != nil {
			p.log.Debug("presence channel unavailable", zap.String("status", string(status)), zap.Error(err))
		}
		return
	}
	if foreground {
		p.track(ctx, ch, userID)
	}
}

func (p *PresenceTracker) handleSync(gen uint64, ch pubsub.Channel) {
	keys := ch.PresenceState().Keys()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	online := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		online[k] = struct{}{}
	}
	p.online = online
	ids := p.sortedLocked()
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(ids)
	}
}

func (p *PresenceTracker) track(ctx context.Context, ch pubsub.Channel, userID string) {
	payload := PresencePayload{UserID: userID, OnlineAt: p.sched.Now().UTC()}
	if err := ch.Track(ctx, payload); err != nil {
		p.log.Debug("track failed", zap.Error(err))
	}
}

// detachLocked invalidates callbacks of the current channel and returns it
// for removal outside the lock.
func (p *PresenceTracker) detachLocked() pubsub.Channel {
	old := p.ch
	p.ch = nil
	p.gen++
	p.state = Disconnected
	p.online = make(map[string]struct{})
	return old
}

func (p *PresenceTracker) remove(ch pubsub.Channel) {
	if ch == nil {
		return
	}
	if err := p.port.RemoveChannel(ch); err != nil {
		p.log.Debug("remove presence channel failed", zap.Error(err))
	}
}

func (p *PresenceTracker) sortedLocked() []string {
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
