package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/akinalp/tradechat/pubsub"
)

// refetchSync follows a server-owned record by refetching it whenever the
// record's channel reports a change. Only the newest refetch is applied.
type refetchSync[T any] struct {
	port       pubsub.Port
	notifier   Notifier
	log        *zap.Logger
	topic      func(id string) string
	fetch      func(ctx context.Context, id string) (*T, error)
	errorTitle string

	mu       sync.Mutex
	id       string
	ch       pubsub.Channel
	value    *T
	gen      uint64
	seq      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	onChange func(*T)
}

// OnChange registers fn to receive every applied value.
func (s *refetchSync[T]) OnChange(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetScope follows the record id. An empty id only tears down.
func (s *refetchSync[T]) SetScope(ctx context.Context, id string) {
	s.mu.Lock()
	if id == s.id && (s.ch != nil || id == "") {
		s.mu.Unlock()
		return
	}
	old := s.detachLocked()
	s.id = id
	if id == "" {
		s.mu.Unlock()
		s.remove(old)
		return
	}

	gen := s.gen
	ch := s.port.Channel(s.topic(id))
	ch.On(pubsub.KindChange, pubsub.Any, func(pubsub.Event) { s.refetch(gen) })
	s.ch = ch
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.remove(old)
	ch.Subscribe(func(status pubsub.Status, err error) {
		if status != pubsub.StatusSubscribed {
			s.log.Debug("change channel unavailable", zap.String("topic", ch.Name()), zap.String("status", string(status)), zap.Error(err))
		}
	})
	s.refetch(gen)
}

// Refetch forces a refetch of the current record.
func (s *refetchSync[T]) Refetch() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.refetch(gen)
}

// Close tears down the scope, cancels in-flight refetches and waits for
// them to return.
func (s *refetchSync[T]) Close() {
	s.mu.Lock()
	old := s.detachLocked()
	s.id = ""
	s.mu.Unlock()

	s.remove(old)
	s.inflight.Wait()
}

// assume shows v ahead of the server and drops refetches already in
// flight, since they were issued before the write v anticipates. The
// returned undo puts the previous value back unless a refetch or scope
// change replaced v in the meantime.
func (s *refetchSync[T]) assume(v *T) (undo func()) {
	s.mu.Lock()
	prev, gen := s.value, s.gen
	s.seq++
	s.value = v
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}

	return func() {
		s.mu.Lock()
		if s.gen != gen || s.value != v {
			s.mu.Unlock()
			return
		}
		s.value = prev
		fn := s.onChange
		s.mu.Unlock()
		if fn != nil {
			fn(prev)
		}
	}
}

func (s *refetchSync[T]) current() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *refetchSync[T]) refetch(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.ch == nil {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq, ctx, id := s.seq, s.ctx, s.id
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()

		v, err := s.fetch(ctx, id)

		s.mu.Lock()
		if seq != s.seq || gen != s.gen {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.mu.Unlock()
			if !errors.Is(err, context.Canceled) {
				s.notifier.Error(s.errorTitle, err)
			}
			return
		}
		s.value = v
		fn := s.onChange
		s.mu.Unlock()

		if fn != nil {
			fn(v)
		}
	}()
}

func (s *refetchSync[T]) detachLocked() pubsub.Channel {
	old := s.ch
	s.ch = nil
	s.gen++
	s.value = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return old
}

func (s *refetchSync[T]) remove(ch pubsub.Channel) {
	if ch == nil {
		return
	}
	if err := s.port.RemoveChannel(ch); err != nil {
		s.log.Debug("remove change channel failed", zap.Error(err))
	}
}
