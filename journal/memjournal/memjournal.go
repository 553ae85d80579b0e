// Package memjournal provides the in-memory consent journal backend.
//
// It is the reference implementation of the journal contract: single-process,
// no durability, used directly by tests and embedded by backends that add
// persistence or transport on top.
package memjournal

import (
	"context"
	"sync"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
)

// Journal is an in-memory, multi-identity consent journal.
type Journal struct {
	mu   sync.Mutex
	logs map[string][]consent.Entry
	subs map[string][]*subscription
}

var _ journal.Journal = (*Journal)(nil)

func New() *Journal {
	return &Journal{
		logs: make(map[string][]consent.Entry),
		subs: make(map[string][]*subscription),
	}
}

func (j *Journal) Publish(ctx context.Context, identity string, entries []consent.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := identityKey(identity)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	batch := make([]consent.Entry, len(entries))
	copy(batch, entries)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs[key] = append(j.logs[key], batch...)
	// Enqueueing under the journal lock keeps every subscriber's order equal
	// to log order; a stalled consumer only grows its own queue.
	for _, sub := range j.subs[key] {
		sub.enqueue(batch)
	}
	return nil
}

func (j *Journal) FetchAll(ctx context.Context, identity string) ([]consent.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := identityKey(identity)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	log := j.logs[key]
	out := make([]consent.Entry, len(log))
	copy(out, log)
	return out, nil
}

func (j *Journal) Subscribe(ctx context.Context, identity string) (journal.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := identityKey(identity)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(j, key)
	j.mu.Lock()
	j.subs[key] = append(j.subs[key], sub)
	j.mu.Unlock()

	go sub.pump()
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.closeWithErr(ctx.Err())
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

func (j *Journal) detach(sub *subscription) {
	j.mu.Lock()
	defer j.mu.Unlock()
	list := j.subs[sub.identity]
	for i, s := range list {
		if s == sub {
			j.subs[sub.identity] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func identityKey(identity string) (string, error) {
	addr, err := consent.CanonicalAddress(identity)
	if err != nil {
		return "", journal.ErrInvalidIdentity
	}
	return addr, nil
}

// subscription fans entries out through a queue + cond pump so Publish never
// blocks on a slow consumer and delivery order always matches log order.
type subscription struct {
	j        *Journal
	identity string
	ch       chan consent.Entry
	done     chan struct{}

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []consent.Entry
	closed bool
	err    error

	closeOnce sync.Once
}

var _ journal.Subscription = (*subscription)(nil)

func newSubscription(j *Journal, identity string) *subscription {
	s := &subscription{
		j:        j,
		identity: identity,
		ch:       make(chan consent.Entry),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscription) C() <-chan consent.Entry { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.closeWithErr(nil)
	return nil
}

func (s *subscription) closeWithErr(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if err != nil && err != context.Canceled {
			s.err = err
		}
		s.cond.Signal()
		s.mu.Unlock()
		close(s.done)
		s.j.detach(s)
	})
}

func (s *subscription) enqueue(entries []consent.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, entries...)
	s.cond.Signal()
}

func (s *subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			// Close stops further delivery; pending entries are dropped.
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}
