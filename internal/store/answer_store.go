package store

import (
	"log/slog"
	"sync"
	"time"

	"basegraph.app/codeask/internal/model"
)

const (
	// observerGrace is how long the dispatcher waits for one observer before
	// handing the result to the next one.
	observerGrace = 250 * time.Millisecond
	// mailboxLimit bounds the results queued for an observer that stopped
	// keeping up. The oldest are dropped first.
	mailboxLimit = 64
)

// Result is one AI answer paired with the provenance it was asked from.
type Result struct {
	ID          int64                   `json:"id,string"`
	Seq         uint64                  `json:"seq"`
	Answer      string                  `json:"answer"`
	Payload     model.ProvenancePayload `json:"-"`
	PublishedAt time.Time               `json:"published_at"`
}

// Observer receives every result published after it subscribed, starting
// with the result that was current at subscription time.
type Observer func(Result)

// Subscription identifies a registered observer.
type Subscription struct {
	id uint64
}

type pending struct {
	result Result
	done   chan struct{}
}

// subscriber owns an ordered mailbox drained by its own goroutine.
// Mailbox and flags are guarded by the store's mutex.
type subscriber struct {
	id       uint64
	observer Observer
	active   bool
	running  bool
	mailbox  []pending
	wake     chan struct{}
	quit     chan struct{}
}

type fanout struct {
	result  Result
	targets []*subscriber
}

// AnswerStore holds the latest result for one project and fans it out to
// observers. The dispatcher hands each result to observers in subscription
// order and waits for each in turn, but never longer than observerGrace: an
// observer that hangs keeps its own backlog and does not hold up the rest.
type AnswerStore struct {
	project string

	mu       sync.Mutex
	current  Result
	has      bool
	subs     []*subscriber
	nextID   uint64
	queue    []fanout
	inflight int
	changed  chan struct{}
	done     chan struct{}
	closed   bool
	idle     chan struct{}
}

func New(project string) *AnswerStore {
	s := &AnswerStore{
		project: project,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.dispatch()
	return s
}

func (s *AnswerStore) Project() string {
	return s.project
}

// Publish replaces the current result and queues it for every observer.
// It returns false when r.Seq is not newer than the current result or the
// store is closed.
func (s *AnswerStore) Publish(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.has && r.Seq <= s.current.Seq {
		slog.Debug("stale result rejected",
			"project", s.project, "seq", r.Seq, "current_seq", s.current.Seq)
		return false
	}

	s.current = r
	s.has = true
	if len(s.subs) > 0 {
		targets := append([]*subscriber(nil), s.subs...)
		s.enqueueLocked(fanout{result: r, targets: targets})
	}
	return true
}

// Current returns the latest result, if any.
func (s *AnswerStore) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.has
}

// Subscribe registers observer. If a result is already current it is queued
// for the new observer before anything published later.
func (s *AnswerStore) Subscribe(observer Observer) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if s.closed {
		return Subscription{id: s.nextID}
	}

	sub := &subscriber{
		id:       s.nextID,
		observer: observer,
		active:   true,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	s.subs = append(s.subs, sub)
	go s.serve(sub)

	if s.has {
		s.enqueueLocked(fanout{result: s.current, targets: []*subscriber{sub}})
	}
	return Subscription{id: sub.id}
}

// Unsubscribe removes the observer and stops its goroutine. Results still
// queued for it are dropped. Unknown or repeated subscriptions are ignored.
func (s *AnswerStore) Unsubscribe(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.subs {
		if existing.id == sub.id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			s.retireLocked(existing)
			return
		}
	}
}

// Subscribers returns the number of registered observers.
func (s *AnswerStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close stops the dispatcher and every observer goroutine. Pending deliveries
// are dropped and later publishes are rejected. Close is safe to call more
// than once.
func (s *AnswerStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, sub := range s.subs {
		s.retireLocked(sub)
	}
	s.subs = nil
	s.queue = nil
	s.inflight = 0
	s.closed = true
	s.releaseIdleLocked()
	close(s.done)
}

// Idle returns a channel closed once every queued delivery has run.
// Used by callers that need to observe a quiescent store, mostly tests.
func (s *AnswerStore) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inflight == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	return s.idle
}

func (s *AnswerStore) enqueueLocked(f fanout) {
	s.queue = append(s.queue, f)
	s.inflight += len(f.targets)
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *AnswerStore) retireLocked(sub *subscriber) {
	if !sub.active {
		return
	}
	sub.active = false
	s.settleLocked(len(sub.mailbox))
	sub.mailbox = nil
	close(sub.quit)
}

// settleLocked marks n deliveries as finished or abandoned.
func (s *AnswerStore) settleLocked(n int) {
	if s.closed || n == 0 {
		return
	}
	s.inflight -= n
	if s.inflight <= 0 {
		s.inflight = 0
		s.releaseIdleLocked()
	}
}

func (s *AnswerStore) releaseIdleLocked() {
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

func (s *AnswerStore) dispatch() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			ch := s.changed
			s.mu.Unlock()
			select {
			case <-ch:
			case <-s.done:
			}
			continue
		}

		f := s.queue[0]
		s.queue[0] = fanout{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, sub := range f.targets {
			s.handOff(sub, f.result)
		}
	}
}

// handOff puts r in the subscriber's mailbox and, unless the subscriber is
// already behind, waits for it to be observed.
func (s *AnswerStore) handOff(sub *subscriber, r Result) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !sub.active {
		s.settleLocked(1)
		s.mu.Unlock()
		return
	}

	lagging := sub.running || len(sub.mailbox) > 0
	p := pending{result: r, done: make(chan struct{})}
	sub.mailbox = append(sub.mailbox, p)
	if len(sub.mailbox) > mailboxLimit {
		dropped := sub.mailbox[0]
		sub.mailbox[0] = pending{}
		sub.mailbox = sub.mailbox[1:]
		s.settleLocked(1)
		slog.Warn("answer observer backlog full, dropping oldest result",
			"project", s.project, "subscription", sub.id, "seq", dropped.result.Seq)
	}
	select {
	case sub.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	if lagging {
		return
	}

	timer := time.NewTimer(observerGrace)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-sub.quit:
	case <-s.done:
	case <-timer.C:
		slog.Warn("answer observer is slow, continuing with the others",
			"project", s.project, "subscription", sub.id, "seq", r.Seq)
	}
}

func (s *AnswerStore) serve(sub *subscriber) {
	for {
		s.mu.Lock()
		if !sub.active {
			s.mu.Unlock()
			return
		}
		if len(sub.mailbox) == 0 {
			s.mu.Unlock()
			select {
			case <-sub.wake:
			case <-sub.quit:
				return
			}
			continue
		}

		p := sub.mailbox[0]
		sub.mailbox[0] = pending{}
		sub.mailbox = sub.mailbox[1:]
		sub.running = true
		s.mu.Unlock()

		s.deliver(sub, p.result)
		close(p.done)

		s.mu.Lock()
		sub.running = false
		s.settleLocked(1)
		s.mu.Unlock()
	}
}

func (s *AnswerStore) deliver(sub *subscriber, r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("answer observer panicked",
				"project", s.project, "subscription", sub.id, "seq", r.Seq, "panic", rec)
		}
	}()
	sub.observer(r)
}
