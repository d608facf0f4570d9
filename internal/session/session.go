// Package session tracks one in-flight generation: the append-only text
// buffer, the lifecycle state machine and the subscribers that render it.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/extraction"
)

const (
	EventReason    = "reason"
	EventOpenFence = "open_fence"
	EventFinish    = "finish"
	EventCancel    = "cancel"
	EventFail      = "fail"
)

var liveStates = []string{
	string(domain.StateIdle),
	string(domain.StateReasoning),
	string(domain.StateInCodeBlock),
}

// newStateMachine builds the lifecycle graph. There is no edge out of
// in_code_block back to reasoning.
func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(domain.StateIdle),
		fsm.Events{
			{Name: EventReason, Src: []string{string(domain.StateIdle)}, Dst: string(domain.StateReasoning)},

			{Name: EventOpenFence, Src: []string{string(domain.StateIdle), string(domain.StateReasoning)}, Dst: string(domain.StateInCodeBlock)},

			{Name: EventFinish, Src: liveStates, Dst: string(domain.StateDone)},
			{Name: EventCancel, Src: liveStates, Dst: string(domain.StateCancelled)},
			{Name: EventFail, Src: liveStates, Dst: string(domain.StateFailed)},
		},
		fsm.Callbacks{},
	)
}

// Subscriber receives every update synchronously, in order. A subscriber
// must not call Append, Finish, Cancel or Fail on the same session.
type Subscriber func(domain.SessionUpdate)

type subscription struct {
	id int
	fn Subscriber
}

// Session owns the buffer of one generation. The transport appends, the
// extraction is re-derived from the whole buffer after every chunk.
type Session struct {
	id       string
	consumer string
	started  time.Time

	// emit serializes mutation plus delivery so subscribers observe
	// updates in the order they happened.
	emit sync.Mutex

	mu          sync.Mutex
	buf         strings.Builder
	chunks      int
	machine     *fsm.FSM
	last        domain.Extraction
	err         error
	subscribers []subscription
	nextSubID   int

	cancel context.CancelFunc
	done   chan struct{}
	// ticket is the Manager claim the session was started under.
	ticket uint64
}

// New creates a session whose context is cancelled by Cancel.
func New(parent context.Context, consumer string) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:       uuid.NewString(),
		consumer: consumer,
		started:  time.Now(),
		machine:  newStateMachine(),
		last:     extraction.Analyze(""),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	return s, ctx
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Consumer() string {
	return s.consumer
}

func (s *Session) Started() time.Time {
	return s.started
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionState(s.machine.Current())
}

// Extraction returns the latest tagged extraction.
func (s *Session) Extraction() domain.Extraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Result returns the latest extracted fields. After cancellation this is
// the result of the text received before the cancel.
func (s *Session) Result() domain.ExtractedResult {
	return s.Extraction().Result
}

// Text returns the raw accumulated buffer.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Chunks returns how many fragments were appended.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Err returns the failure recorded by Fail.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers fn for future updates and returns a function that removes it.
func (s *Session) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Append adds one delta to the buffer and recomputes the extraction.
// Chunks arriving after a terminal state are dropped and reported as false.
func (s *Session) Append(chunk string) bool {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.terminalLocked() {
		s.mu.Unlock()
		return false
	}

	s.buf.WriteString(chunk)
	s.chunks++
	s.last = extraction.Analyze(s.buf.String())

	switch current := domain.SessionState(s.machine.Current()); {
	case s.last.InCodeBlock && current != domain.StateInCodeBlock:
		s.fireLocked(EventOpenFence)
	case current == domain.StateIdle:
		s.fireLocked(EventReason)
	}

	update, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, update)
	return true
}

// Finish marks the stream as ended successfully.
func (s *Session) Finish() bool {
	return s.terminate(EventFinish, nil)
}

// Cancel stops the generation and keeps the last result.
func (s *Session) Cancel() bool {
	return s.terminate(EventCancel, nil)
}

// Fail records err and marks the session failed.
func (s *Session) Fail(err error) bool {
	return s.terminate(EventFail, err)
}

func (s *Session) terminate(event string, err error) bool {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.terminalLocked() {
		s.mu.Unlock()
		return false
	}
	s.fireLocked(event)
	s.err = err
	update, subs := s.snapshotLocked()
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	notify(subs, update)
	return true
}

// Snapshot returns the current state as an update without notifying anyone.
func (s *Session) Snapshot() domain.SessionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	update, _ := s.snapshotLocked()
	return update
}

func (s *Session) terminalLocked() bool {
	return domain.SessionState(s.machine.Current()).IsTerminal()
}

// fireLocked applies a transition that the caller already knows is valid.
func (s *Session) fireLocked(event string) {
	if !s.machine.Can(event) {
		return
	}
	_ = s.machine.Event(context.Background(), event)
}

func (s *Session) snapshotLocked() (domain.SessionUpdate, []Subscriber) {
	update := domain.SessionUpdate{
		SessionID:  s.id,
		State:      domain.SessionState(s.machine.Current()),
		Extraction: s.last,
		Chunks:     s.chunks,
		At:         time.Now(),
	}
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub.fn)
	}
	return update, subs
}

func notify(subs []Subscriber, update domain.SessionUpdate) {
	for _, fn := range subs {
		fn(update)
	}
}
