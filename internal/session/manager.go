package session

import (
	"context"
	"sync"

	"github.com/doeshing/oncomn/internal/ports"
)

// Manager enforces at most one live session per consumer.
//
// Callers that prepare a generation asynchronously take a ticket with Claim
// in arrival order and pass it to StartClaimed. Only the consumer's newest
// claim may become the live session; an older one starts already cancelled.
type Manager struct {
	mu     sync.Mutex
	active map[string]*Session
	claims map[string]uint64
	seq    uint64
	logger ports.Logger
}

// NewManager builds an empty manager.
func NewManager(logger ports.Logger) *Manager {
	return &Manager{
		active: make(map[string]*Session),
		claims: make(map[string]uint64),
		logger: logger,
	}
}

// Claim cancels the consumer's live session and reserves the next one.
func (m *Manager) Claim(consumer string) uint64 {
	m.mu.Lock()
	ticket := m.claimLocked(consumer)
	previous := m.active[consumer]
	m.mu.Unlock()

	m.cancelPrevious(consumer, previous)
	return ticket
}

// Start creates a session for consumer, cancelling the consumer's previous
// session if it is still running.
func (m *Manager) Start(parent context.Context, consumer string) (*Session, context.Context) {
	return m.StartClaimed(parent, consumer, 0)
}

// StartClaimed is Start for a ticket returned by Claim. A zero ticket claims
// on the spot. When a newer claim exists the session is returned cancelled
// and the live session is left alone.
func (m *Manager) StartClaimed(parent context.Context, consumer string, ticket uint64) (*Session, context.Context) {
	m.mu.Lock()
	if ticket == 0 {
		ticket = m.claimLocked(consumer)
	}
	sess, ctx := New(parent, consumer)
	sess.ticket = ticket
	if m.claims[consumer] != ticket {
		m.mu.Unlock()
		sess.Cancel()
		if m.logger != nil {
			m.logger.Debug("superseded before start", map[string]interface{}{
				"consumer":   consumer,
				"session_id": sess.ID(),
			})
		}
		return sess, ctx
	}
	previous := m.active[consumer]
	m.active[consumer] = sess
	m.mu.Unlock()

	m.cancelPrevious(consumer, previous)

	go func() {
		<-sess.Done()
		m.release(sess)
	}()
	return sess, ctx
}

func (m *Manager) claimLocked(consumer string) uint64 {
	m.seq++
	m.claims[consumer] = m.seq
	return m.seq
}

func (m *Manager) cancelPrevious(consumer string, previous *Session) {
	if previous != nil && previous.Cancel() && m.logger != nil {
		m.logger.Info("cancelled previous session", map[string]interface{}{
			"consumer":   consumer,
			"session_id": previous.ID(),
		})
	}
}

// Active returns the live session of consumer.
func (m *Manager) Active(consumer string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.active[consumer]
	return sess, ok
}

// Cancel stops the live session of consumer, if any. Claims taken before
// the call are void.
func (m *Manager) Cancel(consumer string) bool {
	m.mu.Lock()
	sess, ok := m.active[consumer]
	if ticket, claimed := m.claims[consumer]; claimed && (!ok || ticket != sess.ticket) {
		m.claimLocked(consumer)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	return sess.Cancel()
}

// Forget drops the bookkeeping of a consumer that will not start sessions
// anymore. A live session is left running.
func (m *Manager) Forget(consumer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[consumer]; !ok {
		delete(m.claims, consumer)
	}
}

// CancelAll stops every live session.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, sess := range m.active {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Cancel()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) release(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	consumer := sess.Consumer()
	if m.active[consumer] == sess {
		delete(m.active, consumer)
		if m.claims[consumer] == sess.ticket {
			delete(m.claims, consumer)
		}
	}
}
