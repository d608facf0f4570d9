package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/oncomn/internal/domain"
)

func TestSession_Lifecycle(t *testing.T) {
	sess, ctx := New(context.Background(), "prompt-box")
	assert.Equal(t, domain.StateIdle, sess.State())

	require.True(t, sess.Append("Let me think"))
	assert.Equal(t, domain.StateReasoning, sess.State())
	assert.Equal(t, "Let me think", sess.Result().Reasoning)

	require.True(t, sess.Append(" about it.\n```json\n{\"generated-html\": \"<p>"))
	assert.Equal(t, domain.StateInCodeBlock, sess.State())
	assert.Equal(t, "<p>", sess.Result().HTML)

	require.True(t, sess.Append("hi</p>\", \"generated-css\": \"\", \"generated-js\": \"\"}\n```"))
	assert.Equal(t, domain.StateInCodeBlock, sess.State())
	assert.True(t, sess.Extraction().IsComplete())

	require.True(t, sess.Finish())
	assert.Equal(t, domain.StateDone, sess.State())
	assert.Equal(t, 3, sess.Chunks())
	assert.Error(t, ctx.Err(), "finishing releases the session context")

	assert.False(t, sess.Append("late"))
	assert.False(t, sess.Finish())
	assert.Equal(t, "<p>hi</p>", sess.Result().HTML)
}

func TestSession_FenceIsOneWay(t *testing.T) {
	sess, _ := New(context.Background(), "c")

	sess.Append("```json\n{")
	assert.Equal(t, domain.StateInCodeBlock, sess.State(), "fence in the first chunk skips reasoning")

	sess.mu.Lock()
	canReason := sess.machine.Can(EventReason)
	canReopen := sess.machine.Can(EventOpenFence)
	sess.mu.Unlock()
	assert.False(t, canReason)
	assert.False(t, canReopen)
}

func TestSession_FenceSplitAcrossChunks(t *testing.T) {
	sess, _ := New(context.Background(), "c")

	sess.Append("plan ``")
	assert.Equal(t, domain.StateReasoning, sess.State())
	sess.Append("`js")
	assert.Equal(t, domain.StateReasoning, sess.State())
	sess.Append("on\n{\"generated-js\": \"x")
	assert.Equal(t, domain.StateInCodeBlock, sess.State())
	assert.Equal(t, "x", sess.Result().JS)
	assert.Equal(t, "plan", sess.Result().Reasoning)
}

func TestSession_CancelRetainsResult(t *testing.T) {
	sess, ctx := New(context.Background(), "c")

	var (
		mu      sync.Mutex
		updates []domain.SessionUpdate
	)
	sess.Subscribe(func(u domain.SessionUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	sess.Append("\x1b[34mThe user wants a navbar.\x1b[0m")
	require.True(t, sess.Cancel())

	assert.Equal(t, domain.StateCancelled, sess.State())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	select {
	case <-sess.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	assert.False(t, sess.Append("```json\n{\"generated-html\": \"<nav>"))
	assert.False(t, sess.Cancel(), "second cancel is a no-op")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2, "one update per chunk plus the cancel")
	assert.Equal(t, domain.StateCancelled, updates[1].State)

	result := sess.Result()
	assert.Equal(t, "The user wants a navbar.", result.Reasoning)
	assert.False(t, result.HasCode())
}

func TestSession_Fail(t *testing.T) {
	sess, _ := New(context.Background(), "c")
	boom := errors.New("boom")

	sess.Append("thinking")
	require.True(t, sess.Fail(boom))

	assert.Equal(t, domain.StateFailed, sess.State())
	assert.ErrorIs(t, sess.Err(), boom)
	assert.False(t, sess.Cancel())
}

func TestSession_Unsubscribe(t *testing.T) {
	sess, _ := New(context.Background(), "c")

	var first, second int
	unsubscribe := sess.Subscribe(func(domain.SessionUpdate) { first++ })
	sess.Subscribe(func(domain.SessionUpdate) { second++ })

	sess.Append("a")
	unsubscribe()
	sess.Append("b")

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestSession_ConcurrentCancel(t *testing.T) {
	sess, ctx := New(context.Background(), "c")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if ctx.Err() != nil {
				return
			}
			sess.Append("x")
		}
	}()

	sess.Cancel()
	wg.Wait()

	chunks := sess.Chunks()
	assert.False(t, sess.Append("y"))
	assert.Equal(t, chunks, sess.Chunks())
	assert.Len(t, sess.Text(), chunks)
}

func TestManager_OneSessionPerConsumer(t *testing.T) {
	m := NewManager(nil)

	first, firstCtx := m.Start(context.Background(), "tab-1")
	other, _ := m.Start(context.Background(), "tab-2")
	first.Append("thinking")

	second, _ := m.Start(context.Background(), "tab-1")

	assert.Equal(t, domain.StateCancelled, first.State())
	assert.Error(t, firstCtx.Err())
	assert.Equal(t, "thinking", first.Result().Reasoning, "cancelled session keeps its result")
	assert.Equal(t, domain.StateIdle, second.State())
	assert.Equal(t, domain.StateIdle, other.State(), "other consumers are unaffected")

	active, ok := m.Active("tab-1")
	require.True(t, ok)
	assert.Same(t, second, active)
}

func TestManager_ReleasesFinishedSessions(t *testing.T) {
	m := NewManager(nil)

	sess, _ := m.Start(context.Background(), "cli")
	assert.Equal(t, 1, m.Len())

	sess.Finish()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := m.Active("cli")
	assert.False(t, ok)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(nil)

	assert.False(t, m.Cancel("nobody"))

	a, _ := m.Start(context.Background(), "a")
	b, _ := m.Start(context.Background(), "b")
	assert.True(t, m.Cancel("a"))
	assert.Equal(t, domain.StateCancelled, a.State())

	m.CancelAll()
	assert.Equal(t, domain.StateCancelled, b.State())
}

func TestManager_StaleClaimStartsCancelled(t *testing.T) {
	m := NewManager(nil)

	older := m.Claim("ws-1")
	newer := m.Claim("ws-1")

	live, liveCtx := m.StartClaimed(context.Background(), "ws-1", newer)
	stale, staleCtx := m.StartClaimed(context.Background(), "ws-1", older)

	assert.Equal(t, domain.StateCancelled, stale.State())
	assert.Error(t, staleCtx.Err())
	assert.Equal(t, domain.StateIdle, live.State(), "a stale start leaves the live session alone")
	assert.NoError(t, liveCtx.Err())

	active, ok := m.Active("ws-1")
	require.True(t, ok)
	assert.Same(t, live, active)
}

func TestManager_ClaimCancelsLiveSession(t *testing.T) {
	m := NewManager(nil)

	first, _ := m.Start(context.Background(), "ws-1")
	ticket := m.Claim("ws-1")

	assert.Equal(t, domain.StateCancelled, first.State())

	second, _ := m.StartClaimed(context.Background(), "ws-1", ticket)
	assert.Equal(t, domain.StateIdle, second.State())
}

func TestManager_CancelVoidsPendingClaims(t *testing.T) {
	m := NewManager(nil)

	ticket := m.Claim("ws-1")
	assert.False(t, m.Cancel("ws-1"))

	sess, _ := m.StartClaimed(context.Background(), "ws-1", ticket)
	assert.Equal(t, domain.StateCancelled, sess.State())
	_, ok := m.Active("ws-1")
	assert.False(t, ok)

	m.Forget("ws-1")
	fresh, _ := m.Start(context.Background(), "ws-1")
	assert.Equal(t, domain.StateIdle, fresh.State())
}
