package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

type memSink struct {
	name     string
	mu       sync.Mutex
	scores   []scoring.Score
	sessions []session.Snapshot
	fail     error
	closed   bool
	late     int // writes after Close
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Write(s scoring.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.late++
	}
	if m.fail != nil {
		return m.fail
	}
	m.scores = append(m.scores, s)
	return nil
}

func (m *memSink) RecordSession(snap session.Snapshot, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, snap)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.fail
}

func scoreUpdate(id string, combined float64) session.Update {
	s := scoring.Score{SessionID: id, Combined: combined}
	return session.Update{
		Score:    &s,
		Snapshot: session.Snapshot{State: session.Scoring, SessionID: id},
	}
}

func TestFanout_DeliversToAll(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	f := NewFanout(nil, a, b)

	f.Deliver(scoreUpdate("s1", 80))
	f.Deliver(scoreUpdate("s1", 90))

	require.Len(t, a.scores, 2)
	require.Len(t, b.scores, 2)
	assert.Equal(t, 90.0, b.scores[1].Combined)

	st, ok := f.Status("a")
	require.True(t, ok)
	assert.Equal(t, int64(2), st.Written)
	assert.True(t, st.Healthy)
}

func TestFanout_SessionChangesOnly(t *testing.T) {
	a := &memSink{name: "a"}
	f := NewFanout(nil, a)

	f.Deliver(session.Update{Snapshot: session.Snapshot{State: session.Calibrating, SessionID: "s1"}})
	f.Deliver(scoreUpdate("s1", 50))
	f.Deliver(scoreUpdate("s1", 60))
	f.Deliver(session.Update{Snapshot: session.Snapshot{State: session.Idle, SessionID: "s1"}})

	require.Len(t, a.sessions, 3)
	assert.Equal(t, session.Calibrating, a.sessions[0].State)
	assert.Equal(t, session.Scoring, a.sessions[1].State)
	assert.Equal(t, session.Idle, a.sessions[2].State)
}

func TestFanout_FailingSinkIsolated(t *testing.T) {
	bad := &memSink{name: "bad", fail: errors.New("disk full")}
	good := &memSink{name: "good"}
	f := NewFanout(nil, bad, good)

	f.Deliver(scoreUpdate("s1", 70))

	assert.Len(t, good.scores, 1)

	st, _ := f.Status("bad")
	assert.False(t, st.Healthy)
	assert.Equal(t, int64(1), st.Errors)
	assert.Equal(t, "disk full", st.LastError)

	err := f.Close()
	assert.Error(t, err)
	assert.True(t, good.closed)
}

func TestFanout_RunStopsOnClose(t *testing.T) {
	a := &memSink{name: "a"}
	f := NewFanout(nil, a)

	ch := make(chan session.Update, 4)
	ch <- scoreUpdate("s1", 10)
	ch <- scoreUpdate("s1", 20)
	close(ch)

	done := make(chan struct{})
	go func() {
		f.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Len(t, a.scores, 2)
	assert.Equal(t, []string{"a"}, f.Names())
}

func TestFanout_WaitDrainsBeforeClose(t *testing.T) {
	a := &memSink{name: "a"}
	f := NewFanout(nil, a)

	ch := make(chan session.Update, 32)
	go f.Run(context.Background(), ch)
	for i := 0; i < 32; i++ {
		ch <- scoreUpdate("s1", float64(i))
	}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx))
	require.NoError(t, f.Close())

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Len(t, a.scores, 32)
	assert.Equal(t, 0, a.late)
}

func TestFanout_WaitHonoursContext(t *testing.T) {
	f := NewFanout(nil)
	ch := make(chan session.Update)
	go f.Run(context.Background(), ch)
	defer close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}
