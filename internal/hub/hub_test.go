package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/engine"
	"github.com/DoyleJ11/math-tennis-backend/internal/problem"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
	"github.com/DoyleJ11/math-tennis-backend/internal/session"
	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	boxes map[string]chan types.ServerMessage
}

func (r *recorder) box(conn string) chan types.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.boxes == nil {
		r.boxes = make(map[string]chan types.ServerMessage)
	}
	ch, ok := r.boxes[conn]
	if !ok {
		ch = make(chan types.ServerMessage, 64)
		r.boxes[conn] = ch
	}
	return ch
}

func (r *recorder) Send(conn string, msg types.ServerMessage) {
	select {
	case r.box(conn) <- msg:
	default:
	}
}

type sequenceSource struct{ n int }

func (s *sequenceSource) Pair(difficulty.Config) (problem.Problem, problem.Problem) {
	s.n += 2
	return problem.Problem{Question: fmt.Sprintf("%d + 0", s.n-1), Answer: s.n - 1},
		problem.Problem{Question: fmt.Sprintf("%d + 0", s.n), Answer: s.n}
}

type fixture struct {
	t     *testing.T
	fc    *clockwork.FakeClock
	notes *recorder
	hub   *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, fc: clockwork.NewFakeClock(), notes: &recorder{}}
	f.hub = NewHub(context.Background(), Config{
		Levels:      difficulty.DefaultLevels(),
		Notifier:    f.notes,
		Clock:       f.fc,
		GracePeriod: 5 * time.Second,
		NewProblems: func() engine.ProblemSource { return &sequenceSource{} },
		Logger:      zaptest.NewLogger(t),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.hub.Shutdown(ctx)
	})
	return f
}

func (f *fixture) expect(conn, typ string) types.ServerMessage {
	f.t.Helper()
	select {
	case m := <-f.notes.box(conn):
		require.Equalf(f.t, typ, m.Type, "conn %s: unexpected message %+v", conn, m)
		return m
	case <-time.After(time.Second):
		f.t.Fatalf("conn %s: timed out waiting for %s", conn, typ)
		return types.ServerMessage{} // unreachable
	}
}

func (f *fixture) expectNothing(conn string) {
	f.t.Helper()
	select {
	case m := <-f.notes.box(conn):
		f.t.Fatalf("conn %s: expected no message, got %+v", conn, m)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fixture) create(conn, name string) string {
	f.t.Helper()
	require.NoError(f.t, f.hub.CreateRoom(conn, name))
	return f.expect(conn, types.RoomCreated).Data.(types.RoomCreatedData).RoomCode
}

// startMatch opens a room for Alice ("h") and Bob ("g") and starts an amateur match.
func (f *fixture) startMatch() string {
	f.t.Helper()
	code := f.create("h", "Alice")
	require.NoError(f.t, f.hub.JoinRoom("g", code, "Bob"))
	f.expect("g", types.RoomJoined)
	f.expect("h", types.RoomOpponentJoined)

	require.NoError(f.t, f.hub.SelectLevel("h", "amateur"))
	f.expect("g", types.GameLevelSelected)
	f.expect("h", types.GameStart)
	f.expect("g", types.GameStart)
	return code
}

func TestHub_CreateJoinSelectLevel(t *testing.T) {
	f := newFixture(t)
	code := f.create("h", "Alice")
	assert.Len(t, code, session.CodeLength)
	assert.Equal(t, 1, f.hub.LobbyCount())

	require.Error(t, f.hub.JoinRoom("g", "ZZZZZZ", "Bob"))
	msg := f.expect("g", types.RoomError).Data.(types.ErrorData)
	assert.Equal(t, session.ErrNotFound.Error(), msg.Message)

	require.NoError(t, f.hub.JoinRoom("g", code, "Bob"))
	joined := f.expect("g", types.RoomJoined).Data.(types.RoomJoinedData)
	assert.Equal(t, "Alice", joined.HostName)
	f.expect("h", types.RoomOpponentJoined)

	require.Error(t, f.hub.JoinRoom("x", code, "Carol"))
	assert.Equal(t, session.ErrFull.Error(), f.expect("x", types.RoomError).Data.(types.ErrorData).Message)

	require.ErrorIs(t, f.hub.SelectLevel("g", "pro"), session.ErrNotHost)
	f.expect("g", types.RoomError)

	require.ErrorIs(t, f.hub.SelectLevel("h", "grandmaster"), difficulty.ErrUnknownLevel)
	f.expect("h", types.RoomError)

	require.NoError(t, f.hub.SelectLevel("h", "amateur"))
	lv := f.expect("g", types.GameLevelSelected).Data.(types.LevelSelectedData)
	assert.Equal(t, "amateur", lv.Level)

	start := f.expect("h", types.GameStart).Data.(types.StartData)
	assert.True(t, start.YourTurn)
	assert.Equal(t, "1 + 0", start.Question)
	assert.False(t, f.expect("g", types.GameStart).Data.(types.StartData).YourTurn)

	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.Equal(t, types.RoomView{Code: code, HostName: "Alice", GuestName: "Bob", Level: "amateur", InProgress: true, Full: true}, view)

	// level changes are ignored while the match runs
	require.ErrorIs(t, f.hub.SelectLevel("h", "pro"), session.ErrInProgress)
	f.expectNothing("h")
	f.expectNothing("g")
}

func TestHub_LevelBeforeGuestStartsOnJoin(t *testing.T) {
	f := newFixture(t)
	code := f.create("h", "Alice")
	require.NoError(t, f.hub.SelectLevel("h", "pro"))
	f.expectNothing("h")

	require.NoError(t, f.hub.JoinRoom("g", code, "Bob"))
	f.expect("g", types.RoomJoined)
	f.expect("h", types.RoomOpponentJoined)
	assert.Equal(t, 10, f.expect("h", types.GameStart).Data.(types.StartData).TimerSeconds)
	f.expect("g", types.GameStart)
}

func TestHub_AnswerRoutesToRoom(t *testing.T) {
	f := newFixture(t)
	f.startMatch()

	f.hub.SubmitAnswer("h", 1)
	assert.True(t, f.expect("h", types.GameAnswerResult).Data.(types.AnswerResultData).Correct)
	f.expect("g", types.GameOpponentAnswered)

	// answers from unseated connections go nowhere
	f.hub.SubmitAnswer("nobody", 1)
	f.expectNothing("nobody")
}

func TestHub_LeaveDuringMatch(t *testing.T) {
	f := newFixture(t)
	code := f.startMatch()

	f.hub.LeaveRoom("h")
	f.expect("g", types.RoomOpponentLeft)

	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.Equal(t, "Bob", view.HostName, "guest promoted to host")
	assert.False(t, view.InProgress)
	assert.False(t, view.Full)
	assert.Empty(t, view.Level)

	// the aborted match's timer never fires
	f.fc.Advance(time.Minute)
	f.expectNothing("g")

	f.hub.LeaveRoom("g")
	_, ok = f.hub.Room(code)
	assert.False(t, ok)
	assert.Equal(t, 0, f.hub.LobbyCount())
	assert.Equal(t, 0, f.hub.RoomCount())
}

func TestHub_CreateWhileSeatedLeavesPreviousRoom(t *testing.T) {
	f := newFixture(t)
	first := f.create("h", "Alice")
	second := f.create("h", "Alice")

	assert.NotEqual(t, first, second)
	_, ok := f.hub.Room(first)
	assert.False(t, ok, "empty room is destroyed")
	assert.Equal(t, 1, f.hub.RoomCount())
}

func TestHub_DisconnectReconnect(t *testing.T) {
	f := newFixture(t)
	code := f.startMatch()

	f.hub.Disconnect("g")
	f.expect("h", types.OpponentDisconnected)

	f.fc.Advance(2 * time.Second)

	require.ErrorIs(t, f.hub.Reconnect("g2", "Mallory", code), ErrNoDisconnectedPlayer)
	f.expect("g2", types.RoomError)

	require.NoError(t, f.hub.Reconnect("g2", "Bob", code))
	back := f.expect("g2", types.RoomReconnected).Data.(types.ReconnectedData)
	assert.Equal(t, code, back.RoomCode)
	assert.False(t, back.IsHost)

	sync := f.expect("g2", types.GameResync).Data.(types.ResyncData)
	assert.Equal(t, "1 + 0", sync.Question)
	assert.Equal(t, 13, sync.TimerSeconds)
	f.expect("h", types.OpponentReconnected)

	// grace period is gone: nothing happens when it would have run out
	f.fc.Advance(5 * time.Second)
	f.expectNothing("h")
	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.True(t, view.InProgress)
}

func TestHub_HostDisconnectReconnect(t *testing.T) {
	f := newFixture(t)
	code := f.startMatch()

	f.hub.Disconnect("h")
	f.expect("g", types.OpponentDisconnected)

	f.fc.Advance(2 * time.Second)

	require.NoError(t, f.hub.Reconnect("h2", "Alice", code))
	back := f.expect("h2", types.RoomReconnected).Data.(types.ReconnectedData)
	assert.True(t, back.IsHost)
	assert.Equal(t, "Alice", back.HostName)
	assert.Equal(t, "Bob", back.GuestName)

	sync := f.expect("h2", types.GameResync).Data.(types.ResyncData)
	assert.Equal(t, "1 + 0", sync.Question)
	assert.True(t, sync.YourTurn)
	assert.Equal(t, scoring.Player, sync.Server)
	assert.Equal(t, 13, sync.TimerSeconds)
	f.expect("g", types.OpponentReconnected)

	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.Equal(t, "Alice", view.HostName, "host keeps the host seat")
	assert.True(t, view.InProgress)

	f.hub.SubmitAnswer("h2", 1)
	assert.True(t, f.expect("h2", types.GameAnswerResult).Data.(types.AnswerResultData).Correct)
	f.expect("g", types.GameOpponentAnswered)
}

func TestHub_GraceExpiryEndsMatch(t *testing.T) {
	f := newFixture(t)
	code := f.startMatch()

	f.hub.Disconnect("g")
	f.expect("h", types.OpponentDisconnected)

	f.fc.Advance(5 * time.Second)
	f.expect("h", types.RoomOpponentLeft)

	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.False(t, view.InProgress)
	assert.False(t, view.Full)

	require.ErrorIs(t, f.hub.Reconnect("g2", "Bob", code), ErrNoDisconnectedPlayer)
}

func TestHub_Shutdown(t *testing.T) {
	f := newFixture(t)
	code := f.startMatch()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.hub.Shutdown(ctx))

	assert.Equal(t, 0, f.hub.LobbyCount())

	// sockets closing after shutdown start no grace period
	f.hub.Disconnect("g")
	f.fc.Advance(time.Minute)
	f.expectNothing("h")
	f.expectNothing("g")
	view, ok := f.hub.Room(code)
	require.True(t, ok)
	assert.Equal(t, "Bob", view.GuestName)

	// a second shutdown is a no-op
	require.NoError(t, f.hub.Shutdown(ctx))
}
