package session

import (
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func newTestRegistry(t *testing.T, fc *clockwork.FakeClock, onExpired func(Departure)) *Registry {
	t.Helper()
	r := NewRegistry(Options{
		Clock:          fc,
		GracePeriod:    30 * time.Second,
		OnGraceExpired: onExpired,
	})
	t.Cleanup(r.Close)
	return r
}

func recvDeparture(t *testing.T, ch <-chan Departure, within time.Duration) Departure {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(within):
		t.Fatalf("timed out waiting for grace expiry")
		return Departure{}
	}
}

func TestGenerateCode_Alphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		_, err = NormalizeCode(c)
		require.NoErrorf(t, err, "generated code %q should be valid", c)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"abcdef", "ABCDEF", false},
		{"  XYZ234 ", "XYZ234", false},
		{"ABCDE", "", true},
		{"ABCDEFG", "", true},
		{"ABCDE0", "", true}, // 0 is not in the alphabet
		{"ABCDEI", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeCode(tc.in)
		if tc.wantErr {
			assert.ErrorIsf(t, err, ErrInvalidCode, "input %q", tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	r := NewRegistry(Options{
		Clock:   clockwork.NewFakeClock(),
		NewCode: seqCodes("AAAAAA", "AAAAAA", "BBBBBB"),
	})

	s1, err := r.Create("c1", "Alice")
	require.NoError(t, err)
	s2, err := r.Create("c2", "Bob")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", s1.Code)
	assert.Equal(t, "BBBBBB", s2.Code)
	assert.Equal(t, 2, r.Len())
}

func TestCreate_Validation(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)

	_, err := r.Create("c1", "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	s, err := r.Create("c1", "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", s.Host.Name)
	assert.Nil(t, s.Guest)

	_, err = r.Create("c1", "Alice")
	assert.ErrorIs(t, err, ErrAlreadySeated)
}

func TestJoin(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)

	_, err = r.Join("ZZZZZZ", "guest", "Bob")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Join("nope", "guest", "Bob")
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = r.Join(s.Code, "guest", "alice")
	assert.ErrorIs(t, err, ErrNameTaken)

	joined, err := r.Join(" "+strings.ToLower(s.Code)+" ", "guest", "Bob")
	require.NoError(t, err)
	require.NotNil(t, joined.Guest)
	assert.Equal(t, "Bob", joined.Guest.Name)
	assert.Equal(t, "Bob", joined.GuestName())

	_, err = r.Join(s.Code, "third", "Carol")
	assert.ErrorIs(t, err, ErrFull)

	code, ok := r.RoomOf("guest")
	require.True(t, ok)
	assert.Equal(t, s.Code, code)

	side, ok := joined.SideOf("guest")
	require.True(t, ok)
	assert.Equal(t, scoring.SideGuest, side)
	assert.Equal(t, "host", joined.OtherConn("guest"))
}

func TestLeave_PromotesGuestAndDestroysWhenEmpty(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)
	_, err = r.SetLevel("host", difficulty.LevelPro)
	require.NoError(t, err)
	require.True(t, r.SetInProgress(s.Code, true))

	dep, ok := r.Leave("host")
	require.True(t, ok)
	assert.True(t, dep.WasHost)
	assert.False(t, dep.Destroyed)
	assert.Equal(t, "guest", dep.OtherConnID)
	assert.Equal(t, "Bob", dep.Session.Host.Name)
	assert.Equal(t, "guest", dep.Session.Host.ConnID)
	assert.Nil(t, dep.Session.Guest)
	assert.False(t, dep.Session.InProgress)
	assert.Empty(t, dep.Session.Level)

	_, ok = r.RoomOf("host")
	assert.False(t, ok)

	dep, ok = r.Leave("guest")
	require.True(t, ok)
	assert.True(t, dep.Destroyed)
	assert.Empty(t, dep.OtherConnID)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Leave("guest")
	assert.False(t, ok, "leaving twice is a no-op")
}

func TestSetLevel(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)

	_, err = r.SetLevel("guest", difficulty.LevelPro)
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = r.SetLevel("stranger", difficulty.LevelPro)
	assert.ErrorIs(t, err, ErrNotInRoom)

	got, err := r.SetLevel("host", difficulty.LevelLegend)
	require.NoError(t, err)
	assert.Equal(t, difficulty.LevelLegend, got.Level)
	assert.True(t, got.Ready())

	r.SetInProgress(s.Code, true)
	_, err = r.SetLevel("host", difficulty.LevelPro)
	assert.ErrorIs(t, err, ErrInProgress)

	assert.False(t, r.SetInProgress("ZZZZZZ", false))
}

func TestReconnect_WithinGrace(t *testing.T) {
	fc := clockwork.NewFakeClock()
	expired := make(chan Departure, 1)
	r := newTestRegistry(t, fc, func(d Departure) { expired <- d })

	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)

	disc, ok := r.Disconnect("guest")
	require.True(t, ok)
	assert.False(t, disc.WasHost)
	assert.Equal(t, "host", disc.OtherConnID)
	require.NotNil(t, disc.Session.Guest)
	assert.False(t, disc.Session.Guest.Connected())

	_, ok = r.Disconnect("guest")
	assert.False(t, ok, "already disconnected")

	fc.Advance(10 * time.Second)

	_, ok = r.Reconnect("guest2", "Nobody", s.Code)
	assert.False(t, ok, "unknown name")
	_, ok = r.Reconnect("guest2", "Alice", s.Code)
	assert.False(t, ok, "host is still connected")

	rec, ok := r.Reconnect("guest2", "Bob", strings.ToLower(s.Code))
	require.True(t, ok)
	assert.False(t, rec.WasHost)
	assert.Equal(t, "guest", rec.OldConnID)
	assert.Equal(t, "host", rec.OtherConnID)
	require.NotNil(t, rec.Session.Guest)
	assert.Equal(t, "guest2", rec.Session.Guest.ConnID)
	assert.True(t, rec.Session.Guest.Connected())

	_, ok = r.RoomOf("guest")
	assert.False(t, ok)
	code, ok := r.RoomOf("guest2")
	require.True(t, ok)
	assert.Equal(t, s.Code, code)

	fc.Advance(time.Minute)
	select {
	case d := <-expired:
		t.Fatalf("grace fired after reconnect: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGraceExpiry_BehavesAsLeave(t *testing.T) {
	fc := clockwork.NewFakeClock()
	expired := make(chan Departure, 1)
	r := newTestRegistry(t, fc, func(d Departure) { expired <- d })

	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)
	r.SetInProgress(s.Code, true)

	_, ok := r.Disconnect("host")
	require.True(t, ok)

	fc.Advance(29 * time.Second)
	select {
	case <-expired:
		t.Fatalf("grace fired early")
	case <-time.After(50 * time.Millisecond):
	}

	fc.Advance(time.Second)
	d := recvDeparture(t, expired, time.Second)
	assert.True(t, d.Expired)
	assert.True(t, d.WasHost)
	assert.Equal(t, "guest", d.OtherConnID)
	assert.Equal(t, "Bob", d.Session.Host.Name)
	assert.False(t, d.Session.InProgress)

	_, ok = r.Reconnect("host2", "Alice", s.Code)
	assert.False(t, ok, "reconnect after expiry fails")

	got, ok := r.Get(s.Code)
	require.True(t, ok)
	assert.Nil(t, got.Guest)
}

func TestGraceExpiry_LastParticipantDestroysRoom(t *testing.T) {
	fc := clockwork.NewFakeClock()
	expired := make(chan Departure, 1)
	r := newTestRegistry(t, fc, func(d Departure) { expired <- d })

	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, ok := r.Disconnect("host")
	require.True(t, ok)

	fc.Advance(30 * time.Second)
	d := recvDeparture(t, expired, time.Second)
	assert.True(t, d.Destroyed)

	_, ok = r.Get(s.Code)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestLeave_CancelsPendingGrace(t *testing.T) {
	fc := clockwork.NewFakeClock()
	expired := make(chan Departure, 1)
	r := newTestRegistry(t, fc, func(d Departure) { expired <- d })

	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)

	_, ok := r.Disconnect("guest")
	require.True(t, ok)
	_, ok = r.Leave("guest")
	require.True(t, ok)

	fc.Advance(time.Minute)
	select {
	case d := <-expired:
		t.Fatalf("grace fired after leave: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)

	got, ok := r.Get(s.Code)
	require.True(t, ok)
	got.Guest.Name = "Mallory"
	got.Host.Name = "Mallory"

	again, ok := r.Get(s.Code)
	require.True(t, ok)
	assert.Equal(t, "Alice", again.Host.Name)
	assert.Equal(t, "Bob", again.Guest.Name)
}

func TestReconnect_NameIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)
	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)

	_, ok := r.Disconnect("guest")
	require.True(t, ok)

	rec, ok := r.Reconnect("guest2", "  bob ", s.Code)
	require.True(t, ok)
	assert.Equal(t, "Bob", rec.Session.Guest.Name, "stored name is kept")
}

func TestRoster_ChangesWithSeatsOnly(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)

	joined, err := r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)
	assert.Greater(t, joined.Roster, s.Roster)

	_, ok := r.Disconnect("guest")
	require.True(t, ok)
	rec, ok := r.Reconnect("guest2", "Bob", s.Code)
	require.True(t, ok)
	assert.Equal(t, joined.Roster, rec.Session.Roster, "reconnect keeps the roster")

	dep, ok := r.Leave("host")
	require.True(t, ok)
	assert.Greater(t, dep.Session.Roster, joined.Roster, "promotion moves the roster")

	again, err := r.Join(s.Code, "carol", "Carol")
	require.NoError(t, err)
	assert.Greater(t, again.Roster, dep.Session.Roster)
}

func TestStartIfReady(t *testing.T) {
	r := newTestRegistry(t, clockwork.NewFakeClock(), nil)
	s, err := r.Create("host", "Alice")
	require.NoError(t, err)

	_, ok := r.StartIfReady(s.Code)
	assert.False(t, ok, "no guest")

	_, err = r.SetLevel("host", difficulty.LevelAmateur)
	require.NoError(t, err)
	_, ok = r.StartIfReady(s.Code)
	assert.False(t, ok, "still no guest")

	_, err = r.Join(s.Code, "guest", "Bob")
	require.NoError(t, err)
	started, ok := r.StartIfReady(s.Code)
	require.True(t, ok)
	assert.True(t, started.InProgress)
	assert.Equal(t, "Bob", started.GuestName())

	_, ok = r.StartIfReady(s.Code)
	assert.False(t, ok, "already running")

	// a guest leaving clears the level, so nothing can start on the stale room
	_, ok = r.Leave("guest")
	require.True(t, ok)
	_, ok = r.StartIfReady(s.Code)
	assert.False(t, ok)
	got, _ := r.Get(s.Code)
	assert.False(t, got.InProgress)

	_, ok = r.StartIfReady("ZZZZZZ")
	assert.False(t, ok)
}

func TestDisconnect_IgnoredAfterClose(t *testing.T) {
	fc := clockwork.NewFakeClock()
	expired := make(chan Departure, 1)
	r := newTestRegistry(t, fc, func(d Departure) { expired <- d })

	_, err := r.Create("host", "Alice")
	require.NoError(t, err)

	r.Close()
	_, ok := r.Disconnect("host")
	assert.False(t, ok)

	fc.Advance(time.Minute)
	select {
	case d := <-expired:
		t.Fatalf("grace armed after close: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}
