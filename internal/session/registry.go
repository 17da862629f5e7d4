package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNotFound      = errors.New("room not found")
	ErrFull          = errors.New("room is full")
	ErrInvalidCode   = errors.New("invalid room code")
	ErrInvalidName   = errors.New("invalid player name")
	ErrNameTaken     = errors.New("name already taken in this room")
	ErrNotInRoom     = errors.New("not in a room")
	ErrAlreadySeated = errors.New("already in a room")
	ErrNotHost       = errors.New("only the host can do that")
	ErrInProgress    = errors.New("match already in progress")
)

const (
	DefaultGracePeriod = 30 * time.Second
	maxCodeAttempts    = 64
)

// Departure describes a participant leaving a room, by choice or because
// their reconnect grace period ran out.
type Departure struct {
	Session     Session // state after removal; meaningless when Destroyed
	OtherConnID string
	WasHost     bool
	Destroyed   bool
	Expired     bool
}

type Disconnection struct {
	Session     Session
	OtherConnID string
	WasHost     bool
}

type Reconnection struct {
	Session     Session
	OtherConnID string
	OldConnID   string
	WasHost     bool
}

type Options struct {
	Clock       clockwork.Clock
	GracePeriod time.Duration
	// OnGraceExpired runs, outside the registry lock, after an expired
	// disconnect has been turned into a leave.
	OnGraceExpired func(Departure)
	// NewCode overrides room code generation (tests).
	NewCode func() (string, error)
}

type grace struct {
	id    uint64
	timer clockwork.Timer
}

// Registry owns every live room and the connection-to-room index. All
// session-level operations are serialized under one lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byConn   map[string]string
	graces   map[string]*grace // keyed by the disconnected connection id
	graceSeq uint64
	closed   bool

	clock     clockwork.Clock
	period    time.Duration
	onExpired func(Departure)
	newCode   func() (string, error)
}

func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.NewCode == nil {
		opts.NewCode = GenerateCode
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		byConn:    make(map[string]string),
		graces:    make(map[string]*grace),
		clock:     opts.Clock,
		period:    opts.GracePeriod,
		onExpired: opts.OnGraceExpired,
		newCode:   opts.NewCode,
	}
}

// Create opens a room with connID as host under a fresh unique code.
func (r *Registry) Create(connID, name string) (Session, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seated := r.byConn[connID]; seated {
		return Session{}, ErrAlreadySeated
	}

	code, err := r.uniqueCodeLocked()
	if err != nil {
		return Session{}, err
	}

	s := &Session{
		Code: code,
		Host: Participant{ConnID: connID, Name: name},
	}
	r.sessions[code] = s
	r.byConn[connID] = code
	return s.clone(), nil
}

func (r *Registry) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		c, err := r.newCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := r.sessions[c]; !taken {
			return c, nil
		}
	}
	return "", errors.New("could not find a free room code")
}

func (r *Registry) Join(code, connID, name string) (Session, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Session{}, err
	}
	name, err = NormalizeName(name)
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seated := r.byConn[connID]; seated {
		return Session{}, ErrAlreadySeated
	}
	s, ok := r.sessions[code]
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.Guest != nil {
		return Session{}, ErrFull
	}
	if strings.EqualFold(s.Host.Name, name) {
		return Session{}, ErrNameTaken
	}

	s.Guest = &Participant{ConnID: connID, Name: name}
	s.Roster++
	r.byConn[connID] = code
	return s.clone(), nil
}

// Leave removes connID from its room at once.
func (r *Registry) Leave(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) (Departure, bool) {
	code, ok := r.byConn[connID]
	if !ok {
		return Departure{}, false
	}
	s := r.sessions[code]
	side, ok := s.SideOf(connID)
	if !ok {
		delete(r.byConn, connID)
		return Departure{}, false
	}

	dep := Departure{
		OtherConnID: s.OtherConn(connID),
		WasHost:     side == scoring.SideHost,
	}
	r.cancelGraceLocked(connID)
	delete(r.byConn, connID)

	if dep.WasHost {
		if s.Guest == nil {
			delete(r.sessions, code)
			dep.Destroyed = true
			dep.Session = s.clone()
			return dep, true
		}
		s.Host = *s.Guest
	}
	s.Guest = nil
	s.Roster++
	// the player set changed, so whatever was running cannot continue
	s.InProgress = false
	s.Level = ""

	dep.Session = s.clone()
	return dep, true
}

// Disconnect marks connID as gone and starts its grace period. A second
// disconnect for the same connection, or any disconnect after Close, is
// ignored.
func (r *Registry) Disconnect(connID string) (Disconnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Disconnection{}, false
	}

	code, ok := r.byConn[connID]
	if !ok {
		return Disconnection{}, false
	}
	s := r.sessions[code]
	p := r.seatLocked(s, connID)
	if p == nil || !p.Connected() {
		return Disconnection{}, false
	}

	now := r.clock.Now()
	p.DisconnectedAt = &now

	r.graceSeq++
	id := r.graceSeq
	r.graces[connID] = &grace{
		id:    id,
		timer: r.clock.AfterFunc(r.period, func() { r.expire(connID, id) }),
	}

	return Disconnection{
		Session:     s.clone(),
		OtherConnID: s.OtherConn(connID),
		WasHost:     s.Host.ConnID == connID,
	}, true
}

func (r *Registry) expire(connID string, id uint64) {
	r.mu.Lock()
	g, ok := r.graces[connID]
	if !ok || g.id != id {
		r.mu.Unlock()
		return
	}
	dep, ok := r.leaveLocked(connID)
	handler := r.onExpired
	r.mu.Unlock()

	if !ok {
		return
	}
	dep.Expired = true
	if handler != nil {
		handler(dep)
	}
}

// Reconnect rebinds a disconnected participant, found by name, to newConnID.
// Names match case-insensitively, as in Join.
// It reports false when nobody in the room is waiting under that name.
func (r *Registry) Reconnect(newConnID, name, code string) (Reconnection, bool) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Reconnection{}, false
	}
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seated := r.byConn[newConnID]; seated {
		return Reconnection{}, false
	}
	s, ok := r.sessions[code]
	if !ok {
		return Reconnection{}, false
	}

	var p *Participant
	wasHost := false
	switch {
	case strings.EqualFold(s.Host.Name, name) && !s.Host.Connected():
		p, wasHost = &s.Host, true
	case s.Guest != nil && strings.EqualFold(s.Guest.Name, name) && !s.Guest.Connected():
		p = s.Guest
	default:
		return Reconnection{}, false
	}

	old := p.ConnID
	r.cancelGraceLocked(old)
	delete(r.byConn, old)
	p.ConnID = newConnID
	p.DisconnectedAt = nil
	r.byConn[newConnID] = code

	return Reconnection{
		Session:     s.clone(),
		OtherConnID: s.OtherConn(newConnID),
		OldConnID:   old,
		WasHost:     wasHost,
	}, true
}

func (r *Registry) cancelGraceLocked(connID string) {
	if g, ok := r.graces[connID]; ok {
		g.timer.Stop()
		delete(r.graces, connID)
	}
}

func (r *Registry) seatLocked(s *Session, connID string) *Participant {
	if s.Host.ConnID == connID {
		return &s.Host
	}
	if s.Guest != nil && s.Guest.ConnID == connID {
		return s.Guest
	}
	return nil
}

// SetLevel records the host's level choice.
func (r *Registry) SetLevel(connID string, level difficulty.Level) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.byConn[connID]
	if !ok {
		return Session{}, ErrNotInRoom
	}
	s := r.sessions[code]
	if s.Host.ConnID != connID {
		return Session{}, ErrNotHost
	}
	if s.InProgress {
		return Session{}, ErrInProgress
	}
	s.Level = level
	return s.clone(), nil
}

// StartIfReady marks the room in progress when both seats and a level are
// present and no match is running, and returns the room as it starts.
func (r *Registry) StartIfReady(code string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok || !s.Ready() {
		return Session{}, false
	}
	s.InProgress = true
	return s.clone(), true
}

// SetInProgress flips the match flag. It reports false when the room is gone.
func (r *Registry) SetInProgress(code string, inProgress bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return false
	}
	s.InProgress = inProgress
	return true
}

func (r *Registry) Get(code string) (Session, bool) {
	c, err := NormalizeCode(code)
	if err != nil {
		return Session{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[c]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byConn[connID]
	return code, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every pending grace timer without expiring anyone. No new
// grace period starts afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id := range r.graces {
		r.cancelGraceLocked(id)
	}
}
