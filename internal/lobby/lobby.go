package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/engine"
	"github.com/DoyleJ11/math-tennis-backend/internal/publish"
	"github.com/DoyleJ11/math-tennis-backend/internal/scoring"
	"github.com/DoyleJ11/math-tennis-backend/internal/session"
	"github.com/DoyleJ11/math-tennis-backend/internal/turnclock"
	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Notifier delivers a message to one connection. Unknown ids are dropped.
type Notifier interface {
	Send(connID string, msg types.ServerMessage)
}

// Rooms is the part of the session registry a lobby reads and writes.
type Rooms interface {
	Get(code string) (session.Session, bool)
	StartIfReady(code string) (session.Session, bool)
	SetInProgress(code string, inProgress bool) bool
}

type Delays struct {
	Hit     time.Duration // correct answer until the next question
	Timeout time.Duration // timer expiry until the point is scored
	Point   time.Duration // scored point until the next question
}

func DefaultDelays() Delays {
	return Delays{Hit: 800 * time.Millisecond, Timeout: 500 * time.Millisecond, Point: 500 * time.Millisecond}
}

type Deps struct {
	Rooms     Rooms
	Notifier  Notifier
	Publisher publish.Publisher
	Levels    difficulty.Levels
	Engine    *engine.Engine
	Clock     clockwork.Clock
	TurnClock *turnclock.Clock
	Delays    Delays
	Logger    *zap.Logger
}

type Msg interface{ isLobbyMsg() }

// Joined tells the lobby a guest took the empty seat.
type Joined struct{ ConnID string }

// LevelSelected tells the lobby the host picked a level.
type LevelSelected struct{ Level difficulty.Level }

type Answer struct {
	ConnID string
	Value  int
}

type Departed struct{ Departure session.Departure }

type Disconnected struct{ Disconnection session.Disconnection }

type Reconnected struct{ Reconnection session.Reconnection }

type Shutdown struct{}

// GetState reflects internal state without data races.
type GetState struct {
	Reply chan View
}

// turnExpired and followUp are posted by timers. Seq ties them to the
// step that armed them; anything older is dropped.
type turnExpired struct{ seq uint64 }

type followUp struct {
	seq uint64
	cmd engine.Command
}

func (Joined) isLobbyMsg()        {}
func (LevelSelected) isLobbyMsg() {}
func (Answer) isLobbyMsg()        {}
func (Departed) isLobbyMsg()      {}
func (Disconnected) isLobbyMsg()  {}
func (Reconnected) isLobbyMsg()   {}
func (Shutdown) isLobbyMsg()      {}
func (GetState) isLobbyMsg()      {}
func (turnExpired) isLobbyMsg()   {}
func (followUp) isLobbyMsg()      {}

type View struct {
	Session session.Session
	Match   *engine.State // nil when no match is running
	Seq     uint64
}

// Lobby is the actor for one room. Match state is only touched from loop.
type Lobby struct {
	code  string
	deps  Deps
	inbox chan Msg

	session session.Session
	match   *engine.State
	roster  uint64 // session roster the running match was started with
	seq     uint64
	delay   clockwork.Timer

	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, code string, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.TurnClock == nil {
		deps.TurnClock = turnclock.New(deps.Clock)
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Delays == (Delays{}) {
		deps.Delays = DefaultDelays()
	}

	l := &Lobby{
		code:   code,
		deps:   deps,
		inbox:  make(chan Msg, 64),
		log:    deps.Logger.With(zap.String("room", code)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	l.refresh()

	go l.loop()
	return l
}

func (l *Lobby) Code() string { return l.code }

// Post queues m. It reports false once the lobby has shut down.
func (l *Lobby) Post(m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed after the loop has exited and all timers are stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Joined:
				l.refresh()
				l.handleJoined(msg.ConnID)

			case LevelSelected:
				l.refresh()
				if conn := l.session.ConnFor(scoring.SideGuest); conn != "" {
					l.send(conn, types.GameLevelSelected, types.LevelSelectedData{Level: string(msg.Level)})
				}
				l.tryStart()

			case Answer:
				l.refresh()
				l.handleAnswer(msg)

			case Departed:
				l.refresh()
				dep := msg.Departure
				if dep.Session.Roster < l.session.Roster {
					l.log.Debug("stale departure dropped", zap.Uint64("roster", dep.Session.Roster))
					break
				}
				if !dep.Destroyed && dep.OtherConnID != "" {
					l.send(dep.OtherConnID, types.RoomOpponentLeft, nil)
				}

			case Disconnected:
				l.refresh()
				if other := msg.Disconnection.OtherConnID; other != "" {
					l.send(other, types.OpponentDisconnected, nil)
				}

			case Reconnected:
				l.refresh()
				l.handleReconnected(msg.Reconnection)

			case turnExpired:
				l.refresh()
				if msg.seq != l.seq {
					l.log.Debug("stale turn expiry dropped", zap.Uint64("seq", msg.seq))
					break
				}
				l.step(engine.Command{Type: engine.CmdTurnExpired})

			case followUp:
				l.refresh()
				if msg.seq != l.seq {
					l.log.Debug("stale follow-up dropped", zap.Uint64("seq", msg.seq))
					break
				}
				l.step(msg.cmd)

			case GetState:
				v := View{Session: l.session, Seq: l.seq}
				if l.match != nil {
					st := *l.match
					v.Match = &st
				}
				msg.Reply <- v

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// refresh reloads the room. A running match whose seats have changed hands
// since it started is dropped.
func (l *Lobby) refresh() {
	s, ok := l.deps.Rooms.Get(l.code)
	if !ok {
		return
	}
	l.session = s
	if l.match != nil && s.Roster != l.roster {
		l.abort("roster changed")
	}
}

func (l *Lobby) handleJoined(connID string) {
	s := l.session
	if s.Guest == nil || s.Guest.ConnID != connID {
		return
	}
	l.send(connID, types.RoomJoined, types.RoomJoinedData{
		RoomCode:  s.Code,
		HostName:  s.Host.Name,
		GuestName: s.Guest.Name,
	})
	l.send(s.Host.ConnID, types.RoomOpponentJoined, types.OpponentJoinedData{OpponentName: s.Guest.Name})
	l.tryStart()
}

// tryStart begins a match once both seats and a level are present.
func (l *Lobby) tryStart() {
	if l.match != nil {
		return
	}
	s, ok := l.deps.Rooms.StartIfReady(l.code)
	if !ok {
		return
	}
	l.session = s
	cfg, err := l.deps.Levels.Lookup(s.Level)
	if err != nil {
		l.deps.Rooms.SetInProgress(l.code, false)
		l.log.Warn("cannot start match", zap.String("level", string(s.Level)), zap.Error(err))
		return
	}

	events, st := l.deps.Engine.Start(cfg)
	l.match = &st
	l.roster = s.Roster
	l.advance()
	l.log.Info("match started", zap.String("level", string(l.session.Level)))
	l.emit(events)
}

func (l *Lobby) handleAnswer(msg Answer) {
	if l.match == nil {
		return
	}
	side, ok := l.session.SideOf(msg.ConnID)
	if !ok {
		return
	}

	events, next, err := l.deps.Engine.Apply(*l.match, engine.Command{
		Type:   engine.CmdSubmitAnswer,
		Side:   side,
		Answer: msg.Value,
	})
	if err != nil {
		l.log.Debug("answer ignored", zap.String("side", string(side)), zap.Error(err))
		return
	}

	// judged: the countdown for this turn must not fire any more
	l.deps.TurnClock.Cancel(l.code)
	l.seq++

	l.match = &next
	l.advance()
	l.emit(events)
}

// step applies a timer-driven command.
func (l *Lobby) step(cmd engine.Command) {
	if l.match == nil {
		return
	}
	events, next, err := l.deps.Engine.Apply(*l.match, cmd)
	if err != nil {
		if !errors.Is(err, engine.ErrMatchOver) {
			l.log.Debug("command ignored", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		}
		return
	}
	l.match = &next
	l.advance()
	l.emit(events)
}

// advance arms whatever the current phase waits on. It runs before the
// phase's notifications go out so a client reacting to them already
// finds the timer in place.
func (l *Lobby) advance() {
	st := l.match
	switch st.Phase {
	case engine.PhaseAwaitingAnswer:
		l.seq++
		seq := l.seq
		l.deps.TurnClock.Start(l.code, st.TimerSeconds, func() {
			l.Post(turnExpired{seq: seq})
		})
	case engine.PhaseBallInFlight:
		l.schedule(l.deps.Delays.Hit, engine.Command{Type: engine.CmdNextQuestion})
	case engine.PhaseTimedOut:
		l.schedule(l.deps.Delays.Timeout, engine.Command{Type: engine.CmdResolvePoint, Side: st.Turn})
	case engine.PhaseBetweenPoints:
		l.schedule(l.deps.Delays.Point, engine.Command{Type: engine.CmdNextQuestion})
	case engine.PhaseOver:
		l.finish(*st)
	}
}

func (l *Lobby) schedule(d time.Duration, cmd engine.Command) {
	l.stopDelay()
	l.seq++
	seq := l.seq
	l.delay = l.deps.Clock.AfterFunc(d, func() {
		l.Post(followUp{seq: seq, cmd: cmd})
	})
}

func (l *Lobby) stopDelay() {
	if l.delay != nil {
		l.delay.Stop()
		l.delay = nil
	}
}

func (l *Lobby) finish(st engine.State) {
	l.halt()
	l.match = nil
	l.session.InProgress = false
	l.deps.Rooms.SetInProgress(l.code, false)

	res := publish.Result{
		RoomCode:   l.code,
		Level:      string(l.session.Level),
		Winner:     string(st.Winner),
		HostName:   l.session.Host.Name,
		GuestName:  l.session.GuestName(),
		HostGames:  st.Score.HostGames,
		GuestGames: st.Score.GuestGames,
		FinishedAt: l.deps.Clock.Now().UTC(),
	}
	l.log.Info("match over",
		zap.String("winner", res.Winner),
		zap.Int("host_games", res.HostGames),
		zap.Int("guest_games", res.GuestGames),
	)

	ctx, cancel := context.WithTimeout(l.ctx, 2*time.Second)
	defer cancel()
	if err := l.deps.Publisher.Publish(ctx, res); err != nil {
		l.log.Warn("publish match result", zap.Error(err))
	}
}

// abort drops a running match without a result.
func (l *Lobby) abort(reason string) {
	if l.match == nil {
		return
	}
	l.halt()
	l.match = nil
	l.session.InProgress = false
	l.deps.Rooms.SetInProgress(l.code, false)
	l.log.Info("match aborted", zap.String("reason", reason))
}

// halt cancels every pending timer and invalidates anything already queued.
func (l *Lobby) halt() {
	l.deps.TurnClock.Cancel(l.code)
	l.stopDelay()
	l.seq++
}

func (l *Lobby) handleReconnected(rec session.Reconnection) {
	s := l.session
	conn := rec.Session.ConnFor(sideOf(rec.WasHost))
	side, ok := s.SideOf(conn)
	if !ok {
		return
	}

	l.send(conn, types.RoomReconnected, types.ReconnectedData{
		RoomCode:  s.Code,
		HostName:  s.Host.Name,
		GuestName: s.GuestName(),
		Level:     string(s.Level),
		IsHost:    side == scoring.SideHost,
	})

	if st := l.match; st != nil {
		data := types.ResyncData{
			MatchScore: scoring.ViewFor(side, st.Score),
			Server:     scoring.Relative(side, st.Server),
			YourTurn:   st.Turn == side,
		}
		if st.Phase == engine.PhaseAwaitingAnswer {
			data.Question = st.Current.Question
			data.TimerSeconds = l.deps.TurnClock.Remaining(l.code)
		}
		l.send(conn, types.GameResync, data)
	}

	if other := s.ConnFor(side.Other()); other != "" {
		l.send(other, types.OpponentReconnected, nil)
	}
}

func sideOf(wasHost bool) scoring.Side {
	if wasHost {
		return scoring.SideHost
	}
	return scoring.SideGuest
}

// emit turns engine events into per-participant messages.
func (l *Lobby) emit(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtMatchStarted:
			server := scoring.SideHost // every match opens on the host's serve
			l.each(func(viewer scoring.Side, conn string) {
				l.send(conn, types.GameStart, types.StartData{
					Question:     ev.Question,
					YourTurn:     viewer == ev.Side,
					Server:       scoring.Relative(viewer, server),
					TimerSeconds: ev.TimerSeconds,
				})
			})

		case engine.EvtAnswerJudged:
			data := types.AnswerResultData{Correct: ev.Correct}
			l.send(l.session.ConnFor(ev.Side), types.GameAnswerResult, data)
			l.send(l.session.ConnFor(ev.Side.Other()), types.GameOpponentAnswered, data)

		case engine.EvtTurnExpired:
			l.each(func(viewer scoring.Side, conn string) {
				l.send(conn, types.GameTimerExpired, types.TimerExpiredData{Who: scoring.Relative(viewer, ev.Side)})
			})

		case engine.EvtPointWon:
			l.each(func(viewer scoring.Side, conn string) {
				l.send(conn, types.GameScoreUpdate, types.ScoreUpdateData{
					MatchScore:  scoring.ViewFor(viewer, ev.Score),
					PointScorer: scoring.Relative(viewer, ev.Side),
				})
			})

		case engine.EvtGameWon:
			l.log.Debug("game won",
				zap.String("side", string(ev.Side)),
				zap.Int("host_games", ev.Score.HostGames),
				zap.Int("guest_games", ev.Score.GuestGames),
			)

		case engine.EvtMatchWon:
			l.each(func(viewer scoring.Side, conn string) {
				l.send(conn, types.GameMatchOver, types.MatchOverData{Winner: scoring.Relative(viewer, ev.Side)})
			})

		case engine.EvtQuestionIssued:
			l.each(func(viewer scoring.Side, conn string) {
				l.send(conn, types.GameQuestion, types.QuestionData{
					Question:     ev.Question,
					YourTurn:     viewer == ev.Side,
					TimerSeconds: ev.TimerSeconds,
				})
			})
		}
	}
}

func (l *Lobby) each(fn func(viewer scoring.Side, conn string)) {
	for _, side := range []scoring.Side{scoring.SideHost, scoring.SideGuest} {
		if conn := l.session.ConnFor(side); conn != "" {
			fn(side, conn)
		}
	}
}

func (l *Lobby) send(connID, typ string, data any) {
	if connID == "" {
		return
	}
	l.deps.Notifier.Send(connID, types.ServerMessage{Type: typ, Data: data})
}

func (l *Lobby) shutdown() {
	l.halt()
	if l.match != nil {
		l.match = nil
		l.deps.Rooms.SetInProgress(l.code, false)
	}
	l.cancel()
}
