package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/engine"
	"github.com/DoyleJ11/math-tennis-backend/internal/lobby"
	"github.com/DoyleJ11/math-tennis-backend/internal/problem"
	"github.com/DoyleJ11/math-tennis-backend/internal/publish"
	"github.com/DoyleJ11/math-tennis-backend/internal/session"
	"github.com/DoyleJ11/math-tennis-backend/internal/turnclock"
	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrNoDisconnectedPlayer = errors.New("no disconnected player with that name in this room")
var ErrShutdown = errors.New("server shutting down")

type Config struct {
	Levels      difficulty.Levels
	Notifier    lobby.Notifier
	Publisher   publish.Publisher
	Clock       clockwork.Clock
	GracePeriod time.Duration
	Delays      lobby.Delays
	GamesToWin  int
	// NewProblems builds the problem source for one room.
	NewProblems func() engine.ProblemSource
	Logger      *zap.Logger
}

type HubMsg interface{ isHubMsg() }

type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct {
	Done chan struct{}
}

func (EnsureLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// Hub routes participant actions to the session registry and to the
// lobby actor of the room they concern. The code -> lobby table is owned
// by the hub loop.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc

	cfg       Config
	reg       *session.Registry
	turnClock *turnclock.Clock
	log       *zap.Logger
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Levels == nil {
		cfg.Levels = difficulty.DefaultLevels()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewProblems == nil {
		cfg.NewProblems = func() engine.ProblemSource { return problem.NewGenerator(nil) }
	}

	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		lobbies:   make(map[string]*lobby.Lobby),
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		turnClock: turnclock.New(cfg.Clock),
		log:       cfg.Logger,
	}
	h.reg = session.NewRegistry(session.Options{
		Clock:          cfg.Clock,
		GracePeriod:    cfg.GracePeriod,
		OnGraceExpired: h.onGraceExpired,
	})

	go h.loop()
	return h
}

func (h *Hub) Levels() difficulty.Levels { return h.cfg.Levels }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdownLobbies()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := h.newLobby(msg.Code)
				h.lobbies[msg.Code] = lb
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					lb.Post(lobby.Shutdown{})
					delete(h.lobbies, msg.Code)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdownLobbies()
				h.reg.Close()
				h.turnClock.Stop()
				h.cancel()
				close(msg.Done)
				return
			}
		}
	}
}

func (h *Hub) newLobby(code string) *lobby.Lobby {
	return lobby.NewLobby(h.ctx, code, lobby.Deps{
		Rooms:     h.reg,
		Notifier:  h.cfg.Notifier,
		Publisher: h.cfg.Publisher,
		Levels:    h.cfg.Levels,
		Engine:    engine.New(h.cfg.NewProblems(), h.cfg.GamesToWin),
		Clock:     h.cfg.Clock,
		TurnClock: h.turnClock,
		Delays:    h.cfg.Delays,
		Logger:    h.log,
	})
}

func (h *Hub) shutdownLobbies() {
	for code, lb := range h.lobbies {
		lb.Post(lobby.Shutdown{})
		<-lb.Done()
		delete(h.lobbies, code)
	}
}

// Shutdown stops every lobby and pending timer.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if !h.send(ShutdownHub{Done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) ensureLobby(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	if !h.send(EnsureLobby{Code: code, Reply: reply}) {
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) lobbyFor(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	if !h.send(GetLobby{Code: code, Reply: reply}) {
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

// LobbyCount is the number of live room actors.
func (h *Hub) LobbyCount() int {
	reply := make(chan int, 1)
	if !h.send(CountLobbies{Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	}
}

func (h *Hub) post(code string, m lobby.Msg) {
	if lb := h.lobbyFor(code); lb != nil {
		lb.Post(m)
	}
}

func (h *Hub) sendError(connID string, err error) error {
	h.cfg.Notifier.Send(connID, types.ServerMessage{
		Type: types.RoomError,
		Data: types.ErrorData{Message: err.Error()},
	})
	return err
}

// CreateRoom opens a room with connID as host.
func (h *Hub) CreateRoom(connID, name string) error {
	h.leaveIfSeated(connID)

	s, err := h.reg.Create(connID, name)
	if err != nil {
		return h.sendError(connID, err)
	}
	if h.ensureLobby(s.Code) == nil {
		h.reg.Leave(connID)
		return h.sendError(connID, ErrShutdown)
	}

	h.log.Info("room created", zap.String("room", s.Code), zap.String("host", s.Host.Name))
	h.cfg.Notifier.Send(connID, types.ServerMessage{
		Type: types.RoomCreated,
		Data: types.RoomCreatedData{RoomCode: s.Code},
	})
	return nil
}

func (h *Hub) JoinRoom(connID, code, name string) error {
	h.leaveIfSeated(connID)

	s, err := h.reg.Join(code, connID, name)
	if err != nil {
		return h.sendError(connID, err)
	}
	h.log.Info("room joined", zap.String("room", s.Code), zap.String("guest", s.GuestName()))
	h.post(s.Code, lobby.Joined{ConnID: connID})
	return nil
}

func (h *Hub) leaveIfSeated(connID string) {
	if _, seated := h.reg.RoomOf(connID); seated {
		h.LeaveRoom(connID)
	}
}

func (h *Hub) LeaveRoom(connID string) {
	dep, ok := h.reg.Leave(connID)
	if !ok {
		return
	}
	h.departed(dep)
}

func (h *Hub) onGraceExpired(dep session.Departure) {
	h.log.Info("reconnect grace expired", zap.String("room", dep.Session.Code))
	h.departed(dep)
}

func (h *Hub) departed(dep session.Departure) {
	code := dep.Session.Code
	if dep.Destroyed {
		h.send(RemoveLobby{Code: code})
		h.log.Info("room closed", zap.String("room", code))
		return
	}
	h.post(code, lobby.Departed{Departure: dep})
}

// SelectLevel records the host's level; the match starts once a guest is seated.
func (h *Hub) SelectLevel(connID, level string) error {
	lv, err := h.cfg.Levels.ParseLevel(level)
	if err != nil {
		return h.sendError(connID, err)
	}
	s, err := h.reg.SetLevel(connID, lv)
	switch {
	case errors.Is(err, session.ErrInProgress):
		h.log.Debug("level change ignored during match", zap.String("conn", connID))
		return err
	case err != nil:
		return h.sendError(connID, err)
	}
	h.post(s.Code, lobby.LevelSelected{Level: lv})
	return nil
}

func (h *Hub) SubmitAnswer(connID string, value int) {
	code, ok := h.reg.RoomOf(connID)
	if !ok {
		return
	}
	h.post(code, lobby.Answer{ConnID: connID, Value: value})
}

// Disconnect starts connID's grace period. The match keeps running.
func (h *Hub) Disconnect(connID string) {
	disc, ok := h.reg.Disconnect(connID)
	if !ok {
		return
	}
	h.log.Info("participant disconnected", zap.String("room", disc.Session.Code), zap.Bool("host", disc.WasHost))
	h.post(disc.Session.Code, lobby.Disconnected{Disconnection: disc})
}

func (h *Hub) Reconnect(connID, name, code string) error {
	h.leaveIfSeated(connID)

	rec, ok := h.reg.Reconnect(connID, name, code)
	if !ok {
		return h.sendError(connID, ErrNoDisconnectedPlayer)
	}
	h.log.Info("participant reconnected", zap.String("room", rec.Session.Code), zap.Bool("host", rec.WasHost))
	h.post(rec.Session.Code, lobby.Reconnected{Reconnection: rec})
	return nil
}

// Room is a read-only summary of a live room.
func (h *Hub) Room(code string) (types.RoomView, bool) {
	s, ok := h.reg.Get(code)
	if !ok {
		return types.RoomView{}, false
	}
	return types.RoomView{
		Code:       s.Code,
		HostName:   s.Host.Name,
		GuestName:  s.GuestName(),
		Level:      string(s.Level),
		InProgress: s.InProgress,
		Full:       s.Guest != nil,
	}, true
}

func (h *Hub) RoomCount() int { return h.reg.Len() }
