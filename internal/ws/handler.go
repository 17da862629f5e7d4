package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errMalformed = errors.New("malformed message")
var errUnknownType = errors.New("unknown message type")
var errMissingAnswer = errors.New("answer is required")

// Actions is what a socket can ask of the server, keyed by its connection id.
type Actions interface {
	CreateRoom(connID, name string) error
	JoinRoom(connID, code, name string) error
	LeaveRoom(connID string)
	SelectLevel(connID, level string) error
	SubmitAnswer(connID string, value int)
	Disconnect(connID string)
	Reconnect(connID, name, code string) error
}

type Options struct {
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
	SendBuffer     int
}

func DefaultOptions() Options {
	return Options{
		WriteTimeout: 3 * time.Second,
		PingInterval: 20 * time.Second,
		ReadLimit:    4096,
		SendBuffer:   32,
	}
}

func Handler(actions Actions, conns *Connections, opts Options, logger *zap.Logger) http.HandlerFunc {
	def := DefaultOptions()
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		cl := &client{
			id:     uuid.NewString(),
			send:   make(chan []byte, opts.SendBuffer),
			cancel: cancel,
		}
		log := logger.With(zap.String("conn", cl.id))

		conns.add(cl)
		defer func() {
			conns.remove(cl.id)
			actions.Disconnect(cl.id)
			log.Debug("socket closed")
		}()
		log.Debug("socket open")

		// Writer goroutine
		go func() {
			ping := time.NewTicker(opts.PingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case payload := <-cl.send:
					wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						cancel()
						return
					}
				case <-ping.C:
					pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						log.Debug("ping failed", zap.Error(err))
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				replyError(conns, cl.id, errMalformed)
				continue
			}
			if err := dispatch(actions, cl.id, cm); err != nil {
				if errors.Is(err, errMissingAnswer) || errors.Is(err, errUnknownType) {
					replyError(conns, cl.id, err)
				}
				log.Debug("request rejected", zap.String("type", cm.Type), zap.Error(err))
			}
		}
	}
}

// dispatch routes one inbound frame. Errors from actions have already been
// reported to the client by the hub.
func dispatch(a Actions, connID string, m types.ClientMessage) error {
	switch m.Type {
	case types.RoomCreate:
		return a.CreateRoom(connID, m.PlayerName)
	case types.RoomJoin:
		return a.JoinRoom(connID, m.RoomCode, m.PlayerName)
	case types.RoomLeave:
		a.LeaveRoom(connID)
		return nil
	case types.RoomReconnect:
		return a.Reconnect(connID, m.PlayerName, m.RoomCode)
	case types.GameSelectLevel:
		return a.SelectLevel(connID, m.Level)
	case types.GameAnswer:
		if m.Answer == nil {
			return errMissingAnswer
		}
		a.SubmitAnswer(connID, *m.Answer)
		return nil
	default:
		return errUnknownType
	}
}

func replyError(conns *Connections, connID string, err error) {
	conns.Send(connID, types.ServerMessage{
		Type: types.RoomError,
		Data: types.ErrorData{Message: err.Error()},
	})
}
