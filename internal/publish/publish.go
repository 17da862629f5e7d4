// Package publish fans finished match results out to other services.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "mathtennis.match.completed"

type Result struct {
	RoomCode   string    `json:"room_code"`
	Level      string    `json:"level"`
	Winner     string    `json:"winner"` // "host" or "guest"
	HostName   string    `json:"host_name"`
	GuestName  string    `json:"guest_name"`
	HostGames  int       `json:"host_games"`
	GuestGames int       `json:"guest_games"`
	FinishedAt time.Time `json:"finished_at"`
}

type Publisher interface {
	Publish(ctx context.Context, r Result) error
	Close() error
}

// Nop discards results.
type Nop struct{}

func (Nop) Publish(context.Context, Result) error { return nil }
func (Nop) Close() error                          { return nil }

// Conn is the slice of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATS struct {
	conn    Conn
	subject string
}

func NewNATS(conn Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// ConnectNATS dials url and keeps reconnecting in the background for as
// long as the process lives.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("math-tennis-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("nats error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATS(nc, subject), nil
}

func (p *NATS) Subject() string { return p.subject }

func (p *NATS) Publish(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal match result: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATS) Close() error { return p.conn.Drain() }
