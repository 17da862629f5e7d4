package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"go.uber.org/zap"
)

type client struct {
	id     string
	send   chan []byte
	cancel context.CancelFunc
}

// Connections maps connection ids to live sockets. It is the lobby's
// Notifier: Send never blocks, and a client whose buffer is full is cut
// off rather than allowed to stall its room.
type Connections struct {
	mu      sync.Mutex
	clients map[string]*client
	log     *zap.Logger
}

func NewConnections(logger *zap.Logger) *Connections {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connections{clients: make(map[string]*client), log: logger}
}

func (c *Connections) add(cl *client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[cl.id] = cl
}

func (c *Connections) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, id)
}

func (c *Connections) Send(connID string, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal server message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[connID]
	if !ok {
		return
	}
	select {
	case cl.send <- payload:
	default:
		// Client is slow/full - drop them.
		c.log.Warn("dropping slow client", zap.String("conn", connID))
		cl.cancel()
		delete(c.clients, connID)
	}
}

func (c *Connections) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// CloseAll cuts every socket; each handler then runs its disconnect path.
func (c *Connections) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.clients {
		cl.cancel()
		delete(c.clients, id)
	}
}
