package delivery

import (
	"context"

	"github.com/jefe-johann/grab-otp/internal/bridge"
	"github.com/jefe-johann/grab-otp/internal/metrics"
	"github.com/jefe-johann/grab-otp/internal/model"

	"go.uber.org/zap"
)

// Connect registers conn as the channel for tab, closing any channel it
// replaces. The coordinator reads fill-results from conn until it closes and
// then drops the record.
func (c *Coordinator) Connect(tab model.TabID, conn *bridge.Conn) {
	c.mu.Lock()
	prev := c.bridges[tab]
	c.bridges[tab] = conn
	c.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
	}
	c.log.Debug("bridge connected", zap.Int("tab", int(tab)))
	go c.watch(tab, conn)
}

// Live reports whether tab has an open channel.
func (c *Coordinator) Live(tab model.TabID) bool {
	_, ok := c.liveBridge(tab)
	return ok
}

// Bridges returns the number of registered channels.
func (c *Coordinator) Bridges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bridges)
}

func (c *Coordinator) liveBridge(tab model.TabID) (*bridge.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.bridges[tab]
	if !ok {
		return nil, false
	}
	if !conn.Alive() {
		delete(c.bridges, tab)
		return nil, false
	}
	return conn, true
}

func (c *Coordinator) remove(tab model.TabID, conn *bridge.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bridges[tab] == conn {
		delete(c.bridges, tab)
		c.log.Debug("bridge disconnected", zap.Int("tab", int(tab)))
	}
}

func (c *Coordinator) watch(tab model.TabID, conn *bridge.Conn) {
	defer c.remove(tab, conn)
	for {
		env, err := conn.Recv(context.Background())
		if err != nil {
			return
		}
		if env.Action != model.ActionFillResult {
			continue
		}
		metrics.RecordFillResult(env.OK)
		if env.OK {
			c.log.Info("page filled", zap.Int("tab", int(tab)))
		} else {
			c.log.Info("page not filled", zap.Int("tab", int(tab)), zap.String("reason", env.Error))
		}
	}
}
