package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/gateway"
)

// Factory builds a fresh gateway.
type Factory func() (gateway.Gateway, error)

// Connector owns the gateway an engine is attached to. There is no automatic
// retry: a failed or ended connection stays that way until Reconnect.
type Connector struct {
	engine  *Engine
	factory Factory
	onError func(error)
	logger  *zap.Logger

	mu      sync.Mutex
	current gateway.Gateway
	closed  bool
}

// NewConnector creates a connector. onError is passed to Engine.Initialize.
func NewConnector(e *Engine, factory Factory, onError func(error), logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{engine: e, factory: factory, onError: onError, logger: logger}
}

// Connect attaches a new gateway if none is attached.
func (c *Connector) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectorClosed
	}
	if c.current != nil {
		return nil
	}
	return c.attachLocked()
}

// Reconnect replaces the current gateway with a fresh one. It is safe to
// call from the engine's error callback.
func (c *Connector) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectorClosed
	}
	old := c.current
	c.current = nil
	err := c.attachLocked()
	if old != nil {
		old.Dispose()
	}
	return err
}

// Close disposes the current gateway. Later Connect and Reconnect calls
// fail with ErrConnectorClosed.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.current != nil {
		c.current.Dispose()
		c.current = nil
	}
}

func (c *Connector) attachLocked() error {
	g, err := c.factory()
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	if err := c.engine.Initialize(g, c.onError); err != nil {
		g.Dispose()
		return fmt.Errorf("initialize engine: %w", err)
	}
	c.current = g
	c.logger.Info("gateway attached")
	return nil
}
