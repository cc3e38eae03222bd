package client

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

type ConnState int

const (
	Idle ConnState = iota
	Connecting
	Open
	Closing
	WaitingToRetry
)

func (s ConnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case WaitingToRetry:
		return "waiting-to-retry"
	default:
		return "unknown"
	}
}

// Conn is an open push channel.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type ConnectionOptions struct {
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
}

/*
Connection keeps one push channel alive. Every attempt gets a sequence number;
results of an attempt that is no longer current are discarded, so at most one
attempt is ever in flight. Close is an intentional teardown and never leads
to a retry.
*/
type Connection struct {
	mu      sync.Mutex
	state   ConnState
	attempt uint64
	conn    Conn
	cancel  context.CancelFunc

	connectTimer *clock.Timer
	retryTimer   *clock.Timer

	dialer    Dialer
	clock     clock.Clock
	opts      ConnectionOptions
	onMessage func([]byte)
}

func NewConnection(dialer Dialer, c clock.Clock, opts ConnectionOptions, onMessage func([]byte)) *Connection {
	return &Connection{
		dialer:    dialer,
		clock:     c,
		opts:      opts,
		onMessage: onMessage,
	}
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts an attempt unless one is in flight or the channel is open.
// A pending retry is brought forward.
func (c *Connection) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Connecting, Open, Closing:
		return
	}
	c.startAttempt()
}

func (c *Connection) startAttempt() {
	c.stopTimers()
	c.attempt++
	id := c.attempt
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setState(Connecting)
	c.connectTimer = c.clock.AfterFunc(c.opts.ConnectTimeout, func() {
		c.abortAttempt(id)
	})
	go c.dial(ctx, id)
}

func (c *Connection) dial(ctx context.Context, id uint64) {
	conn, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	if id != c.attempt || c.state != Connecting {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.stopConnectTimer()
	if err != nil {
		logging.Warn("connection attempt failed", zap.Uint64("attempt", id), zap.Error(err))
		c.scheduleRetry()
		c.mu.Unlock()
		return
	}
	c.conn = conn
	c.setState(Open)
	c.mu.Unlock()

	c.readLoop(conn, id)
}

func (c *Connection) readLoop(conn Conn, id uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(id, err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

func (c *Connection) handleClosed(id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.attempt {
		return
	}
	c.conn = nil
	switch c.state {
	case Closing:
		c.setState(Idle)
	case Open:
		logging.Warn("connection lost", zap.Uint64("attempt", id), zap.Error(err))
		c.scheduleRetry()
	}
}

// abortAttempt gives up on an attempt that neither opened nor failed in time.
func (c *Connection) abortAttempt(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.attempt || c.state != Connecting {
		return
	}
	logging.Warn("connection attempt timed out",
		zap.Uint64("attempt", id),
		zap.Duration("timeout", c.opts.ConnectTimeout),
	)
	c.cancel()
	c.attempt++
	c.scheduleRetry()
}

func (c *Connection) scheduleRetry() {
	c.setState(WaitingToRetry)
	id := c.attempt
	c.retryTimer = c.clock.AfterFunc(c.opts.RetryDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != WaitingToRetry || c.attempt != id {
			return
		}
		c.startAttempt()
	})
}

// Close tears the channel down without retrying.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimers()
	if c.cancel != nil {
		c.cancel()
	}
	switch c.state {
	case Open:
		c.setState(Closing)
		if err := c.conn.Close(); err != nil {
			logging.Warn("failed to close connection", zap.Error(err))
		}
	case Connecting, WaitingToRetry:
		c.attempt++
		c.setState(Idle)
	}
}

func (c *Connection) setState(s ConnState) {
	if c.state == s {
		return
	}
	logging.Debug("connection state changed",
		zap.String("from", c.state.String()),
		zap.String("to", s.String()),
	)
	c.state = s
}

func (c *Connection) stopConnectTimer() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

func (c *Connection) stopTimers() {
	c.stopConnectTimer()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
