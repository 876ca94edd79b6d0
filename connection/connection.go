// Package connection maintains a websocket channel to the Tinode server with automatic
// reconnects using randomized exponential backoff.
package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tinode/tinodesdk/logs"
)

// ErrNotConnected is returned when sending while the channel is not open.
var ErrNotConnected = errors.New("not connected")

// Handler receives connection events. All callbacks are called on the read loop goroutine.
// Nil callbacks are ignored.
type Handler struct {
	OnConnect func()
	OnMessage func(msg []byte)
	// byServer is false if the connection was closed by calling Disconnect.
	OnDisconnect func(byServer bool, code int, reason string)
	OnError      func(err error)
}

// Options of a connection. All fields are optional.
type Options struct {
	// Value of the X-Tinode-APIKey header.
	APIKey string
	// Additional HTTP headers sent with the handshake.
	Header http.Header
	Dialer Dialer
	// Clock and random source of the reconnect backoff.
	Clock Clock
	Rand  func(n int64) int64
}

// Connection is a single logical duplex channel to the server which survives reconnects.
type Connection struct {
	endpoint string
	header   http.Header
	dialer   Dialer
	handler  Handler
	backoff  *Backoff

	mu sync.Mutex
	// Currently open channel or nil.
	conn Conn
	// Stops the connect loop; nil when the loop is not running.
	cancel context.CancelFunc
	// Generation of the connect loop.
	gen int
	// Closed when the latest connect loop has exited.
	done          chan struct{}
	autoReconnect bool
	// Disconnect was called on the current channel.
	closing bool

	// Serializes writes.
	wmu sync.Mutex
}

// New creates a connection to the endpoint. The endpoint is normalized with NormalizeEndpoint.
func New(endpoint string, secure bool, handler Handler, opts Options) (*Connection, error) {
	u, err := NormalizeEndpoint(endpoint, secure)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.APIKey != "" {
		header.Set("X-Tinode-APIKey", opts.APIKey)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WsDialer{}
	}

	return &Connection{
		endpoint: u.String(),
		header:   header,
		dialer:   dialer,
		handler:  handler,
		backoff:  NewBackoff(opts.Clock, opts.Rand),
	}, nil
}

// Endpoint returns the normalized URL of the server.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// Connect starts connecting in the background. If the connection is waiting to reconnect, the
// wait is interrupted and the attempt is made immediately. The context controls the lifetime of
// the connect loop, not just of the first attempt.
func (c *Connection) Connect(ctx context.Context, autoReconnect bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.autoReconnect = autoReconnect
	if c.cancel != nil {
		// Already connected or connecting.
		c.mu.Unlock()
		c.backoff.Wake()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	prev := c.done
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, cancel, gen, prev, done)
	return nil
}

// Disconnect closes the channel and stops reconnecting. It's safe to call more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.autoReconnect = false
	cancel := c.cancel
	c.cancel = nil
	// The old loop must not clear the state of a new one.
	c.gen++
	conn := c.conn
	if conn != nil {
		c.conn = nil
		c.closing = true
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// IsConnected checks if the channel is open.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// IsWaitingToReconnect checks if the connection is sleeping between reconnect attempts.
func (c *Connection) IsWaitingToReconnect() bool {
	return c.backoff.IsSleeping()
}

// ReconnectAttempts returns the number of reconnect attempts since the last successful connect.
func (c *Connection) ReconnectAttempts() int {
	return c.backoff.Attempt()
}

// SetAutoReconnect changes the reconnect policy of the running connection.
func (c *Connection) SetAutoReconnect(on bool) {
	c.mu.Lock()
	c.autoReconnect = on
	c.mu.Unlock()
}

// Send writes the message to the channel.
func (c *Connection) Send(msg []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteMessage(msg)
}

// run is the connect loop. It starts only after the previous loop has exited, so events of
// the old channel are always reported before the events of the new one.
func (c *Connection) run(ctx context.Context, cancel context.CancelFunc, gen int, prev, done chan struct{}) {
	defer func() {
		cancel()
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	for {
		conn, err := c.dialer.Dial(ctx, c.endpoint, c.header)
		if err != nil {
			if ctx.Err() == nil {
				logs.Warn.Println("connection: failed to connect", c.endpoint, err)
				c.onError(err)
			}
		} else if !c.attach(ctx, conn) {
			conn.Close()
			return
		} else {
			c.backoff.Reset()
			c.onConnect()
			byServer, code, reason := c.readLoop(conn)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.onDisconnect(byServer, code, reason)
		}

		c.mu.Lock()
		again := c.autoReconnect
		c.mu.Unlock()
		if !again || ctx.Err() != nil {
			return
		}

		c.backoff.Sleep(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// attach makes the newly opened channel current unless the connection was stopped while dialing.
func (c *Connection) attach(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	c.closing = false
	return true
}

// readLoop reads messages until the channel is closed. Returns the reason of closing.
func (c *Connection) readLoop(conn Conn) (bool, int, string) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			byServer := !c.closing
			c.mu.Unlock()

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return byServer, ce.Code, ce.Text
			}
			if !byServer {
				return false, websocket.CloseNormalClosure, ""
			}
			logs.Warn.Println("connection: read failed", err)
			return true, websocket.CloseAbnormalClosure, err.Error()
		}
		if c.handler.OnMessage != nil {
			c.handler.OnMessage(msg)
		}
	}
}

func (c *Connection) onConnect() {
	if c.handler.OnConnect != nil {
		c.handler.OnConnect()
	}
}

func (c *Connection) onDisconnect(byServer bool, code int, reason string) {
	if c.handler.OnDisconnect != nil {
		c.handler.OnDisconnect(byServer, code, reason)
	}
}

func (c *Connection) onError(err error) {
	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}
