package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tinode/tinodesdk/logs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to establish a connection.
	handshakeTimeout = 3 * time.Second

	// Default interval between pings.
	defaultPingPeriod = 50 * time.Second

	// Maximum size of an incoming message.
	maxMessageSize = 1 << 22
)

// Conn is an established duplex message channel.
type Conn interface {
	// ReadMessage blocks until the next text message is received.
	ReadMessage() ([]byte, error)
	// WriteMessage sends a text message.
	WriteMessage(msg []byte) error
	// Close closes the channel normally. Pending ReadMessage returns an error.
	Close() error
}

// Dialer establishes connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WsDialer is a Dialer of websocket connections with keepalive pings.
type WsDialer struct {
	// Interval between pings. Zero means default, negative disables pinging.
	PingPeriod time.Duration
	// Compression is negotiated with the server.
	EnableCompression bool
}

// Dial connects to the websocket endpoint.
func (d *WsDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: d.EnableCompression,
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			logs.Warn.Println("ws: handshake failed", resp.Status)
		}
		return nil, err
	}

	period := d.PingPeriod
	if period == 0 {
		period = defaultPingPeriod
	}
	c := &wsConn{
		ws:   ws,
		done: make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	if period > 0 {
		pongWait := period * 10 / 9
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		go c.pingLoop(period)
	}
	return c, nil
}

type wsConn struct {
	ws *websocket.Conn
	// Gorilla websocket supports one concurrent writer.
	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return msg, nil
		}
		// Server does not send binary frames.
		logs.Warn.Println("ws: unexpected message type", mt)
	}
}

func (c *wsConn) write(mt int, msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(mt, msg)
}

func (c *wsConn) WriteMessage(msg []byte) error {
	return c.write(websocket.TextMessage, msg)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// Best effort to let the server know.
		c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					logs.Warn.Println("ws: ping", err)
				}
				return
			}
		case <-c.done:
			return
		}
	}
}
