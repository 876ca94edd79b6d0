package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testTimeout = 2 * time.Second

func TestNormalizeEndpoint(t *testing.T) {
	testCases := []struct {
		in     string
		secure bool
		want   string
	}{
		{"http://api.tinode.co", false, "ws://api.tinode.co:80/channels"},
		{"https://api.tinode.co/v0/", false, "wss://api.tinode.co:443/v0/channels"},
		{"HTTPS://api.tinode.co/v0", false, "wss://api.tinode.co:443/v0/channels"},
		{"ws://localhost:6060/v0/channels", false, "ws://localhost:6060/v0/channels"},
		{"wss://example.com/v0/channels/", false, "wss://example.com:443/v0/channels"},
		{"localhost:6060", false, "ws://localhost:6060/channels"},
		{"api.tinode.co/v0", true, "wss://api.tinode.co:443/v0/channels"},
		{"http://[::1]/v0", false, "ws://[::1]:80/v0/channels"},
	}
	for _, tc := range testCases {
		u, err := NormalizeEndpoint(tc.in, tc.secure)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.in, err)
			continue
		}
		if got := u.String(); got != tc.want {
			t.Errorf("%s: got '%s', want '%s'", tc.in, got, tc.want)
		}
	}

	for _, in := range []string{"ftp://example.com", "http://", "http://exa mple.com"} {
		if u, err := NormalizeEndpoint(in, false); err == nil {
			t.Errorf("%s: expected an error, got '%s'", in, u)
		}
	}
}

func TestBackoffBounds(t *testing.T) {
	low := NewBackoff(nil, func(int64) int64 { return 0 })
	high := NewBackoff(nil, func(n int64) int64 { return n - 1 })
	random := NewBackoff(nil, nil)

	for i := 0; i < 20; i++ {
		shift := i
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}
		lo := baseDelay << uint(shift)
		hi := lo * 2

		if d := low.Next(); d != lo {
			t.Errorf("attempt %d: lower bound %v, want %v", i, d, lo)
		}
		if d := high.Next(); d != hi-1 {
			t.Errorf("attempt %d: upper bound %v, want %v", i, d, hi-1)
		}
		if d := random.Next(); d < lo || d >= hi {
			t.Errorf("attempt %d: delay %v is outside of [%v, %v)", i, d, lo, hi)
		}
	}

	if low.Attempt() != 20 {
		t.Errorf("attempt counter %d, want 20", low.Attempt())
	}
	low.Reset()
	if d := low.Next(); d != baseDelay {
		t.Errorf("delay after reset %v, want %v", d, baseDelay)
	}
}

// fakeClock reports requested delays and fires only when told to.
type fakeClock struct {
	delays chan time.Duration
	fire   chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		delays: make(chan time.Duration, 16),
		fire:   make(chan time.Time),
	}
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.delays <- d
	return c.fire
}

func (c *fakeClock) waitDelay(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-c.delays:
		return d
	case <-time.After(testTimeout):
		t.Fatal("backoff did not start")
	}
	return 0
}

func TestBackoffWake(t *testing.T) {
	clock := newFakeClock()
	b := NewBackoff(clock, nil)

	if b.Wake() {
		t.Error("Wake must report false when not sleeping")
	}

	done := make(chan bool)
	go func() {
		done <- b.Sleep(context.Background())
	}()
	clock.waitDelay(t)
	if !b.IsSleeping() {
		t.Fatal("backoff is not sleeping")
	}
	if !b.Wake() {
		t.Error("Wake must report true when sleeping")
	}
	select {
	case expired := <-done:
		if expired {
			t.Error("sleep must be interrupted, not expired")
		}
	case <-time.After(testTimeout):
		t.Fatal("sleep was not interrupted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		done <- b.Sleep(ctx)
	}()
	clock.waitDelay(t)
	cancel()
	if expired := <-done; expired {
		t.Error("sleep must be cancelled")
	}

	go func() {
		done <- b.Sleep(context.Background())
	}()
	clock.waitDelay(t)
	clock.fire <- time.Now()
	if expired := <-done; !expired {
		t.Error("sleep must expire")
	}
}

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	// If set, reads of a closed channel block until it's closed.
	hold chan struct{}

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		if c.hold != nil {
			<-c.hold
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

func (c *fakeConn) WriteMessage(msg []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.out <- msg
	return nil
}

func (c *fakeConn) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *fakeConn) Close() error {
	c.shutdown(errors.New("use of closed network connection"))
	return nil
}

// serverClose simulates the server closing the channel.
func (c *fakeConn) serverClose(code int, text string) {
	c.shutdown(&websocket.CloseError{Code: code, Text: text})
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    int
	dials   int
	headers []http.Header
	urls    []string
	conns   chan *fakeConn
	hold    chan struct{}
}

func newFakeDialer(fail int) *fakeDialer {
	return &fakeDialer{fail: fail, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header)
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	c.hold = d.hold
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(testTimeout):
		t.Fatal("no connection made")
	}
	return nil
}

type disconnectEvent struct {
	byServer bool
	code     int
	reason   string
}

type recorder struct {
	connected    chan struct{}
	messages     chan []byte
	disconnected chan disconnectEvent
	errors       chan error
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan struct{}, 16),
		messages:     make(chan []byte, 16),
		disconnected: make(chan disconnectEvent, 16),
		errors:       make(chan error, 16),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnConnect: func() { r.connected <- struct{}{} },
		OnMessage: func(msg []byte) { r.messages <- msg },
		OnDisconnect: func(byServer bool, code int, reason string) {
			r.disconnected <- disconnectEvent{byServer, code, reason}
		},
		OnError: func(err error) { r.errors <- err },
	}
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func TestConnectSendReceive(t *testing.T) {
	dialer := newFakeDialer(0)
	rec := newRecorder()
	c, err := New("https://api.example.com/v0", false, rec.handler(), Options{APIKey: "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K", Dialer: dialer})
	if err != nil {
		t.Fatal(err)
	}
	if c.Endpoint() != "wss://api.example.com:443/v0/channels" {
		t.Errorf("unexpected endpoint %s", c.Endpoint())
	}

	if err := c.Send([]byte("early")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	if err := c.Connect(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	conn := dialer.nextConn(t)
	waitFor(t, rec.connected, "connect")
	if !c.IsConnected() {
		t.Error("must be connected")
	}

	dialer.mu.Lock()
	if key := dialer.headers[0].Get("X-Tinode-APIKey"); key != "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K" {
		t.Errorf("API key header '%s'", key)
	}
	dialer.mu.Unlock()

	// Second call while connected is a no-op.
	c.Connect(context.Background(), false)

	if err := c.Send([]byte(`{"hi":{}}`)); err != nil {
		t.Fatal(err)
	}
	if msg := waitFor(t, conn.out, "outgoing message"); string(msg) != `{"hi":{}}` {
		t.Errorf("sent '%s'", msg)
	}

	conn.in <- []byte(`{"ctrl":{}}`)
	if msg := waitFor(t, rec.messages, "incoming message"); string(msg) != `{"ctrl":{}}` {
		t.Errorf("received '%s'", msg)
	}

	c.Disconnect()
	ev := waitFor(t, rec.disconnected, "disconnect")
	if ev.byServer || ev.code != websocket.CloseNormalClosure {
		t.Errorf("unexpected disconnect event %+v", ev)
	}
	c.Disconnect()

	if err := c.Send([]byte("late")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if n := dialer.dialCount(); n != 1 {
		t.Errorf("dialed %d times, want 1", n)
	}
}

func TestReconnectAfterServerClose(t *testing.T) {
	dialer := newFakeDialer(0)
	clock := newFakeClock()
	rec := newRecorder()
	c, err := New("ws://localhost:6060", false, rec.handler(),
		Options{Dialer: dialer, Clock: clock, Rand: func(int64) int64 { return 0 }})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	c.Connect(context.Background(), true)
	conn := dialer.nextConn(t)
	waitFor(t, rec.connected, "connect")

	conn.serverClose(websocket.CloseGoingAway, "going away")
	ev := waitFor(t, rec.disconnected, "disconnect")
	if !ev.byServer || ev.code != websocket.CloseGoingAway || ev.reason != "going away" {
		t.Errorf("unexpected disconnect event %+v", ev)
	}

	if d := clock.waitDelay(t); d != baseDelay {
		t.Errorf("first delay %v, want %v", d, baseDelay)
	}
	if !c.IsWaitingToReconnect() {
		t.Error("must be waiting to reconnect")
	}
	clock.fire <- time.Now()

	dialer.nextConn(t)
	waitFor(t, rec.connected, "reconnect")
	if n := c.ReconnectAttempts(); n != 0 {
		t.Errorf("backoff must be reset on connect, attempts=%d", n)
	}
}

func TestConnectWakesBackoff(t *testing.T) {
	dialer := newFakeDialer(2)
	clock := newFakeClock()
	rec := newRecorder()
	c, _ := New("ws://localhost:6060", false, rec.handler(), Options{Dialer: dialer, Clock: clock})
	defer c.Disconnect()

	c.Connect(context.Background(), true)
	waitFor(t, rec.errors, "dial error")
	first := clock.waitDelay(t)
	if first < baseDelay || first >= 2*baseDelay {
		t.Errorf("first delay %v", first)
	}

	// Wake the backoff instead of starting another loop.
	c.Connect(context.Background(), true)
	waitFor(t, rec.errors, "second dial error")
	second := clock.waitDelay(t)
	if second < 2*baseDelay || second >= 4*baseDelay {
		t.Errorf("second delay %v", second)
	}

	c.Connect(context.Background(), true)
	dialer.nextConn(t)
	waitFor(t, rec.connected, "connect")
	if n := dialer.dialCount(); n != 3 {
		t.Errorf("dialed %d times, want 3", n)
	}
}

func TestDisconnectInterruptsBackoff(t *testing.T) {
	dialer := newFakeDialer(1)
	clock := newFakeClock()
	rec := newRecorder()
	c, _ := New("ws://localhost:6060", false, rec.handler(), Options{Dialer: dialer, Clock: clock})

	c.Connect(context.Background(), true)
	waitFor(t, rec.errors, "dial error")
	clock.waitDelay(t)

	c.Disconnect()
	deadline := time.Now().Add(testTimeout)
	for c.IsWaitingToReconnect() {
		if time.Now().After(deadline) {
			t.Fatal("backoff was not interrupted")
		}
		time.Sleep(time.Millisecond)
	}
	if n := dialer.dialCount(); n != 1 {
		t.Errorf("dialed %d times after disconnect, want 1", n)
	}

	// The connection can be reopened.
	c.Connect(context.Background(), false)
	dialer.nextConn(t)
	waitFor(t, rec.connected, "connect")
	c.Disconnect()
}

func TestNoReconnectWithoutAutoReconnect(t *testing.T) {
	dialer := newFakeDialer(1)
	clock := newFakeClock()
	rec := newRecorder()
	c, _ := New("ws://localhost:6060", false, rec.handler(), Options{Dialer: dialer, Clock: clock})
	defer c.Disconnect()

	c.Connect(context.Background(), false)
	waitFor(t, rec.errors, "dial error")

	select {
	case d := <-clock.delays:
		t.Errorf("unexpected backoff %v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectAfterDisconnectIsOrdered(t *testing.T) {
	dialer := newFakeDialer(0)
	release := make(chan struct{})
	dialer.hold = release

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}
	connected := make(chan struct{}, 4)
	c, _ := New("ws://localhost:6060", false, Handler{
		OnConnect: func() {
			record("connect")
			connected <- struct{}{}
		},
		OnDisconnect: func(byServer bool, code int, reason string) {
			if byServer {
				record("server disconnect")
			} else {
				record("disconnect")
			}
		},
	}, Options{Dialer: dialer})
	defer c.Disconnect()

	c.Connect(context.Background(), false)
	dialer.nextConn(t)
	waitFor(t, connected, "connect")

	// The old read loop is still busy when the new connection is requested.
	c.Disconnect()
	c.Connect(context.Background(), false)
	time.Sleep(50 * time.Millisecond)
	if n := dialer.dialCount(); n != 1 {
		t.Fatalf("dialed %d times before the old channel was released", n)
	}

	close(release)
	dialer.nextConn(t)
	waitFor(t, connected, "reconnect")

	mu.Lock()
	got := append([]string(nil), events...)
	mu.Unlock()
	want := []string{"connect", "disconnect", "connect"}
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
	if !c.IsConnected() {
		t.Error("must be connected")
	}
}
