package tinode

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tinode/tinodesdk/connection"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
)

const testTimeout = 5 * time.Second

func init() {
	logs.Init(io.Discard, "")
}

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 32),
		out:    make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
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

type fakeDialer struct {
	mu      sync.Mutex
	headers []http.Header
	conns   chan *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (connection.Conn, error) {
	d.mu.Lock()
	d.headers = append(d.headers, header)
	d.mu.Unlock()
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

// testServer plays the server side of a single connection.
type testServer struct {
	t      *testing.T
	dialer *fakeDialer
	conn   *fakeConn
}

func (s *testServer) accept() {
	s.t.Helper()
	select {
	case s.conn = <-s.dialer.conns:
	case <-time.After(testTimeout):
		s.t.Fatal("client did not connect")
	}
}

// recv returns the next message sent by the client.
func (s *testServer) recv() *model.ClientComMessage {
	s.t.Helper()
	select {
	case raw := <-s.conn.out:
		var msg model.ClientComMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.t.Fatalf("bad client message %s: %v", raw, err)
		}
		return &msg
	case <-time.After(testTimeout):
		s.t.Fatal("no message from client")
	}
	return nil
}

// expectNothing checks that the client has not sent anything.
func (s *testServer) expectNothing() {
	s.t.Helper()
	select {
	case raw := <-s.conn.out:
		s.t.Fatalf("unexpected client message %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *testServer) send(msg *model.ServerComMessage) {
	s.t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		s.t.Fatal(err)
	}
	s.conn.in <- raw
}

func (s *testServer) ctrl(id, topic string, code int, params map[string]any) {
	s.t.Helper()
	s.send(&model.ServerComMessage{Ctrl: &model.MsgServerCtrl{
		Id:        id,
		Topic:     topic,
		Code:      code,
		Text:      http.StatusText(code),
		Params:    params,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
	}})
}

func (s *testServer) close() {
	s.conn.shutdown(&websocket.CloseError{Code: websocket.CloseGoingAway, Text: "bye"})
}

func newTestClient(t *testing.T, opts Options) (*Client, *testServer) {
	t.Helper()
	d := &fakeDialer{conns: make(chan *fakeConn, 4)}
	opts.Dialer = d
	c, err := NewClient(&Config{
		Host:    "api.example.com",
		APIKey:  "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K",
		AppName: "test-app",
		Lang:    "en-us",
	}, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Disconnect)
	return c, &testServer{t: t, dialer: d}
}

func wait(t *testing.T, p *PromisedReply) (*model.ServerComMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	return p.Wait(ctx)
}

func mustWait(t *testing.T, p *PromisedReply) *model.ServerComMessage {
	t.Helper()
	msg, err := wait(t, p)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

// connect completes the handshake.
func connect(t *testing.T, c *Client, s *testServer) {
	t.Helper()
	p := c.Connect(context.Background())
	s.accept()
	hi := s.recv()
	if hi.Hi == nil {
		t.Fatalf("expected {hi}, got %+v", hi)
	}
	s.ctrl(hi.Hi.Id, "", http.StatusCreated, map[string]any{"ver": "0.22.13", "build": "mysql:v0.22.13"})
	mustWait(t, p)
}

// login completes the basic login as the given user.
func login(t *testing.T, c *Client, s *testServer, uid string) {
	t.Helper()
	p := c.LoginBasic("alice", "alice123")
	msg := s.recv()
	if msg.Login == nil {
		t.Fatalf("expected {login}, got %+v", msg)
	}
	s.ctrl(msg.Login.Id, "", http.StatusOK, map[string]any{
		"user":    uid,
		"token":   base64.StdEncoding.EncodeToString([]byte("token-" + uid)),
		"expires": time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano),
	})
	mustWait(t, p)
}

func TestHandshake(t *testing.T) {
	var connected []int
	c, s := newTestClient(t, Options{Listener: &EventListener{
		OnConnect: func(code int, text string, params map[string]any) {
			connected = append(connected, code)
		},
	}})

	p := c.Connect(context.Background())
	s.accept()
	hi := s.recv()
	if hi.Hi == nil {
		t.Fatalf("expected {hi}, got %+v", hi)
	}
	if hi.Hi.Version != protocolVersion {
		t.Errorf("version = %q, want %q", hi.Hi.Version, protocolVersion)
	}
	if !strings.Contains(hi.Hi.UserAgent, "test-app") || !strings.Contains(hi.Hi.UserAgent, libName+"/"+libVersion) {
		t.Errorf("user agent = %q", hi.Hi.UserAgent)
	}
	if hi.Hi.Lang != "en-US" {
		t.Errorf("lang = %q, want en-US", hi.Hi.Lang)
	}
	if p.IsDone() {
		t.Fatal("connect resolved before {hi} response")
	}

	s.ctrl(hi.Hi.Id, "", http.StatusCreated, map[string]any{"ver": "0.22.13", "build": "mysql:v0.22.13", "maxMessageSize": 4194304})
	reply := mustWait(t, p)
	if reply.Ctrl.Code != http.StatusCreated {
		t.Errorf("code = %d", reply.Ctrl.Code)
	}
	if c.ServerVersion() != "0.22.13" || c.ServerBuild() != "mysql:v0.22.13" {
		t.Errorf("server = %q %q", c.ServerVersion(), c.ServerBuild())
	}
	if v, _ := c.ServerParam("maxMessageSize").(float64); v != 4194304 {
		t.Errorf("maxMessageSize = %v", c.ServerParam("maxMessageSize"))
	}
	if len(connected) != 1 || connected[0] != http.StatusCreated {
		t.Errorf("OnConnect calls = %v", connected)
	}
	if got := s.dialer.headers[0].Get("X-Tinode-APIKey"); got != "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K" {
		t.Errorf("api key header = %q", got)
	}

	// Already connected.
	if msg := mustWait(t, c.Connect(context.Background())); msg != nil {
		t.Errorf("second connect = %+v, want nil", msg)
	}
}

func TestLogin(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	p := c.LoginBasic("alice", "alice123")
	msg := s.recv()
	if msg.Login == nil || msg.Login.Scheme != AuthBasic || string(msg.Login.Secret) != "alice:alice123" {
		t.Fatalf("bad login %+v", msg.Login)
	}
	if _, err := wait(t, c.LoginBasic("alice", "alice123")); !errors.Is(err, ErrInProgress) {
		t.Errorf("concurrent login err = %v, want ErrInProgress", err)
	}

	token := base64.StdEncoding.EncodeToString([]byte("secret-token"))
	s.ctrl(msg.Login.Id, "", http.StatusOK, map[string]any{
		"user":    "usrAlice",
		"token":   token,
		"expires": "2030-01-02T15:04:05Z",
	})
	mustWait(t, p)

	if !c.IsAuthenticated() {
		t.Error("not authenticated")
	}
	if c.MyUID() != "usrAlice" || !c.IsMe("usrAlice") || c.IsMe("usrBob") {
		t.Errorf("uid = %q", c.MyUID())
	}
	tok, exp := c.AuthToken()
	if tok != token || exp == nil || exp.Year() != 2030 {
		t.Errorf("token = %q %v", tok, exp)
	}
	if c.Store().MyUid() != "usrAlice" {
		t.Errorf("stored uid = %q", c.Store().MyUid())
	}
	// Logged in already.
	if msg := mustWait(t, c.LoginBasic("alice", "alice123")); msg != nil {
		t.Errorf("repeated login = %+v", msg)
	}

	files, err := c.LargeFileHelper()
	if err != nil {
		t.Fatal(err)
	}
	defer files.Close()
	hdr := files.Headers()
	if hdr.Get("X-Tinode-Auth") != "Token "+token || hdr.Get("X-Tinode-APIKey") != "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K" {
		t.Errorf("file headers = %v", hdr)
	}
}

func TestLoginRejected(t *testing.T) {
	var codes []int
	c, s := newTestClient(t, Options{Listener: &EventListener{
		OnLogin: func(code int, text string) { codes = append(codes, code) },
	}})
	connect(t, c, s)
	if err := c.SetAuthToken(base64.StdEncoding.EncodeToString([]byte("stale"))); err != nil {
		t.Fatal(err)
	}

	p := c.LoginToken(base64.StdEncoding.EncodeToString([]byte("stale")), nil)
	msg := s.recv()
	if msg.Login.Scheme != AuthToken {
		t.Errorf("scheme = %q", msg.Login.Scheme)
	}
	s.send(&model.ServerComMessage{Ctrl: &model.MsgServerCtrl{
		Id:     msg.Login.Id,
		Code:   http.StatusUnauthorized,
		Text:   "authentication failed",
		Params: map[string]any{"what": "token"},
	}})

	_, err := wait(t, p)
	sre, ok := IsServerResponseError(err)
	if !ok {
		t.Fatalf("err = %v, want ServerResponseError", err)
	}
	if sre.Code != http.StatusUnauthorized || sre.Reason != "token" {
		t.Errorf("err = %+v", sre)
	}
	if c.IsAuthenticated() {
		t.Error("authenticated after failure")
	}
	if tok, _ := c.AuthToken(); tok != "" {
		t.Errorf("token not cleared: %q", tok)
	}
	if len(codes) != 1 || codes[0] != http.StatusUnauthorized {
		t.Errorf("OnLogin = %v", codes)
	}
}

func TestDisconnectRejectsPending(t *testing.T) {
	disconnected := make(chan bool, 1)
	c, s := newTestClient(t, Options{Listener: &EventListener{
		OnDisconnect: func(byServer bool, code int, reason string) {
			disconnected <- byServer
		},
	}})
	connect(t, c, s)

	var left []int
	topic := c.NewTopic("grpTest", &TopicListener{
		OnLeave: func(unsub bool, code int, text string) { left = append(left, code) },
	})
	sub := topic.Subscribe(nil, nil)
	msg := s.recv()
	s.ctrl(msg.Sub.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, sub)

	pending := topic.GetMeta(topic.MetaGetBuilder().WithDesc(nil).Build())
	s.recv()
	s.close()

	if _, err := wait(t, pending); !errors.Is(err, ErrNotConnected) {
		t.Errorf("pending err = %v, want ErrNotConnected", err)
	}
	select {
	case byServer := <-disconnected:
		if !byServer {
			t.Error("disconnect not attributed to the server")
		}
	case <-time.After(testTimeout):
		t.Fatal("OnDisconnect not called")
	}
	if topic.IsAttached() {
		t.Error("topic still attached")
	}
	if len(left) != 1 || left[0] != http.StatusServiceUnavailable {
		t.Errorf("OnLeave = %v", left)
	}
	if c.pendingCount() != 0 {
		t.Errorf("pending = %d", c.pendingCount())
	}
	if _, err := wait(t, topic.GetMeta(topic.MetaGetBuilder().WithDesc(nil).Build())); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after disconnect err = %v", err)
	}
}

func TestReconnectRightAfterDisconnect(t *testing.T) {
	disconnected := make(chan bool, 4)
	c, s := newTestClient(t, Options{Listener: &EventListener{
		OnDisconnect: func(byServer bool, code int, reason string) { disconnected <- byServer },
	}})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	sub := topic.Subscribe(nil, nil)
	msg := s.recv()
	s.ctrl(msg.Sub.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, sub)

	c.Disconnect()
	p := c.Connect(context.Background())
	s.accept()
	hi := s.recv()
	if hi.Hi == nil {
		t.Fatalf("expected {hi}, got %+v", hi)
	}
	// The old channel has been torn down before the new one was opened.
	if len(disconnected) != 1 {
		t.Fatalf("OnDisconnect calls = %d, want 1", len(disconnected))
	}
	if byServer := <-disconnected; byServer {
		t.Error("disconnect attributed to the server")
	}
	if topic.IsAttached() {
		t.Error("topic still attached to the old session")
	}

	s.ctrl(hi.Hi.Id, "", http.StatusCreated, nil)
	if _, err := wait(t, p); err != nil {
		t.Fatalf("connect after disconnect: %v", err)
	}
	if !c.IsConnected() {
		t.Error("must be connected")
	}
}

func TestMetaResolvesFuture(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	p := topic.GetMeta(topic.MetaGetBuilder().WithTags().Build())
	msg := s.recv()
	if msg.Get == nil || msg.Get.What != "tags" {
		t.Fatalf("bad get %+v", msg.Get)
	}
	s.send(&model.ServerComMessage{Meta: &model.MsgServerMeta{
		Id:    msg.Get.Id,
		Topic: "grpTest",
		Tags:  []string{"travel", "email:alice@example.com"},
	}})
	reply := mustWait(t, p)
	if reply.Meta == nil {
		t.Fatalf("reply = %+v", reply)
	}
	if tags := topic.Tags(); len(tags) != 2 || tags[0] != "travel" {
		t.Errorf("tags = %v", tags)
	}
}

func TestEvicted(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	var unsubs []bool
	topic := c.NewTopic("grpTest", &TopicListener{
		OnLeave: func(unsub bool, code int, text string) { unsubs = append(unsubs, unsub) },
	})
	p := topic.Subscribe(nil, nil)
	msg := s.recv()
	s.ctrl(msg.Sub.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, p)

	s.send(&model.ServerComMessage{Ctrl: &model.MsgServerCtrl{
		Topic:  "grpTest",
		Code:   http.StatusResetContent,
		Text:   "evicted",
		Params: map[string]any{"unsub": true},
	}})
	// Round-trip to make sure the eviction was processed.
	ping := topic.GetMeta(topic.MetaGetBuilder().WithTags().Build())
	msg = s.recv()
	s.ctrl(msg.Get.Id, "grpTest", http.StatusNoContent, nil)
	mustWait(t, ping)

	if topic.IsAttached() {
		t.Error("topic still attached")
	}
	if len(unsubs) != 1 || !unsubs[0] {
		t.Errorf("OnLeave = %v", unsubs)
	}
}

func TestMalformedFrames(t *testing.T) {
	var raw int
	c, s := newTestClient(t, Options{Listener: &EventListener{
		OnRawMessage: func([]byte) { raw++ },
	}})
	connect(t, c, s)

	s.conn.in <- []byte("{not json")
	s.conn.in <- []byte(`{"unknown":{}}`)

	p := c.NewTopic("grpTest", nil).GetMeta(&model.MsgGetQuery{What: "desc"})
	msg := s.recv()
	s.ctrl(msg.Get.Id, "grpTest", http.StatusNoContent, nil)
	mustWait(t, p)

	if n := c.Metrics().malformed.Load(); n != 2 {
		t.Errorf("malformed = %d, want 2", n)
	}
	if raw != 4 {
		t.Errorf("raw messages = %d, want 4", raw)
	}
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestVerboseLogsFrames(t *testing.T) {
	var out lockedBuffer
	logs.Info.SetOutput(&out)
	defer logs.Info.SetOutput(io.Discard)

	quiet, qs := newTestClient(t, Options{})
	connect(t, quiet, qs)
	if got := out.String(); strings.Contains(got, "out:") || strings.Contains(got, "in:") {
		t.Errorf("frames logged without Verbose: %q", got)
	}

	c, s := newTestClient(t, Options{Verbose: true})
	connect(t, c, s)
	p := c.NewTopic("grpTest", nil).GetMeta(&model.MsgGetQuery{What: "desc"})
	msg := s.recv()
	s.ctrl(msg.Get.Id, "grpTest", http.StatusNoContent, nil)
	mustWait(t, p)

	got := out.String()
	for _, want := range []string{
		"out: {hi id=",
		"in: {ctrl ",
		"out: {get grpTest id=" + msg.Get.Id + " what=desc}",
		"in: {ctrl grpTest id=" + msg.Get.Id + " code=204",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log has no %q:\n%s", want, got)
		}
	}
}

func TestMetrics(t *testing.T) {
	c, s := newTestClient(t, Options{})
	c.config.MetricsNamespace = "tn"
	c.metrics = newMetrics(c, "tn")
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c.Metrics()); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			values[mf.GetName()] = g.GetValue()
		} else {
			values[mf.GetName()] = m.GetCounter().GetValue()
		}
	}
	want := map[string]float64{
		"tn_connected":              1,
		"tn_authenticated":          1,
		"tn_frames_received_total":  2,
		"tn_frames_sent_total":      2,
		"tn_frames_malformed_total": 0,
		"tn_disconnects_total":      0,
		"tn_requests_pending_count": 0,
		"tn_reconnect_attempts":     0,
	}
	for name, v := range want {
		if values[name] != v {
			t.Errorf("%s = %v, want %v", name, values[name], v)
		}
	}
	if _, ok := values["tn_topics_count"]; !ok {
		t.Error("topics_count missing")
	}
}

func TestParseConfig(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Config
		wantErr string
	}{
		{
			name: "comments",
			input: `{
				// Local development server.
				"host": "localhost:6060",
				"lang": "en-us", /* normalized */
				"reconnect": true,
				"key_press_delay": 1500
			}`,
			want: Config{Host: "localhost:6060", Lang: "en-US", Reconnect: true, KeyPressDelay: 1500},
		},
		{
			name:  "defaults",
			input: `{}`,
			want:  Config{Host: defaultHost},
		},
		{
			name:    "bad lang",
			input:   `{"lang": "not a language"}`,
			wantErr: "invalid lang",
		},
		{
			name:    "type error",
			input:   "{\n\"secure\": \"yes\"\n}",
			wantErr: "at 2:",
		},
		{
			name:    "syntax error",
			input:   "{\n\"host\": \"a\",,\n}",
			wantErr: "syntax error at 2:",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConfig(strings.NewReader(tc.input))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Host != tc.want.Host || got.Lang != tc.want.Lang || got.Reconnect != tc.want.Reconnect ||
				got.KeyPressDelay != tc.want.KeyPressDelay {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestConfigDurations(t *testing.T) {
	c := &Config{}
	if c.keyPressDelay() != defaultKeyPressDelay {
		t.Errorf("default key press delay = %v", c.keyPressDelay())
	}
	c.KeyPressDelay = 250
	if c.keyPressDelay() != 250*time.Millisecond {
		t.Errorf("key press delay = %v", c.keyPressDelay())
	}
	c.PingInterval = -1
	if c.pingPeriod() >= 0 {
		t.Errorf("disabled ping period = %v", c.pingPeriod())
	}
	c.PingInterval = 30
	if c.pingPeriod() != 30*time.Second {
		t.Errorf("ping period = %v", c.pingPeriod())
	}
	if ua := (&Config{}).userAgent(); ua != "tn-go (tinodesdk-go/0.22.1)" {
		t.Errorf("user agent = %q", ua)
	}
}
