// Package tinode implements a client session of the Tinode messaging protocol: request/response
// correlation over a single websocket connection, routing of server messages to topics and the
// topic state machine.
package tinode

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinode/tinodesdk/connection"
	"github.com/tinode/tinodesdk/drafty"
	"github.com/tinode/tinodesdk/largefile"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
	"github.com/tinode/tinodesdk/store"

	// The default in-memory store.
	_ "github.com/tinode/tinodesdk/store/mem"
)

// PromisedReply is a pending response from the server.
type PromisedReply = promise.PromisedReply[*model.ServerComMessage]

// Authentication schemes.
const (
	AuthBasic = "basic"
	AuthToken = "token"
	AuthReset = "reset"
)

// Codes and reasons of synthetic {ctrl} values.
const (
	codeDisconnected = http.StatusServiceUnavailable
	textDisconnected = "disconnected"
	codeTerminated   = http.StatusInternalServerError
	textTerminated   = "terminated"
	codeEvicted      = http.StatusResetContent
	textEvicted      = "evicted"
)

// Options are the collaborators of the client. All fields are optional.
type Options struct {
	// Local persistence. If nil, the store described in Config is opened.
	Store    store.Storage
	Listener *EventListener
	// Transport used to reach the server. Websocket by default.
	Dialer connection.Dialer
	// Clock and random source of the reconnect backoff.
	Clock connection.Clock
	Rand  func(n int64) int64
	// Log a summary of every frame sent and received.
	Verbose bool
}

type credentials struct {
	scheme string
	secret []byte
}

// Client is a session with a Tinode server. Create it with NewClient.
type Client struct {
	config   Config
	store    store.Storage
	listener EventListener
	conn     *connection.Connection
	metrics  *Metrics
	verbose  bool

	// Pending requests: message id -> *PromisedReply.
	futures sync.Map
	// Known topics: name -> *Topic.
	topics sync.Map
	// Cached users: uid -> *store.User.
	users sync.Map

	msgId atomic.Int64
	idGen model.IDGenerator

	mu              sync.Mutex
	myUid           string
	authToken       string
	tokenExpires    *time.Time
	authenticated   bool
	loginInProgress bool
	loginCreds      *credentials
	serverVersion   string
	serverBuild     string
	serverParams    map[string]any
	timeAdjust      time.Duration
	topicsLoaded    bool
	connected       *PromisedReply
}

// NewClient creates a client. It does not connect to the server.
func NewClient(config *Config, opts Options) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	c := &Client{config: *config, verbose: opts.Verbose}
	if err := c.config.validate(); err != nil {
		return nil, err
	}

	c.store = opts.Store
	if c.store == nil {
		cfg := c.config.Store
		if cfg == nil {
			cfg = &store.Config{UseAdapter: "mem"}
		}
		adp, err := store.Open(cfg)
		if err != nil {
			return nil, err
		}
		c.store = adp
	}
	if opts.Listener != nil {
		c.listener = *opts.Listener
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &connection.WsDialer{PingPeriod: c.config.pingPeriod()}
	}
	conn, err := connection.New(c.config.Host, c.config.Secure, connection.Handler{
		OnConnect:    c.handleConnected,
		OnMessage:    c.dispatch,
		OnDisconnect: c.handleDisconnect,
		OnError:      c.handleError,
	}, connection.Options{
		APIKey: c.config.APIKey,
		Dialer: dialer,
		Clock:  opts.Clock,
		Rand:   opts.Rand,
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn

	if err := c.idGen.Init(1, nil); err != nil {
		return nil, err
	}
	c.msgId.Store(0xFFFF + rand.Int63n(0xFFFF))
	c.metrics = newMetrics(c, c.config.MetricsNamespace)
	c.myUid = c.store.MyUid()
	return c, nil
}

// Metrics returns the collector of client statistics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Store returns the local persistence used by the client.
func (c *Client) Store() store.Storage {
	return c.store
}

func (c *Client) nextID() string {
	return strconv.FormatInt(c.msgId.Add(1), 10)
}

// Connect starts connecting to the server. The returned promise is resolved with the
// response to {hi} once the connection is established.
func (c *Client) Connect(ctx context.Context) *PromisedReply {
	if c.conn.IsConnected() {
		return promise.Resolved[*model.ServerComMessage](nil)
	}

	c.mu.Lock()
	p := c.connected
	if p == nil {
		p = promise.New[*model.ServerComMessage]()
		c.connected = p
	}
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, c.config.Reconnect); err != nil {
		c.rejectConnected(err)
	}
	return p
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.rejectConnected(ErrNotConnected)
}

// IsConnected checks if the connection to the server is open.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

func (c *Client) rejectConnected(err error) {
	c.mu.Lock()
	p := c.connected
	c.connected = nil
	c.mu.Unlock()
	if p != nil {
		p.Reject(err)
	}
}

// handleConnected is called on the read loop when the channel is open.
func (c *Client) handleConnected() {
	c.hello().ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			c.mu.Lock()
			p := c.connected
			c.connected = nil
			creds := c.loginCreds
			c.mu.Unlock()

			if fn := c.listener.OnConnect; fn != nil {
				fn(msg.Ctrl.Code, msg.Ctrl.Text, msg.Ctrl.Params)
			}
			if p != nil {
				p.Resolve(msg)
			}
			if c.config.AutoLogin && creds != nil {
				c.login(creds.scheme, creds.secret, nil)
			}
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			logs.Warn.Println("tinode: handshake failed", err)
			c.rejectConnected(err)
			return nil, err
		})
}

func (c *Client) handleError(err error) {
	if !c.config.Reconnect {
		c.rejectConnected(err)
	}
}

// handleDisconnect is called on the read loop when the channel is closed.
func (c *Client) handleDisconnect(byServer bool, code int, reason string) {
	c.metrics.disconnects.Add(1)

	c.mu.Lock()
	c.authenticated = false
	c.loginInProgress = false
	c.serverVersion = ""
	c.serverBuild = ""
	c.mu.Unlock()

	// Disconnect has already rejected the promise, which may belong to a newer Connect by now.
	if byServer && !c.config.Reconnect {
		c.rejectConnected(ErrNotConnected)
	}

	// Pending requests will never be answered.
	c.futures.Range(func(key, value any) bool {
		c.futures.Delete(key)
		value.(*PromisedReply).Reject(ErrNotConnected)
		return true
	})

	for _, topic := range c.Topics(model.KindAny) {
		topic.topicLeft(false, codeDisconnected, textDisconnected)
	}

	if fn := c.listener.OnDisconnect; fn != nil {
		fn(byServer, code, reason)
	}
}

func (c *Client) pendingCount() int {
	n := 0
	c.futures.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// send writes the message to the connection without waiting for a response.
func (c *Client) send(msg *model.ClientComMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.verbose {
		logs.Info.Println("out:", msg.Describe())
	}
	if err = c.conn.Send(data); err != nil {
		if errors.Is(err, connection.ErrNotConnected) {
			return ErrNotConnected
		}
		return err
	}
	c.metrics.framesOut.Add(1)
	return nil
}

// sendWithReply registers a future under the id and sends the message.
func (c *Client) sendWithReply(msg *model.ClientComMessage, id string) *PromisedReply {
	data, err := json.Marshal(msg)
	if err != nil {
		return promise.Rejected[*model.ServerComMessage](err)
	}

	future := promise.New[*model.ServerComMessage]()
	// Must be registered before sending: the response may arrive before Send returns.
	c.futures.Store(id, future)
	if c.verbose {
		logs.Info.Println("out:", msg.Describe())
	}
	if err = c.conn.Send(data); err != nil {
		c.futures.Delete(id)
		if errors.Is(err, connection.ErrNotConnected) {
			err = ErrNotConnected
		}
		return promise.Rejected[*model.ServerComMessage](err)
	}
	c.metrics.framesOut.Add(1)
	return future
}

// resolveFuture settles the pending request the message is a response to.
func (c *Client) resolveFuture(id string, msg *model.ServerComMessage) {
	if id == "" {
		return
	}
	val, ok := c.futures.LoadAndDelete(id)
	if !ok {
		return
	}
	future := val.(*PromisedReply)
	if msg.Ctrl != nil && !msg.Ctrl.IsSuccess() {
		future.Reject(&ServerResponseError{
			Code:   msg.Ctrl.Code,
			Text:   msg.Ctrl.Text,
			Reason: msg.Ctrl.StringParam("what", ""),
		})
		return
	}
	future.Resolve(msg)
}

// dispatch parses and routes a message received from the server.
func (c *Client) dispatch(raw []byte) {
	c.metrics.framesIn.Add(1)

	if fn := c.listener.OnRawMessage; fn != nil {
		fn(raw)
	}

	var msg model.ServerComMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.metrics.malformed.Add(1)
		logs.Warn.Println("tinode: failed to parse message", err)
		return
	}
	if msg.Ctrl == nil && msg.Data == nil && msg.Meta == nil && msg.Pres == nil && msg.Info == nil {
		c.metrics.malformed.Add(1)
		logs.Warn.Println("tinode: unknown message", string(raw))
		return
	}
	if c.verbose {
		logs.Info.Println("in:", msg.Describe())
	}

	if fn := c.listener.OnMessage; fn != nil {
		fn(&msg)
	}

	switch {
	case msg.Ctrl != nil:
		if fn := c.listener.OnCtrl; fn != nil {
			fn(msg.Ctrl)
		}
		c.resolveFuture(msg.Ctrl.Id, &msg)
		if msg.Ctrl.Code == codeEvicted && msg.Ctrl.Text == textEvicted {
			if topic := c.GetTopic(msg.Ctrl.Topic); topic != nil {
				topic.topicLeft(msg.Ctrl.BoolParam("unsub", false), msg.Ctrl.Code, msg.Ctrl.Text)
			}
		}

	case msg.Meta != nil:
		if topic := c.GetTopic(msg.Meta.Topic); topic != nil {
			topic.routeMeta(msg.Meta)
		}
		if fn := c.listener.OnMeta; fn != nil {
			fn(msg.Meta)
		}
		c.resolveFuture(msg.Meta.Id, &msg)

	case msg.Data != nil:
		if topic := c.GetTopic(msg.Data.Topic); topic != nil {
			topic.routeData(msg.Data)
		} else {
			logs.Info.Println("tinode: data for unknown topic", msg.Describe())
		}
		if fn := c.listener.OnData; fn != nil {
			fn(msg.Data)
		}

	case msg.Pres != nil:
		if topic := c.GetTopic(msg.Pres.Topic); topic != nil {
			topic.routePres(msg.Pres)
		}
		if fn := c.listener.OnPres; fn != nil {
			fn(msg.Pres)
		}

	case msg.Info != nil:
		if topic := c.GetTopic(msg.Info.Topic); topic != nil {
			topic.routeInfo(msg.Info)
		}
		if fn := c.listener.OnInfo; fn != nil {
			fn(msg.Info)
		}
	}
}

// hello sends the {hi} handshake and saves the server version.
func (c *Client) hello() *PromisedReply {
	id := c.nextID()
	msg := &model.ClientComMessage{Hi: &model.MsgClientHi{
		Id:        id,
		UserAgent: c.config.userAgent(),
		Version:   protocolVersion,
		DeviceID:  c.store.DeviceToken(),
		Lang:      c.config.Lang,
		Platform:  c.config.Platform,
	}}
	return c.sendWithReply(msg, id).ThenApply(
		func(reply *model.ServerComMessage) (*PromisedReply, error) {
			if reply.Ctrl == nil {
				return nil, nil
			}
			c.mu.Lock()
			c.serverVersion = reply.Ctrl.StringParam("ver", "")
			c.serverBuild = reply.Ctrl.StringParam("build", "")
			c.serverParams = reply.Ctrl.Params
			c.mu.Unlock()
			return nil, nil
		}, nil)
}

// ServerVersion returns the protocol version reported by the server.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// ServerBuild returns the build of the server.
func (c *Client) ServerBuild() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverBuild
}

// ServerParam returns a parameter reported by the server in response to {hi}, i.e. "maxMessageSize".
func (c *Client) ServerParam(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverParams[key]
}

// MyUID returns the ID of the current user.
func (c *Client) MyUID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.myUid
}

// IsMe checks if the uid is the current user.
func (c *Client) IsMe(uid string) bool {
	return uid != "" && uid == c.MyUID()
}

// AuthToken returns the authentication token and its expiration time.
func (c *Client) AuthToken() (string, *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken, c.tokenExpires
}

// SetAuthToken sets the token used for automatic login.
func (c *Client) SetAuthToken(token string) error {
	secret, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.authToken = token
	c.loginCreds = &credentials{scheme: AuthToken, secret: secret}
	c.mu.Unlock()
	return nil
}

// LargeFileHelper returns a helper for out-of-band file transfers authenticated with the
// current token. The helper must be closed when no longer needed.
func (c *Client) LargeFileHelper() (*largefile.Helper, error) {
	token, _ := c.AuthToken()
	scheme := "http"
	if c.config.Secure {
		scheme = "https"
	}
	return largefile.New(largefile.Config{
		BaseURL:   scheme + "://" + c.config.Host,
		APIKey:    c.config.APIKey,
		AuthToken: token,
		UserAgent: c.config.userAgent(),
	})
}

// IsAuthenticated checks if the session is logged in.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// TimeAdjustment returns the difference between the server and the local clocks.
func (c *Client) TimeAdjustment() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeAdjust
}

// LoginBasic logs in with a user name and a password.
func (c *Client) LoginBasic(uname, password string) *PromisedReply {
	return c.login(AuthBasic, []byte(uname+":"+password), nil)
}

// LoginToken logs in with a token previously issued by the server.
func (c *Client) LoginToken(token string, creds []model.Credential) *PromisedReply {
	secret, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return promise.Rejected[*model.ServerComMessage](err)
	}
	return c.login(AuthToken, secret, creds)
}

func (c *Client) login(scheme string, secret []byte, creds []model.Credential) *PromisedReply {
	c.mu.Lock()
	if c.authenticated {
		c.mu.Unlock()
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	if c.loginInProgress {
		c.mu.Unlock()
		return promise.Rejected[*model.ServerComMessage](ErrInProgress)
	}
	c.loginInProgress = true
	c.mu.Unlock()

	id := c.nextID()
	msg := &model.ClientComMessage{Login: &model.MsgClientLogin{
		Id:     id,
		Scheme: scheme,
		Secret: secret,
		Cred:   creds,
	}}
	return c.sendWithReply(msg, id).ThenApply(
		func(reply *model.ServerComMessage) (*PromisedReply, error) {
			c.loginSuccessful(reply.Ctrl, &credentials{scheme: scheme, secret: secret})
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			c.loginFailed(err)
			return nil, err
		})
}

func (c *Client) loginFailed(err error) {
	c.mu.Lock()
	c.loginInProgress = false
	if sre, ok := IsServerResponseError(err); ok && sre.Code == http.StatusUnauthorized {
		// Bad credentials must not be reused.
		c.loginCreds = nil
		c.authToken = ""
	}
	c.mu.Unlock()

	if sre, ok := IsServerResponseError(err); ok {
		if fn := c.listener.OnLogin; fn != nil {
			fn(sre.Code, sre.Text)
		}
	}
}

// loginSuccessful saves the session parameters from the {ctrl} response to {login} or {acc}.
func (c *Client) loginSuccessful(ctrl *model.MsgServerCtrl, creds *credentials) {
	if ctrl == nil {
		return
	}
	uid := ctrl.StringParam("user", "")

	c.mu.Lock()
	c.loginInProgress = false
	if c.myUid != "" && uid != "" && c.myUid != uid {
		// A different user: data of the old one must not leak.
		c.topicsLoaded = false
		c.topics.Range(func(key, _ any) bool {
			c.topics.Delete(key)
			return true
		})
		c.users.Range(func(key, _ any) bool {
			c.users.Delete(key)
			return true
		})
	}
	if uid != "" {
		c.myUid = uid
	}
	c.authToken = ctrl.StringParam("token", "")
	c.tokenExpires = ctrl.TimeParam("expires")
	if c.authToken != "" {
		if secret, err := base64.StdEncoding.DecodeString(c.authToken); err == nil {
			creds = &credentials{scheme: AuthToken, secret: secret}
		}
	}
	// 300: credentials must be validated first.
	c.authenticated = ctrl.Code < http.StatusMultipleChoices
	if c.authenticated {
		c.loginCreds = creds
	}
	if !ctrl.Timestamp.IsZero() {
		c.timeAdjust = ctrl.Timestamp.Sub(time.Now())
	}
	adj := c.timeAdjust
	loadTopics := c.authenticated && !c.topicsLoaded
	if loadTopics {
		c.topicsLoaded = true
	}
	c.mu.Unlock()

	if uid != "" {
		if err := c.store.SetMyUid(uid); err != nil {
			logs.Warn.Println("tinode: failed to save user", err)
		}
	}
	c.store.SetTimeAdjustment(adj)
	if loadTopics {
		c.loadTopics()
	}

	if fn := c.listener.OnLogin; fn != nil {
		fn(ctrl.Code, ctrl.Text)
	}
}

// loadTopics restores topics saved in the local store. Topics already known in memory win.
func (c *Client) loadTopics() {
	records, err := c.store.TopicGetAll()
	if err != nil {
		logs.Warn.Println("tinode: failed to load topics", err)
		return
	}
	for _, rec := range records {
		topic := newTopicFromRecord(c, rec)
		if topic.variant.persistSubs() {
			if subs, err := c.store.Subscriptions(rec.Name); err == nil {
				topic.loadSubs(subs)
			}
		}
		c.topics.LoadOrStore(rec.Name, topic)
	}
	c.GetMeTopic().loadContacts(c.Topics(model.KindCom | model.KindSys))
}

// CreateAccountBasic creates a new account with the basic authentication scheme.
func (c *Client) CreateAccountBasic(uname, password string, login bool, tags []string,
	desc *model.MsgSetDesc, creds []model.Credential) *PromisedReply {
	id := c.nextID()
	secret := []byte(uname + ":" + password)
	msg := &model.ClientComMessage{Acc: &model.MsgClientAcc{
		Id:     id,
		User:   "new" + c.idGen.GetStr(),
		Scheme: AuthBasic,
		Secret: secret,
		Login:  login,
		Tags:   tags,
		Desc:   desc,
		Cred:   creds,
	}}
	future := c.sendWithReply(msg, id)
	if !login {
		return future
	}
	return future.ThenApply(
		func(reply *model.ServerComMessage) (*PromisedReply, error) {
			c.loginSuccessful(reply.Ctrl, &credentials{scheme: AuthBasic, secret: secret})
			return nil, nil
		}, nil)
}

// UpdateAccountBasic changes the login and the password of an account. Empty uid means current user.
func (c *Client) UpdateAccountBasic(uid, uname, password string) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Acc: &model.MsgClientAcc{
		Id:     id,
		User:   uid,
		Scheme: AuthBasic,
		Secret: []byte(uname + ":" + password),
	}}, id)
}

// RequestResetSecret asks the server to send a message for resetting the authentication secret,
// i.e. the password of the basic scheme, to the credential identified by method and value.
func (c *Client) RequestResetSecret(scheme, method, value string) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Login: &model.MsgClientLogin{
		Id:     id,
		Scheme: AuthReset,
		Secret: []byte(scheme + ":" + method + ":" + value),
	}}, id)
}

// Logout disconnects and removes all data of the current user.
func (c *Client) Logout() error {
	c.Disconnect()

	c.mu.Lock()
	c.myUid = ""
	c.authToken = ""
	c.tokenExpires = nil
	c.loginCreds = nil
	c.authenticated = false
	c.topicsLoaded = false
	c.mu.Unlock()

	c.topics.Range(func(key, _ any) bool {
		c.topics.Delete(key)
		return true
	})
	c.users.Range(func(key, _ any) bool {
		c.users.Delete(key)
		return true
	})
	return c.store.Logout()
}

// DeleteAccount deletes the current user and logs out.
func (c *Client) DeleteAccount(hard bool) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Del: &model.MsgClientDel{
		Id:   id,
		What: model.DelWhatUser,
		User: c.MyUID(),
		Hard: hard,
	}}, id).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			if err := c.Logout(); err != nil && !errors.Is(err, store.ErrNotReady) {
				logs.Warn.Println("tinode: logout after account deletion", err)
			}
			return nil, nil
		}, nil)
}

// Low-level requests. Topic methods are built on top of them.

func (c *Client) subscribe(topic string, set *model.MsgSetQuery, get *model.MsgGetQuery) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Sub: &model.MsgClientSub{
		Id:    id,
		Topic: topic,
		Set:   set,
		Get:   get,
	}}, id)
}

func (c *Client) leave(topic string, unsub bool) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Leave: &model.MsgClientLeave{
		Id:    id,
		Topic: topic,
		Unsub: unsub,
	}}, id)
}

func (c *Client) publish(topic string, head map[string]any, content any) *PromisedReply {
	id := c.nextID()
	msg := &model.ClientComMessage{Pub: &model.MsgClientPub{
		Id:      id,
		Topic:   topic,
		NoEcho:  true,
		Head:    head,
		Content: content,
	}}
	if doc, ok := content.(*drafty.Document); ok {
		if refs := doc.EntReferences(); len(refs) > 0 {
			msg.Extra = &model.MsgClientExtra{Attachments: refs}
		}
	}
	return c.sendWithReply(msg, id)
}

func (c *Client) getMeta(topic string, query *model.MsgGetQuery) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Get: &model.MsgClientGet{
		Id:          id,
		Topic:       topic,
		MsgGetQuery: *query,
	}}, id)
}

func (c *Client) setMeta(topic string, query *model.MsgSetQuery) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Set: &model.MsgClientSet{
		Id:          id,
		Topic:       topic,
		MsgSetQuery: *query,
	}}, id)
}

func (c *Client) delMessage(topic string, ranges []model.MsgRange, hard bool) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Del: &model.MsgClientDel{
		Id:     id,
		Topic:  topic,
		What:   model.DelWhatMsg,
		DelSeq: ranges,
		Hard:   hard,
	}}, id)
}

func (c *Client) delTopic(topic string, hard bool) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Del: &model.MsgClientDel{
		Id:    id,
		Topic: topic,
		What:  model.DelWhatTopic,
		Hard:  hard,
	}}, id)
}

func (c *Client) delSubscription(topic, user string) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Del: &model.MsgClientDel{
		Id:    id,
		Topic: topic,
		What:  model.DelWhatSub,
		User:  user,
	}}, id)
}

func (c *Client) delCredential(cred *model.Credential) *PromisedReply {
	id := c.nextID()
	return c.sendWithReply(&model.ClientComMessage{Del: &model.MsgClientDel{
		Id:    id,
		Topic: model.TopicMe,
		What:  model.DelWhatCred,
		Cred:  cred,
	}}, id)
}

// note sends a fire-and-forget notification.
func (c *Client) note(topic, what string, seq int) {
	err := c.send(&model.ClientComMessage{Note: &model.MsgClientNote{
		Topic: topic,
		What:  what,
		SeqId: seq,
	}})
	if err != nil && err != ErrNotConnected {
		logs.Warn.Println("tinode: failed to send note", topic, what, err)
	}
}

// Topic registry.

// NewTopic creates a topic for the given name, or returns an existing one. The topic is not
// subscribed to.
func (c *Client) NewTopic(name string, listener *TopicListener) *Topic {
	if val, ok := c.topics.Load(name); ok {
		topic := val.(*Topic)
		if listener != nil {
			topic.SetListener(listener)
		}
		return topic
	}
	topic := newTopic(c, name, StateDetached)
	if listener != nil {
		topic.listener = *listener
	}
	val, _ := c.topics.LoadOrStore(name, topic)
	return val.(*Topic)
}

// NewGroupTopic creates a group topic or a channel which does not exist on the server yet. The
// server assigns the real name on the first subscribe.
func (c *Client) NewGroupTopic(isChannel bool, listener *TopicListener) *Topic {
	prefix := model.TopicNew
	if isChannel {
		prefix = model.TopicNewChannel
	}
	topic := newTopic(c, prefix+c.idGen.GetStr(), StateNew)
	if listener != nil {
		topic.listener = *listener
	}
	c.topics.Store(topic.Name(), topic)
	return topic
}

// GetTopic returns a known topic or nil.
func (c *Client) GetTopic(name string) *Topic {
	if name == "" {
		return nil
	}
	if val, ok := c.topics.Load(name); ok {
		return val.(*Topic)
	}
	return nil
}

// GetMeTopic returns the 'me' topic, creating it if necessary.
func (c *Client) GetMeTopic() *Topic {
	return c.NewTopic(model.TopicMe, nil)
}

// GetFndTopic returns the 'fnd' topic, creating it if necessary.
func (c *Client) GetFndTopic() *Topic {
	return c.NewTopic(model.TopicFnd, nil)
}

// Topics returns topics of the given kinds sorted by name.
func (c *Client) Topics(filter model.TopicKind) []*Topic {
	var list []*Topic
	c.topics.Range(func(_, val any) bool {
		topic := val.(*Topic)
		if topic.Kind().Match(filter) {
			list = append(list, topic)
		}
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// renameTopic re-indexes the topic under the new name.
func (c *Client) renameTopic(oldName string, topic *Topic) {
	c.topics.Delete(oldName)
	c.topics.Store(topic.Name(), topic)
}

func (c *Client) unregisterTopic(name string, topic *Topic) {
	c.topics.CompareAndDelete(name, topic)
}

// meTopic returns the 'me' topic if it exists.
func (c *Client) meTopic() *Topic {
	return c.GetTopic(model.TopicMe)
}

// Users.

// User returns a cached user or nil.
func (c *Client) User(uid string) *store.User {
	if val, ok := c.users.Load(uid); ok {
		return val.(*store.User)
	}
	user, err := c.store.UserGet(uid)
	if err != nil {
		return nil
	}
	c.users.Store(uid, user)
	return user
}

// UpdateUser saves the public data of a user if it's newer than the cached one.
func (c *Client) UpdateUser(uid string, updated *time.Time, pub *model.TheCard) {
	if !model.IsUserID(uid) || pub == nil {
		return
	}
	user := c.User(uid)
	if user == nil {
		user = &store.User{Uid: uid, Updated: updated, Public: pub.Copy()}
		if _, err := c.store.UserAdd(user); err != nil {
			logs.Warn.Println("tinode: failed to save user", uid, err)
		}
		c.users.Store(uid, user)
		return
	}
	if updated != nil && user.Updated != nil && !user.Updated.Before(*updated) {
		return
	}
	next := &store.User{Id: user.Id, Uid: uid, Updated: updated, Public: pub.Copy()}
	if err := c.store.UserUpdate(next); err != nil {
		logs.Warn.Println("tinode: failed to update user", uid, err)
	}
	c.users.Store(uid, next)
}
