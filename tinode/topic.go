package tinode

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tinode/tinodesdk/drafty"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
	"github.com/tinode/tinodesdk/store"
)

// State is the subscription state of a topic.
type State int

const (
	// StateNew is a topic created locally and not yet known to the server.
	StateNew State = iota
	// StateAttaching is a topic with a subscribe request in flight.
	StateAttaching
	// StateAttached is a subscribed topic.
	StateAttached
	// StateDetached is a topic known to the server but not subscribed to.
	StateDetached
	// StateDeleted is a topic which was deleted or failed to be created.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetached:
		return "detached"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// variant captures the behavior which differs between 'me', 'fnd' and communication topics.
type variant interface {
	// subKey returns the key of the subscription in the cache.
	subKey(sub *model.Subscription) string
	canPublish() bool
	// persistent reports if the topic itself is saved to the store.
	persistent() bool
	persistSubs() bool
	// routeMetaSub merges subscriptions into the cache and reports if the cache has changed.
	// Called with the topic lock held, the returned actions are run after the lock is released.
	routeMetaSub(t *Topic, subs []*model.Subscription) (actions, bool)
	// routePres handles a presence notification. Same locking as routeMetaSub.
	routePres(t *Topic, pres *model.MsgServerPres) actions
	// initialSet returns the parameters of the first subscribe to a new topic.
	initialSet(t *Topic) *model.MsgSetQuery
}

// actions are collected under the topic lock and run after it's released: listener
// callbacks and calls into other topics must not be made while holding the lock.
type actions []func()

func (a *actions) add(fn func()) {
	*a = append(*a, fn)
}

func (a actions) run() {
	for _, fn := range a {
		fn()
	}
}

// Topic is a conversation or a service topic such as 'me' and 'fnd'.
type Topic struct {
	client  *Client
	kind    model.TopicKind
	variant variant

	mu    sync.Mutex
	name  string
	state State
	// Settled when the subscribe request in flight is answered and processed.
	subscribing *PromisedReply
	// Number of Subscribe calls not yet matched by Leave.
	attached    int
	desc        *model.Description
	tags        []string
	aux         map[string]any
	subs        map[string]*model.Subscription
	subsUpdated *time.Time
	// Highest known delete transaction ID.
	maxDel int
	// 'me' only.
	creds        []*model.Credential
	lastKeyPress time.Time
	listener     TopicListener
}

func newTopic(c *Client, name string, state State) *Topic {
	t := &Topic{
		client: c,
		kind:   model.TopicKindOf(name),
		name:   name,
		state:  state,
		desc:   &model.Description{},
		subs:   make(map[string]*model.Subscription),
	}
	switch t.kind {
	case model.KindMe:
		t.variant = meVariant{}
	case model.KindFnd:
		t.variant = fndVariant{}
	default:
		t.variant = comVariant{}
	}
	return t
}

func newTopicFromRecord(c *Client, rec *store.TopicRecord) *Topic {
	state := StateDetached
	if rec.IsNew {
		state = StateNew
	}
	t := newTopic(c, rec.Name, state)
	if rec.Desc != nil {
		t.desc = rec.Desc
	}
	t.tags = rec.Tags
	t.aux = rec.Aux
	t.maxDel = rec.MaxDel
	t.subsUpdated = rec.SubsUpdated
	return t
}

func (t *Topic) loadSubs(subs []*model.Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range subs {
		t.subs[t.variant.subKey(sub)] = sub
	}
}

// SetListener replaces the listener of topic events.
func (t *Topic) SetListener(l *TopicListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l == nil {
		t.listener = TopicListener{}
	} else {
		t.listener = *l
	}
}

// Name returns the current name of the topic.
func (t *Topic) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// Kind returns the type of the topic.
func (t *Topic) Kind() model.TopicKind {
	return t.kind
}

// State returns the subscription state.
func (t *Topic) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsAttached checks if the topic is subscribed to.
func (t *Topic) IsAttached() bool {
	return t.State() == StateAttached
}

// IsNew checks if the topic has not been created on the server yet.
func (t *Topic) IsNew() bool {
	return t.State() == StateNew
}

// IsDeleted checks if the topic was deleted.
func (t *Topic) IsDeleted() bool {
	return t.State() == StateDeleted
}

// IsChannel checks if the topic is a channel.
func (t *Topic) IsChannel() bool {
	return model.IsChannelName(t.Name())
}

// Description returns a copy of the topic description.
func (t *Topic) Description() *model.Description {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyDesc(t.desc)
}

// Seq returns the ID of the latest message.
func (t *Topic) Seq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Seq
}

// Read returns the ID of the latest message read by the current user.
func (t *Topic) Read() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Read
}

// Recv returns the ID of the latest message received by the current user.
func (t *Topic) Recv() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Recv
}

// Clear returns the ID of the latest delete transaction.
func (t *Topic) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Clear
}

// MaxDel returns the highest known delete transaction ID.
func (t *Topic) MaxDel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxDel
}

// Unread returns the number of unread messages.
func (t *Topic) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if unread := t.desc.Seq - t.desc.Read; unread > 0 {
		return unread
	}
	return 0
}

// Online checks if the topic or the p2p peer is online.
func (t *Topic) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Online
}

// IsArchived checks if the user has archived the topic.
func (t *Topic) IsArchived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Private.IsArchived()
}

// IsMuted checks if the user has muted the topic.
func (t *Topic) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.desc.Acs != nil && t.desc.Acs.Mode.IsMuted()
}

// AccessMode returns a copy of the access mode of the current user.
func (t *Topic) AccessMode() *model.Acs {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.desc.Acs == nil {
		return nil
	}
	acs := *t.desc.Acs
	return &acs
}

// Tags returns a copy of the topic tags.
func (t *Topic) Tags() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tags...)
}

// Aux returns a copy of the auxiliary data.
func (t *Topic) Aux() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyAux(t.aux)
}

// Subscription returns a copy of the subscription with the given key: user ID, or topic name in 'me'.
func (t *Topic) Subscription(key string) *model.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[key].Copy()
}

// Subscriptions returns copies of all cached subscriptions sorted by key.
func (t *Topic) Subscriptions() []*model.Subscription {
	return t.FilteredSubscriptions(time.Time{}, model.KindAny)
}

// FilteredSubscriptions returns copies of subscriptions updated after since and keyed by
// users or topics of the given kinds. Zero since matches all.
func (t *Topic) FilteredSubscriptions(since time.Time, filter model.TopicKind) []*model.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.subs))
	for key, sub := range t.subs {
		if !since.IsZero() && (sub.Updated == nil || !sub.Updated.After(since)) {
			continue
		}
		if !model.TopicKindOf(key).Match(filter) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := make([]*model.Subscription, 0, len(keys))
	for _, key := range keys {
		list = append(list, t.subs[key].Copy())
	}
	return list
}

// MsgRecvCount returns the number of other subscribers who have received the message.
func (t *Topic) MsgRecvCount(seq int) int {
	return t.countSubs(func(sub *model.Subscription) bool { return sub.Recv >= seq })
}

// MsgReadCount returns the number of other subscribers who have read the message.
func (t *Topic) MsgReadCount(seq int) int {
	return t.countSubs(func(sub *model.Subscription) bool { return sub.Read >= seq })
}

func (t *Topic) countSubs(match func(*model.Subscription) bool) int {
	me := t.client.MyUID()
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, sub := range t.subs {
		if sub.User != me && match(sub) {
			count++
		}
	}
	return count
}

// Messages returns locally stored messages with IDs in [since, before). Zero before means no upper bound.
func (t *Topic) Messages(since, before int) ([]*store.Message, error) {
	return t.client.store.Messages(t.Name(), since, before)
}

// Subscribe attaches to the topic. Repeated subscribing without parameters only increments
// the attach count, each call must be matched with Leave.
func (t *Topic) Subscribe(set *model.MsgSetQuery, get *model.MsgGetQuery) *PromisedReply {
	t.mu.Lock()
	switch t.state {
	case StateDeleted:
		t.mu.Unlock()
		return promise.Rejected[*model.ServerComMessage](ErrDeleted)
	case StateAttaching:
		t.mu.Unlock()
		return promise.Rejected[*model.ServerComMessage](ErrInProgress)
	case StateAttached:
		if set == nil && get == nil {
			t.attached++
			t.mu.Unlock()
			return promise.Resolved[*model.ServerComMessage](nil)
		}
		t.mu.Unlock()
		return promise.Rejected[*model.ServerComMessage](ErrAlreadySubscribed)
	}

	isNew := t.state == StateNew
	prev := t.state
	t.state = StateAttaching
	inflight := promise.New[*model.ServerComMessage]()
	t.subscribing = inflight
	name := t.name
	var rec *store.TopicRecord
	if isNew {
		if set == nil {
			set = t.variant.initialSet(t)
		}
		// Saved before the round-trip so a crash leaves a recoverable topic.
		rec = t.recordLocked()
		rec.IsNew = true
	}
	t.mu.Unlock()

	if rec != nil {
		t.save(rec)
	}
	if get == nil {
		get = t.defaultGetQuery(isNew)
	}

	return t.client.subscribe(name, set, get).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			t.subscribed(msg.Ctrl, isNew)
			inflight.Resolve(msg)
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			t.subscribeFailed(err, isNew, prev)
			inflight.Reject(err)
			return nil, err
		})
}

func (t *Topic) defaultGetQuery(isNew bool) *model.MsgGetQuery {
	b := t.MetaGetBuilder()
	switch {
	case t.kind == model.KindFnd:
		return nil
	case isNew:
		b.WithDesc(nil).WithSub(nil, 0).WithTags()
	case t.kind == model.KindMe:
		b.WithLaterDesc().WithLaterSub(0).WithTags().WithCred()
	default:
		b.WithLaterDesc().WithLaterSub(0).WithLaterData(24).WithLaterDel(0).WithTags().WithAux()
	}
	return b.Build()
}

// subscribed is called when the server has accepted the subscription.
func (t *Topic) subscribed(ctrl *model.MsgServerCtrl, isNew bool) {
	var acts actions

	t.mu.Lock()
	if t.state == StateDeleted {
		t.mu.Unlock()
		return
	}
	t.state = StateAttached
	t.attached++

	oldName := t.name
	renamed := false
	if ctrl != nil {
		if isNew && ctrl.Topic != "" && ctrl.Topic != t.name && model.IsNewTopicName(t.name) {
			t.name = ctrl.Topic
			renamed = true
		}
		if acs := ctrl.AcsParam("acs"); acs != nil {
			if t.desc.Acs == nil {
				t.desc.Acs = model.NewAcs()
			}
			t.desc.Acs.Merge(acs)
		}
		if isNew && !ctrl.Timestamp.IsZero() {
			ts := ctrl.Timestamp
			t.desc.Created = &ts
			t.desc.Updated = &ts
		}
	}
	rec := t.recordLocked()
	l := t.listener
	if l.OnSubscribe != nil && ctrl != nil {
		code, text := ctrl.Code, ctrl.Text
		acts.add(func() { l.OnSubscribe(code, text) })
	}
	t.mu.Unlock()

	if renamed {
		t.client.renameTopic(oldName, t)
		if t.variant.persistent() {
			if err := t.client.store.TopicRename(oldName, rec.Name); err != nil {
				logs.Warn.Println("topic: failed to rename", oldName, rec.Name, err)
			}
		}
	}
	t.save(rec)
	acts.run()
}

// subscribeFailed is called when the subscribe request was rejected or could not be sent.
func (t *Topic) subscribeFailed(err error, isNew bool, prev State) {
	t.mu.Lock()
	if t.state != StateAttaching {
		t.mu.Unlock()
		return
	}
	name := t.name
	if isNew {
		t.state = StateDeleted
	} else {
		t.state = prev
	}
	l := t.listener
	t.mu.Unlock()

	if isNew {
		// A failed creation is not retried.
		t.client.unregisterTopic(name, t)
		if t.variant.persistent() {
			if err := t.client.store.TopicDelete(name); err != nil && !errors.Is(err, store.ErrNotFound) {
				logs.Warn.Println("topic: failed to delete", name, err)
			}
		}
	}
	if sre, ok := IsServerResponseError(err); ok && l.OnSubscribe != nil {
		l.OnSubscribe(sre.Code, sre.Text)
	}
}

// Leave detaches from the topic, or only decrements the attach count if Subscribe was called
// more than once. If unsub is true, the subscription is deleted and the topic is expunged locally.
func (t *Topic) Leave(unsub bool) *PromisedReply {
	t.mu.Lock()
	if t.state != StateAttached {
		t.mu.Unlock()
		return promise.Rejected[*model.ServerComMessage](ErrNotSubscribed)
	}
	if !unsub && t.attached > 1 {
		t.attached--
		t.mu.Unlock()
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	name := t.name
	t.mu.Unlock()

	return t.client.leave(name, unsub).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			t.topicLeft(unsub, msg.Ctrl.Code, msg.Ctrl.Text)
			if unsub {
				t.expunge()
			}
			return nil, nil
		}, nil)
}

// topicLeft marks the topic as detached.
func (t *Topic) topicLeft(unsub bool, code int, text string) {
	t.mu.Lock()
	wasAttached := t.state == StateAttached
	if wasAttached {
		t.state = StateDetached
	}
	t.attached = 0
	l := t.listener
	t.mu.Unlock()

	if wasAttached && l.OnLeave != nil {
		l.OnLeave(unsub, code, text)
	}
}

// expunge removes the topic from the client and the store.
func (t *Topic) expunge() {
	t.mu.Lock()
	t.state = StateDeleted
	t.attached = 0
	name := t.name
	t.mu.Unlock()

	t.client.unregisterTopic(name, t)
	if t.variant.persistent() {
		if err := t.client.store.TopicDelete(name); err != nil && !errors.Is(err, store.ErrNotFound) {
			logs.Warn.Println("topic: failed to delete", name, err)
		}
	}
	if me := t.client.meTopic(); me != nil && t.kind.Match(model.KindCom) {
		me.removeContact(name)
	}
}

// Publish saves the message locally then sends it to the server, subscribing first if
// necessary. If a subscribe request is already in flight, the message is sent once it succeeds.
// The content is a string, a *drafty.Document or any other JSON-serializable value.
func (t *Topic) Publish(content any, head map[string]any) *PromisedReply {
	if !t.variant.canPublish() {
		return promise.Rejected[*model.ServerComMessage](ErrOperationNotSupported)
	}
	if t.IsDeleted() {
		return promise.Rejected[*model.ServerComMessage](ErrDeleted)
	}

	if doc, ok := content.(*drafty.Document); ok && !doc.IsPlain() {
		head = copyAux(head)
		if head == nil {
			head = map[string]any{}
		}
		head["mime"] = drafty.MimeType
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return promise.Rejected[*model.ServerComMessage](err)
	}

	id, err := t.client.store.MsgSend(t.Name(), t.client.MyUID(), head, raw)
	if err != nil {
		logs.Warn.Println("topic: failed to save message", t.Name(), err)
		id = 0
	}
	return t.publishStored(id, head, content)
}

// publishStored sends a message which is already saved locally under the given id.
func (t *Topic) publishStored(id int64, head map[string]any, content any) *PromisedReply {
	st := t.client.store
	if id > 0 {
		st.MsgSyncing(t.Name(), id, true)
	}
	t.mu.Lock()
	state, inflight := t.state, t.subscribing
	t.mu.Unlock()
	switch state {
	case StateAttached:
		return t.sendPub(id, head, content)
	case StateAttaching:
		return t.sendPubAfter(inflight, id, head, content)
	}
	return t.Subscribe(nil, nil).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			return t.sendPub(id, head, content), nil
		},
		func(err error) (*PromisedReply, error) {
			if id > 0 {
				st.MsgSyncing(t.Name(), id, false)
			}
			return nil, err
		})
}

// sendPubAfter sends the message when the subscribe request in flight succeeds.
func (t *Topic) sendPubAfter(inflight *PromisedReply, id int64, head map[string]any, content any) *PromisedReply {
	result := promise.New[*model.ServerComMessage]()
	go func() {
		if _, err := inflight.Result(); err != nil {
			if id > 0 {
				t.client.store.MsgSyncing(t.Name(), id, false)
			}
			result.Reject(err)
			return
		}
		// Settled by the reply or by the disconnect.
		msg, err := t.sendPub(id, head, content).Result()
		if err != nil {
			result.Reject(err)
		} else {
			result.Resolve(msg)
		}
	}()
	return result
}

func (t *Topic) sendPub(id int64, head map[string]any, content any) *PromisedReply {
	st := t.client.store
	return t.client.publish(t.Name(), head, content).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			t.processDelivery(msg.Ctrl, id)
			return nil, nil
		},
		func(err error) (*PromisedReply, error) {
			if id > 0 {
				if _, ok := IsServerResponseError(err); ok {
					st.MsgFailed(t.Name(), id)
				} else {
					// Retried by SyncAll.
					st.MsgSyncing(t.Name(), id, false)
				}
			}
			return nil, err
		})
}

// processDelivery updates the topic when the server has accepted a message.
func (t *Topic) processDelivery(ctrl *model.MsgServerCtrl, id int64) {
	if ctrl == nil {
		return
	}
	seq := ctrl.IntParam("seq", 0)
	if seq <= 0 {
		return
	}
	ts := ctrl.Timestamp

	t.mu.Lock()
	if seq > t.desc.Seq {
		t.desc.Seq = seq
	}
	if !ts.IsZero() && (t.desc.Touched == nil || t.desc.Touched.Before(ts)) {
		t.desc.Touched = &ts
	}
	// The sender has seen its own message.
	if seq > t.desc.Recv {
		t.desc.Recv = seq
	}
	if seq > t.desc.Read {
		t.desc.Read = seq
	}
	rec := t.recordLocked()
	t.mu.Unlock()

	if id > 0 {
		if err := t.client.store.MsgDelivered(rec.Name, id, ts, seq); err != nil {
			logs.Warn.Println("topic: failed to mark delivered", rec.Name, id, err)
		}
	}
	t.save(rec)
	if me := t.client.meTopic(); me != nil && me != t {
		me.updateContact(rec.Name, func(sub *model.Subscription) bool {
			changed := higher(&sub.Seq, seq)
			changed = higher(&sub.Read, seq) || changed
			return higher(&sub.Recv, seq) || changed
		})
	}
}

// routeData handles a {data} message.
func (t *Topic) routeData(data *model.MsgServerData) {
	t.mu.Lock()
	if data.SeqId > t.desc.Seq {
		t.desc.Seq = data.SeqId
	}
	if ts := data.Timestamp; !ts.IsZero() && (t.desc.Touched == nil || t.desc.Touched.Before(ts)) {
		t.desc.Touched = &ts
	}
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	if t.variant.persistent() {
		if _, err := t.client.store.MsgReceived(data); err != nil && !errors.Is(err, store.ErrDuplicate) {
			logs.Warn.Println("topic: failed to save message", rec.Name, data.SeqId, err)
		}
		t.save(rec)
	}
	if me := t.client.meTopic(); me != nil && me != t {
		seq := data.SeqId
		me.updateContact(rec.Name, func(sub *model.Subscription) bool {
			return higher(&sub.Seq, seq)
		})
	}
	if l.OnData != nil {
		l.OnData(data)
	}
}

// routeMeta handles a {meta} message.
func (t *Topic) routeMeta(meta *model.MsgServerMeta) {
	if meta.Desc != nil {
		t.routeMetaDesc(meta.Desc)
	}
	if meta.Sub != nil {
		subs := make([]*model.Subscription, 0, len(meta.Sub))
		for i := range meta.Sub {
			subs = append(subs, model.NewSubscription(&meta.Sub[i]))
		}
		t.routeMetaSub(subs)
	}
	if meta.Del != nil {
		t.routeDel(meta.Del.DelId, meta.Del.DelSeq)
	}
	if meta.Tags != nil {
		t.routeMetaTags(meta.Tags)
	}
	if meta.Cred != nil {
		t.routeMetaCred(meta.Cred)
	}
	if meta.Aux != nil {
		t.routeMetaAux(meta.Aux)
	}

	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()
	if l.OnMeta != nil {
		l.OnMeta(meta)
	}
}

func (t *Topic) routeMetaDesc(src *model.MsgTopicDesc) {
	desc := model.NewDescription(src)

	t.mu.Lock()
	changed := t.desc.Merge(desc)
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	if !changed {
		return
	}
	t.save(rec)
	switch t.kind {
	case model.KindP2P:
		t.client.UpdateUser(rec.Name, desc.Updated, desc.Public)
	case model.KindMe:
		t.client.UpdateUser(t.client.MyUID(), desc.Updated, desc.Public)
	}
	if l.OnMetaDesc != nil {
		l.OnMetaDesc(copyDesc(rec.Desc))
	}
}

func (t *Topic) routeMetaSub(subs []*model.Subscription) {
	t.mu.Lock()
	acts, changed := t.variant.routeMetaSub(t, subs)
	for _, sub := range subs {
		if sub.Updated != nil && (t.subsUpdated == nil || t.subsUpdated.Before(*sub.Updated)) {
			ts := *sub.Updated
			t.subsUpdated = &ts
		}
	}
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	acts.run()
	if !changed {
		return
	}
	t.save(rec)
	if l.OnSubsUpdated != nil {
		l.OnSubsUpdated()
	}
}

// mergeSubsLocked merges subscriptions keyed by the variant's key into the cache.
func (t *Topic) mergeSubsLocked(subs []*model.Subscription) (actions, bool) {
	var acts actions
	changed := false
	me := t.client.MyUID()
	l := t.listener
	persist := t.variant.persistSubs()
	name := t.name
	st := t.client.store

	for _, sub := range subs {
		key := t.variant.subKey(sub)
		if key == "" {
			continue
		}
		if sub.Deleted != nil {
			if _, ok := t.subs[key]; ok {
				delete(t.subs, key)
				changed = true
				if persist {
					acts.add(func() { st.SubDelete(name, key) })
				}
			}
			continue
		}

		cached, ok := t.subs[key]
		if ok {
			if !cached.Merge(sub) {
				continue
			}
		} else {
			cached = sub
			t.subs[key] = cached
		}
		changed = true
		if sub.User != "" && sub.User == me && sub.Acs != nil {
			if t.desc.Acs == nil {
				t.desc.Acs = model.NewAcs()
			}
			t.desc.Acs.Merge(sub.Acs)
		}

		cp := cached.Copy()
		if persist {
			acts.add(func() {
				if err := st.SubUpdate(name, cp); errors.Is(err, store.ErrNotFound) {
					st.SubAdd(name, cp)
				}
			})
		}
		if cp.User != "" && cp.Public != nil {
			acts.add(func() { t.client.UpdateUser(cp.User, cp.Updated, cp.Public) })
		}
		if l.OnMetaSub != nil {
			acts.add(func() { l.OnMetaSub(cp) })
		}
	}
	return acts, changed
}

// routeDel applies a delete transaction confirmed by the server.
func (t *Topic) routeDel(clear int, ranges []model.MsgRange) {
	t.mu.Lock()
	if clear > t.maxDel {
		t.maxDel = clear
	}
	if clear > t.desc.Clear {
		t.desc.Clear = clear
	}
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	if t.variant.persistent() && len(ranges) > 0 {
		if err := t.client.store.MsgDelete(rec.Name, clear, ranges); err != nil {
			logs.Warn.Println("topic: failed to delete messages", rec.Name, err)
		}
	}
	t.save(rec)
	if l.OnDelete != nil {
		l.OnDelete(clear, ranges)
	}
}

func (t *Topic) routeMetaTags(tags []string) {
	t.mu.Lock()
	if slices.Equal(t.tags, tags) {
		t.mu.Unlock()
		return
	}
	t.tags = append([]string(nil), tags...)
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	t.save(rec)
	if l.OnMetaTags != nil {
		l.OnMetaTags(rec.Tags)
	}
}

func (t *Topic) routeMetaCred(creds []*model.Credential) {
	t.mu.Lock()
	t.creds = creds
	l := t.listener
	t.mu.Unlock()

	if l.OnCredUpdated != nil {
		l.OnCredUpdated(creds)
	}
}

func (t *Topic) routeMetaAux(aux map[string]any) {
	t.mu.Lock()
	if t.aux == nil {
		t.aux = make(map[string]any, len(aux))
	}
	changed := false
	for k, v := range aux {
		old, ok := t.aux[k]
		if model.IsNull(v) {
			if ok {
				delete(t.aux, k)
				changed = true
			}
		} else if !ok || !reflect.DeepEqual(old, v) {
			t.aux[k] = v
			changed = true
		}
	}
	if !changed {
		t.mu.Unlock()
		return
	}
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	t.save(rec)
	if l.OnMetaAux != nil {
		l.OnMetaAux(rec.Aux)
	}
}

// routePres handles a {pres} message.
func (t *Topic) routePres(pres *model.MsgServerPres) {
	t.mu.Lock()
	acts := t.variant.routePres(t, pres)
	l := t.listener
	t.mu.Unlock()

	acts.run()
	if l.OnPres != nil {
		l.OnPres(pres)
	}
}

// routeComPres is the presence handling of group and p2p topics. Called with the lock held.
func (t *Topic) routeComPres(pres *model.MsgServerPres) actions {
	var acts actions
	l := t.listener
	name := t.name
	st := t.client.store
	me := t.client.MyUID()

	switch pres.ParseWhat() {
	case model.PresOn, model.PresOff:
		online := pres.What == model.PresOn
		if sub := t.subs[pres.Src]; sub != nil {
			sub.Online = online
			if !online {
				now := time.Now()
				var ua string
				if sub.LastSeen != nil {
					ua = sub.LastSeen.UserAgent
				}
				sub.LastSeen = &model.LastSeen{When: &now, UserAgent: ua}
			}
		}
		if t.kind == model.KindP2P && (pres.Src == "" || pres.Src == name) && t.desc.Online != online {
			t.desc.Online = online
			if l.OnOnline != nil {
				acts.add(func() { l.OnOnline(online) })
			}
		}

	case model.PresUpd:
		b := t.MetaGetBuilder()
		acts.add(func() { t.GetMeta(b.WithLaterDesc().WithLaterSub(0).Build()) })

	case model.PresGone:
		acts.add(t.expunge)

	case model.PresTerm:
		acts.add(func() { t.topicLeft(false, codeTerminated, textTerminated) })

	case model.PresAcs:
		user := pres.Src
		if user == "" {
			user = me
		}
		if pres.Acs == nil {
			break
		}
		change := &model.AccessChange{Want: pres.Acs.Want, Given: pres.Acs.Given}
		sub := t.subs[user]
		if sub == nil {
			acs := model.NewAcs()
			acs.Update(change)
			if !acs.IsDefined() {
				logs.Warn.Println("topic: invalid access mode update", name, user, acs)
				break
			}
			now := time.Now()
			sub = &model.Subscription{User: user, Topic: name, Acs: acs, Updated: &now}
			if u := t.client.User(user); u != nil {
				sub.Public = u.Public.Copy()
			} else if user != me {
				acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithUserSub(user).Build()) })
			}
			t.subs[user] = sub
		} else if _, err := sub.UpdateAccessMode(change); err != nil {
			logs.Warn.Println("topic: bad access mode", name, user, err)
			break
		}
		if user == me {
			if t.desc.Acs == nil {
				t.desc.Acs = model.NewAcs()
			}
			t.desc.Acs.Update(change)
		}
		cp := sub.Copy()
		if sub.Acs.Mode == model.ModeNone {
			delete(t.subs, user)
			if t.variant.persistSubs() {
				acts.add(func() { st.SubDelete(name, user) })
			}
		} else if t.variant.persistSubs() {
			acts.add(func() {
				if err := st.SubUpdate(name, cp); errors.Is(err, store.ErrNotFound) {
					st.SubAdd(name, cp)
				}
			})
		}
		if l.OnMetaSub != nil {
			acts.add(func() { l.OnMetaSub(cp) })
		}

	case model.PresMsg:
		if pres.SeqId > t.desc.Seq {
			t.desc.Seq = pres.SeqId
			now := time.Now()
			t.desc.Touched = &now
			rec := t.recordLocked()
			acts.add(func() { t.save(rec) })
		}

	case model.PresUa:
		if sub := t.subs[pres.Src]; sub != nil {
			now := time.Now()
			sub.LastSeen = &model.LastSeen{When: &now, UserAgent: pres.UserAgent}
		}
		if t.kind == model.KindP2P {
			now := time.Now()
			t.desc.LastSeen = &model.LastSeen{When: &now, UserAgent: pres.UserAgent}
		}

	case model.PresRecv, model.PresRead:
		acts = append(acts, t.remoteSeqLocked(pres.Src, pres.What, pres.SeqId)...)

	case model.PresDel:
		if len(pres.DelSeq) > 0 {
			clear, ranges := pres.DelId, pres.DelSeq
			acts.add(func() { t.routeDel(clear, ranges) })
		} else if pres.DelId > t.maxDel {
			t.maxDel = pres.DelId
			b := t.MetaGetBuilder()
			acts.add(func() { t.GetMeta(b.WithLaterDel(0).Build()) })
		}

	case model.PresTags:
		acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithTags().Build()) })

	case model.PresAux:
		acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithAux().Build()) })

	default:
		logs.Info.Println("topic: unknown presence", name, pres.What)
	}
	return acts
}

// remoteSeqLocked updates read or recv of another subscriber.
func (t *Topic) remoteSeqLocked(user, what string, seq int) actions {
	var acts actions
	sub := t.subs[user]
	if sub == nil || seq <= 0 {
		return acts
	}
	name := t.name
	st := t.client.store
	switch what {
	case model.NoteRecv:
		if higher(&sub.Recv, seq) {
			acts.add(func() { st.MsgRecvByRemote(name, user, seq) })
		}
	case model.NoteRead:
		changed := higher(&sub.Read, seq)
		// Reading implies receiving.
		higher(&sub.Recv, seq)
		if changed {
			acts.add(func() { st.MsgReadByRemote(name, user, seq) })
		}
	}
	return acts
}

// routeInfo handles an {info} message.
func (t *Topic) routeInfo(info *model.MsgServerInfo) {
	t.mu.Lock()
	var acts actions
	if info.What != model.NoteKeyPress && !t.client.IsMe(info.From) {
		acts = t.remoteSeqLocked(info.From, info.What, info.SeqId)
	}
	l := t.listener
	t.mu.Unlock()

	acts.run()
	if l.OnInfo != nil {
		l.OnInfo(info)
	}
}

// GetMeta queries topic metadata or messages.
func (t *Topic) GetMeta(query *model.MsgGetQuery) *PromisedReply {
	if query == nil || query.What == "" {
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	return t.client.getMeta(t.Name(), query)
}

// SetMeta updates topic metadata. Parameters of a new topic are kept locally and sent with the
// first subscribe.
func (t *Topic) SetMeta(meta *model.MsgSetQuery) *PromisedReply {
	switch t.State() {
	case StateDeleted:
		return promise.Rejected[*model.ServerComMessage](ErrDeleted)
	case StateNew:
		t.update(nil, meta)
		return promise.Resolved[*model.ServerComMessage](nil)
	case StateAttached:
	default:
		return promise.Rejected[*model.ServerComMessage](ErrNotSubscribed)
	}
	return t.client.setMeta(t.Name(), meta).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			t.update(msg.Ctrl, meta)
			return nil, nil
		}, nil)
}

// update applies an accepted {set} locally.
func (t *Topic) update(ctrl *model.MsgServerCtrl, meta *model.MsgSetQuery) {
	var acts actions

	t.mu.Lock()
	l := t.listener
	descChanged := t.desc.MergeSet(meta.Desc)
	if ctrl != nil && !ctrl.Timestamp.IsZero() && descChanged {
		ts := ctrl.Timestamp
		t.desc.Updated = &ts
	}
	if meta.Sub != nil {
		me := t.client.MyUID()
		if meta.Sub.User == "" || meta.Sub.User == me {
			if meta.Sub.Mode != "" {
				if t.desc.Acs == nil {
					t.desc.Acs = model.NewAcs()
				}
				if c, _ := t.desc.Acs.Update(&model.AccessChange{Want: meta.Sub.Mode}); c {
					descChanged = true
				}
			}
		} else {
			sub := t.subs[meta.Sub.User]
			if sub == nil {
				sub = &model.Subscription{User: meta.Sub.User, Topic: t.name}
				t.subs[meta.Sub.User] = sub
			}
			if sub.MergeSet(meta.Sub) {
				cp := sub.Copy()
				name := t.name
				if t.variant.persistSubs() {
					st := t.client.store
					acts.add(func() {
						if err := st.SubUpdate(name, cp); errors.Is(err, store.ErrNotFound) {
							st.SubNew(name, cp)
						}
					})
				}
				if l.OnMetaSub != nil {
					acts.add(func() { l.OnMetaSub(cp) })
				}
			}
		}
	}
	if meta.Tags != nil {
		t.tags = append([]string(nil), meta.Tags...)
		if l.OnMetaTags != nil {
			tags := t.tags
			acts.add(func() { l.OnMetaTags(tags) })
		}
	}
	if meta.Aux != nil {
		if t.aux == nil {
			t.aux = map[string]any{}
		}
		for k, v := range meta.Aux {
			if model.IsNull(v) {
				delete(t.aux, k)
			} else {
				t.aux[k] = v
			}
		}
		if l.OnMetaAux != nil {
			aux := copyAux(t.aux)
			acts.add(func() { l.OnMetaAux(aux) })
		}
	}
	rec := t.recordLocked()
	t.mu.Unlock()

	t.save(rec)
	if descChanged && l.OnMetaDesc != nil {
		l.OnMetaDesc(copyDesc(rec.Desc))
	}
	acts.run()
}

// SetDescription updates the public and private data of the topic.
func (t *Topic) SetDescription(public *model.TheCard, private *model.PrivateType) *PromisedReply {
	desc := &model.MsgSetDesc{}
	if public != nil {
		desc.Public = public
	}
	if private != nil {
		desc.Private = private
	}
	return t.SetMeta(&model.MsgSetQuery{Desc: desc})
}

// SetSubscription changes the access mode: the want mode of the current user if user is empty,
// otherwise the given mode of the user.
func (t *Topic) SetSubscription(user, mode string) *PromisedReply {
	return t.SetMeta(&model.MsgSetQuery{Sub: &model.MsgSetSub{User: user, Mode: mode}})
}

// UpdateMode applies a delta like "+RW-P" to the access mode. Empty user means the current user.
func (t *Topic) UpdateMode(user, update string) *PromisedReply {
	var mode model.AccessMode
	t.mu.Lock()
	if user == "" || user == t.client.MyUID() {
		user = ""
		mode = model.ModeUnset
		if t.desc.Acs != nil {
			mode = t.desc.Acs.Want
		}
	} else {
		sub := t.subs[user]
		if sub == nil {
			t.mu.Unlock()
			return promise.Rejected[*model.ServerComMessage](ErrNotSubscribed)
		}
		mode = model.ModeUnset
		if sub.Acs != nil {
			mode = sub.Acs.Given
		}
	}
	t.mu.Unlock()

	if !mode.IsDefined() {
		mode = model.ModeNone
	}
	changed, err := mode.Update(update)
	if err != nil {
		return promise.Rejected[*model.ServerComMessage](err)
	}
	if !changed {
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	return t.SetSubscription(user, mode.String())
}

// Invite adds a user to the topic with the given access mode. Empty mode means the default.
func (t *Topic) Invite(user, mode string) *PromisedReply {
	if t.IsNew() {
		return promise.Rejected[*model.ServerComMessage](ErrNotSynchronized)
	}
	return t.SetSubscription(user, mode)
}

// Eject removes the user from the topic. If ban is true, the user cannot rejoin.
func (t *Topic) Eject(user string, ban bool) *PromisedReply {
	if t.IsNew() {
		return promise.Rejected[*model.ServerComMessage](ErrNotSynchronized)
	}
	if ban {
		return t.SetSubscription(user, model.ModeNone.String())
	}
	return t.client.delSubscription(t.Name(), user).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			t.mu.Lock()
			delete(t.subs, user)
			name := t.name
			l := t.listener
			t.mu.Unlock()

			if t.variant.persistSubs() {
				t.client.store.SubDelete(name, user)
			}
			if l.OnSubsUpdated != nil {
				l.OnSubsUpdated()
			}
			return nil, nil
		}, nil)
}

// SetTags replaces the tags of the topic. Empty tags clear them.
func (t *Topic) SetTags(tags []string) *PromisedReply {
	meta := &model.MsgSetQuery{}
	if len(tags) == 0 {
		meta.ClearTags()
		meta.Tags = []string{}
	} else {
		meta.Tags = tags
	}
	return t.SetMeta(meta)
}

// SetAux updates the auxiliary data. A model.NullValue value deletes the key.
func (t *Topic) SetAux(aux map[string]any) *PromisedReply {
	return t.SetMeta(&model.MsgSetQuery{Aux: aux})
}

// Pinned returns IDs of pinned messages.
func (t *Topic) Pinned() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pinsOf(t.aux)
}

// Pin pins or unpins the message.
func (t *Topic) Pin(seq int, pin bool) *PromisedReply {
	pins := t.Pinned()
	idx := -1
	for i, p := range pins {
		if p == seq {
			idx = i
			break
		}
	}
	switch {
	case pin && idx < 0:
		pins = append([]int{seq}, pins...)
	case !pin && idx >= 0:
		pins = append(pins[:idx], pins[idx+1:]...)
	default:
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	var val any = pins
	if len(pins) == 0 {
		val = model.NullValue
	}
	return t.SetAux(map[string]any{"pins": val})
}

func pinsOf(aux map[string]any) []int {
	var pins []int
	switch v := aux["pins"].(type) {
	case []int:
		pins = append(pins, v...)
	case []any:
		for _, p := range v {
			if f, ok := p.(float64); ok {
				pins = append(pins, int(f))
			}
		}
	}
	return pins
}

// DelMessages deletes messages in the ranges. When detached, the deletion is saved locally and
// sent by SyncAll.
func (t *Topic) DelMessages(ranges []model.MsgRange, hard bool) *PromisedReply {
	name := t.Name()
	if err := t.client.store.MsgMarkToDelete(name, ranges, hard); err != nil {
		logs.Warn.Println("topic: failed to mark for deletion", name, err)
	}
	switch t.State() {
	case StateAttached:
	case StateDeleted:
		return promise.Rejected[*model.ServerComMessage](ErrDeleted)
	default:
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	return t.sendDel(ranges, hard)
}

func (t *Topic) sendDel(ranges []model.MsgRange, hard bool) *PromisedReply {
	return t.client.delMessage(t.Name(), ranges, hard).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			if msg.Ctrl != nil {
				t.routeDel(msg.Ctrl.IntParam("del", 0), ranges)
			}
			return nil, nil
		}, nil)
}

// DelMessage deletes a single message.
func (t *Topic) DelMessage(seq int, hard bool) *PromisedReply {
	return t.DelMessages([]model.MsgRange{{Low: seq}}, hard)
}

// DelMessagesAll deletes all messages.
func (t *Topic) DelMessagesAll(hard bool) *PromisedReply {
	return t.DelMessages([]model.MsgRange{{Low: 1, Hi: t.Seq() + 1}}, hard)
}

// Delete deletes the topic. A new topic is only deleted locally.
func (t *Topic) Delete(hard bool) *PromisedReply {
	switch t.State() {
	case StateDeleted:
		return promise.Rejected[*model.ServerComMessage](ErrDeleted)
	case StateNew:
		t.expunge()
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	return t.client.delTopic(t.Name(), hard).ThenApply(
		func(msg *model.ServerComMessage) (*PromisedReply, error) {
			t.topicLeft(true, msg.Ctrl.Code, msg.Ctrl.Text)
			t.expunge()
			return nil, nil
		}, nil)
}

// NoteRead reports the message as read. Zero seq means the latest message.
func (t *Topic) NoteRead(seq int) {
	t.noteReadRecv(model.NoteRead, seq)
}

// NoteRecv reports the message as received. Zero seq means the latest message.
func (t *Topic) NoteRecv(seq int) {
	t.noteReadRecv(model.NoteRecv, seq)
}

func (t *Topic) noteReadRecv(what string, seq int) {
	t.mu.Lock()
	if seq <= 0 {
		seq = t.desc.Seq
	}
	var changed bool
	if what == model.NoteRead {
		changed = higher(&t.desc.Read, seq)
		higher(&t.desc.Recv, seq)
	} else {
		changed = higher(&t.desc.Recv, seq)
	}
	name := t.name
	attached := t.state == StateAttached
	persist := t.variant.persistent()
	t.mu.Unlock()

	if !changed {
		return
	}
	if persist {
		st := t.client.store
		if what == model.NoteRead {
			st.SetRead(name, seq)
		}
		st.SetRecv(name, seq)
	}
	if attached {
		t.client.note(name, what, seq)
	}
	if me := t.client.meTopic(); me != nil && me != t {
		me.updateContact(name, func(sub *model.Subscription) bool {
			if what == model.NoteRead {
				return higher(&sub.Read, seq)
			}
			return higher(&sub.Recv, seq)
		})
	}
}

// NoteKeyPress sends a typing notification. Notifications are throttled.
func (t *Topic) NoteKeyPress() {
	now := time.Now()
	t.mu.Lock()
	if t.state != StateAttached || now.Sub(t.lastKeyPress) < t.client.config.keyPressDelay() {
		t.mu.Unlock()
		return
	}
	t.lastKeyPress = now
	name := t.name
	t.mu.Unlock()

	t.client.note(name, model.NoteKeyPress, 0)
}

// SyncAll sends messages and deletions saved while the topic was detached.
func (t *Topic) SyncAll() *promise.PromisedReply[[]*model.ServerComMessage] {
	st := t.client.store
	name := t.Name()

	var pending []*PromisedReply
	queued, err := st.QueuedMessages(name)
	if err != nil {
		return promise.Rejected[[]*model.ServerComMessage](err)
	}
	for _, msg := range queued {
		var content any = msg.Content
		if mime, _ := msg.Head["mime"].(string); mime == drafty.MimeType {
			if doc, err := drafty.Decode(msg.Content); err == nil {
				content = doc
			}
		}
		pending = append(pending, t.publishStored(msg.Id, msg.Head, content))
	}

	if t.IsAttached() {
		for _, hard := range []bool{false, true} {
			ranges, err := st.QueuedMessageDeletes(name, hard)
			if err != nil || len(ranges) == 0 {
				continue
			}
			pending = append(pending, t.sendDel(ranges, hard))
		}
	}
	return promise.AllOf(pending...)
}

// MetaGetBuilder returns a builder of metadata queries relative to the cached state.
func (t *Topic) MetaGetBuilder() *MetaGetBuilder {
	return &MetaGetBuilder{topic: t}
}

// recordLocked makes a copy of the topic state for the store.
func (t *Topic) recordLocked() *store.TopicRecord {
	rec := &store.TopicRecord{
		Name:   t.name,
		Desc:   copyDesc(t.desc),
		Tags:   append([]string(nil), t.tags...),
		Aux:    copyAux(t.aux),
		MaxDel: t.maxDel,
		IsNew:  t.state == StateNew,
	}
	if t.subsUpdated != nil {
		ts := *t.subsUpdated
		rec.SubsUpdated = &ts
	}
	return rec
}

// save writes the record to the store, adding it if necessary.
func (t *Topic) save(rec *store.TopicRecord) {
	if !t.variant.persistent() {
		return
	}
	st := t.client.store
	err := st.TopicUpdate(rec)
	if errors.Is(err, store.ErrNotFound) {
		_, err = st.TopicAdd(rec)
	}
	if err != nil {
		logs.Warn.Println("topic: failed to save", rec.Name, err)
	}
}

func copyDesc(d *model.Description) *model.Description {
	if d == nil {
		return nil
	}
	dst := &model.Description{Online: d.Online}
	dst.Merge(d)
	return dst
}

func copyAux(aux map[string]any) map[string]any {
	if aux == nil {
		return nil
	}
	dst := make(map[string]any, len(aux))
	for k, v := range aux {
		dst[k] = v
	}
	return dst
}

func higher(dst *int, val int) bool {
	if val > *dst {
		*dst = val
		return true
	}
	return false
}
