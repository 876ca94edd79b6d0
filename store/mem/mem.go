// Package mem is an in-memory storage adapter. It keeps the data for the lifetime of the process.
package mem

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/store"
)

const adapterName = "mem"

type subRecord struct {
	sub *model.Subscription
	// Subscription created locally and not confirmed by the server.
	pending bool
}

type adapter struct {
	mu sync.Mutex

	open        bool
	myUid       string
	deviceToken string
	timeAdjust  time.Duration

	lastId int64

	topics   map[string]*store.TopicRecord
	subs     map[string]map[string]*subRecord
	users    map[string]*store.User
	messages map[int64]*store.Message
	dellog   []store.DelLogEntry
}

// New creates an open in-memory adapter.
func New() store.Adapter {
	a := &adapter{}
	a.Open(nil)
	return a
}

func init() {
	store.RegisterAdapter(adapterName, func() store.Adapter { return &adapter{} })
}

// clone makes a deep copy so the caller and the store never share mutable state.
func clone[T any](src *T) *T {
	if src == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return nil
	}
	dst := new(T)
	if err := json.Unmarshal(data, dst); err != nil {
		return nil
	}
	return dst
}

func (a *adapter) reset() {
	a.topics = make(map[string]*store.TopicRecord)
	a.subs = make(map[string]map[string]*subRecord)
	a.users = make(map[string]*store.User)
	a.messages = make(map[int64]*store.Message)
	a.dellog = nil
}

func (a *adapter) nextId() int64 {
	a.lastId++
	return a.lastId
}

func (a *adapter) now() time.Time {
	return time.Now().Add(a.timeAdjust).UTC().Round(time.Millisecond)
}

// Open initializes the adapter. The config is ignored.
func (a *adapter) Open(json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reset()
	a.open = true
	return nil
}

// Close drops all the data.
func (a *adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reset()
	a.open = false
	return nil
}

func (a *adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *adapter) GetName() string {
	return adapterName
}

func (a *adapter) MyUid() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.myUid
}

func (a *adapter) SetMyUid(uid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.myUid != uid {
		// Different user, the cached data is not valid anymore.
		a.reset()
		a.myUid = uid
	}
	return nil
}

func (a *adapter) DeviceToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceToken
}

func (a *adapter) SetDeviceToken(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deviceToken = token
	return nil
}

func (a *adapter) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.myUid = ""
	a.deviceToken = ""
	a.reset()
	return nil
}

func (a *adapter) SetTimeAdjustment(adj time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeAdjust = adj
	return nil
}

func (a *adapter) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open && a.myUid != ""
}

// Topics

func (a *adapter) TopicGetAll() ([]*store.TopicRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]*store.TopicRecord, 0, len(a.topics))
	for _, t := range a.topics {
		all = append(all, clone(t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })
	return all, nil
}

func (a *adapter) TopicAdd(topic *store.TopicRecord) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.topics[topic.Name]; ok {
		return 0, store.ErrDuplicate
	}
	t := clone(topic)
	t.Id = a.nextId()
	a.topics[t.Name] = t
	return t.Id, nil
}

func (a *adapter) TopicUpdate(topic *store.TopicRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, ok := a.topics[topic.Name]
	if !ok {
		return store.ErrNotFound
	}
	t := clone(topic)
	t.Id = old.Id
	a.topics[t.Name] = t
	return nil
}

func (a *adapter) TopicDelete(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.topics[name]; !ok {
		return store.ErrNotFound
	}
	delete(a.topics, name)
	delete(a.subs, name)
	for id, m := range a.messages {
		if m.Topic == name {
			delete(a.messages, id)
		}
	}
	log := a.dellog[:0]
	for _, e := range a.dellog {
		if e.Topic != name {
			log = append(log, e)
		}
	}
	a.dellog = log
	return nil
}

func (a *adapter) TopicRename(oldName, newName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.topics[oldName]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := a.topics[newName]; ok {
		return store.ErrDuplicate
	}
	delete(a.topics, oldName)
	t.Name = newName
	t.IsNew = false
	a.topics[newName] = t

	if subs, ok := a.subs[oldName]; ok {
		delete(a.subs, oldName)
		a.subs[newName] = subs
	}
	for _, m := range a.messages {
		if m.Topic == oldName {
			m.Topic = newName
		}
	}
	return nil
}

func (a *adapter) CachedMessagesRange(topic string) (model.MsgRange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var min, max int
	for _, m := range a.messages {
		if m.Topic != topic || m.Seq <= 0 {
			continue
		}
		if min == 0 || m.Seq < min {
			min = m.Seq
		}
		if m.Seq > max {
			max = m.Seq
		}
	}
	if min == 0 {
		return model.MsgRange{}, nil
	}
	return model.MsgRange{Low: min, Hi: max + 1}, nil
}

func (a *adapter) SetRead(topic string, read int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.topics[topic]
	if !ok {
		return store.ErrNotFound
	}
	if t.Desc == nil {
		t.Desc = &model.Description{}
	}
	if read > t.Desc.Read {
		t.Desc.Read = read
	}
	return nil
}

func (a *adapter) SetRecv(topic string, recv int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.topics[topic]
	if !ok {
		return store.ErrNotFound
	}
	if t.Desc == nil {
		t.Desc = &model.Description{}
	}
	if recv > t.Desc.Recv {
		t.Desc.Recv = recv
	}
	return nil
}

// Subscriptions

func (a *adapter) addSub(topic string, sub *model.Subscription, pending bool) (int64, error) {
	subs := a.subs[topic]
	if subs == nil {
		subs = make(map[string]*subRecord)
		a.subs[topic] = subs
	}
	if _, ok := subs[sub.User]; ok {
		return 0, store.ErrDuplicate
	}
	subs[sub.User] = &subRecord{sub: clone(sub), pending: pending}
	return a.nextId(), nil
}

func (a *adapter) SubAdd(topic string, sub *model.Subscription) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addSub(topic, sub, false)
}

func (a *adapter) SubNew(topic string, sub *model.Subscription) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addSub(topic, sub, true)
}

func (a *adapter) SubUpdate(topic string, sub *model.Subscription) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.subs[topic][sub.User]
	if !ok {
		return store.ErrNotFound
	}
	rec.sub = clone(sub)
	rec.pending = false
	return nil
}

func (a *adapter) SubDelete(topic, user string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.subs[topic][user]; !ok {
		return store.ErrNotFound
	}
	delete(a.subs[topic], user)
	return nil
}

func (a *adapter) Subscriptions(topic string) ([]*model.Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	subs := a.subs[topic]
	all := make([]*model.Subscription, 0, len(subs))
	for _, rec := range subs {
		all = append(all, clone(rec.sub))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].User < all[j].User })
	return all, nil
}

// Users

func (a *adapter) UserGet(uid string) (*store.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(u), nil
}

func (a *adapter) UserAdd(user *store.User) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[user.Uid]; ok {
		return 0, store.ErrDuplicate
	}
	u := clone(user)
	u.Id = a.nextId()
	a.users[u.Uid] = u
	return u.Id, nil
}

func (a *adapter) UserUpdate(user *store.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, ok := a.users[user.Uid]
	if !ok {
		return store.ErrNotFound
	}
	u := clone(user)
	u.Id = old.Id
	a.users[u.Uid] = u
	return nil
}

// Messages

func (a *adapter) MsgReceived(msg *model.MsgServerData) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, m := range a.messages {
		if m.Topic == msg.Topic && m.Seq == msg.SeqId {
			return m.Id, store.ErrDuplicate
		}
	}
	m := &store.Message{
		Id:      a.nextId(),
		Topic:   msg.Topic,
		From:    msg.From,
		Ts:      msg.Timestamp,
		Seq:     msg.SeqId,
		Status:  store.StatusSynced,
		Head:    msg.Head,
		Content: append(json.RawMessage(nil), msg.Content...),
	}
	a.messages[m.Id] = m
	return m.Id, nil
}

func (a *adapter) insertLocal(topic, from string, head map[string]any, content json.RawMessage, status store.MsgStatus) int64 {
	m := &store.Message{
		Id:      a.nextId(),
		Topic:   topic,
		From:    from,
		Ts:      a.now(),
		Status:  status,
		Head:    head,
		Content: append(json.RawMessage(nil), content...),
	}
	a.messages[m.Id] = m
	return m.Id
}

func (a *adapter) MsgSend(topic, from string, head map[string]any, content json.RawMessage) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocal(topic, from, head, content, store.StatusQueued), nil
}

func (a *adapter) MsgDraft(topic, from string, head map[string]any, content json.RawMessage) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocal(topic, from, head, content, store.StatusDraft), nil
}

// message returns a message of the given topic or nil.
func (a *adapter) message(topic string, id int64) *store.Message {
	m, ok := a.messages[id]
	if !ok || m.Topic != topic {
		return nil
	}
	return m
}

func (a *adapter) MsgDraftUpdate(topic string, id int64, content json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil || m.Status != store.StatusDraft {
		return store.ErrNotFound
	}
	m.Content = append(json.RawMessage(nil), content...)
	return nil
}

func (a *adapter) MsgReady(topic string, id int64, content json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil || m.Status != store.StatusDraft {
		return store.ErrNotFound
	}
	if content != nil {
		m.Content = append(json.RawMessage(nil), content...)
	}
	m.Status = store.StatusQueued
	return nil
}

func (a *adapter) MsgDiscard(topic string, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil || m.Seq > 0 {
		return store.ErrNotFound
	}
	delete(a.messages, id)
	return nil
}

func (a *adapter) MsgSyncing(topic string, id int64, sync bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil {
		return store.ErrNotFound
	}
	if sync && m.Status == store.StatusQueued {
		m.Status = store.StatusSending
	} else if !sync && m.Status == store.StatusSending {
		m.Status = store.StatusQueued
	}
	return nil
}

func (a *adapter) MsgFailed(topic string, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil {
		return store.ErrNotFound
	}
	if m.Status != store.StatusSynced {
		m.Status = store.StatusFailed
	}
	return nil
}

func (a *adapter) MsgDelivered(topic string, id int64, ts time.Time, seq int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.message(topic, id)
	if m == nil {
		return store.ErrNotFound
	}
	m.Status = store.StatusSynced
	m.Ts = ts
	m.Seq = seq
	return nil
}

func inRanges(seq int, ranges []model.MsgRange) bool {
	for _, r := range ranges {
		if r.Contains(seq) {
			return true
		}
	}
	return false
}

func (a *adapter) MsgMarkToDelete(topic string, ranges []model.MsgRange, hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := store.StatusDeletedSoft
	if hard {
		status = store.StatusDeletedHard
	}
	for _, m := range a.messages {
		if m.Topic == topic && m.Seq > 0 && m.Status == store.StatusSynced && inRanges(m.Seq, ranges) {
			m.Status = status
		}
	}
	return nil
}

func (a *adapter) MsgDelete(topic string, delId int, ranges []model.MsgRange) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, m := range a.messages {
		if m.Topic == topic && m.Seq > 0 && inRanges(m.Seq, ranges) {
			delete(a.messages, id)
		}
	}
	if delId > 0 {
		for _, r := range model.Collapse(append([]model.MsgRange(nil), ranges...)) {
			a.dellog = append(a.dellog, store.DelLogEntry{Topic: topic, DelId: delId, Low: r.Low, Hi: r.Upper()})
		}
		if t, ok := a.topics[topic]; ok && delId > t.MaxDel {
			t.MaxDel = delId
		}
	}
	return nil
}

func (a *adapter) MsgRecvByRemote(topic, user string, recv int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.subs[topic][user]
	if !ok {
		return store.ErrNotFound
	}
	if recv > rec.sub.Recv {
		rec.sub.Recv = recv
	}
	return nil
}

func (a *adapter) MsgReadByRemote(topic, user string, read int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.subs[topic][user]
	if !ok {
		return store.ErrNotFound
	}
	if read > rec.sub.Read {
		rec.sub.Read = read
	}
	return nil
}

func (a *adapter) MessageByID(id int64) (*store.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(m), nil
}

func (a *adapter) Messages(topic string, since, before int) ([]*store.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var all []*store.Message
	for _, m := range a.messages {
		if m.Topic == topic && m.Seq >= since && m.Seq > 0 && (before <= 0 || m.Seq < before) {
			all = append(all, clone(m))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all, nil
}

func (a *adapter) QueuedMessages(topic string) ([]*store.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var all []*store.Message
	for _, m := range a.messages {
		if m.Topic == topic && m.Status == store.StatusQueued {
			all = append(all, clone(m))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })
	return all, nil
}

func (a *adapter) QueuedMessageDeletes(topic string, hard bool) ([]model.MsgRange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := store.StatusDeletedSoft
	if hard {
		status = store.StatusDeletedHard
	}
	var list []int
	for _, m := range a.messages {
		if m.Topic == topic && m.Status == status {
			list = append(list, m.Seq)
		}
	}
	return model.ListToRanges(list), nil
}

func (a *adapter) DelLog(topic string) ([]store.DelLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var log []store.DelLogEntry
	for _, e := range a.dellog {
		if e.Topic == topic {
			log = append(log, e)
		}
	}
	return log, nil
}
