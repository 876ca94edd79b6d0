package tinode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/tinode/tinodesdk/drafty"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/store"
	"github.com/tinode/tinodesdk/store/mock_store"
)

// signal returns a callback which reports calls to the channel.
func signal[T any](ch chan T) func(T) {
	return func(v T) { ch <- v }
}

func waitChan[T any](t *testing.T, ch chan T, what string) T {
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

// attach subscribes to the topic and answers the {sub} with the given params.
func attach(t *testing.T, s *testServer, topic *Topic, params map[string]any) {
	t.Helper()
	p := topic.Subscribe(nil, nil)
	msg := s.recv()
	if msg.Sub == nil {
		t.Fatalf("expected {sub}, got %+v", msg)
	}
	s.ctrl(msg.Sub.Id, msg.Sub.Topic, http.StatusOK, params)
	mustWait(t, p)
}

func TestNewTopicRenamedOnSubscribe(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	subscribed := make(chan int, 1)
	topic := c.NewGroupTopic(false, &TopicListener{
		OnSubscribe: func(code int, text string) { subscribed <- code },
	})
	oldName := topic.Name()
	if !strings.HasPrefix(oldName, model.TopicNew) || !topic.IsNew() {
		t.Fatalf("new topic %q state %v", oldName, topic.State())
	}
	// Kept locally until the topic is created.
	mustWait(t, topic.SetDescription(model.NewCard("Travel", "", ""), nil))
	mustWait(t, topic.SetTags([]string{"travel"}))

	p := topic.Subscribe(nil, nil)
	msg := s.recv()
	if msg.Sub.Topic != oldName {
		t.Errorf("sub topic = %q, want %q", msg.Sub.Topic, oldName)
	}
	if msg.Sub.Set == nil || msg.Sub.Set.Desc == nil || msg.Sub.Set.Desc.Public == nil {
		t.Fatalf("initial set = %+v", msg.Sub.Set)
	}
	if pub, _ := msg.Sub.Set.Desc.Public.(map[string]any); pub["fn"] != "Travel" {
		t.Errorf("public = %v", msg.Sub.Set.Desc.Public)
	}
	if diff := cmp.Diff([]string{"travel"}, msg.Sub.Set.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if msg.Sub.Get == nil || msg.Sub.Get.What != "desc sub tags" {
		t.Errorf("get = %+v", msg.Sub.Get)
	}

	s.ctrl(msg.Sub.Id, "grpJ3xQ2uRfjak", http.StatusOK, map[string]any{
		"acs": map[string]any{"want": "JRWPASDO", "given": "JRWPASDO", "mode": "JRWPASDO"},
	})
	mustWait(t, p)

	if code := waitChan(t, subscribed, "OnSubscribe"); code != http.StatusOK {
		t.Errorf("OnSubscribe code = %d", code)
	}
	if topic.Name() != "grpJ3xQ2uRfjak" || !topic.IsAttached() {
		t.Errorf("topic %q state %v", topic.Name(), topic.State())
	}
	if c.GetTopic("grpJ3xQ2uRfjak") != topic {
		t.Error("topic not indexed under the new name")
	}
	if c.GetTopic(oldName) != nil {
		t.Error("topic still indexed under the old name")
	}
	if acs := topic.AccessMode(); acs == nil || !acs.Mode.IsOwner() {
		t.Errorf("acs = %v", acs)
	}

	records, err := c.Store().TopicGetAll()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, rec := range records {
		if rec.Name == "grpJ3xQ2uRfjak" && rec.IsNew {
			t.Error("stored topic is still new")
		}
		names = append(names, rec.Name)
	}
	for _, name := range names {
		if name == oldName {
			t.Errorf("old name %q is still stored: %v", oldName, names)
		}
	}

	// Published under the new name.
	pub := topic.Publish("hello", nil)
	msg = s.recv()
	if msg.Pub == nil || msg.Pub.Topic != "grpJ3xQ2uRfjak" {
		t.Fatalf("pub = %+v", msg.Pub)
	}
	s.ctrl(msg.Pub.Id, "grpJ3xQ2uRfjak", http.StatusAccepted, map[string]any{"seq": 1})
	mustWait(t, pub)
}

func TestNewTopicFailedSubscribe(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewGroupTopic(true, nil)
	name := topic.Name()
	if !topic.IsChannel() {
		t.Errorf("%q is not a channel", name)
	}

	p := topic.Subscribe(nil, nil)
	msg := s.recv()
	s.ctrl(msg.Sub.Id, name, http.StatusForbidden, nil)

	_, err := wait(t, p)
	if sre, ok := IsServerResponseError(err); !ok || sre.Code != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
	if !topic.IsDeleted() {
		t.Errorf("state = %v, want deleted", topic.State())
	}
	if c.GetTopic(name) != nil {
		t.Error("failed topic is still registered")
	}
	if records, _ := c.Store().TopicGetAll(); len(records) != 0 {
		t.Errorf("stored topics = %d", len(records))
	}
	if _, err := wait(t, topic.Subscribe(nil, nil)); !errors.Is(err, ErrDeleted) {
		t.Errorf("resubscribe err = %v, want ErrDeleted", err)
	}
}

func TestPublishDetachedSubscribeFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mock_store.NewMockStorage(ctrl)
	st.EXPECT().MyUid().Return("").AnyTimes()
	st.EXPECT().DeviceToken().Return("").AnyTimes()
	st.EXPECT().CachedMessagesRange("grpTest").Return(model.MsgRange{}, nil).AnyTimes()
	gomock.InOrder(
		st.EXPECT().MsgSend("grpTest", "", gomock.Nil(), json.RawMessage(`"hello"`)).Return(int64(7), nil),
		st.EXPECT().MsgSyncing("grpTest", int64(7), true).Return(nil),
		st.EXPECT().MsgSyncing("grpTest", int64(7), false).Return(nil),
	)

	c, s := newTestClient(t, Options{Store: st})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	p := topic.Publish("hello", nil)
	msg := s.recv()
	if msg.Sub == nil || msg.Sub.Topic != "grpTest" {
		t.Fatalf("expected {sub}, got %+v", msg)
	}
	s.ctrl(msg.Sub.Id, "grpTest", http.StatusForbidden, nil)

	_, err := wait(t, p)
	sre, ok := IsServerResponseError(err)
	if !ok || sre.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
	s.expectNothing()
	if topic.State() != StateDetached {
		t.Errorf("state = %v", topic.State())
	}
}

func TestPublishDelivered(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	topic := c.NewTopic("grpTest", nil)
	attach(t, s, topic, nil)

	doc := drafty.Parse("*bold* move")
	p := topic.Publish(doc, nil)
	msg := s.recv()
	if msg.Pub == nil || !msg.Pub.NoEcho {
		t.Fatalf("pub = %+v", msg.Pub)
	}
	if msg.Pub.Head["mime"] != drafty.MimeType {
		t.Errorf("head = %v", msg.Pub.Head)
	}

	queued, err := c.Store().QueuedMessages("grpTest")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 0 {
		t.Errorf("message must be in sending state, got %d queued", len(queued))
	}

	s.ctrl(msg.Pub.Id, "grpTest", http.StatusAccepted, map[string]any{"seq": 5})
	mustWait(t, p)

	if topic.Seq() != 5 || topic.Read() != 5 || topic.Recv() != 5 || topic.Unread() != 0 {
		t.Errorf("seq %d read %d recv %d", topic.Seq(), topic.Read(), topic.Recv())
	}
	msgs, err := topic.Messages(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Seq != 5 || msgs[0].Status != store.StatusSynced || msgs[0].From != "usrAlice" {
		t.Fatalf("stored = %+v", msgs)
	}
	var content drafty.Document
	if err := json.Unmarshal(msgs[0].Content, &content); err != nil {
		t.Fatal(err)
	}
	if content.PlainText() != doc.PlainText() {
		t.Errorf("content = %q", content.PlainText())
	}
}

func TestPublishRejectedMarksFailed(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	attach(t, s, topic, nil)

	p := topic.Publish("spam", nil)
	msg := s.recv()
	s.ctrl(msg.Pub.Id, "grpTest", http.StatusForbidden, nil)
	if _, err := wait(t, p); err == nil {
		t.Fatal("publish must fail")
	}
	if queued, _ := c.Store().QueuedMessages("grpTest"); len(queued) != 0 {
		t.Errorf("failed message must not be retried, %d queued", len(queued))
	}

	// A message which could not be sent is retried by SyncAll.
	s.close()
	eventually(t, "detach", func() bool { return !topic.IsAttached() })
	if _, err := wait(t, topic.Publish("later", nil)); err == nil {
		t.Fatal("publish while disconnected must fail")
	}
	queued, _ := c.Store().QueuedMessages("grpTest")
	if len(queued) != 1 || string(queued[0].Content) != `"later"` {
		t.Errorf("queued = %+v", queued)
	}
}

func TestPublishWhileSubscribing(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	sub := topic.Subscribe(nil, nil)
	msg := s.recv()

	pub := topic.Publish("hello", nil)
	// Nothing is sent until the subscription is confirmed.
	s.expectNothing()
	if pub.IsDone() {
		t.Fatal("publish settled before the subscription")
	}

	s.ctrl(msg.Sub.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, sub)
	msg = s.recv()
	if msg.Pub == nil || msg.Pub.Topic != "grpTest" {
		t.Fatalf("expected {pub}, got %+v", msg)
	}
	s.ctrl(msg.Pub.Id, "grpTest", http.StatusAccepted, map[string]any{"seq": 3})
	mustWait(t, pub)
	if topic.Seq() != 3 {
		t.Errorf("seq = %d", topic.Seq())
	}

	// The message stays queued when the subscription in flight fails.
	other := c.NewTopic("grpOther", nil)
	sub = other.Subscribe(nil, nil)
	msg = s.recv()
	pub = other.Publish("lost", nil)
	s.ctrl(msg.Sub.Id, "grpOther", http.StatusForbidden, nil)
	_, err := wait(t, pub)
	if sre, ok := IsServerResponseError(err); !ok || sre.Code != http.StatusForbidden {
		t.Errorf("err = %v, want 403", err)
	}
	s.expectNothing()
	queued, _ := c.Store().QueuedMessages("grpOther")
	if len(queued) != 1 || string(queued[0].Content) != `"lost"` {
		t.Errorf("queued = %+v", queued)
	}
}

// eventually polls the condition until it holds or the test times out.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeLeaveCounting(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	attach(t, s, topic, nil)

	if msg := mustWait(t, topic.Subscribe(nil, nil)); msg != nil {
		t.Errorf("repeated subscribe = %+v", msg)
	}
	s.expectNothing()
	if _, err := wait(t, topic.Subscribe(nil, topic.MetaGetBuilder().WithDesc(nil).Build())); !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("subscribe with params err = %v", err)
	}

	mustWait(t, topic.Leave(false))
	s.expectNothing()
	if !topic.IsAttached() {
		t.Fatal("detached after the first leave")
	}

	p := topic.Leave(false)
	msg := s.recv()
	if msg.Leave == nil || msg.Leave.Unsub {
		t.Fatalf("leave = %+v", msg.Leave)
	}
	s.ctrl(msg.Leave.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, p)
	if topic.State() != StateDetached {
		t.Errorf("state = %v", topic.State())
	}
	if _, err := wait(t, topic.Leave(false)); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("leave detached err = %v", err)
	}
}

func TestSubscribeInProgress(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	first := topic.Subscribe(nil, nil)
	msg := s.recv()
	if topic.State() != StateAttaching {
		t.Errorf("state = %v", topic.State())
	}
	if _, err := wait(t, topic.Subscribe(nil, nil)); !errors.Is(err, ErrInProgress) {
		t.Errorf("err = %v, want ErrInProgress", err)
	}
	s.ctrl(msg.Sub.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, first)
}

func TestLeaveUnsubExpunges(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	attach(t, s, topic, nil)

	p := topic.Leave(true)
	msg := s.recv()
	if !msg.Leave.Unsub {
		t.Error("unsub not set")
	}
	s.ctrl(msg.Leave.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, p)

	if c.GetTopic("grpTest") != nil || !topic.IsDeleted() {
		t.Error("topic not expunged")
	}
	if records, _ := c.Store().TopicGetAll(); len(records) != 0 {
		t.Errorf("stored topics = %d", len(records))
	}
}

func TestDataSeqMonotonic(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	received := make(chan *model.MsgServerData, 4)
	topic := c.NewTopic("grpTest", &TopicListener{OnData: signal(received)})
	attach(t, s, topic, nil)

	for _, seq := range []int{5, 3, 5} {
		s.send(&model.ServerComMessage{Data: &model.MsgServerData{
			Topic:     "grpTest",
			From:      "usrBob",
			Timestamp: time.Now().UTC(),
			SeqId:     seq,
			Content:   json.RawMessage(`"hi"`),
		}})
		waitChan(t, received, "OnData")
	}

	if topic.Seq() != 5 {
		t.Errorf("seq = %d, want 5", topic.Seq())
	}
	if topic.Unread() != 5 {
		t.Errorf("unread = %d", topic.Unread())
	}
	msgs, _ := topic.Messages(0, 0)
	if len(msgs) != 2 {
		t.Errorf("stored %d messages, want 2", len(msgs))
	}
	r, _ := c.Store().CachedMessagesRange("grpTest")
	if diff := cmp.Diff(model.MsgRange{Low: 3, Hi: 6}, r); diff != "" {
		t.Errorf("cached range (-want +got):\n%s", diff)
	}
}

func TestPresAcs(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	pres := make(chan *model.MsgServerPres, 4)
	topic := c.NewTopic("grpTest", &TopicListener{OnPres: signal(pres)})
	attach(t, s, topic, nil)

	acs := func(src, want, given string) {
		t.Helper()
		s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{
			Topic: "grpTest",
			Src:   src,
			What:  model.PresAcs,
			Acs:   &model.MsgAccessMode{Want: want, Given: given},
		}})
		waitChan(t, pres, "OnPres")
	}

	// Unknown user and a delta which does not define the mode.
	acs("usrBob", "", "+RW")
	if sub := topic.Subscription("usrBob"); sub != nil {
		t.Fatalf("undefined access created a subscription %+v", sub)
	}

	acs("usrBob", "JRWP", "JRWP")
	sub := topic.Subscription("usrBob")
	if sub == nil || sub.Acs.Mode != model.ParseAccessMode("JRWP") {
		t.Fatalf("sub = %+v", sub)
	}
	// The client asks for the public data of the new subscriber.
	msg := s.recv()
	if msg.Get == nil || msg.Get.Sub == nil || msg.Get.Sub.User != "usrBob" {
		t.Errorf("get = %+v", msg.Get)
	}

	acs("usrBob", "", "N")
	if sub := topic.Subscription("usrBob"); sub != nil {
		t.Errorf("subscription with no access was kept: %+v", sub)
	}

	// Own access.
	acs("", "JRWPS", "JRWPS")
	if mode := topic.AccessMode(); mode == nil || mode.Mode != model.ParseAccessMode("JRWPS") {
		t.Errorf("own acs = %v", mode)
	}
}

func TestPresAndInfoCounters(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	pres := make(chan *model.MsgServerPres, 4)
	info := make(chan *model.MsgServerInfo, 4)
	topic := c.NewTopic("grpTest", &TopicListener{OnPres: signal(pres), OnInfo: signal(info)})
	attach(t, s, topic, nil)

	s.send(&model.ServerComMessage{Meta: &model.MsgServerMeta{Topic: "grpTest", Sub: []model.MsgTopicSub{
		{User: "usrBob", Acs: &model.MsgAccessMode{Mode: "JRWP"}},
		{User: "usrCarol", Acs: &model.MsgAccessMode{Mode: "JRWP"}},
	}}})
	s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{Topic: "grpTest", What: model.PresMsg, SeqId: 12}})
	waitChan(t, pres, "OnPres")
	if topic.Seq() != 12 {
		t.Errorf("seq = %d", topic.Seq())
	}

	s.send(&model.ServerComMessage{Info: &model.MsgServerInfo{Topic: "grpTest", From: "usrBob", What: model.NoteRead, SeqId: 10}})
	waitChan(t, info, "OnInfo")
	s.send(&model.ServerComMessage{Info: &model.MsgServerInfo{Topic: "grpTest", From: "usrCarol", What: model.NoteRecv, SeqId: 11}})
	waitChan(t, info, "OnInfo")
	// Stale.
	s.send(&model.ServerComMessage{Info: &model.MsgServerInfo{Topic: "grpTest", From: "usrBob", What: model.NoteRead, SeqId: 4}})
	waitChan(t, info, "OnInfo")

	testCases := []struct {
		seq        int
		recv, read int
	}{
		{seq: 4, recv: 2, read: 1},
		{seq: 10, recv: 2, read: 1},
		{seq: 11, recv: 1, read: 0},
		{seq: 12, recv: 0, read: 0},
	}
	for _, tc := range testCases {
		if got := topic.MsgRecvCount(tc.seq); got != tc.recv {
			t.Errorf("recv count(%d) = %d, want %d", tc.seq, got, tc.recv)
		}
		if got := topic.MsgReadCount(tc.seq); got != tc.read {
			t.Errorf("read count(%d) = %d, want %d", tc.seq, got, tc.read)
		}
	}
}

func TestNoteRead(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	descs := make(chan *model.Description, 2)
	topic := c.NewTopic("grpTest", &TopicListener{OnMetaDesc: signal(descs)})
	attach(t, s, topic, nil)
	s.send(&model.ServerComMessage{Meta: &model.MsgServerMeta{Topic: "grpTest", Desc: &model.MsgTopicDesc{SeqId: 8}}})
	waitChan(t, descs, "OnMetaDesc")

	topic.NoteRead(0)
	msg := s.recv()
	if msg.Note == nil || msg.Note.What != model.NoteRead || msg.Note.SeqId != 8 {
		t.Fatalf("note = %+v", msg.Note)
	}
	if topic.Read() != 8 || topic.Recv() != 8 {
		t.Errorf("read %d recv %d", topic.Read(), topic.Recv())
	}
	// Not advancing.
	topic.NoteRead(5)
	topic.NoteKeyPress()
	msg = s.recv()
	if msg.Note == nil || msg.Note.What != model.NoteKeyPress {
		t.Fatalf("note = %+v", msg.Note)
	}
	// Throttled.
	topic.NoteKeyPress()
	s.expectNothing()
}

func TestMeContacts(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)
	login(t, c, s, "usrAlice")

	updated := make(chan struct{}, 4)
	contacts := make(chan *model.Subscription, 4)
	me := c.GetMeTopic()
	me.SetListener(&TopicListener{
		OnSubsUpdated: func() { updated <- struct{}{} },
		OnContUpdated: signal(contacts),
	})

	p := me.Subscribe(nil, nil)
	msg := s.recv()
	if msg.Sub.Topic != model.TopicMe || msg.Sub.Get == nil || msg.Sub.Get.What != "desc sub tags cred" {
		t.Fatalf("sub = %+v", msg.Sub)
	}
	s.ctrl(msg.Sub.Id, model.TopicMe, http.StatusOK, nil)
	mustWait(t, p)

	now := time.Now().UTC().Round(time.Millisecond)
	s.send(&model.ServerComMessage{Meta: &model.MsgServerMeta{Topic: model.TopicMe, Sub: []model.MsgTopicSub{
		{
			Topic:     "grpTravel",
			UpdatedAt: &now,
			SeqId:     10,
			ReadSeqId: 7,
			RecvSeqId: 8,
			Public:    json.RawMessage(`{"fn":"Travel"}`),
			Acs:       &model.MsgAccessMode{Want: "JRWPS", Given: "JRWPS", Mode: "JRWPS"},
		},
		{
			Topic:     "usrBob",
			UpdatedAt: &now,
			SeqId:     3,
			Public:    json.RawMessage(`{"fn":"Bob"}`),
		},
	}}})
	waitChan(t, updated, "OnSubsUpdated")

	travel := c.GetTopic("grpTravel")
	if travel == nil {
		t.Fatal("contact topic not created")
	}
	if travel.Seq() != 10 || travel.Read() != 7 || travel.Unread() != 3 {
		t.Errorf("seq %d read %d", travel.Seq(), travel.Read())
	}
	if desc := travel.Description(); desc.Public == nil || desc.Public.Fn != "Travel" {
		t.Errorf("desc = %+v", desc)
	}
	bob := c.GetTopic("usrBob")
	if bob == nil || bob.Kind() != model.KindP2P {
		t.Fatalf("p2p topic = %v", bob)
	}
	if u := c.User("usrBob"); u == nil || u.Public.Fn != "Bob" {
		t.Errorf("user = %+v", u)
	}
	if got := len(me.Contacts()); got != 2 {
		t.Errorf("contacts = %d", got)
	}

	s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{Topic: model.TopicMe, Src: "grpTravel", What: model.PresMsg, SeqId: 11}})
	if cont := waitChan(t, contacts, "OnContUpdated"); cont.Topic != "grpTravel" || cont.Seq != 11 {
		t.Errorf("contact = %+v", cont)
	}
	if travel.Seq() != 11 {
		t.Errorf("seq = %d", travel.Seq())
	}

	s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{Topic: model.TopicMe, Src: "usrBob", What: model.PresOn}})
	waitChan(t, contacts, "OnContUpdated")
	if !bob.Online() {
		t.Error("contact not online")
	}

	s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{Topic: model.TopicMe, Src: "grpTravel", What: model.PresGone}})
	eventually(t, "expunge", func() bool { return c.GetTopic("grpTravel") == nil })
	if !travel.IsDeleted() {
		t.Errorf("state = %v", travel.State())
	}
	if got := len(me.Contacts()); got != 1 {
		t.Errorf("contacts = %d", got)
	}
}

func TestMetaGetBuilder(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	for _, seq := range []int{3, 4, 5} {
		if _, err := c.Store().MsgReceived(&model.MsgServerData{Topic: "grpTest", SeqId: seq, Content: json.RawMessage(`"x"`)}); err != nil {
			t.Fatal(err)
		}
	}
	topic := c.NewTopic("grpTest", nil)
	topic.routeDel(4, nil)

	testCases := []struct {
		name string
		got  *model.MsgGetQuery
		want *model.MsgGetQuery
	}{
		{
			name: "empty",
			got:  topic.MetaGetBuilder().Build(),
			want: nil,
		},
		{
			name: "plain",
			got:  topic.MetaGetBuilder().WithDesc(nil).WithSub(nil, 0).WithTags().WithTags().Build(),
			want: &model.MsgGetQuery{What: "desc sub tags"},
		},
		{
			name: "later data",
			got:  topic.MetaGetBuilder().WithLaterData(10).Build(),
			want: &model.MsgGetQuery{What: "data", Data: &model.MsgGetOpts{SinceId: 6, Limit: 10}},
		},
		{
			name: "earlier data",
			got:  topic.MetaGetBuilder().WithEarlierData(20).Build(),
			want: &model.MsgGetQuery{What: "data", Data: &model.MsgGetOpts{BeforeId: 3, Limit: 20}},
		},
		{
			name: "data ranges",
			got:  topic.MetaGetBuilder().WithDataRanges([]model.MsgRange{{Low: 2, Hi: 5}, {Low: 1, Hi: 3}}, 0).Build(),
			want: &model.MsgGetQuery{What: "data", Data: &model.MsgGetOpts{IdRanges: []model.MsgRange{{Low: 1, Hi: 5}}}},
		},
		{
			name: "later del",
			got:  topic.MetaGetBuilder().WithLaterDel(0).Build(),
			want: &model.MsgGetQuery{What: "del", Del: &model.MsgGetOpts{SinceId: 5}},
		},
		{
			name: "user sub",
			got:  topic.MetaGetBuilder().WithUserSub("usrBob").WithAux().Build(),
			want: &model.MsgGetQuery{What: "sub aux", Sub: &model.MsgGetOpts{User: "usrBob"}},
		},
		{
			name: "cred is me only",
			got:  topic.MetaGetBuilder().WithCred().WithTags().Build(),
			want: &model.MsgGetQuery{What: "tags"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, tc.got); diff != "" {
				t.Errorf("query (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDelMessagesQueuedWhileDetached(t *testing.T) {
	c, s := newTestClient(t, Options{})
	for _, seq := range []int{1, 2, 3} {
		c.Store().MsgReceived(&model.MsgServerData{Topic: "grpTest", SeqId: seq, Content: json.RawMessage(`"x"`)})
	}
	topic := c.NewTopic("grpTest", nil)

	mustWait(t, topic.DelMessages([]model.MsgRange{{Low: 2, Hi: 4}}, true))
	ranges, _ := c.Store().QueuedMessageDeletes("grpTest", true)
	if diff := cmp.Diff([]model.MsgRange{{Low: 2, Hi: 4}}, ranges); diff != "" {
		t.Fatalf("queued deletes (-want +got):\n%s", diff)
	}

	connect(t, c, s)
	attach(t, s, topic, nil)
	p := topic.SyncAll()
	msg := s.recv()
	if msg.Del == nil || !msg.Del.Hard || msg.Del.What != model.DelWhatMsg {
		t.Fatalf("del = %+v", msg.Del)
	}
	if diff := cmp.Diff([]model.MsgRange{{Low: 2, Hi: 4}}, msg.Del.DelSeq); diff != "" {
		t.Errorf("delseq (-want +got):\n%s", diff)
	}
	s.ctrl(msg.Del.Id, "grpTest", http.StatusOK, map[string]any{"del": 7})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if topic.MaxDel() != 7 || topic.Clear() != 7 {
		t.Errorf("maxdel %d clear %d", topic.MaxDel(), topic.Clear())
	}
	msgs, _ := topic.Messages(0, 0)
	if len(msgs) != 1 || msgs[0].Seq != 1 {
		t.Errorf("remaining = %+v", msgs)
	}
}

func TestPinAndAux(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	topic := c.NewTopic("grpTest", nil)
	attach(t, s, topic, nil)

	p := topic.Pin(5, true)
	msg := s.recv()
	if msg.Set == nil || msg.Set.Aux == nil {
		t.Fatalf("set = %+v", msg.Set)
	}
	s.ctrl(msg.Set.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, p)
	if diff := cmp.Diff([]int{5}, topic.Pinned()); diff != "" {
		t.Errorf("pinned (-want +got):\n%s", diff)
	}

	// Already pinned.
	mustWait(t, topic.Pin(5, true))
	s.expectNothing()

	p = topic.Pin(5, false)
	msg = s.recv()
	if msg.Set.Aux["pins"] != model.NullValue {
		t.Errorf("aux = %v", msg.Set.Aux)
	}
	s.ctrl(msg.Set.Id, "grpTest", http.StatusOK, nil)
	mustWait(t, p)
	if len(topic.Pinned()) != 0 {
		t.Errorf("pinned = %v", topic.Pinned())
	}
}

func TestMetaNotifiesOnChange(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	var tags, aux, subs int
	done := make(chan *model.MsgServerMeta, 1)
	topic := c.NewTopic("grpTest", &TopicListener{
		OnMeta:        signal(done),
		OnMetaTags:    func([]string) { tags++ },
		OnMetaAux:     func(map[string]any) { aux++ },
		OnSubsUpdated: func() { subs++ },
	})
	attach(t, s, topic, nil)

	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	full := &model.MsgServerMeta{
		Topic: "grpTest",
		Tags:  []string{"a", "b"},
		Aux:   map[string]any{"k": "v"},
		Sub:   []model.MsgTopicSub{{User: "usrBob", UpdatedAt: &updated, ReadSeqId: 1}},
	}

	testCases := []struct {
		name            string
		meta            *model.MsgServerMeta
		tags, aux, subs int
	}{
		{name: "first", meta: full, tags: 1, aux: 1, subs: 1},
		{name: "repeated", meta: full},
		{name: "tags reordered", meta: &model.MsgServerMeta{Topic: "grpTest", Tags: []string{"b", "a"}}, tags: 1},
		{name: "same aux value", meta: &model.MsgServerMeta{Topic: "grpTest", Aux: map[string]any{"k": "v"}}},
		{name: "delete missing aux", meta: &model.MsgServerMeta{Topic: "grpTest", Aux: map[string]any{"x": model.NullValue}}},
		{name: "delete aux", meta: &model.MsgServerMeta{Topic: "grpTest", Aux: map[string]any{"k": model.NullValue}}, aux: 1},
		{name: "older sub", meta: &model.MsgServerMeta{Topic: "grpTest",
			Sub: []model.MsgTopicSub{{User: "usrBob", ReadSeqId: 1}}}},
		{name: "newer sub", meta: &model.MsgServerMeta{Topic: "grpTest",
			Sub: []model.MsgTopicSub{{User: "usrBob", ReadSeqId: 2}}}, subs: 1},
	}
	for _, tc := range testCases {
		tags, aux, subs = 0, 0, 0
		s.send(&model.ServerComMessage{Meta: tc.meta})
		waitChan(t, done, "OnMeta")
		if tags != tc.tags || aux != tc.aux || subs != tc.subs {
			t.Errorf("%s: tags %d aux %d subs %d, want %d %d %d",
				tc.name, tags, aux, subs, tc.tags, tc.aux, tc.subs)
		}
	}
	if diff := cmp.Diff([]string{"b", "a"}, topic.Tags()); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestPresTerm(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	type leave struct {
		unsub bool
		code  int
		text  string
	}
	left := make(chan leave, 1)
	topic := c.NewTopic("grpTest", &TopicListener{
		OnLeave: func(unsub bool, code int, text string) { left <- leave{unsub, code, text} },
	})
	attach(t, s, topic, nil)

	s.send(&model.ServerComMessage{Pres: &model.MsgServerPres{Topic: "grpTest", What: model.PresTerm}})
	got := waitChan(t, left, "OnLeave")
	if got != (leave{false, codeTerminated, textTerminated}) {
		t.Errorf("leave = %+v", got)
	}
	if topic.State() != StateDetached {
		t.Errorf("state = %v", topic.State())
	}
	s.expectNothing()
}

func TestFndSearch(t *testing.T) {
	c, s := newTestClient(t, Options{})
	connect(t, c, s)

	fnd := c.GetFndTopic()
	if _, err := wait(t, fnd.Publish("x", nil)); !errors.Is(err, ErrOperationNotSupported) {
		t.Errorf("publish to fnd err = %v", err)
	}
	attach(t, s, fnd, nil)

	p := fnd.Search("travel")
	msg := s.recv()
	if msg.Set == nil || msg.Set.Desc == nil || msg.Set.Desc.Public != "travel" {
		t.Fatalf("set = %+v", msg.Set)
	}
	s.ctrl(msg.Set.Id, model.TopicFnd, http.StatusOK, nil)
	msg = s.recv()
	if msg.Get == nil || msg.Get.What != "sub" {
		t.Fatalf("get = %+v", msg.Get)
	}
	s.send(&model.ServerComMessage{Meta: &model.MsgServerMeta{Id: msg.Get.Id, Topic: model.TopicFnd, Sub: []model.MsgTopicSub{
		{User: "usrBob", Public: json.RawMessage(`{"fn":"Bob"}`)},
		{Topic: "grpTravel", Public: json.RawMessage(`{"fn":"Travel"}`)},
	}}})
	mustWait(t, p)

	subs := fnd.Subscriptions()
	if len(subs) != 2 || subs[0].Topic != "grpTravel" || subs[1].User != "usrBob" {
		t.Errorf("results = %+v", subs)
	}
	if records, _ := c.Store().TopicGetAll(); len(records) != 0 {
		t.Errorf("fnd must not be stored, got %d topics", len(records))
	}
}
