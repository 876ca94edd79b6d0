package tinode

import (
	"time"

	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
)

// meVariant is the topic of the current user. Its subscriptions are contacts keyed by
// topic name. Contacts are persisted as topics rather than subscriptions.
type meVariant struct{}

func (meVariant) subKey(sub *model.Subscription) string {
	return sub.Topic
}

func (meVariant) canPublish() bool  { return false }
func (meVariant) persistent() bool  { return true }
func (meVariant) persistSubs() bool { return false }

func (meVariant) initialSet(*Topic) *model.MsgSetQuery {
	return nil
}

// routeMetaSub merges contacts and pushes their state into the topics they describe.
func (meVariant) routeMetaSub(t *Topic, subs []*model.Subscription) (actions, bool) {
	var acts actions
	changed := false
	c := t.client
	l := t.listener

	for _, sub := range subs {
		name := sub.Topic
		kind := model.TopicKindOf(name)
		if name == "" || !kind.Match(model.KindCom|model.KindSys) {
			continue
		}

		if sub.Deleted != nil {
			if _, ok := t.subs[name]; !ok {
				continue
			}
			delete(t.subs, name)
			changed = true
			acts.add(func() {
				if topic := c.GetTopic(name); topic != nil {
					topic.expunge()
				}
			})
			continue
		}

		cached, ok := t.subs[name]
		if ok {
			if !cached.Merge(sub) {
				continue
			}
		} else {
			cached = sub
			t.subs[name] = cached
		}
		changed = true
		cp := cached.Copy()
		acts.add(func() {
			c.NewTopic(name, nil).mergeContact(cp)
		})
		if l.OnMetaSub != nil {
			acts.add(func() { l.OnMetaSub(cp) })
		}
	}
	return acts, changed
}

// routePres handles presence of contacts. The source of the notification is the topic name.
func (meVariant) routePres(t *Topic, pres *model.MsgServerPres) actions {
	var acts actions
	c := t.client
	l := t.listener
	src := pres.Src

	contact := t.subs[src]
	notify := func() {
		if contact == nil || l.OnContUpdated == nil {
			return
		}
		cp := contact.Copy()
		acts.add(func() { l.OnContUpdated(cp) })
	}

	switch pres.ParseWhat() {
	case model.PresOn, model.PresOff:
		online := pres.What == model.PresOn
		if contact == nil {
			break
		}
		contact.Online = online
		if !online {
			now := time.Now()
			contact.LastSeen = &model.LastSeen{When: &now}
		}
		acts.add(func() {
			if topic := c.GetTopic(src); topic != nil {
				topic.setOnline(online)
			}
		})
		notify()

	case model.PresMsg:
		if contact == nil {
			// New contact.
			acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithTopicSub(src).Build()) })
			break
		}
		if higher(&contact.Seq, pres.SeqId) {
			now := time.Now()
			contact.Touched = &now
			seq := pres.SeqId
			acts.add(func() {
				if topic := c.GetTopic(src); topic != nil {
					topic.updateDesc(func(d *model.Description) bool {
						d.Touched = &now
						return higher(&d.Seq, seq)
					})
				}
			})
			notify()
		}

	case model.PresUpd:
		if src == "" || src == model.TopicMe {
			acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithLaterDesc().Build()) })
		} else {
			acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithTopicSub(src).Build()) })
		}

	case model.PresAcs:
		if contact == nil {
			acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithTopicSub(src).Build()) })
			break
		}
		if pres.Acs == nil {
			break
		}
		change := &model.AccessChange{Want: pres.Acs.Want, Given: pres.Acs.Given}
		if _, err := contact.UpdateAccessMode(change); err != nil {
			logs.Warn.Println("me: bad access mode", src, err)
			break
		}
		acs := *contact.Acs
		if acs.Mode == model.ModeNone {
			delete(t.subs, src)
			acts.add(func() {
				if topic := c.GetTopic(src); topic != nil {
					topic.expunge()
				}
			})
		} else {
			acts.add(func() {
				if topic := c.GetTopic(src); topic != nil {
					topic.updateDesc(func(d *model.Description) bool {
						if d.Acs == nil {
							d.Acs = model.NewAcs()
						}
						return d.Acs.Merge(&acs)
					})
				}
			})
		}
		notify()

	case model.PresUa:
		if contact == nil {
			break
		}
		now := time.Now()
		contact.LastSeen = &model.LastSeen{When: &now, UserAgent: pres.UserAgent}
		notify()

	case model.PresRecv, model.PresRead:
		// Another session of the current user has received or read messages.
		if contact == nil {
			break
		}
		seq := pres.SeqId
		changed := higher(&contact.Recv, seq)
		if pres.What == model.PresRead {
			changed = higher(&contact.Read, seq) || changed
		}
		if changed {
			recv, read := contact.Recv, contact.Read
			acts.add(func() {
				if topic := c.GetTopic(src); topic != nil {
					topic.updateDesc(func(d *model.Description) bool {
						changed := higher(&d.Recv, recv)
						return higher(&d.Read, read) || changed
					})
				}
			})
			notify()
		}

	case model.PresDel:
		if contact != nil && higher(&contact.Clear, pres.DelId) {
			notify()
		}

	case model.PresGone:
		if contact == nil {
			break
		}
		delete(t.subs, src)
		acts.add(func() {
			if topic := c.GetTopic(src); topic != nil {
				topic.expunge()
			}
		})

	case model.PresTags:
		acts.add(func() { t.GetMeta(t.MetaGetBuilder().WithTags().Build()) })

	case model.PresTerm:
		acts.add(func() { t.topicLeft(false, codeTerminated, textTerminated) })

	default:
		logs.Info.Println("me: unknown presence", src, pres.What)
	}
	return acts
}

// mergeContact applies the state of a 'me' contact to the topic it describes.
func (t *Topic) mergeContact(sub *model.Subscription) {
	t.mu.Lock()
	changed := t.desc.MergeSub(sub)
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	if !changed {
		return
	}
	t.save(rec)
	if t.kind == model.KindP2P {
		t.client.UpdateUser(rec.Name, sub.Updated, sub.Public)
	}
	if l.OnMetaDesc != nil {
		l.OnMetaDesc(copyDesc(rec.Desc))
	}
}

// updateDesc changes the description in place. The update function reports if anything has changed.
func (t *Topic) updateDesc(update func(d *model.Description) bool) {
	t.mu.Lock()
	if !update(t.desc) {
		t.mu.Unlock()
		return
	}
	rec := t.recordLocked()
	l := t.listener
	t.mu.Unlock()

	t.save(rec)
	if l.OnMetaDesc != nil {
		l.OnMetaDesc(copyDesc(rec.Desc))
	}
}

// setOnline changes the online status reported by 'me'.
func (t *Topic) setOnline(online bool) {
	t.mu.Lock()
	changed := t.desc.Online != online
	t.desc.Online = online
	l := t.listener
	t.mu.Unlock()

	if changed && l.OnOnline != nil {
		l.OnOnline(online)
	}
}

// updateContact changes a contact in place. The update function reports if anything has changed.
func (t *Topic) updateContact(name string, update func(sub *model.Subscription) bool) {
	t.mu.Lock()
	sub := t.subs[name]
	if sub == nil || !update(sub) {
		t.mu.Unlock()
		return
	}
	cp := sub.Copy()
	l := t.listener
	t.mu.Unlock()

	if l.OnContUpdated != nil {
		l.OnContUpdated(cp)
	}
}

func (t *Topic) removeContact(name string) {
	t.mu.Lock()
	_, ok := t.subs[name]
	delete(t.subs, name)
	l := t.listener
	t.mu.Unlock()

	if ok && l.OnSubsUpdated != nil {
		l.OnSubsUpdated()
	}
}

// Contacts returns contacts of the 'me' topic sorted by topic name.
func (t *Topic) Contacts() []*model.Subscription {
	if t.kind != model.KindMe {
		return nil
	}
	return t.FilteredSubscriptions(time.Time{}, model.KindCom)
}

// Creds returns the credentials of the current user reported by the 'me' topic.
func (t *Topic) Creds() []*model.Credential {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*model.Credential(nil), t.creds...)
}

// ConfirmCred sends the response to a credential validation request.
func (t *Topic) ConfirmCred(method, response string) *PromisedReply {
	if t.kind != model.KindMe {
		return promise.Rejected[*model.ServerComMessage](ErrOperationNotSupported)
	}
	return t.SetMeta(&model.MsgSetQuery{Cred: &model.Credential{Method: method, Response: response}})
}

// AddCred adds a new credential to the account. It will have to be confirmed.
func (t *Topic) AddCred(method, value string) *PromisedReply {
	if t.kind != model.KindMe {
		return promise.Rejected[*model.ServerComMessage](ErrOperationNotSupported)
	}
	cred, err := model.NewCredential(method, value, "")
	if err != nil {
		return promise.Rejected[*model.ServerComMessage](err)
	}
	return t.SetMeta(&model.MsgSetQuery{Cred: cred})
}

// DelCredential removes a credential from the account.
func (t *Topic) DelCredential(method, value string) *PromisedReply {
	if t.kind != model.KindMe {
		return promise.Rejected[*model.ServerComMessage](ErrOperationNotSupported)
	}
	cred := &model.Credential{Method: method, Value: value}
	return t.client.delCredential(cred).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			t.mu.Lock()
			kept := t.creds[:0:0]
			for _, c := range t.creds {
				if !c.Equal(cred) {
					kept = append(kept, c)
				}
			}
			t.creds = kept
			l := t.listener
			t.mu.Unlock()

			if l.OnCredUpdated != nil {
				l.OnCredUpdated(kept)
			}
			return nil, nil
		}, nil)
}

// loadContacts restores contacts from locally stored topics.
func (t *Topic) loadContacts(topics []*Topic) {
	contacts := make([]*model.Subscription, 0, len(topics))
	for _, topic := range topics {
		if !topic.kind.Match(model.KindCom | model.KindSys) {
			continue
		}
		desc := topic.Description()
		sub := &model.Subscription{
			Topic:   topic.Name(),
			Updated: desc.Updated,
			Touched: desc.Touched,
			Acs:     desc.Acs,
			Read:    desc.Read,
			Recv:    desc.Recv,
			Seq:     desc.Seq,
			Clear:   desc.Clear,
			Public:  desc.Public,
			Private: desc.Private,
			Trusted: desc.Trusted,
		}
		contacts = append(contacts, sub)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range contacts {
		if _, ok := t.subs[sub.Topic]; !ok {
			t.subs[sub.Topic] = sub
		}
	}
}
