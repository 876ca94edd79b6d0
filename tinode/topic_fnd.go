package tinode

import (
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
)

// fndVariant is the search topic. Its subscriptions are search results which are
// never persisted.
type fndVariant struct{}

func (fndVariant) subKey(sub *model.Subscription) string {
	if sub.User != "" {
		return sub.User
	}
	return sub.Topic
}

func (fndVariant) canPublish() bool  { return false }
func (fndVariant) persistent() bool  { return false }
func (fndVariant) persistSubs() bool { return false }

// routeMetaSub adds results of the current query.
func (v fndVariant) routeMetaSub(t *Topic, subs []*model.Subscription) (actions, bool) {
	var acts actions
	changed := false
	l := t.listener
	for _, sub := range subs {
		key := v.subKey(sub)
		if key == "" {
			continue
		}
		if cached, ok := t.subs[key]; ok {
			if !cached.Merge(sub) {
				continue
			}
			sub = cached
		} else {
			t.subs[key] = sub
		}
		changed = true
		cp := sub.Copy()
		if l.OnMetaSub != nil {
			acts.add(func() { l.OnMetaSub(cp) })
		}
	}
	return acts, changed
}

func (fndVariant) routePres(t *Topic, pres *model.MsgServerPres) actions {
	logs.Info.Println("fnd: unexpected presence", pres.What)
	return nil
}

func (fndVariant) initialSet(*Topic) *model.MsgSetQuery {
	return nil
}

// SetQuery changes the search query of the 'fnd' topic and discards the old results.
// The topic must be subscribed to.
func (t *Topic) SetQuery(query string) *PromisedReply {
	if t.kind != model.KindFnd {
		return promise.Rejected[*model.ServerComMessage](ErrOperationNotSupported)
	}
	var public any = query
	if query == "" {
		public = model.NullValue
	}
	return t.SetMeta(&model.MsgSetQuery{Desc: &model.MsgSetDesc{Public: public}}).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			t.clearSubs()
			return nil, nil
		}, nil)
}

// Search sets the query and requests the results. Results are delivered as subscriptions.
func (t *Topic) Search(query string) *PromisedReply {
	return t.SetQuery(query).ThenApply(
		func(*model.ServerComMessage) (*PromisedReply, error) {
			return t.GetMeta(t.MetaGetBuilder().WithSub(nil, 0).Build()), nil
		}, nil)
}

func (t *Topic) clearSubs() {
	t.mu.Lock()
	t.subs = make(map[string]*model.Subscription)
	t.mu.Unlock()
}
