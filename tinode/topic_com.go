package tinode

import (
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
)

// comVariant is a group, p2p or self topic. Subscriptions are keyed by user ID.
type comVariant struct{}

func (comVariant) subKey(sub *model.Subscription) string {
	return sub.User
}

func (comVariant) canPublish() bool  { return true }
func (comVariant) persistent() bool  { return true }
func (comVariant) persistSubs() bool { return true }

func (comVariant) routeMetaSub(t *Topic, subs []*model.Subscription) (actions, bool) {
	return t.mergeSubsLocked(subs)
}

func (comVariant) routePres(t *Topic, pres *model.MsgServerPres) actions {
	return t.routeComPres(pres)
}

// initialSet sends parameters assigned to a new topic before it was created.
func (comVariant) initialSet(t *Topic) *model.MsgSetQuery {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := &model.MsgSetQuery{}
	desc := &model.MsgSetDesc{}
	empty := true
	if t.desc.Public != nil {
		desc.Public = t.desc.Public
		empty = false
	}
	if t.desc.Private != nil {
		desc.Private = t.desc.Private
		empty = false
	}
	if t.desc.DefAcs != nil {
		desc.DefAcs = &model.MsgDefaultAcsMode{}
		if t.desc.DefAcs.Auth.IsDefined() {
			desc.DefAcs.Auth = t.desc.DefAcs.Auth.String()
		}
		if t.desc.DefAcs.Anon.IsDefined() {
			desc.DefAcs.Anon = t.desc.DefAcs.Anon.String()
		}
		empty = false
	}
	if !empty {
		set.Desc = desc
	}
	if len(t.tags) > 0 {
		set.Tags = append([]string(nil), t.tags...)
	}
	if len(t.aux) > 0 {
		set.Aux = copyAux(t.aux)
	}
	if set.IsEmpty() {
		return nil
	}
	return set
}

// Peer returns the other party of a p2p topic or nil.
func (t *Topic) Peer() *model.Subscription {
	if t.kind != model.KindP2P {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub := t.subs[t.name]; sub != nil {
		return sub.Copy()
	}
	peer := &model.Subscription{
		User:    t.name,
		Topic:   t.name,
		Updated: t.desc.Updated,
		Public:  t.desc.Public.Copy(),
		Online:  t.desc.Online,
	}
	if t.desc.LastSeen != nil {
		seen := *t.desc.LastSeen
		peer.LastSeen = &seen
	}
	return peer
}

// UpdateArchived archives or unarchives the topic.
func (t *Topic) UpdateArchived(arch bool) *PromisedReply {
	if t.IsArchived() == arch {
		return promise.Resolved[*model.ServerComMessage](nil)
	}
	priv := &model.PrivateType{}
	priv.SetArchived(arch)
	return t.SetMeta(&model.MsgSetQuery{Desc: &model.MsgSetDesc{Private: priv}})
}
