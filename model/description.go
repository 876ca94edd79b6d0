package model

import (
	"encoding/json"
	"reflect"
	"time"
)

// Description is the bulk of the topic data as known to the client.
type Description struct {
	Created *time.Time `json:"created,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
	// Timestamp of the last message
	Touched *time.Time `json:"touched,omitempty"`
	Deleted *time.Time `json:"deleted,omitempty"`

	// Account state, 'me' topic only.
	State string `json:"state,omitempty"`
	// If the group topic or the p2p peer is online.
	Online bool `json:"online,omitempty"`

	DefAcs *DefAcs `json:"defacs,omitempty"`
	Acs    *Acs    `json:"acs,omitempty"`

	// Max message ID
	Seq int `json:"seq,omitempty"`
	// Values reported by the current user as read and received.
	Read int `json:"read,omitempty"`
	Recv int `json:"recv,omitempty"`
	// Id of the last delete operation as seen by the requesting user
	Clear int `json:"clear,omitempty"`

	Public  *TheCard        `json:"public,omitempty"`
	Private *PrivateType    `json:"private,omitempty"`
	Trusted map[string]bool `json:"trusted,omitempty"`

	// P2P topics only: peer's last online timestamp & user agent.
	LastSeen *LastSeen `json:"seen,omitempty"`
}

func laterTime(dst **time.Time, src *time.Time) bool {
	if src == nil || (*dst != nil && !(*dst).Before(*src)) {
		return false
	}
	t := *src
	*dst = &t
	return true
}

func higherInt(dst *int, src int) bool {
	if src > *dst {
		*dst = src
		return true
	}
	return false
}

func replaceCard(dst **TheCard, src *TheCard) bool {
	if src == nil || reflect.DeepEqual(*dst, src) {
		return false
	}
	*dst = src.Copy()
	return true
}

func replacePrivate(dst **PrivateType, src *PrivateType) bool {
	if src == nil || reflect.DeepEqual(*dst, src) {
		return false
	}
	p := &PrivateType{}
	p.Merge(src)
	*dst = p
	return true
}

func replaceTrusted(dst *map[string]bool, src map[string]bool) bool {
	if src == nil || reflect.DeepEqual(*dst, src) {
		return false
	}
	*dst = make(map[string]bool, len(src))
	for k, v := range src {
		(*dst)[k] = v
	}
	return true
}

// Merge copies newer or higher values from another description.
// Timestamps move forward only, counters only increase. Online is left unchanged.
// Returns true if anything has changed.
func (d *Description) Merge(that *Description) bool {
	if that == nil {
		return false
	}
	changed := false
	if d.Created == nil && that.Created != nil {
		t := *that.Created
		d.Created = &t
		changed = true
	}
	changed = laterTime(&d.Updated, that.Updated) || changed
	changed = laterTime(&d.Touched, that.Touched) || changed
	changed = laterTime(&d.Deleted, that.Deleted) || changed

	if that.State != "" && that.State != d.State {
		d.State = that.State
		changed = true
	}
	// Online is driven by presence notifications only.

	if that.DefAcs != nil {
		if d.DefAcs == nil {
			d.DefAcs = &DefAcs{Auth: ModeUnset, Anon: ModeUnset}
		}
		changed = d.DefAcs.Merge(that.DefAcs) || changed
	}
	if that.Acs != nil {
		if d.Acs == nil {
			d.Acs = NewAcs()
		}
		changed = d.Acs.Merge(that.Acs) || changed
	}

	changed = higherInt(&d.Seq, that.Seq) || changed
	changed = higherInt(&d.Read, that.Read) || changed
	changed = higherInt(&d.Recv, that.Recv) || changed
	changed = higherInt(&d.Clear, that.Clear) || changed

	changed = replaceCard(&d.Public, that.Public) || changed
	changed = replacePrivate(&d.Private, that.Private) || changed
	changed = replaceTrusted(&d.Trusted, that.Trusted) || changed

	if that.LastSeen != nil {
		if d.LastSeen == nil {
			d.LastSeen = &LastSeen{}
		}
		changed = d.LastSeen.Merge(that.LastSeen) || changed
	}
	return changed
}

// MergeSub merges a 'me' subscription record into a description of the topic it refers to.
func (d *Description) MergeSub(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	changed := laterTime(&d.Updated, sub.Updated)
	changed = laterTime(&d.Touched, sub.Touched) || changed
	if sub.Acs != nil {
		if d.Acs == nil {
			d.Acs = NewAcs()
		}
		changed = d.Acs.Merge(sub.Acs) || changed
	}
	changed = higherInt(&d.Seq, sub.Seq) || changed
	changed = higherInt(&d.Read, sub.Read) || changed
	changed = higherInt(&d.Recv, sub.Recv) || changed
	changed = higherInt(&d.Clear, sub.Clear) || changed
	changed = replaceCard(&d.Public, sub.Public) || changed
	changed = replacePrivate(&d.Private, sub.Private) || changed
	changed = replaceTrusted(&d.Trusted, sub.Trusted) || changed
	if sub.Online != d.Online {
		d.Online = sub.Online
		changed = true
	}
	if sub.LastSeen != nil {
		if d.LastSeen == nil {
			d.LastSeen = &LastSeen{}
		}
		changed = d.LastSeen.Merge(sub.LastSeen) || changed
	}
	return changed
}

// MergeSet applies the locally originated {set desc} after the server has accepted it.
func (d *Description) MergeSet(set *MsgSetDesc) bool {
	if set == nil {
		return false
	}
	changed := false
	if set.DefAcs != nil {
		if d.DefAcs == nil {
			d.DefAcs = &DefAcs{Auth: ModeUnset, Anon: ModeUnset}
		}
		changed = d.DefAcs.Merge(&DefAcs{
			Auth: ParseAccessMode(set.DefAcs.Auth),
			Anon: ParseAccessMode(set.DefAcs.Anon),
		})
	}
	if card, ok := set.Public.(*TheCard); ok && card != nil {
		if d.Public == nil {
			d.Public = &TheCard{}
		}
		changed = d.Public.Merge(card) || changed
	}
	if priv, ok := set.Private.(*PrivateType); ok && priv != nil {
		if d.Private == nil {
			d.Private = &PrivateType{}
		}
		changed = d.Private.Merge(priv) || changed
	}
	return changed
}

// NewDescription converts the wire description into the client-side description.
// Public data which is not a card (such as a 'fnd' query string) is ignored.
func NewDescription(src *MsgTopicDesc) *Description {
	if src == nil {
		return nil
	}
	d := &Description{
		Created: src.CreatedAt,
		Updated: src.UpdatedAt,
		Touched: src.TouchedAt,
		State:   src.State,
		Online:  src.Online,
		Seq:     src.SeqId,
		Read:    src.ReadSeqId,
		Recv:    src.RecvSeqId,
		Clear:   src.DelId,
		Public:  decodeCard(src.Public),
		Private: decodePrivate(src.Private),
		Trusted: decodeTrusted(src.Trusted),
	}
	if src.DefaultAcs != nil {
		d.DefAcs = &DefAcs{
			Auth: ParseAccessMode(src.DefaultAcs.Auth),
			Anon: ParseAccessMode(src.DefaultAcs.Anon),
		}
	}
	if src.Acs != nil {
		d.Acs = src.Acs.Acs()
	}
	if src.LastSeen != nil {
		ls := *src.LastSeen
		d.LastSeen = &ls
	}
	return d
}

func isJSONObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		}
		return false
	}
	return false
}

func decodeCard(raw json.RawMessage) *TheCard {
	if !isJSONObject(raw) {
		return nil
	}
	var card TheCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil
	}
	return &card
}

func decodePrivate(raw json.RawMessage) *PrivateType {
	if !isJSONObject(raw) {
		return nil
	}
	var priv PrivateType
	if err := json.Unmarshal(raw, &priv); err != nil {
		return nil
	}
	return &priv
}

func decodeTrusted(raw json.RawMessage) map[string]bool {
	if !isJSONObject(raw) {
		return nil
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}
	trusted := make(map[string]bool, len(all))
	for k, v := range all {
		b, _ := v.(bool)
		trusted[k] = b
	}
	return trusted
}
