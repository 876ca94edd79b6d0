package model

import "time"

// Subscription is a user's relationship with a topic. In a regular topic it describes a
// topic member keyed by User, in 'me' topic it describes a contact keyed by Topic.
type Subscription struct {
	// Uid of the subscribed user
	User string `json:"user,omitempty"`
	// Topic name of this subscription
	Topic string `json:"topic,omitempty"`

	Updated *time.Time `json:"updated,omitempty"`
	Deleted *time.Time `json:"deleted,omitempty"`
	// Timestamp of the last message in the topic
	Touched *time.Time `json:"touched,omitempty"`

	Acs *Acs `json:"acs,omitempty"`

	Read  int `json:"read,omitempty"`
	Recv  int `json:"recv,omitempty"`
	Seq   int `json:"seq,omitempty"`
	Clear int `json:"clear,omitempty"`

	Public  *TheCard        `json:"public,omitempty"`
	Private *PrivateType    `json:"private,omitempty"`
	Trusted map[string]bool `json:"trusted,omitempty"`

	// If the subscriber or the topic is online
	Online bool `json:"online,omitempty"`
	// P2P topics only: last online timestamp & user agent.
	LastSeen *LastSeen `json:"seen,omitempty"`
}

// NewSubscription converts the wire subscription into the client-side one.
func NewSubscription(src *MsgTopicSub) *Subscription {
	if src == nil {
		return nil
	}
	sub := &Subscription{
		User:    src.User,
		Topic:   src.Topic,
		Updated: src.UpdatedAt,
		Deleted: src.DeletedAt,
		Touched: src.TouchedAt,
		Acs:     src.Acs.Acs(),
		Read:    src.ReadSeqId,
		Recv:    src.RecvSeqId,
		Seq:     src.SeqId,
		Clear:   src.DelId,
		Public:  decodeCard(src.Public),
		Private: decodePrivate(src.Private),
		Trusted: decodeTrusted(src.Trusted),
		Online:  src.Online,
	}
	if src.LastSeen != nil {
		ls := *src.LastSeen
		sub.LastSeen = &ls
	}
	return sub
}

// Merge copies values from a newer version of the same subscription.
// Returns true if anything has changed.
func (s *Subscription) Merge(that *Subscription) bool {
	if that == nil {
		return false
	}
	changed := false
	if s.User == "" && that.User != "" {
		s.User = that.User
		changed = true
	}
	if that.Updated != nil && (s.Updated == nil || s.Updated.Before(*that.Updated)) {
		t := *that.Updated
		s.Updated = &t
		if that.Public != nil {
			s.Public = that.Public.Copy()
		}
		changed = true
	} else if s.Public == nil && that.Public != nil {
		s.Public = that.Public.Copy()
		changed = true
	}
	changed = laterTime(&s.Touched, that.Touched) || changed
	changed = laterTime(&s.Deleted, that.Deleted) || changed

	if that.Acs != nil {
		if s.Acs == nil {
			s.Acs = NewAcs()
		}
		changed = s.Acs.Merge(that.Acs) || changed
	}

	changed = higherInt(&s.Read, that.Read) || changed
	changed = higherInt(&s.Recv, that.Recv) || changed
	changed = higherInt(&s.Clear, that.Clear) || changed
	changed = higherInt(&s.Seq, that.Seq) || changed

	changed = replacePrivate(&s.Private, that.Private) || changed
	changed = replaceTrusted(&s.Trusted, that.Trusted) || changed

	if s.Online != that.Online {
		s.Online = that.Online
		changed = true
	}
	if s.Topic == "" && that.Topic != "" {
		s.Topic = that.Topic
		changed = true
	}
	if that.LastSeen != nil {
		if s.LastSeen == nil {
			s.LastSeen = &LastSeen{}
		}
		changed = s.LastSeen.Merge(that.LastSeen) || changed
	}
	return changed
}

// MergeSet applies an accepted {set sub} request to the subscription: a request
// with a user changes the given mode of that user, otherwise the want mode of the
// current user.
func (s *Subscription) MergeSet(set *MsgSetSub) bool {
	if set == nil {
		return false
	}
	changed := false
	if set.Mode != "" && s.Acs == nil {
		s.Acs = NewAcs()
	}
	if set.User != "" {
		if s.User == "" {
			s.User = set.User
			changed = true
		}
		if set.Mode != "" {
			c, _ := s.Acs.Update(&AccessChange{Given: set.Mode})
			changed = c || changed
		}
	} else if set.Mode != "" {
		c, _ := s.Acs.Update(&AccessChange{Want: set.Mode})
		changed = c || changed
	}
	return changed
}

// UpdateAccessMode applies a partial change to the access mode.
func (s *Subscription) UpdateAccessMode(ac *AccessChange) (bool, error) {
	if s.Acs == nil {
		s.Acs = NewAcs()
	}
	return s.Acs.Update(ac)
}

// Copy makes a copy of the subscription safe to hand out to other goroutines.
func (s *Subscription) Copy() *Subscription {
	if s == nil {
		return nil
	}
	dst := *s
	if s.Acs != nil {
		acs := *s.Acs
		dst.Acs = &acs
	}
	dst.Public = s.Public.Copy()
	if s.Private != nil {
		dst.Private = &PrivateType{}
		dst.Private.Merge(s.Private)
	}
	if s.LastSeen != nil {
		ls := *s.LastSeen
		dst.LastSeen = &ls
	}
	dst.Trusted = nil
	replaceTrusted(&dst.Trusted, s.Trusted)
	return &dst
}
