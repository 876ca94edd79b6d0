package tinode

import (
	"strings"
	"time"

	"github.com/tinode/tinodesdk/model"
)

// MetaGetBuilder composes {get} queries. The "later" variants request only what's newer
// than the locally cached state of the topic.
type MetaGetBuilder struct {
	topic *Topic
	what  []string
	query model.MsgGetQuery
}

func (b *MetaGetBuilder) add(what string) {
	for _, w := range b.what {
		if w == what {
			return
		}
	}
	b.what = append(b.what, what)
}

// WithDesc requests the topic description updated after ims. Nil ims requests it unconditionally.
func (b *MetaGetBuilder) WithDesc(ims *time.Time) *MetaGetBuilder {
	b.add(model.GetDesc)
	if ims != nil {
		b.query.Desc = &model.MsgGetOpts{IfModifiedSince: ims}
	}
	return b
}

// WithLaterDesc requests the description if it was updated after the cached one.
func (b *MetaGetBuilder) WithLaterDesc() *MetaGetBuilder {
	var ims *time.Time
	t := b.topic
	t.mu.Lock()
	if t.state != StateNew && t.desc.Updated != nil {
		ts := *t.desc.Updated
		ims = &ts
	}
	t.mu.Unlock()
	return b.WithDesc(ims)
}

// WithSub requests subscriptions updated after ims, up to limit. Zero limit means server default.
func (b *MetaGetBuilder) WithSub(ims *time.Time, limit int) *MetaGetBuilder {
	b.add(model.GetSub)
	if ims != nil || limit > 0 {
		if b.query.Sub == nil {
			b.query.Sub = &model.MsgGetOpts{}
		}
		b.query.Sub.IfModifiedSince = ims
		b.query.Sub.Limit = limit
	}
	return b
}

// WithLaterSub requests subscriptions updated after the latest cached one.
func (b *MetaGetBuilder) WithLaterSub(limit int) *MetaGetBuilder {
	var ims *time.Time
	t := b.topic
	t.mu.Lock()
	if t.state != StateNew && t.subsUpdated != nil {
		ts := *t.subsUpdated
		ims = &ts
	}
	t.mu.Unlock()
	return b.WithSub(ims, limit)
}

// WithUserSub requests the subscription of a single user.
func (b *MetaGetBuilder) WithUserSub(user string) *MetaGetBuilder {
	b.add(model.GetSub)
	b.query.Sub = &model.MsgGetOpts{User: user}
	return b
}

// WithTopicSub requests a single subscription of the 'me' topic.
func (b *MetaGetBuilder) WithTopicSub(topic string) *MetaGetBuilder {
	b.add(model.GetSub)
	b.query.Sub = &model.MsgGetOpts{Topic: topic}
	return b
}

// WithData requests messages with IDs in [since, before). Zero values are not sent.
func (b *MetaGetBuilder) WithData(since, before, limit int) *MetaGetBuilder {
	b.add(model.GetData)
	if since > 0 || before > 0 || limit > 0 {
		b.query.Data = &model.MsgGetOpts{SinceId: since, BeforeId: before, Limit: limit}
	}
	return b
}

// WithDataRanges requests messages with IDs in the given ranges, such as gaps in the cache.
func (b *MetaGetBuilder) WithDataRanges(ranges []model.MsgRange, limit int) *MetaGetBuilder {
	b.add(model.GetData)
	b.query.Data = &model.MsgGetOpts{
		IdRanges: model.Collapse(append([]model.MsgRange(nil), ranges...)),
		Limit:    limit,
	}
	return b
}

// WithLaterData requests messages newer than the newest cached one.
func (b *MetaGetBuilder) WithLaterData(limit int) *MetaGetBuilder {
	var since int
	if r, ok := b.cachedRange(); ok {
		since = r.Upper()
	}
	return b.WithData(since, 0, limit)
}

// WithEarlierData requests messages older than the oldest cached one.
func (b *MetaGetBuilder) WithEarlierData(limit int) *MetaGetBuilder {
	var before int
	if r, ok := b.cachedRange(); ok && r.Low > 1 {
		before = r.Low
	}
	return b.WithData(0, before, limit)
}

func (b *MetaGetBuilder) cachedRange() (model.MsgRange, bool) {
	t := b.topic
	if !t.variant.persistent() {
		return model.MsgRange{}, false
	}
	r, err := t.client.store.CachedMessagesRange(t.Name())
	if err != nil || r.Low == 0 {
		return model.MsgRange{}, false
	}
	return r, true
}

// WithDel requests delete transactions with IDs starting at since.
func (b *MetaGetBuilder) WithDel(since, limit int) *MetaGetBuilder {
	b.add(model.GetDel)
	if since > 0 || limit > 0 {
		b.query.Del = &model.MsgGetOpts{SinceId: since, Limit: limit}
	}
	return b
}

// WithLaterDel requests delete transactions newer than the latest known one.
func (b *MetaGetBuilder) WithLaterDel(limit int) *MetaGetBuilder {
	var since int
	if maxDel := b.topic.MaxDel(); maxDel > 0 {
		since = maxDel + 1
	}
	return b.WithDel(since, limit)
}

func (b *MetaGetBuilder) WithTags() *MetaGetBuilder {
	b.add(model.GetTags)
	return b
}

func (b *MetaGetBuilder) WithCred() *MetaGetBuilder {
	if b.topic.kind == model.KindMe {
		b.add(model.GetCred)
	}
	return b
}

func (b *MetaGetBuilder) WithAux() *MetaGetBuilder {
	b.add(model.GetAux)
	return b
}

// Build returns the query or nil if nothing was requested.
func (b *MetaGetBuilder) Build() *model.MsgGetQuery {
	if len(b.what) == 0 {
		return nil
	}
	query := b.query
	query.What = strings.Join(b.what, " ")
	return &query
}
