package tinode

import "github.com/tinode/tinodesdk/model"

// EventListener receives session-level events. Any callback may be nil.
// Callbacks are called on the goroutine which reads from the network: they must
// not block.
type EventListener struct {
	// Connection established and {hi} acknowledged.
	OnConnect func(code int, text string, params map[string]any)
	// Connection lost.
	OnDisconnect func(byServer bool, code int, reason string)
	// Result of a login attempt, including the automatic one.
	OnLogin func(code int, text string)

	// Every parsed server message.
	OnMessage func(msg *model.ServerComMessage)
	// Unparsed server message as received.
	OnRawMessage func(msg []byte)

	OnCtrl func(ctrl *model.MsgServerCtrl)
	OnData func(data *model.MsgServerData)
	OnInfo func(info *model.MsgServerInfo)
	OnMeta func(meta *model.MsgServerMeta)
	OnPres func(pres *model.MsgServerPres)
}

// TopicListener receives events of a single topic. Any callback may be nil.
// Callbacks are called without holding the topic lock, so they can call back into the topic.
type TopicListener struct {
	OnSubscribe func(code int, text string)
	OnLeave     func(unsub bool, code int, text string)

	// New message received.
	OnData func(data *model.MsgServerData)
	// Key press, read or received notification.
	OnInfo func(info *model.MsgServerInfo)
	// Any {meta} message.
	OnMeta func(meta *model.MsgServerMeta)
	// A single subscription has changed.
	OnMetaSub func(sub *model.Subscription)
	// Topic description has changed.
	OnMetaDesc func(desc *model.Description)
	OnMetaTags func(tags []string)
	OnMetaAux  func(aux map[string]any)
	// Credentials of the 'me' topic have changed.
	OnCredUpdated func(creds []*model.Credential)
	// The list of subscriptions was updated. Called once per {meta} after all OnMetaSub calls.
	OnSubsUpdated func()
	OnPres        func(pres *model.MsgServerPres)
	// A contact of the 'me' topic has changed.
	OnContUpdated func(contact *model.Subscription)
	// Online status of the topic or a contact has changed.
	OnOnline func(online bool)
	// Messages were deleted.
	OnDelete func(clear int, ranges []model.MsgRange)
}
