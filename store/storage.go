package store

//go:generate mockgen -source=storage.go -destination=mock_store/mock_store.go -package=mock_store

import (
	"encoding/json"
	"time"

	"github.com/tinode/tinodesdk/model"
)

// MsgStatus is the local delivery status of a message.
type MsgStatus int

const (
	// StatusUndefined is the status of an object which is not in the store.
	StatusUndefined MsgStatus = iota
	// StatusDraft is a message which is being composed and must not be sent yet.
	StatusDraft
	// StatusQueued is a message waiting to be sent.
	StatusQueued
	// StatusSending is a message which is being sent right now.
	StatusSending
	// StatusFailed is a message which was rejected by the server.
	StatusFailed
	// StatusSynced is a message received from the server or confirmed by it.
	StatusSynced
	// StatusDeletedHard is a message marked for hard deletion but not yet deleted on the server.
	StatusDeletedHard
	// StatusDeletedSoft is a message marked for soft deletion but not yet deleted on the server.
	StatusDeletedSoft
)

func (s MsgStatus) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusQueued:
		return "queued"
	case StatusSending:
		return "sending"
	case StatusFailed:
		return "failed"
	case StatusSynced:
		return "synced"
	case StatusDeletedHard:
		return "deleted-hard"
	case StatusDeletedSoft:
		return "deleted-soft"
	}
	return "undefined"
}

// TopicRecord is the persisted state of a topic.
type TopicRecord struct {
	// Local ID assigned by the store.
	Id   int64
	Name string
	Desc *model.Description
	Tags []string
	Aux  map[string]any
	// Highest known delete transaction ID.
	MaxDel int
	// Timestamp of the most recent subscription update.
	SubsUpdated *time.Time
	// Topic is a locally created topic not yet confirmed by the server.
	IsNew bool
}

// Message is a locally stored message.
type Message struct {
	// Local ID assigned by the store.
	Id    int64
	Topic string
	From  string
	Ts    time.Time
	// Server-issued sequential ID, 0 if not assigned yet.
	Seq     int
	Status  MsgStatus
	Head    map[string]any
	Content json.RawMessage
}

// IsDraft checks if the message is a draft.
func (m *Message) IsDraft() bool {
	return m.Status == StatusDraft
}

// IsReady checks if the message is ready to be sent.
func (m *Message) IsReady() bool {
	return m.Status == StatusQueued
}

// IsDeleted checks if the message is marked for deletion.
func (m *Message) IsDeleted() bool {
	return m.Status == StatusDeletedHard || m.Status == StatusDeletedSoft
}

// IsDeletedHard checks if the message is marked for hard or soft deletion.
func (m *Message) IsDeletedHard(hard bool) bool {
	if hard {
		return m.Status == StatusDeletedHard
	}
	return m.Status == StatusDeletedSoft
}

// IsSynced checks if the message is in sync with the server.
func (m *Message) IsSynced() bool {
	return m.Status == StatusSynced
}

// User is a cached description of a user.
type User struct {
	Id      int64
	Uid     string
	Updated *time.Time
	Public  *model.TheCard
}

// DelLogEntry is a record of a delete transaction applied locally.
type DelLogEntry struct {
	Topic string
	DelId int
	Low   int
	Hi    int
}

// Storage is the local persistence used by the client to keep topics, subscriptions,
// users and messages between sessions. All methods must be safe for concurrent use.
type Storage interface {
	// MyUid returns the ID of the current user or an empty string.
	MyUid() string
	// SetMyUid changes the current user. Data of a different user is discarded.
	SetMyUid(uid string) error
	DeviceToken() string
	SetDeviceToken(token string) error
	// Logout deactivates the current user.
	Logout() error
	// SetTimeAdjustment sets the difference between the server and local clocks.
	SetTimeAdjustment(adj time.Duration) error
	// IsReady checks if the storage is open and the user is known.
	IsReady() bool

	TopicGetAll() ([]*TopicRecord, error)
	// TopicAdd saves a new topic and returns its local ID.
	TopicAdd(topic *TopicRecord) (int64, error)
	TopicUpdate(topic *TopicRecord) error
	// TopicDelete removes the topic with all its messages and subscriptions.
	TopicDelete(name string) error
	// TopicRename changes the name of a topic, i.e. when the server assigned a name to a new topic.
	TopicRename(oldName, newName string) error
	// CachedMessagesRange returns the range [min, max+1) of seq IDs of locally stored messages.
	CachedMessagesRange(topic string) (model.MsgRange, error)
	SetRead(topic string, read int) error
	SetRecv(topic string, recv int) error

	// SubAdd saves a subscription received from the server.
	SubAdd(topic string, sub *model.Subscription) (int64, error)
	SubUpdate(topic string, sub *model.Subscription) error
	// SubNew saves a subscription created locally and not yet confirmed by the server.
	SubNew(topic string, sub *model.Subscription) (int64, error)
	SubDelete(topic, user string) error
	Subscriptions(topic string) ([]*model.Subscription, error)

	UserGet(uid string) (*User, error)
	UserAdd(user *User) (int64, error)
	UserUpdate(user *User) error

	// MsgReceived saves a message received from the server.
	MsgReceived(msg *model.MsgServerData) (int64, error)
	// MsgSend saves an outgoing message as queued.
	MsgSend(topic, from string, head map[string]any, content json.RawMessage) (int64, error)
	// MsgDraft saves a message as a draft.
	MsgDraft(topic, from string, head map[string]any, content json.RawMessage) (int64, error)
	MsgDraftUpdate(topic string, id int64, content json.RawMessage) error
	// MsgReady converts a draft into a queued message.
	MsgReady(topic string, id int64, content json.RawMessage) error
	// MsgDiscard removes a message which was not sent yet.
	MsgDiscard(topic string, id int64) error
	// MsgSyncing marks a queued message as being sent or returns it back to the queue.
	MsgSyncing(topic string, id int64, sync bool) error
	// MsgFailed marks a message as rejected by the server.
	MsgFailed(topic string, id int64) error
	// MsgDelivered marks the message as accepted by the server.
	MsgDelivered(topic string, id int64, ts time.Time, seq int) error
	// MsgMarkToDelete marks messages for deletion on the server.
	MsgMarkToDelete(topic string, ranges []model.MsgRange, hard bool) error
	// MsgDelete deletes messages confirmed as deleted by the server and records the delete transaction.
	MsgDelete(topic string, delId int, ranges []model.MsgRange) error
	MsgRecvByRemote(topic, user string, recv int) error
	MsgReadByRemote(topic, user string, read int) error
	MessageByID(id int64) (*Message, error)
	// Messages returns synced messages with seq IDs in the range [since, before), sorted by seq.
	Messages(topic string, since, before int) ([]*Message, error)
	// QueuedMessages returns messages waiting to be sent, sorted by local ID.
	QueuedMessages(topic string) ([]*Message, error)
	// QueuedMessageDeletes returns ranges of messages marked for deletion.
	QueuedMessageDeletes(topic string, hard bool) ([]model.MsgRange, error)
	// DelLog returns delete transactions recorded for the topic.
	DelLog(topic string) ([]DelLogEntry, error)
}
