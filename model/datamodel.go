/******************************************************************************
 *
 *  Description :
 *
 *    Wire protocol structures
 *
 *****************************************************************************/

package model

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MsgGetOpts defines Get query parameters.
type MsgGetOpts struct {
	// Optional User ID to return result(s) for one user.
	User string `json:"user,omitempty"`
	// Optional topic name to return result(s) for one topic.
	Topic string `json:"topic,omitempty"`
	// Return results modified since this timestamp.
	IfModifiedSince *time.Time `json:"ims,omitempty"`
	// Load messages/ranges with IDs equal or greater than this (inclusive or closed)
	SinceId int `json:"since,omitempty"`
	// Load messages/ranges with IDs lower than this (exclusive or open)
	BeforeId int `json:"before,omitempty"`
	// Limit the number of messages loaded
	Limit int `json:"limit,omitempty"`
	// Fetch messages with these IDs.
	IdRanges []MsgRange `json:"ranges,omitempty"`
}

// Values of the space-separated 'what' of {get}.
const (
	GetDesc = "desc"
	GetSub  = "sub"
	GetData = "data"
	GetDel  = "del"
	GetTags = "tags"
	GetCred = "cred"
	GetAux  = "aux"
)

// MsgGetQuery is a topic metadata or data query.
type MsgGetQuery struct {
	What string `json:"what"`

	// Parameters of "desc" request: IfModifiedSince
	Desc *MsgGetOpts `json:"desc,omitempty"`
	// Parameters of "sub" request: User, Topic, IfModifiedSince, Limit.
	Sub *MsgGetOpts `json:"sub,omitempty"`
	// Parameters of "data" request: Since, Before, Limit.
	Data *MsgGetOpts `json:"data,omitempty"`
	// Parameters of "del" request: Since, Before, Limit.
	Del *MsgGetOpts `json:"del,omitempty"`
}

// MsgSetSub is a payload in set.sub request to update current subscription or invite another user, {sub.what} == "sub"
type MsgSetSub struct {
	// User affected by this request. Default (empty): current user
	User string `json:"user,omitempty"`

	// Access mode change, either Given or Want depending on context
	Mode string `json:"mode,omitempty"`
}

// MsgSetDesc is a C2S in set.what == "desc", acc, sub message
type MsgSetDesc struct {
	DefAcs *MsgDefaultAcsMode `json:"defacs,omitempty"` // default access mode
	Public  any                `json:"public,omitempty"`
	Private any                `json:"private,omitempty"` // Per-subscription private data
	Trusted any                `json:"trusted,omitempty"`
}

// Bits marking fields of MsgSetQuery which must be cleared on the server.
const (
	nullDesc = 1 << iota
	nullSub
	nullTags
	nullCred
	nullAux
)

// MsgSetQuery is an update to topic metadata: Desc, subscriptions, tags, credentials, aux.
// A field which is nil is not sent. A field which is explicitly cleared is sent as NullValue.
type MsgSetQuery struct {
	// Topic metadata, new topic & new subscriptions only
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Subscription parameters
	Sub *MsgSetSub `json:"sub,omitempty"`
	// Indexable tags for user discovery
	Tags []string `json:"tags,omitempty"`
	// Update to account credentials.
	Cred *Credential `json:"cred,omitempty"`
	// Auxiliary key-value data.
	Aux map[string]any `json:"aux,omitempty"`

	nulls int
}

// ClearDesc requests the description to be cleared.
func (q *MsgSetQuery) ClearDesc() *MsgSetQuery {
	q.Desc = nil
	q.nulls |= nullDesc
	return q
}

// ClearSub requests the subscription to be cleared.
func (q *MsgSetQuery) ClearSub() *MsgSetQuery {
	q.Sub = nil
	q.nulls |= nullSub
	return q
}

// ClearTags requests all tags to be removed.
func (q *MsgSetQuery) ClearTags() *MsgSetQuery {
	q.Tags = nil
	q.nulls |= nullTags
	return q
}

// ClearCred requests the credential to be cleared.
func (q *MsgSetQuery) ClearCred() *MsgSetQuery {
	q.Cred = nil
	q.nulls |= nullCred
	return q
}

// ClearAux requests all aux data to be removed.
func (q *MsgSetQuery) ClearAux() *MsgSetQuery {
	q.Aux = nil
	q.nulls |= nullAux
	return q
}

// IsEmpty checks if the query neither sets nor clears anything.
func (q *MsgSetQuery) IsEmpty() bool {
	return q == nil || (q.Desc == nil && q.Sub == nil && len(q.Tags) == 0 && q.Cred == nil && len(q.Aux) == 0 && q.nulls == 0)
}

func (q *MsgSetQuery) fields(out map[string]any) {
	if q.Desc != nil {
		out["desc"] = q.Desc
	} else if q.nulls&nullDesc != 0 {
		out["desc"] = NullValue
	}
	if q.Sub != nil {
		out["sub"] = q.Sub
	} else if q.nulls&nullSub != 0 {
		out["sub"] = NullValue
	}
	if len(q.Tags) > 0 {
		out["tags"] = q.Tags
	} else if q.nulls&nullTags != 0 {
		out["tags"] = []string{NullValue}
	}
	if q.Cred != nil {
		out["cred"] = q.Cred
	} else if q.nulls&nullCred != 0 {
		out["cred"] = NullValue
	}
	if len(q.Aux) > 0 {
		out["aux"] = q.Aux
	} else if q.nulls&nullAux != 0 {
		out["aux"] = NullValue
	}
}

// MarshalJSON serializes cleared fields as NullValue.
func (q MsgSetQuery) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	q.fields(out)
	return json.Marshal(out)
}

// MsgClientExtra accompanies a {pub} or {set} which references uploaded files.
type MsgClientExtra struct {
	// URLs of out-of-band attachments, so the server keeps the files.
	Attachments []string `json:"attachments,omitempty"`
}

// Client to Server (C2S) messages

// MsgClientHi is a handshake {hi} message.
type MsgClientHi struct {
	// Message Id
	Id string `json:"id,omitempty"`
	// User agent
	UserAgent string `json:"ua,omitempty"`
	// Protocol version, i.e. "0"
	Version string `json:"ver,omitempty"`
	// Client's unique device ID
	DeviceID string `json:"dev,omitempty"`
	// ISO 639-1 human language of the connected device
	Lang string `json:"lang,omitempty"`
	// Platform code: ios, android, web.
	Platform string `json:"platf,omitempty"`
	// Session is initially in non-iteractive, i.e. issued by a service. Presence notifications are delayed.
	Background bool `json:"bkg,omitempty"`
}

// MsgClientAcc is an {acc} message for creating or updating a user account.
type MsgClientAcc struct {
	// Message Id
	Id string `json:"id,omitempty"`
	// "newXYZ" to create a new user or UserId to update a user; default: current user.
	User string `json:"user,omitempty"`
	// Authentication token for resetting the password and maybe other one-time actions.
	Token []byte `json:"token,omitempty"`
	// The initial authentication scheme the account can use
	Scheme string `json:"scheme,omitempty"`
	// Shared secret
	Secret []byte `json:"secret,omitempty"`
	// Authenticate session with the newly created account
	Login bool `json:"login,omitempty"`
	// Indexable tags for user discovery
	Tags []string `json:"tags,omitempty"`
	// User initialization data when creating a new user, otherwise ignored
	Desc *MsgSetDesc `json:"desc,omitempty"`
	// Credentials to verify (email or phone or captcha)
	Cred []Credential `json:"cred,omitempty"`
}

// MsgClientLogin is a login {login} message.
type MsgClientLogin struct {
	// Message Id
	Id string `json:"id,omitempty"`
	// Authentication scheme
	Scheme string `json:"scheme,omitempty"`
	// Shared secret
	Secret []byte `json:"secret"`
	// Credentials being verified (email or phone or captcha etc.)
	Cred []Credential `json:"cred,omitempty"`
}

// MsgClientSub is a subscription request {sub} message.
type MsgClientSub struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`

	// Mirrors {set}.
	Set *MsgSetQuery `json:"set,omitempty"`

	// Mirrors {get}.
	Get *MsgGetQuery `json:"get,omitempty"`
}

// MsgClientLeave is an unsubscribe {leave} request message.
type MsgClientLeave struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Unsub bool   `json:"unsub,omitempty"`
}

// MsgClientPub is client's request to publish data to topic subscribers {pub}
type MsgClientPub struct {
	Id      string         `json:"id,omitempty"`
	Topic   string         `json:"topic"`
	NoEcho  bool           `json:"noecho,omitempty"`
	Head    map[string]any `json:"head,omitempty"`
	Content any            `json:"content"`
}

// MsgClientGet is a query of topic state {get}.
type MsgClientGet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgGetQuery
}

// MsgClientSet is an update of topic state {set}
type MsgClientSet struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	MsgSetQuery
}

// MarshalJSON is needed because the embedded MsgSetQuery would otherwise hide Id and Topic.
func (src MsgClientSet) MarshalJSON() ([]byte, error) {
	out := map[string]any{"topic": src.Topic}
	if src.Id != "" {
		out["id"] = src.Id
	}
	src.MsgSetQuery.fields(out)
	return json.Marshal(out)
}

// What to delete in {del}.
const (
	DelWhatMsg   = "msg"
	DelWhatTopic = "topic"
	DelWhatSub   = "sub"
	DelWhatUser  = "user"
	DelWhatCred  = "cred"
)

// MsgClientDel delete messages or topic {del}.
type MsgClientDel struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic,omitempty"`
	// What to delete:
	// * "msg" to delete messages (default)
	// * "topic" to delete the topic
	// * "sub" to delete a subscription to topic.
	// * "user" to delete or disable user.
	// * "cred" to delete credential (email or phone)
	What string `json:"what"`
	// Delete messages with these IDs (either one by one or a set of ranges)
	DelSeq []MsgRange `json:"delseq,omitempty"`
	// User ID of the user or subscription to delete
	User string `json:"user,omitempty"`
	// Credential to delete
	Cred *Credential `json:"cred,omitempty"`
	// Request to hard-delete objects (i.e. delete messages for all users), if such option is available.
	Hard bool `json:"hard,omitempty"`
}

// What is being reported in {note}.
const (
	NoteRecv     = "recv"
	NoteRead     = "read"
	NoteKeyPress = "kp"
)

// MsgClientNote is a client-generated notification for topic subscribers {note}.
type MsgClientNote struct {
	// There is no Id -- server will not akn {note} packets, they are "fire and forget"
	Topic string `json:"topic"`
	// what is being reported: "recv" - message received, "read" - message read, "kp" - typing notification
	What string `json:"what"`
	// Server-issued message ID being reported
	SeqId int `json:"seq,omitempty"`
	// Client's count of unread messages to report back to the server. Used in push notifications on iOS.
	Unread int `json:"unread,omitempty"`
}

// ClientComMessage is a wrapper for client messages.
type ClientComMessage struct {
	Hi    *MsgClientHi    `json:"hi,omitempty"`
	Acc   *MsgClientAcc   `json:"acc,omitempty"`
	Login *MsgClientLogin `json:"login,omitempty"`
	Sub   *MsgClientSub   `json:"sub,omitempty"`
	Leave *MsgClientLeave `json:"leave,omitempty"`
	Pub   *MsgClientPub   `json:"pub,omitempty"`
	Get   *MsgClientGet   `json:"get,omitempty"`
	Set   *MsgClientSet   `json:"set,omitempty"`
	Del   *MsgClientDel   `json:"del,omitempty"`
	Note  *MsgClientNote  `json:"note,omitempty"`

	Extra *MsgClientExtra `json:"extra,omitempty"`
}

// Id returns the id of the message, if any.
func (src *ClientComMessage) Id() string {
	switch {
	case src.Hi != nil:
		return src.Hi.Id
	case src.Acc != nil:
		return src.Acc.Id
	case src.Login != nil:
		return src.Login.Id
	case src.Sub != nil:
		return src.Sub.Id
	case src.Leave != nil:
		return src.Leave.Id
	case src.Pub != nil:
		return src.Pub.Id
	case src.Get != nil:
		return src.Get.Id
	case src.Set != nil:
		return src.Set.Id
	case src.Del != nil:
		return src.Del.Id
	}
	return ""
}

// Describe returns a short human-readable description of the message for logging.
func (src *ClientComMessage) Describe() string {
	if src == nil {
		return "-"
	}
	switch {
	case src.Hi != nil:
		return "{hi id=" + src.Hi.Id + " ver=" + src.Hi.Version + " ua=" + src.Hi.UserAgent + "}"
	case src.Acc != nil:
		return "{acc id=" + src.Acc.Id + " user=" + src.Acc.User + " scheme=" + src.Acc.Scheme + "}"
	case src.Login != nil:
		return "{login id=" + src.Login.Id + " scheme=" + src.Login.Scheme + "}"
	case src.Sub != nil:
		return "{sub " + src.Sub.Topic + " id=" + src.Sub.Id + "}"
	case src.Leave != nil:
		return "{leave " + src.Leave.Topic + " id=" + src.Leave.Id + " unsub=" + strconv.FormatBool(src.Leave.Unsub) + "}"
	case src.Pub != nil:
		return "{pub " + src.Pub.Topic + " id=" + src.Pub.Id + "}"
	case src.Get != nil:
		return "{get " + src.Get.Topic + " id=" + src.Get.Id + " what=" + src.Get.What + "}"
	case src.Set != nil:
		return "{set " + src.Set.Topic + " id=" + src.Set.Id + "}"
	case src.Del != nil:
		return "{del " + src.Del.Topic + " id=" + src.Del.Id + " what=" + src.Del.What + "}"
	case src.Note != nil:
		return "{note " + src.Note.Topic + " what=" + src.Note.What + " seq=" + strconv.Itoa(src.Note.SeqId) + "}"
	}
	return "{nil}"
}

/////////////////////////////////////////////////////////////
// Server to client messages

// MsgTopicDesc is a topic description, S2C in Meta message.
type MsgTopicDesc struct {
	CreatedAt *time.Time `json:"created,omitempty"`
	UpdatedAt *time.Time `json:"updated,omitempty"`
	// Timestamp of the last message
	TouchedAt *time.Time `json:"touched,omitempty"`

	// Account state, 'me' topic only.
	State string `json:"state,omitempty"`

	// If the group topic is online.
	Online bool `json:"online,omitempty"`

	DefaultAcs *MsgDefaultAcsMode `json:"defacs,omitempty"`
	// Actual access mode
	Acs *MsgAccessMode `json:"acs,omitempty"`
	// Max message ID
	SeqId     int `json:"seq,omitempty"`
	ReadSeqId int `json:"read,omitempty"`
	RecvSeqId int `json:"recv,omitempty"`
	// Id of the last delete operation as seen by the requesting user
	DelId  int             `json:"clear,omitempty"`
	Public json.RawMessage `json:"public,omitempty"`
	// Per-subscription private data
	Private json.RawMessage `json:"private,omitempty"`
	// Data assigned by the server administration.
	Trusted json.RawMessage `json:"trusted,omitempty"`
	// P2P only: peer's last online timestamp & user agent.
	LastSeen *LastSeen `json:"seen,omitempty"`
}

func (src *MsgTopicDesc) describe() string {
	var s string
	if src.State != "" {
		s = " state=" + src.State
	}
	s += " online=" + strconv.FormatBool(src.Online)
	if src.Acs != nil {
		s += " acs={" + src.Acs.describe() + "}"
	}
	if src.SeqId != 0 {
		s += " seq=" + strconv.Itoa(src.SeqId)
	}
	if src.ReadSeqId != 0 {
		s += " read=" + strconv.Itoa(src.ReadSeqId)
	}
	if src.RecvSeqId != 0 {
		s += " recv=" + strconv.Itoa(src.RecvSeqId)
	}
	if src.DelId != 0 {
		s += " clear=" + strconv.Itoa(src.DelId)
	}
	if src.Public != nil {
		s += " pub='...'"
	}
	if src.Private != nil {
		s += " priv='...'"
	}
	return s
}

// MsgTopicSub is topic subscription details, sent in Meta message.
type MsgTopicSub struct {
	// Fields common to all subscriptions

	// Timestamp when the subscription was last updated
	UpdatedAt *time.Time `json:"updated,omitempty"`
	// Timestamp when the subscription was deleted
	DeletedAt *time.Time `json:"deleted,omitempty"`

	// If the subscriber/topic is online
	Online bool `json:"online,omitempty"`

	// Access mode. Topic admins receive the full info, non-admins receive just the cumulative mode
	// Acs.Mode = want & given.
	Acs *MsgAccessMode `json:"acs,omitempty"`
	// ID of the message reported by the given user as read
	ReadSeqId int `json:"read,omitempty"`
	// ID of the message reported by the given user as received
	RecvSeqId int `json:"recv,omitempty"`
	// Topic's public data
	Public json.RawMessage `json:"public,omitempty"`
	// User's own private data per topic
	Private json.RawMessage `json:"private,omitempty"`
	// Data assigned by the server administration.
	Trusted json.RawMessage `json:"trusted,omitempty"`

	// Response to non-'me' topic

	// Uid of the subscribed user
	User string `json:"user,omitempty"`

	// The following sections makes sense only in context of getting
	// user's own subscriptions ('me' topic response)

	// Topic name of this subscription
	Topic string `json:"topic,omitempty"`
	// Timestamp of the last message in the topic.
	TouchedAt *time.Time `json:"touched,omitempty"`
	// ID of the last {data} message in a topic
	SeqId int `json:"seq,omitempty"`
	// Id of the latest Delete operation
	DelId int `json:"clear,omitempty"`

	// P2P topics only:

	// Other user's last online timestamp & user agent
	LastSeen *LastSeen `json:"seen,omitempty"`
}

func (src *MsgTopicSub) describe() string {
	s := src.Topic + ":" + src.User + " online=" + strconv.FormatBool(src.Online)
	if src.Acs != nil {
		s += " acs=" + src.Acs.describe()
	}
	if src.SeqId != 0 {
		s += " seq=" + strconv.Itoa(src.SeqId)
	}
	if src.ReadSeqId != 0 {
		s += " read=" + strconv.Itoa(src.ReadSeqId)
	}
	if src.RecvSeqId != 0 {
		s += " recv=" + strconv.Itoa(src.RecvSeqId)
	}
	if src.DelId != 0 {
		s += " clear=" + strconv.Itoa(src.DelId)
	}
	if src.Public != nil {
		s += " pub='...'"
	}
	if src.Private != nil {
		s += " priv='...'"
	}
	if src.LastSeen != nil {
		s += " seen={" + src.LastSeen.describe() + "}"
	}
	return s
}

// MsgDelValues describes request to delete messages.
type MsgDelValues struct {
	DelId  int        `json:"clear,omitempty"`
	DelSeq []MsgRange `json:"delseq,omitempty"`
}

// MsgServerCtrl is a server control message {ctrl}.
type MsgServerCtrl struct {
	Id     string         `json:"id,omitempty"`
	Topic  string         `json:"topic,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	Code      int       `json:"code"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// IsSuccess checks if the code is in the 2xx-3xx range.
func (src *MsgServerCtrl) IsSuccess() bool {
	return src.Code >= http.StatusOK && src.Code < http.StatusBadRequest
}

// StringParam returns a string parameter or def if the parameter is missing or not a string.
func (src *MsgServerCtrl) StringParam(key, def string) string {
	if v, ok := src.Params[key].(string); ok {
		return v
	}
	return def
}

// IntParam returns an integer parameter or def if the parameter is missing or not a number.
func (src *MsgServerCtrl) IntParam(key string, def int) int {
	switch v := src.Params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// BoolParam returns a boolean parameter or def.
func (src *MsgServerCtrl) BoolParam(key string, def bool) bool {
	if v, ok := src.Params[key].(bool); ok {
		return v
	}
	return def
}

// TimeParam returns a timestamp parameter or nil.
func (src *MsgServerCtrl) TimeParam(key string) *time.Time {
	if v, ok := src.Params[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &t
		}
	}
	return nil
}

// StringsParam returns an array of strings parameter.
func (src *MsgServerCtrl) StringsParam(key string) []string {
	arr, ok := src.Params[key].([]any)
	if !ok {
		return nil
	}
	var res []string
	for _, v := range arr {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// AcsParam extracts the access mode from the {ctrl} params, i.e. the 'acs' of {ctrl} in response to {sub}.
func (src *MsgServerCtrl) AcsParam(key string) *Acs {
	obj, ok := src.Params[key].(map[string]any)
	if !ok {
		return nil
	}
	str := func(k string) string {
		s, _ := obj[k].(string)
		return s
	}
	return (&MsgAccessMode{Want: str("want"), Given: str("given"), Mode: str("mode")}).Acs()
}

func (src *MsgServerCtrl) describe() string {
	return src.Topic + " id=" + src.Id + " code=" + strconv.Itoa(src.Code) + " txt=" + src.Text
}

// MsgServerData is a server {data} message.
type MsgServerData struct {
	Topic string `json:"topic"`
	// ID of the user who originated the message as {pub}, could be empty if sent by the system
	From      string          `json:"from,omitempty"`
	Timestamp time.Time       `json:"ts"`
	DeletedAt *time.Time      `json:"deleted,omitempty"`
	SeqId     int             `json:"seq"`
	Head      map[string]any  `json:"head,omitempty"`
	Content   json.RawMessage `json:"content"`
}

func (src *MsgServerData) describe() string {
	s := src.Topic + " from=" + src.From + " seq=" + strconv.Itoa(src.SeqId)
	if src.DeletedAt != nil {
		s += " deleted"
	} else {
		if src.Head != nil {
			s += " head=..."
		}
		s += " content='...'"
	}
	return s
}

// Values of the 'what' field of {pres}.
const (
	PresOn      = "on"
	PresOff     = "off"
	PresUpd     = "upd"
	PresGone    = "gone"
	PresTerm    = "term"
	PresAcs     = "acs"
	PresMsg     = "msg"
	PresUa      = "ua"
	PresRecv    = "recv"
	PresRead    = "read"
	PresDel     = "del"
	PresTags    = "tags"
	PresAux     = "aux"
	PresUnknown = "unkn"
)

// MsgServerPres is presence notification {pres} (authoritative update).
type MsgServerPres struct {
	Topic     string     `json:"topic"`
	Src       string     `json:"src,omitempty"`
	What      string     `json:"what"`
	UserAgent string     `json:"ua,omitempty"`
	SeqId     int        `json:"seq,omitempty"`
	DelId     int        `json:"clear,omitempty"`
	DelSeq    []MsgRange `json:"delseq,omitempty"`
	AcsTarget string     `json:"tgt,omitempty"`
	AcsActor  string     `json:"act,omitempty"`
	// Acs or a delta Acs, named 'dacs' to allow different handling on the client
	Acs *MsgAccessMode `json:"dacs,omitempty"`
}

// ParseWhat normalizes the 'what' value of a presence message.
func (src *MsgServerPres) ParseWhat() string {
	switch src.What {
	case PresOn, PresOff, PresUpd, PresGone, PresTerm, PresAcs, PresMsg, PresUa,
		PresRecv, PresRead, PresDel, PresTags, PresAux:
		return src.What
	}
	return PresUnknown
}

func (src *MsgServerPres) describe() string {
	s := src.Topic
	if src.Src != "" {
		s += " src=" + src.Src
	}
	if src.What != "" {
		s += " what=" + src.What
	}
	if src.UserAgent != "" {
		s += " ua=" + src.UserAgent
	}
	if src.SeqId != 0 {
		s += " seq=" + strconv.Itoa(src.SeqId)
	}
	if src.DelId != 0 {
		s += " clear=" + strconv.Itoa(src.DelId)
	}
	if src.DelSeq != nil {
		s += " delseq"
	}
	if src.AcsTarget != "" {
		s += " tgt=" + src.AcsTarget
	}
	if src.AcsActor != "" {
		s += " actor=" + src.AcsActor
	}
	if src.Acs != nil {
		s += " dacs=" + src.Acs.describe()
	}
	return s
}

// MsgServerMeta is a topic metadata {meta} update.
type MsgServerMeta struct {
	Id    string `json:"id,omitempty"`
	Topic string `json:"topic"`

	Timestamp *time.Time `json:"ts,omitempty"`

	// Topic description
	Desc *MsgTopicDesc `json:"desc,omitempty"`
	// Subscriptions as an array of objects
	Sub []MsgTopicSub `json:"sub,omitempty"`
	// Delete ID and the ranges of IDs of deleted messages
	Del *MsgDelValues `json:"del,omitempty"`
	// User discovery tags
	Tags []string `json:"tags,omitempty"`
	// Account credentials, 'me' only.
	Cred []*Credential `json:"cred,omitempty"`
	// Auxiliary data.
	Aux map[string]any `json:"aux,omitempty"`
}

func (src *MsgServerMeta) describe() string {
	s := src.Topic + " id=" + src.Id

	if src.Desc != nil {
		s += " desc={" + src.Desc.describe() + "}"
	}
	if src.Sub != nil {
		var x []string
		for _, sub := range src.Sub {
			x = append(x, sub.describe())
		}
		s += " sub=[{" + strings.Join(x, "},{") + "}]"
	}
	if src.Del != nil {
		x, _ := json.Marshal(src.Del)
		s += " del={" + string(x) + "}"
	}
	if src.Tags != nil {
		s += " tags=[" + strings.Join(src.Tags, ",") + "]"
	}
	if src.Cred != nil {
		x, _ := json.Marshal(src.Cred)
		s += " cred=[" + string(x) + "]"
	}
	if src.Aux != nil {
		keys := make([]string, 0, len(src.Aux))
		for k := range src.Aux {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s += " aux=[" + strings.Join(keys, ",") + "]"
	}
	return s
}

// MsgServerInfo is the server-side copy of MsgClientNote with From added (non-authoritative).
type MsgServerInfo struct {
	Topic string `json:"topic"`
	// Topic the notification originated from when delivered to 'me'.
	Src string `json:"src,omitempty"`
	// ID of the user who originated the message
	From string `json:"from"`
	// what is being reported: "recv" - message received, "read" - message read, "kp" - typing notification
	What string `json:"what"`
	// Server-issued message ID being reported
	SeqId int `json:"seq,omitempty"`
}

// Basic description
func (src *MsgServerInfo) describe() string {
	s := src.Topic + " what=" + src.What + " from=" + src.From
	if src.SeqId > 0 {
		s += " seq=" + strconv.Itoa(src.SeqId)
	}
	return s
}

// ServerComMessage is a wrapper for server-side messages.
type ServerComMessage struct {
	Ctrl *MsgServerCtrl `json:"ctrl,omitempty"`
	Data *MsgServerData `json:"data,omitempty"`
	Meta *MsgServerMeta `json:"meta,omitempty"`
	Pres *MsgServerPres `json:"pres,omitempty"`
	Info *MsgServerInfo `json:"info,omitempty"`
}

// Id returns the id of the message this one is a response to.
func (src *ServerComMessage) Id() string {
	switch {
	case src.Ctrl != nil:
		return src.Ctrl.Id
	case src.Meta != nil:
		return src.Meta.Id
	}
	return ""
}

// Topic returns the name of the topic the message is addressed to.
func (src *ServerComMessage) Topic() string {
	switch {
	case src.Ctrl != nil:
		return src.Ctrl.Topic
	case src.Data != nil:
		return src.Data.Topic
	case src.Meta != nil:
		return src.Meta.Topic
	case src.Pres != nil:
		return src.Pres.Topic
	case src.Info != nil:
		return src.Info.Topic
	}
	return ""
}

// Describe returns a short human-readable description of the message for logging.
func (src *ServerComMessage) Describe() string {
	if src == nil {
		return "-"
	}

	switch {
	case src.Ctrl != nil:
		return "{ctrl " + src.Ctrl.describe() + "}"
	case src.Data != nil:
		return "{data " + src.Data.describe() + "}"
	case src.Meta != nil:
		return "{meta " + src.Meta.describe() + "}"
	case src.Pres != nil:
		return "{pres " + src.Pres.describe() + "}"
	case src.Info != nil:
		return "{info " + src.Info.describe() + "}"
	default:
		return "{nil}"
	}
}
