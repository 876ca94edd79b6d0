package model

import "strings"

// Reserved topic names and prefixes.
const (
	TopicMe  = "me"
	TopicFnd = "fnd"
	TopicSys = "sys"
	TopicSlf = "slf"

	// Prefix of a placeholder name of a topic not yet created on the server.
	TopicNew = "new"
	// Prefix of a placeholder name of a channel not yet created on the server.
	TopicNewChannel = "nch"
	TopicGrpPrefix  = "grp"
	TopicChnPrefix  = "chn"
	TopicUsrPrefix  = "usr"
	TopicP2PPrefix  = "p2p"
)

// TopicKind is the type of the topic derived from its name.
type TopicKind int

// Topic kinds. Values are bit flags so that kinds can be combined into filters.
const (
	KindUnknown TopicKind = 0
	KindMe      TopicKind = 0x01
	KindFnd     TopicKind = 0x02
	KindGrp     TopicKind = 0x04
	KindP2P     TopicKind = 0x08
	KindSys     TopicKind = 0x10
	KindSlf     TopicKind = 0x20
	// Communication topics: group, p2p and self.
	KindCom TopicKind = KindGrp | KindP2P | KindSlf
	KindAny TopicKind = KindMe | KindFnd | KindGrp | KindP2P | KindSys | KindSlf
)

func (k TopicKind) String() string {
	switch k {
	case KindMe:
		return "me"
	case KindFnd:
		return "fnd"
	case KindGrp:
		return "grp"
	case KindP2P:
		return "p2p"
	case KindSys:
		return "sys"
	case KindSlf:
		return "slf"
	case KindUnknown:
		return "unknown"
	}
	return "mixed"
}

// Match checks if the kind is included in the filter.
func (k TopicKind) Match(filter TopicKind) bool {
	return k&filter != 0
}

// TopicKindOf returns the kind of the topic given its name.
func TopicKindOf(name string) TopicKind {
	switch name {
	case TopicMe:
		return KindMe
	case TopicFnd:
		return KindFnd
	case TopicSys:
		return KindSys
	case TopicSlf:
		return KindSlf
	case "":
		return KindUnknown
	}
	switch {
	case strings.HasPrefix(name, TopicGrpPrefix), strings.HasPrefix(name, TopicNew),
		strings.HasPrefix(name, TopicNewChannel), strings.HasPrefix(name, TopicChnPrefix):
		return KindGrp
	case strings.HasPrefix(name, TopicUsrPrefix), strings.HasPrefix(name, TopicP2PPrefix):
		return KindP2P
	}
	return KindUnknown
}

// IsNewTopicName checks if the name is a placeholder for a topic not yet created on the server.
func IsNewTopicName(name string) bool {
	return strings.HasPrefix(name, TopicNew) || strings.HasPrefix(name, TopicNewChannel)
}

// IsChannelName checks if the name is a channel name, i.e. 'chnXYZ' or a placeholder 'nchXYZ'.
func IsChannelName(name string) bool {
	return strings.HasPrefix(name, TopicChnPrefix) || strings.HasPrefix(name, TopicNewChannel)
}

// ChannelToGroup converts 'chnXYZ' into 'grpXYZ'. Other names are returned unchanged.
func ChannelToGroup(name string) string {
	if strings.HasPrefix(name, TopicChnPrefix) {
		return TopicGrpPrefix + name[len(TopicChnPrefix):]
	}
	return name
}

// GroupToChannel converts 'grpXYZ' into 'chnXYZ'. Other names are returned unchanged.
func GroupToChannel(name string) string {
	if strings.HasPrefix(name, TopicGrpPrefix) {
		return TopicChnPrefix + name[len(TopicGrpPrefix):]
	}
	return name
}

// IsUserID checks if the string looks like a user ID 'usrXYZ'.
func IsUserID(name string) bool {
	return strings.HasPrefix(name, TopicUsrPrefix) && len(name) > len(TopicUsrPrefix)
}
