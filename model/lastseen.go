package model

import "time"

// LastSeen is the timestamp and the user agent of the user's last appearance online.
type LastSeen struct {
	// Timestamp of user's last appearance online.
	When *time.Time `json:"when,omitempty"`
	// User agent of the device when the user was last online.
	UserAgent string `json:"ua,omitempty"`
}

func (src *LastSeen) describe() string {
	if src.When == nil {
		return "'" + src.UserAgent + "'"
	}
	return "'" + src.UserAgent + "' @ " + src.When.String()
}

// Merge takes the other value if it's newer. The user agent travels along with the timestamp.
func (src *LastSeen) Merge(that *LastSeen) bool {
	if that == nil || that.When == nil {
		return false
	}
	if src.When == nil || src.When.Before(*that.When) {
		when := *that.When
		src.When = &when
		src.UserAgent = that.UserAgent
		return true
	}
	return false
}
