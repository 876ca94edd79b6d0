package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// AccessMode is a definition of access mode bits.
type AccessMode uint

// Various access mode constants.
const (
	ModeJoin    AccessMode = 1 << iota // user can join, i.e. {sub} (J:1)
	ModeRead                           // user can receive broadcasts ({data}, {info}) (R:2)
	ModeWrite                          // user can Write, i.e. {pub} (W:4)
	ModePres                           // user can receive presence updates (P:8)
	ModeApprove                        // user can approve new members or evict existing members (A:0x10)
	ModeShare                          // user can invite new members (S:0x20)
	ModeDelete                         // user can hard-delete messages (D:0x40)
	ModeOwner                          // user is the owner (O:0x80) - full access
	ModeUnset                          // Non-zero value to indicate unknown or undefined mode (:0x100),
	// to make it different from ModeNone

	ModeNone AccessMode = 0 // No access, requests to gain access are processed normally (N)

	// Normal user's access to a topic
	ModeCPublic AccessMode = ModeJoin | ModeRead | ModeWrite | ModePres | ModeShare
	// Owner's subscription to a generic topic
	ModeCFull AccessMode = ModeJoin | ModeRead | ModeWrite | ModePres | ModeApprove | ModeShare | ModeDelete | ModeOwner
	// Default P2P access mode
	ModeCP2P AccessMode = ModeJoin | ModeRead | ModeWrite | ModePres | ModeApprove
	// Read-only access to topic (0x3)
	ModeCReadOnly = ModeJoin | ModeRead

	// Invalid mode to indicate an error
	ModeInvalid AccessMode = 0x100000
)

// ErrInvalidMode is returned when an access mode string or delta cannot be parsed.
var ErrInvalidMode = errors.New("invalid access mode")

var modeChars = []byte{'J', 'R', 'W', 'P', 'A', 'S', 'D', 'O'}

// ParseAccessMode converts a string like "JRWP" into access mode bits.
// Empty string is ModeUnset. 'N' (none) and 'X' (banned) reset all bits regardless
// of other characters. Any unrecognized character produces ModeInvalid.
func ParseAccessMode(s string) AccessMode {
	if s == "" {
		return ModeUnset
	}
	m0 := ModeNone
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'J', 'j':
			m0 |= ModeJoin
		case 'R', 'r':
			m0 |= ModeRead
		case 'W', 'w':
			m0 |= ModeWrite
		case 'P', 'p':
			m0 |= ModePres
		case 'A', 'a':
			m0 |= ModeApprove
		case 'S', 's':
			m0 |= ModeShare
		case 'D', 'd':
			m0 |= ModeDelete
		case 'O', 'o':
			m0 |= ModeOwner
		case 'N', 'n', 'X', 'x':
			return ModeNone
		default:
			return ModeInvalid
		}
	}
	return m0
}

// MarshalText converts AccessMode to ASCII byte slice.
func (m AccessMode) MarshalText() ([]byte, error) {
	if m == ModeNone {
		return []byte{'N'}, nil
	}
	if m == ModeInvalid || m&ModeUnset != 0 {
		return nil, ErrInvalidMode
	}

	var res = []byte{}
	for i, chr := range modeChars {
		if (m & (1 << uint(i))) != 0 {
			res = append(res, chr)
		}
	}
	return res, nil
}

// UnmarshalText parses access mode string as byte slice.
// Does not change the mode if the string is empty.
func (m *AccessMode) UnmarshalText(b []byte) error {
	m0 := ParseAccessMode(string(b))
	if m0 == ModeInvalid {
		return errors.New("AccessMode: invalid value '" + string(b) + "'")
	}
	if m0 != ModeUnset {
		*m = m0
	}
	return nil
}

// String returns string representation of AccessMode. Undefined or invalid modes
// are represented by an empty string.
func (m AccessMode) String() string {
	res, err := m.MarshalText()
	if err != nil {
		return ""
	}
	return string(res)
}

// MarshalJSON converts AccessMode to a quoted string.
func (m AccessMode) MarshalJSON() ([]byte, error) {
	res, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(res))
}

// UnmarshalJSON reads AccessMode from a quoted string.
func (m *AccessMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}

// Update applies a change to the access mode. The change is either a delta such
// as "+W-PA" or a full replacement value like "JRW". Returns true if any bit
// has changed.
func (m *AccessMode) Update(change string) (bool, error) {
	if change == "" {
		return false, nil
	}

	old := *m
	val := old
	if !val.IsDefined() {
		val = ModeNone
	}

	if change[0] != '+' && change[0] != '-' {
		m0 := ParseAccessMode(change)
		if m0 == ModeInvalid {
			return false, ErrInvalidMode
		}
		*m = m0
		return *m != old, nil
	}

	// Split "+W-PA" into ["+W", "-PA"].
	for len(change) > 0 {
		sign := change[0]
		if sign != '+' && sign != '-' {
			return false, ErrInvalidMode
		}
		end := strings.IndexAny(change[1:], "+-")
		var token string
		if end < 0 {
			token, change = change[1:], ""
		} else {
			token, change = change[1:end+1], change[end+1:]
		}
		if token == "" {
			return false, ErrInvalidMode
		}
		m0 := ParseAccessMode(token)
		if m0 == ModeInvalid {
			return false, ErrInvalidMode
		}
		if m0 == ModeNone {
			// '+N' and '-N' carry no bits; '+X' bans.
			if sign == '+' && strings.ContainsAny(token, "Xx") {
				val = ModeNone
			}
			continue
		}
		if sign == '+' {
			val |= m0
		} else {
			val &^= m0
		}
	}

	*m = val
	return val != old, nil
}

// BetterEqual checks if grant mode allows all that was requested in want mode.
func (m AccessMode) BetterEqual(want AccessMode) bool {
	return m&want == want
}

// Delta between two modes as a string old.Delta(new). JRPAS -> JRWS: "+W-PA"
// Zero delta is an empty string ""
func (m AccessMode) Delta(n AccessMode) string {
	o := m
	if !o.IsDefined() {
		o = ModeNone
	}
	if !n.IsDefined() {
		n = ModeNone
	}

	// Removed bits, bits present in 'old' but missing in 'new' -> '-'
	var removed string
	if o2n := o &^ n; o2n > 0 {
		removed = "-" + o2n.String()
	}

	// Added bits, bits present in 'n' but missing in 'o' -> '+'
	var added string
	if n2o := n &^ o; n2o > 0 {
		added = "+" + n2o.String()
	}
	return added + removed
}

// IsJoiner checks if joiner flag J is set.
func (m AccessMode) IsJoiner() bool {
	return m.IsDefined() && m&ModeJoin != 0
}

// IsOwner checks if owner bit O is set.
func (m AccessMode) IsOwner() bool {
	return m.IsDefined() && m&ModeOwner != 0
}

// IsApprover checks if approver A bit is set.
func (m AccessMode) IsApprover() bool {
	return m.IsDefined() && m&ModeApprove != 0
}

// IsAdmin check if owner O or approver A flag is set.
func (m AccessMode) IsAdmin() bool {
	return m.IsOwner() || m.IsApprover()
}

// IsSharer checks if approver A or sharer S or owner O flag is set.
func (m AccessMode) IsSharer() bool {
	return m.IsAdmin() || (m.IsDefined() && m&ModeShare != 0)
}

// IsWriter checks if allowed to publish (writer flag W is set).
func (m AccessMode) IsWriter() bool {
	return m.IsDefined() && m&ModeWrite != 0
}

// IsReader checks if reader flag R is set.
func (m AccessMode) IsReader() bool {
	return m.IsDefined() && m&ModeRead != 0
}

// IsPresencer checks if user receives presence updates (P flag set).
func (m AccessMode) IsPresencer() bool {
	return m.IsDefined() && m&ModePres != 0
}

// IsMuted checks if presence notifications are disabled.
func (m AccessMode) IsMuted() bool {
	return m.IsDefined() && m&ModePres == 0
}

// IsDeleter checks if user can hard-delete messages (D flag is set).
func (m AccessMode) IsDeleter() bool {
	return m.IsDefined() && m&ModeDelete != 0
}

// IsDefined checks if the mode carries a value, possibly ModeNone.
func (m AccessMode) IsDefined() bool {
	return m&ModeUnset == 0 && m != ModeInvalid
}

// IsInvalid checks if mode is invalid.
func (m AccessMode) IsInvalid() bool {
	return m == ModeInvalid
}

// Acs is a user's access to a topic: requested, granted and effective.
type Acs struct {
	// Access mode requested by the user
	Want AccessMode
	// Access mode granted to the user by the admin
	Given AccessMode
	// Cumulative access mode want & given
	Mode AccessMode
}

// NewAcs creates Acs with all values undefined.
func NewAcs() *Acs {
	return &Acs{Want: ModeUnset, Given: ModeUnset, Mode: ModeUnset}
}

// ParseAcs creates Acs from want, given and mode strings. Empty strings are undefined.
func ParseAcs(want, given, mode string) *Acs {
	a := &Acs{
		Want:  ParseAccessMode(want),
		Given: ParseAccessMode(given),
		Mode:  ParseAccessMode(mode),
	}
	if !a.Mode.IsDefined() {
		a.recompute()
	}
	return a
}

// MsgAccessMode is a wire definition of access mode.
type MsgAccessMode struct {
	// Access mode requested by the user
	Want string `json:"want,omitempty"`
	// Access mode granted to the user by the admin
	Given string `json:"given,omitempty"`
	// Cumulative access mode want & given
	Mode string `json:"mode,omitempty"`
}

func (src *MsgAccessMode) describe() string {
	var s string
	if src.Want != "" {
		s = "w=" + src.Want
	}
	if src.Given != "" {
		s += " g=" + src.Given
	}
	if src.Mode != "" {
		s += " m=" + src.Mode
	}
	return strings.TrimSpace(s)
}

// Acs converts wire access mode into Acs.
func (src *MsgAccessMode) Acs() *Acs {
	if src == nil {
		return nil
	}
	return &Acs{
		Want:  ParseAccessMode(src.Want),
		Given: ParseAccessMode(src.Given),
		Mode:  ParseAccessMode(src.Mode),
	}
}

// MarshalJSON omits undefined values.
func (a Acs) MarshalJSON() ([]byte, error) {
	return json.Marshal(&MsgAccessMode{Want: a.Want.String(), Given: a.Given.String(), Mode: a.Mode.String()})
}

// UnmarshalJSON treats missing values as undefined rather than ModeNone.
func (a *Acs) UnmarshalJSON(b []byte) error {
	var m MsgAccessMode
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*a = *m.Acs()
	return nil
}

func (a *Acs) recompute() bool {
	if a.Want.IsDefined() && a.Given.IsDefined() {
		m := a.Want & a.Given
		if m != a.Mode {
			a.Mode = m
			return true
		}
	}
	return false
}

// Merge copies defined values from another Acs. The effective mode is taken from
// the other Acs if it's defined there, otherwise it's recomputed as want & given.
// Returns true if anything has changed.
func (a *Acs) Merge(o *Acs) bool {
	if o == nil {
		return false
	}
	changed := false
	if o.Want.IsDefined() && o.Want != a.Want {
		a.Want = o.Want
		changed = true
	}
	if o.Given.IsDefined() && o.Given != a.Given {
		a.Given = o.Given
		changed = true
	}
	if o.Mode.IsDefined() {
		if o.Mode != a.Mode {
			a.Mode = o.Mode
			changed = true
		}
	} else if a.recompute() {
		changed = true
	}
	return changed
}

// Update applies a partial change to want and given values, then recomputes
// the effective mode.
func (a *Acs) Update(ac *AccessChange) (bool, error) {
	if ac == nil {
		return false, nil
	}
	changed := false
	c, err := a.Want.Update(ac.Want)
	if err != nil {
		return false, err
	}
	changed = changed || c
	c, err = a.Given.Update(ac.Given)
	if err != nil {
		return false, err
	}
	changed = changed || c
	return a.recompute() || changed, nil
}

// IsDefined checks if the effective mode is known.
func (a *Acs) IsDefined() bool {
	return a != nil && a.Mode.IsDefined()
}

// Equal compares two Acs values.
func (a *Acs) Equal(o *Acs) bool {
	if a == nil || o == nil {
		return a == o
	}
	return *a == *o
}

func (a *Acs) String() string {
	if a == nil {
		return "-"
	}
	m := MsgAccessMode{Want: a.Want.String(), Given: a.Given.String(), Mode: a.Mode.String()}
	return m.describe()
}

// Missing returns the bits which are wanted but not given.
func (a *Acs) Missing() AccessMode {
	if !a.Want.IsDefined() {
		return ModeNone
	}
	given := a.Given
	if !given.IsDefined() {
		given = ModeNone
	}
	return a.Want &^ given
}

// Excessive returns the bits which are given but not wanted.
func (a *Acs) Excessive() AccessMode {
	if !a.Given.IsDefined() {
		return ModeNone
	}
	want := a.Want
	if !want.IsDefined() {
		want = ModeNone
	}
	return a.Given &^ want
}

// AccessChange is a partial update of want and given access values.
// Each value is a delta like "+RW-P" or a full replacement.
type AccessChange struct {
	Want  string `json:"want,omitempty"`
	Given string `json:"given,omitempty"`
}

// DefAcs is a topic's default access mode.
type DefAcs struct {
	// Default access for authenticated users.
	Auth AccessMode
	// Default access for anonymous users.
	Anon AccessMode
}

// MsgDefaultAcsMode is a wire form of the default access mode.
type MsgDefaultAcsMode struct {
	Auth string `json:"auth,omitempty"`
	Anon string `json:"anon,omitempty"`
}

// MarshalJSON omits undefined values.
func (d DefAcs) MarshalJSON() ([]byte, error) {
	return json.Marshal(&MsgDefaultAcsMode{Auth: d.Auth.String(), Anon: d.Anon.String()})
}

// UnmarshalJSON treats missing values as undefined.
func (d *DefAcs) UnmarshalJSON(b []byte) error {
	var m MsgDefaultAcsMode
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	d.Auth = ParseAccessMode(m.Auth)
	d.Anon = ParseAccessMode(m.Anon)
	return nil
}

// Merge copies defined values from another DefAcs. Returns true if anything has changed.
func (d *DefAcs) Merge(o *DefAcs) bool {
	if o == nil {
		return false
	}
	changed := false
	if o.Auth.IsDefined() && o.Auth != d.Auth {
		d.Auth = o.Auth
		changed = true
	}
	if o.Anon.IsDefined() && o.Anon != d.Anon {
		d.Anon = o.Anon
		changed = true
	}
	return changed
}
