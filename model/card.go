package model

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// CardContentType is the mime type of a serialized contact card.
const CardContentType = "text/x-the-card"

// TheCard is the structured public description of a user or topic.
type TheCard struct {
	// Full formatted name
	Fn string `json:"fn,omitempty"`
	// Name components
	N *CardName `json:"n,omitempty"`
	// Organization and title
	Org *CardOrg `json:"org,omitempty"`
	// Avatar photo
	Photo *CardPhoto `json:"photo,omitempty"`
	// Birthday
	Bday *CardBirthday `json:"bday,omitempty"`
	// Free-form description
	Note string `json:"note,omitempty"`
	// Communication channels
	Comm []CardComm `json:"comm,omitempty"`

	// Fields not recognized by this version of the client, kept as is.
	Extra map[string]json.RawMessage `json:"-"`
}

// CardName holds the components of a person's name.
type CardName struct {
	Surname    string `json:"surname,omitempty"`
	Given      string `json:"given,omitempty"`
	Additional string `json:"additional,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
}

// CardOrg is the organization the person belongs to.
type CardOrg struct {
	Fn    string `json:"fn,omitempty"`
	Title string `json:"title,omitempty"`
}

// CardPhoto is an avatar: either inline bits or a reference to an uploaded file.
type CardPhoto struct {
	// Image bits, base64-encoded on the wire.
	Data []byte `json:"data,omitempty"`
	// Second component of the mime type, i.e. 'png' for 'image/png'.
	Type string `json:"type,omitempty"`
	// URL of the image or NullValue.
	Ref    string `json:"ref,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   int    `json:"size,omitempty"`
}

// CardBirthday is a possibly partial date of birth.
type CardBirthday struct {
	Y int `json:"y,omitempty"`
	M int `json:"m,omitempty"`
	D int `json:"d,omitempty"`
}

// CardComm is a communication channel such as a phone number or an email.
type CardComm struct {
	// tel, email, tinode, impp, http
	Proto string `json:"proto,omitempty"`
	// home, work, mobile, etc.
	Des   []string `json:"des,omitempty"`
	Value string   `json:"value,omitempty"`
}

var cardFields = map[string]bool{
	"fn": true, "n": true, "org": true, "photo": true, "bday": true, "note": true, "comm": true,
}

// NewCard creates a card with the name and an optional avatar reference.
func NewCard(fn, avatarRef, avatarType string) *TheCard {
	c := &TheCard{Fn: fn}
	if avatarRef != "" {
		c.Photo = &CardPhoto{Ref: avatarRef, Type: strings.TrimPrefix(avatarType, "image/")}
	}
	return c
}

type cardAlias TheCard

// MarshalJSON writes known fields followed by the unrecognized ones.
func (c TheCard) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(cardAlias(c))
	if err != nil || len(c.Extra) == 0 {
		return known, err
	}
	all := make(map[string]json.RawMessage, len(c.Extra)+len(cardFields))
	for k, v := range c.Extra {
		all[k] = v
	}
	if err := json.Unmarshal(known, &all); err != nil {
		return nil, err
	}
	return json.Marshal(all)
}

// UnmarshalJSON reads known fields and stashes the rest into Extra.
func (c *TheCard) UnmarshalJSON(b []byte) error {
	var alias cardAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range all {
		if !cardFields[k] {
			if alias.Extra == nil {
				alias.Extra = make(map[string]json.RawMessage)
			}
			alias.Extra[k] = v
		}
	}
	*c = TheCard(alias)
	return nil
}

// Merge copies fields set in another card into this one. Strings equal to
// NullValue clear the field. Returns true if the card has changed.
func (c *TheCard) Merge(that *TheCard) bool {
	if that == nil || that == c {
		return false
	}
	changed := mergeString(&c.Fn, that.Fn)
	changed = mergeString(&c.Note, that.Note) || changed

	if that.N != nil && (c.N == nil || *c.N != *that.N) {
		n := *that.N
		c.N = &n
		changed = true
	}
	if that.Org != nil && (c.Org == nil || *c.Org != *that.Org) {
		org := *that.Org
		c.Org = &org
		changed = true
	}
	if that.Bday != nil && (c.Bday == nil || *c.Bday != *that.Bday) {
		bday := *that.Bday
		c.Bday = &bday
		changed = true
	}
	if that.Photo != nil {
		if IsNull(that.Photo.Ref) && len(that.Photo.Data) == 0 {
			changed = changed || c.Photo != nil
			c.Photo = nil
		} else if c.Photo == nil || !reflect.DeepEqual(c.Photo, that.Photo) {
			photo := *that.Photo
			c.Photo = &photo
			changed = true
		}
	}
	if that.Comm != nil && !reflect.DeepEqual(c.Comm, that.Comm) {
		c.Comm = append([]CardComm(nil), that.Comm...)
		changed = true
	}
	for k, v := range that.Extra {
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		if string(c.Extra[k]) != string(v) {
			c.Extra[k] = v
			changed = true
		}
	}
	return changed
}

func mergeString(dst *string, src string) bool {
	if src == "" {
		return false
	}
	if IsNull(src) {
		src = ""
	}
	if *dst == src {
		return false
	}
	*dst = src
	return true
}

// Copy makes a deep copy of the card.
func (c *TheCard) Copy() *TheCard {
	if c == nil {
		return nil
	}
	dst := &TheCard{}
	dst.Merge(c)
	return dst
}

// PhotoRef returns the URL of the avatar if the avatar is a reference.
func (c *TheCard) PhotoRef() string {
	if c == nil || c.Photo == nil || IsNull(c.Photo.Ref) {
		return ""
	}
	return c.Photo.Ref
}

// CommByProto returns values of the communication channels of the given protocol.
func (c *TheCard) CommByProto(proto string) []string {
	var res []string
	if c == nil {
		return res
	}
	for _, comm := range c.Comm {
		if comm.Proto == proto {
			res = append(res, comm.Value)
		}
	}
	return res
}

// ExportVCard serializes the card as a vCard 3.0.
func (c *TheCard) ExportVCard() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("BEGIN:VCARD\r\nVERSION:3.0\r\n")
	if c.Fn != "" {
		b.WriteString("FN:" + c.Fn + "\r\n")
	}
	if c.N != nil {
		b.WriteString("N:" + strings.Join([]string{c.N.Surname, c.N.Given, c.N.Additional, c.N.Prefix, c.N.Suffix}, ";") + "\r\n")
	}
	if c.Org != nil {
		if c.Org.Fn != "" {
			b.WriteString("ORG:" + c.Org.Fn + "\r\n")
		}
		if c.Org.Title != "" {
			b.WriteString("TITLE:" + c.Org.Title + "\r\n")
		}
	}
	if c.Note != "" {
		b.WriteString("NOTE:" + c.Note + "\r\n")
	}
	if c.Bday != nil && c.Bday.M > 0 && c.Bday.D > 0 {
		y := "--"
		if c.Bday.Y > 0 {
			y = strconv.Itoa(c.Bday.Y)
		}
		b.WriteString("BDAY:" + y + twoDigits(c.Bday.M) + twoDigits(c.Bday.D) + "\r\n")
	}
	for _, comm := range c.Comm {
		var tag string
		switch comm.Proto {
		case "tel":
			tag = "TEL"
		case "email":
			tag = "EMAIL"
		case "tinode", "impp":
			tag = "IMPP"
		case "http":
			tag = "URL"
		default:
			continue
		}
		if len(comm.Des) > 0 {
			tag += ";TYPE=" + strings.ToUpper(strings.Join(comm.Des, ","))
		}
		b.WriteString(tag + ":" + comm.Value + "\r\n")
	}
	if ref := c.PhotoRef(); ref != "" {
		b.WriteString("PHOTO;VALUE=URI:" + ref + "\r\n")
	}
	b.WriteString("END:VCARD\r\n")
	return b.String()
}

func twoDigits(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}
