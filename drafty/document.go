// Package drafty implements Drafty, a compact rich text format: plain text plus a list of
// styled ranges and a table of entities referenced by the ranges.
//
// Sample text:
//
//	this is *bold*, `code` and _italic_, ~strike~
//	combined *bold and _italic_*
//	an url: https://www.example.com/abc#fragment and another _www.tinode.co_
//	this is a @mention and a #hashtag in a string
//
// Offsets and lengths of ranges are measured in grapheme clusters.
package drafty

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MimeType is the content type of Drafty-formatted messages.
const MimeType = "text/x-drafty"

// Content type of a form response attached as JSON.
const (
	formResponseType       = "text/x-drafty-fr"
	formResponseTypeLegacy = "application/json"
)

var (
	errUnrecognizedContent = errors.New("content unrecognized")
	errInvalidContent      = errors.New("invalid format")
	errInvalidPosition     = errors.New("invalid insertion position")
	errMissingContent      = errors.New("either content bits or reference URL must be provided")
)

// Style is a formatted range: either an inline style Tp or a reference Key into the entity table.
// At == -1 marks an attachment which is not a part of the text.
type Style struct {
	Tp  string `json:"tp,omitempty"`
	At  int    `json:"at,omitempty"`
	Len int    `json:"len,omitempty"`
	Key int    `json:"key,omitempty"`
}

// IsUnstyled checks if the style is an entity reference.
func (s *Style) IsUnstyled() bool {
	return s.Tp == ""
}

// Entity is a rich element such as a link, a mention, an image or an attachment.
type Entity struct {
	Tp   string `json:"tp,omitempty"`
	Data *Data  `json:"data,omitempty"`
}

// Document is a Drafty document.
type Document struct {
	Txt string   `json:"txt,omitempty"`
	Fmt []Style  `json:"fmt,omitempty"`
	Ent []Entity `json:"ent,omitempty"`
}

type documentAlias Document

// UnmarshalJSON accepts either a Drafty object or a plain string.
func (d *Document) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var txt string
		if err := json.Unmarshal(b, &txt); err != nil {
			return err
		}
		*d = *FromPlainText(txt)
		return nil
	}
	var alias documentAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	*d = Document(alias)
	return nil
}

// FromPlainText creates a document from text without parsing the markup.
func FromPlainText(txt string) *Document {
	return &Document{Txt: normalize(txt)}
}

// IsPlain checks if the document has no markup at all.
func (d *Document) IsPlain() bool {
	return len(d.Fmt) == 0 && len(d.Ent) == 0
}

// String returns the text of the document without any formatting.
func (d *Document) String() string {
	if d == nil {
		return ""
	}
	return d.Txt
}

// HasEntities checks if the document has at least one entity of any of the given types.
func (d *Document) HasEntities(types ...string) bool {
	for _, e := range d.Ent {
		for _, tp := range types {
			if e.Tp == tp {
				return true
			}
		}
	}
	return false
}

// EntReferences returns out-of-band references of entities, such as uploaded files.
// The references are reported in the message header so the server does not garbage-collect them.
func (d *Document) EntReferences() []string {
	var refs []string
	for _, e := range d.Ent {
		if e.Data == nil {
			continue
		}
		if e.Data.Ref != "" {
			refs = append(refs, e.Data.Ref)
		}
		if e.Data.PreRef != "" {
			refs = append(refs, e.Data.PreRef)
		}
	}
	return refs
}

// Validate checks that all styles are within the text and all references point to existing entities.
func (d *Document) Validate() error {
	textLen := gcLength(d.Txt)
	for i := range d.Fmt {
		st := &d.Fmt[i]
		if st.Len < 0 || st.At < -1 || st.At+st.Len > textLen {
			return errInvalidContent
		}
		if st.IsUnstyled() {
			if st.Key < 0 || (len(d.Ent) > 0 && st.Key >= len(d.Ent)) {
				return errInvalidContent
			}
			if len(d.Ent) == 0 && st.At == 0 && st.Len == 0 && st.Key == 0 {
				return errUnrecognizedContent
			}
		}
	}
	for i := range d.Ent {
		if d.Ent[i].Tp == "" {
			return errInvalidContent
		}
	}
	return nil
}

// Decode converts message content into a Drafty document. Strings are treated as plain text,
// maps and raw JSON are decoded as Drafty. A nil content produces a nil document.
func Decode(content any) (*Document, error) {
	var raw []byte
	switch v := content.(type) {
	case nil:
		return nil, nil
	case *Document:
		return v, nil
	case Document:
		return &v, nil
	case string:
		return FromPlainText(v), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case map[string]any:
		// At least one drafty element must be present.
		if _, ok := v["txt"]; !ok {
			if _, ok := v["fmt"]; !ok {
				if _, ok := v["ent"]; !ok {
					return nil, errUnrecognizedContent
				}
			}
		}
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return nil, err
		}
	default:
		return nil, errUnrecognizedContent
	}

	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errInvalidContent
	}
	return &doc, nil
}

// IsFormResponseType checks if the mime type is the one of a form response.
func IsFormResponseType(mime string) bool {
	return mime == formResponseType || mime == formResponseTypeLegacy
}

// Copy makes a deep copy of the document.
func (d *Document) Copy() *Document {
	if d == nil {
		return nil
	}
	dst := &Document{Txt: d.Txt}
	if d.Fmt != nil {
		dst.Fmt = append([]Style{}, d.Fmt...)
	}
	if d.Ent != nil {
		dst.Ent = make([]Entity, len(d.Ent))
		for i, e := range d.Ent {
			dst.Ent[i] = Entity{Tp: e.Tp, Data: e.Data.Copy()}
		}
	}
	return dst
}
