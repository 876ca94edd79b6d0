package drafty

import "errors"

// Button actions.
const (
	ButtonActionPub = "pub"
	ButtonActionURL = "url"
)

var (
	errUnknownAction = errors.New("unknown button action")
	errMissingURL    = errors.New("URL required for URL buttons")
)

// ImageInfo describes an image or a video to insert into the document.
type ImageInfo struct {
	Mime   string
	Bits   []byte
	Width  int
	Height int
	Name   string
	// Reference to out-of-band content.
	Ref  string
	Size int64
}

func (d *Document) addEntity(tp string, data *Data) int {
	d.Ent = append(d.Ent, Entity{Tp: tp, Data: data})
	return len(d.Ent) - 1
}

// Insert inserts text at the position (in grapheme clusters) and optionally applies a style to it.
// If data is not nil, the style becomes an entity.
func (d *Document) Insert(at int, text, style string, data *Data) error {
	g := prepareGraphemes(d.Txt)
	if at < 0 || at > g.length() {
		return errInvalidPosition
	}

	text = normalize(text)
	added := gcLength(text)
	if added > 0 {
		for i := range d.Fmt {
			if d.Fmt[i].At >= at {
				d.Fmt[i].At += added
			}
		}
		d.Txt = g.substr(0, at) + text + g.substr(at, g.length())
	}

	if style != "" {
		if data != nil {
			key := d.addEntity(style, data)
			d.Fmt = append(d.Fmt, Style{At: at, Len: added, Key: key})
		} else {
			d.Fmt = append(d.Fmt, Style{Tp: style, At: at, Len: added})
		}
	}
	return nil
}

// InsertImage inserts an inline image at the position.
func (d *Document) InsertImage(at int, img *ImageInfo) error {
	if len(img.Bits) == 0 && img.Ref == "" {
		return errMissingContent
	}
	data := &Data{
		Mime:   img.Mime,
		Width:  img.Width,
		Height: img.Height,
		Name:   img.Name,
		Ref:    img.Ref,
		Size:   img.Size,
	}
	if len(img.Bits) > 0 {
		data.Val = img.Bits
	}
	return d.Insert(at, " ", "IM", data)
}

// AttachFile adds a file attachment which is not a part of the text: either in-band bits or
// a reference to an uploaded file.
func (d *Document) AttachFile(mime string, bits []byte, name, ref string, size int64) error {
	if len(bits) == 0 && ref == "" {
		return errMissingContent
	}
	data := &Data{Mime: mime, Name: name, Ref: ref, Size: size}
	if len(bits) > 0 {
		data.Val = bits
		if size <= 0 {
			data.Size = int64(len(bits))
		}
	}
	key := d.addEntity("EX", data)
	d.Fmt = append(d.Fmt, Style{At: -1, Key: key})
	return nil
}

// AttachJSON attaches an object as a form response.
func (d *Document) AttachJSON(val map[string]any) {
	key := d.addEntity("EX", &Data{Mime: formResponseType, Val: val})
	d.Fmt = append(d.Fmt, Style{At: -1, Key: key})
}

// Append appends another document to this one.
func (d *Document) Append(that *Document) *Document {
	if that == nil {
		return d
	}

	length := gcLength(d.Txt)
	d.Txt += that.Txt
	// Entities referenced by the appended styles, old key to new key.
	keymap := make(map[int]int)
	for _, st := range that.Fmt {
		at := -1
		if st.At >= 0 {
			at = st.At + length
		}
		if st.Tp != "" {
			d.Fmt = append(d.Fmt, Style{Tp: st.Tp, At: at, Len: st.Len})
			continue
		}
		if st.Key < 0 || st.Key >= len(that.Ent) {
			continue
		}
		key, ok := keymap[st.Key]
		if !ok {
			e := that.Ent[st.Key]
			key = d.addEntity(e.Tp, e.Data.Copy())
			keymap[st.Key] = key
		}
		d.Fmt = append(d.Fmt, Style{At: at, Len: st.Len, Key: key})
	}
	return d
}

// AppendLineBreak appends a line break.
func (d *Document) AppendLineBreak() *Document {
	d.Fmt = append(d.Fmt, Style{Tp: "BR", At: gcLength(d.Txt), Len: 1})
	d.Txt += " "
	return d
}

// WrapInto wraps the entire content of the document into the style.
func (d *Document) WrapInto(style string) *Document {
	d.Fmt = append(d.Fmt, Style{Tp: style, At: 0, Len: gcLength(d.Txt)})
	return d
}

// InsertButton inserts a button at the position. A 'url' button must have a reference URL.
func (d *Document) InsertButton(at int, title, id, action, val, ref string) error {
	switch action {
	case ButtonActionPub:
	case ButtonActionURL:
		if ref == "" {
			return errMissingURL
		}
	default:
		return errUnknownAction
	}
	data := &Data{Act: action, Name: id, Ref: ref}
	if val != "" {
		data.Val = val
	}
	return d.Insert(at, title, "BN", data)
}

// Mention creates a document consisting of a single mention of the user.
func Mention(name, uid string) *Document {
	d := FromPlainText(name)
	d.Fmt = []Style{{At: 0, Len: gcLength(d.Txt), Key: 0}}
	d.Ent = []Entity{{Tp: "MN", Data: &Data{Val: uid}}}
	return d
}

// Quote creates a quote of the body: the header mentioning the author, a line break and the body,
// all wrapped into a QQ style.
func Quote(header, uid string, body *Document) *Document {
	return Mention(header, uid).
		AppendLineBreak().
		Append(body).
		WrapInto("QQ")
}
