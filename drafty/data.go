package drafty

import (
	"encoding/json"
	"sort"
)

// Data is the payload of an entity. Keys not recognized by this package are
// kept in Extra and written back unchanged.
type Data struct {
	// LN: link URL.
	URL string `json:"url,omitempty"`
	// MN, HT: the mention or the hashtag; IM, EX: inline content; BN: value to send back.
	Val any `json:"val,omitempty"`

	Mime string `json:"mime,omitempty"`
	Name string `json:"name,omitempty"`
	// Out-of-band reference to content.
	Ref    string `json:"ref,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   int64  `json:"size,omitempty"`

	// Audio & video.
	Duration int    `json:"duration,omitempty"`
	Preview  any    `json:"preview,omitempty"`
	PreMime  string `json:"premime,omitempty"`
	PreRef   string `json:"preref,omitempty"`

	// Buttons: action type 'pub' or 'url', button title.
	Act   string `json:"act,omitempty"`
	Title string `json:"title,omitempty"`

	// Video calls.
	State    string `json:"state,omitempty"`
	Incoming bool   `json:"incoming,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type dataAlias Data

var dataFields = map[string]bool{
	"url": true, "val": true, "mime": true, "name": true, "ref": true, "width": true, "height": true,
	"size": true, "duration": true, "preview": true, "premime": true, "preref": true, "act": true,
	"title": true, "state": true, "incoming": true,
}

// MarshalJSON writes known fields followed by the unrecognized ones.
func (d Data) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(dataAlias(d))
	if err != nil || len(d.Extra) == 0 {
		return known, err
	}
	all := make(map[string]json.RawMessage, len(d.Extra)+len(dataFields))
	for k, v := range d.Extra {
		all[k] = v
	}
	if err := json.Unmarshal(known, &all); err != nil {
		return nil, err
	}
	return json.Marshal(all)
}

// UnmarshalJSON reads known fields and stashes the rest into Extra.
func (d *Data) UnmarshalJSON(b []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	var alias dataAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	for k, v := range all {
		if !dataFields[k] {
			if alias.Extra == nil {
				alias.Extra = make(map[string]json.RawMessage)
			}
			alias.Extra[k] = v
		}
	}
	*d = Data(alias)
	return nil
}

// IsEmpty checks if no field is set.
func (d *Data) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.URL == "" && d.Val == nil && d.Mime == "" && d.Name == "" && d.Ref == "" &&
		d.Width == 0 && d.Height == 0 && d.Size == 0 && d.Duration == 0 && d.Preview == nil &&
		d.PreMime == "" && d.PreRef == "" && d.Act == "" && d.Title == "" && d.State == "" &&
		!d.Incoming && len(d.Extra) == 0
}

// Copy makes a copy of the data. Val and Preview are shared.
func (d *Data) Copy() *Data {
	if d == nil {
		return nil
	}
	dst := *d
	if d.Extra != nil {
		dst.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			dst.Extra[k] = v
		}
	}
	return &dst
}

// ValString returns Val if it's a string.
func (d *Data) ValString() string {
	if d == nil {
		return ""
	}
	s, _ := d.Val.(string)
	return s
}

// ExtraKeys returns sorted names of unrecognized fields.
func (d *Data) ExtraKeys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// light makes a copy of the data without large payloads: inline content 'val' and strings or
// byte slices longer than maxLen are dropped unless the field is allowed. Unrecognized fields
// are dropped too. Returns nil if nothing is left.
func (d *Data) light(maxLen int, allow ...string) *Data {
	if d == nil {
		return nil
	}
	allowed := func(key string) bool {
		for _, a := range allow {
			if a == key {
				return true
			}
		}
		return false
	}
	fits := func(s string) string {
		if maxLen > 0 && len(s) > maxLen {
			return ""
		}
		return s
	}
	fitsAny := func(key string, v any) any {
		if allowed(key) {
			return v
		}
		switch x := v.(type) {
		case string:
			if maxLen > 0 && len(x) > maxLen {
				return nil
			}
		case []byte:
			if maxLen > 0 && len(x) > maxLen {
				return nil
			}
		case map[string]any, []any:
			if maxLen > 0 {
				return nil
			}
		}
		return v
	}

	dst := &Data{
		URL:      fits(d.URL),
		Mime:     fits(d.Mime),
		Name:     fits(d.Name),
		Ref:      fits(d.Ref),
		Width:    d.Width,
		Height:   d.Height,
		Size:     d.Size,
		Duration: d.Duration,
		Preview:  fitsAny("preview", d.Preview),
		PreMime:  fits(d.PreMime),
		PreRef:   fits(d.PreRef),
		Act:      fits(d.Act),
		Title:    fits(d.Title),
		State:    fits(d.State),
		Incoming: d.Incoming,
	}
	if allowed("val") {
		dst.Val = d.Val
	}
	if dst.IsEmpty() {
		return nil
	}
	return dst
}
