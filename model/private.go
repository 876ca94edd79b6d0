package model

import "encoding/json"

// PrivateType is the structured per-subscription private data: a comment
// and archival status plus whatever else the other clients may have put there.
type PrivateType struct {
	Comment string `json:"comment,omitempty"`
	// Archived topics are hidden from the main contact list.
	Arch *bool `json:"-"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewPrivate creates private data with a comment.
func NewPrivate(comment string) *PrivateType {
	return &PrivateType{Comment: comment}
}

// IsArchived reports if the topic is archived.
func (p *PrivateType) IsArchived() bool {
	return p != nil && p.Arch != nil && *p.Arch
}

// SetArchived marks topic as archived or clears the flag.
func (p *PrivateType) SetArchived(arch bool) {
	p.Arch = &arch
}

// MarshalJSON writes the null sentinel for cleared values.
func (p PrivateType) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Comment != "" {
		out["comment"] = p.Comment
	}
	if p.Arch != nil {
		if *p.Arch {
			out["arch"] = true
		} else {
			out["arch"] = NullValue
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads comment and arch, keeps the rest in Extra.
func (p *PrivateType) UnmarshalJSON(b []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	*p = PrivateType{}
	for k, v := range all {
		switch k {
		case "comment":
			var s string
			if err := json.Unmarshal(v, &s); err == nil && !IsNull(s) {
				p.Comment = s
			}
		case "arch":
			var arch bool
			if err := json.Unmarshal(v, &arch); err == nil {
				p.Arch = &arch
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[k] = v
		}
	}
	return nil
}

// Merge copies values set in another private object. Returns true if changed.
func (p *PrivateType) Merge(that *PrivateType) bool {
	if that == nil || that == p {
		return false
	}
	changed := mergeString(&p.Comment, that.Comment)
	if that.Arch != nil && (p.Arch == nil || *p.Arch != *that.Arch) {
		arch := *that.Arch
		p.Arch = &arch
		changed = true
	}
	for k, v := range that.Extra {
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		if string(p.Extra[k]) != string(v) {
			p.Extra[k] = v
			changed = true
		}
	}
	return changed
}
