package model

import (
	"encoding/json"
	"testing"
)

func TestParseAccessMode(t *testing.T) {
	cases := []struct {
		in   string
		want AccessMode
	}{
		{"", ModeUnset},
		{"N", ModeNone},
		{"n", ModeNone},
		{"X", ModeNone},
		{"JRWPASDO", ModeCFull},
		{"jrwp", ModeJoin | ModeRead | ModeWrite | ModePres},
		{"JRN", ModeNone},
		{"JRZ", ModeInvalid},
		{"+W", ModeInvalid},
	}
	for _, tc := range cases {
		if got := ParseAccessMode(tc.in); got != tc.want {
			t.Errorf("ParseAccessMode(%q) = 0x%x, want 0x%x", tc.in, got, tc.want)
		}
	}
}

func TestAccessModeString(t *testing.T) {
	cases := []struct {
		in   AccessMode
		want string
	}{
		{ModeNone, "N"},
		{ModeCFull, "JRWPASDO"},
		{ModeOwner | ModeJoin, "JO"},
		{ModeCP2P, "JRWPA"},
		{ModeUnset, ""},
		{ModeInvalid, ""},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("0x%x.String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAccessModeUpdate(t *testing.T) {
	cases := []struct {
		start   AccessMode
		delta   string
		want    AccessMode
		changed bool
		err     bool
	}{
		{ModeCReadOnly, "", ModeCReadOnly, false, false},
		{ModeCReadOnly, "+W", ModeCReadOnly | ModeWrite, true, false},
		{ModeCReadOnly, "+R", ModeCReadOnly, false, false},
		{ModeCP2P, "+S-PA", ModeJoin | ModeRead | ModeWrite | ModeShare, true, false},
		{ModeCP2P, "-W+O", ModeJoin | ModeRead | ModePres | ModeApprove | ModeOwner, true, false},
		{ModeCP2P, "JR", ModeCReadOnly, true, false},
		{ModeCP2P, "N", ModeNone, true, false},
		{ModeCP2P, "+X", ModeNone, true, false},
		{ModeCP2P, "-X", ModeCP2P, false, false},
		{ModeCP2P, "+N", ModeCP2P, false, false},
		{ModeUnset, "+RW", ModeRead | ModeWrite, true, false},
		{ModeCP2P, "+", ModeCP2P, false, true},
		{ModeCP2P, "-", ModeCP2P, false, true},
		{ModeCP2P, "+W-", ModeCP2P, false, true},
		{ModeCP2P, "+Q", ModeCP2P, false, true},
		{ModeCP2P, "JRQ", ModeCP2P, false, true},
	}
	for _, tc := range cases {
		m := tc.start
		changed, err := m.Update(tc.delta)
		if (err != nil) != tc.err {
			t.Errorf("0x%x.Update(%q) error = %v, want error %v", tc.start, tc.delta, err, tc.err)
			continue
		}
		if tc.err {
			if m != tc.start {
				t.Errorf("0x%x.Update(%q) modified the mode on error: 0x%x", tc.start, tc.delta, m)
			}
			continue
		}
		if m != tc.want || changed != tc.changed {
			t.Errorf("0x%x.Update(%q) = (0x%x, %v), want (0x%x, %v)", tc.start, tc.delta, m, changed, tc.want, tc.changed)
		}
	}
}

func TestAccessModeUpdateTwice(t *testing.T) {
	once := ModeCReadOnly
	once.Update("+WP-R")
	twice := ModeCReadOnly
	twice.Update("+WP-R")
	if changed, _ := twice.Update("+WP-R"); changed {
		t.Error("second application of the same delta reported a change")
	}
	if once != twice {
		t.Errorf("delta applied twice = %s, once = %s", twice, once)
	}
}

func TestAccessModeDelta(t *testing.T) {
	o := ParseAccessMode("JRPAS")
	n := ParseAccessMode("JRWS")
	if d := o.Delta(n); d != "+W-PA" {
		t.Errorf("Delta = %q, want '+W-PA'", d)
	}
	if d := o.Delta(o); d != "" {
		t.Errorf("Delta of equal modes = %q, want empty", d)
	}
}

func TestAccessModeJSON(t *testing.T) {
	var m AccessMode
	if err := json.Unmarshal([]byte(`"JRW"`), &m); err != nil {
		t.Fatal(err)
	}
	if m != ModeJoin|ModeRead|ModeWrite {
		t.Errorf("unmarshalled 0x%x", m)
	}
	if err := json.Unmarshal([]byte(`"JRZ"`), &m); err == nil {
		t.Error("expected error on invalid mode")
	}
	b, err := json.Marshal(ModeCP2P)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"JRWPA"` {
		t.Errorf("marshalled %s", b)
	}
}

func TestAcsMerge(t *testing.T) {
	a := ParseAcs("JRWP", "JRW", "")
	if a.Mode != ModeJoin|ModeRead|ModeWrite {
		t.Fatalf("mode not computed: %s", a)
	}

	// Merging with itself never changes anything.
	same := *a
	if a.Merge(&same) {
		t.Error("merge with self reported a change")
	}

	// Partial update recomputes mode.
	if !a.Merge(&Acs{Want: ModeUnset, Given: ParseAccessMode("JRWP"), Mode: ModeUnset}) {
		t.Error("merge of a new given value reported no change")
	}
	if a.Mode != ParseAccessMode("JRWP") {
		t.Errorf("mode after given update = %s", a.Mode)
	}

	// Explicit mode wins over the computed one.
	a.Merge(&Acs{Want: ModeUnset, Given: ModeUnset, Mode: ModeCReadOnly})
	if a.Mode != ModeCReadOnly {
		t.Errorf("explicit mode ignored: %s", a.Mode)
	}

	if a.Merge(nil) {
		t.Error("merge with nil reported a change")
	}
}

func TestAcsUpdate(t *testing.T) {
	a := ParseAcs("JRWP", "JRWP", "")
	changed, err := a.Update(&AccessChange{Given: "-W"})
	if err != nil || !changed {
		t.Fatalf("Update = %v, %v", changed, err)
	}
	if a.Mode != ParseAccessMode("JRP") {
		t.Errorf("mode = %s, want JRP", a.Mode)
	}
	if _, err := a.Update(&AccessChange{Want: "+?"}); err == nil {
		t.Error("expected error on malformed delta")
	}
}

func TestAcsJSON(t *testing.T) {
	var a Acs
	if err := json.Unmarshal([]byte(`{"mode":"JRWP"}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.Want.IsDefined() || a.Given.IsDefined() {
		t.Errorf("missing values must be undefined: %s", &a)
	}
	if a.Mode != ParseAccessMode("JRWP") {
		t.Errorf("mode = %s", a.Mode)
	}
	b, err := json.Marshal(&a)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"mode":"JRWP"}` {
		t.Errorf("marshalled %s", b)
	}
}

func TestDefAcsMerge(t *testing.T) {
	d := &DefAcs{Auth: ModeCPublic, Anon: ModeNone}
	if d.Merge(&DefAcs{Auth: ModeUnset, Anon: ModeNone}) {
		t.Error("merge of equal values reported a change")
	}
	if !d.Merge(&DefAcs{Auth: ModeCReadOnly, Anon: ModeUnset}) {
		t.Error("merge of new auth reported no change")
	}
	if d.Auth != ModeCReadOnly || d.Anon != ModeNone {
		t.Errorf("merged = %s/%s", d.Auth, d.Anon)
	}
}
