package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCardExtraRoundTrip(t *testing.T) {
	src := `{"fn":"Alice","note":"hi","photo":{"type":"jpeg","ref":"/v0/file/s/abc.jpeg"},"x-custom":{"a":1}}`
	var card TheCard
	if err := json.Unmarshal([]byte(src), &card); err != nil {
		t.Fatal(err)
	}
	if card.Fn != "Alice" || card.PhotoRef() != "/v0/file/s/abc.jpeg" {
		t.Errorf("known fields not parsed: %+v", card)
	}
	if string(card.Extra["x-custom"]) != `{"a":1}` {
		t.Errorf("unknown field lost: %v", card.Extra)
	}
	out, err := json.Marshal(card)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"x-custom":{"a":1}`) || !strings.Contains(string(out), `"fn":"Alice"`) {
		t.Errorf("marshalled card lost fields: %s", out)
	}
}

func TestCardMerge(t *testing.T) {
	card := NewCard("Alice", "/v0/file/s/abc.png", "image/png")
	if card.Photo.Type != "png" {
		t.Errorf("photo type = %q", card.Photo.Type)
	}
	if card.Merge(&TheCard{Fn: "Alice"}) {
		t.Error("same name reported a change")
	}
	if !card.Merge(&TheCard{Note: "about"}) || card.Note != "about" || card.Fn != "Alice" {
		t.Errorf("partial merge failed: %+v", card)
	}
	if !card.Merge(&TheCard{Note: NullValue, Photo: &CardPhoto{Ref: NullValue}}) {
		t.Error("clearing reported no change")
	}
	if card.Note != "" || card.Photo != nil {
		t.Errorf("fields not cleared: %+v", card)
	}
}

func TestNormalizeCredential(t *testing.T) {
	cases := []struct {
		method, value, region string
		want                  string
		err                   bool
	}{
		{CredMethodTel, "+1 (800) 328-7448", "", "+18003287448", false},
		{CredMethodTel, "(800) 328-7448", "us", "+18003287448", false},
		{CredMethodTel, "12", "US", "", true},
		{CredMethodEmail, "Alice <Alice@Example.COM>", "", "alice@example.com", false},
		{CredMethodEmail, "not an email", "", "", true},
		{"basic", " alice ", "", "alice", false},
		{CredMethodEmail, "   ", "", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeCredential(tc.method, tc.value, tc.region)
		if tc.err {
			if err == nil {
				t.Errorf("%s:%q expected error, got %q", tc.method, tc.value, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s:%q unexpected error %v", tc.method, tc.value, err)
		} else if got != tc.want {
			t.Errorf("%s:%q = %q, want %q", tc.method, tc.value, got, tc.want)
		}
	}
}

func TestTopicKindOf(t *testing.T) {
	cases := map[string]TopicKind{
		"me":          KindMe,
		"fnd":         KindFnd,
		"sys":         KindSys,
		"slf":         KindSlf,
		"grpAbC":      KindGrp,
		"chnAbC":      KindGrp,
		"new123":      KindGrp,
		"nch123":      KindGrp,
		"usrAbC":      KindP2P,
		"p2pAbCdE":    KindP2P,
		"":            KindUnknown,
		"whatever123": KindUnknown,
	}
	for name, want := range cases {
		if got := TopicKindOf(name); got != want {
			t.Errorf("TopicKindOf(%q) = %s, want %s", name, got, want)
		}
	}
	if !KindP2P.Match(KindCom) || KindMe.Match(KindCom) {
		t.Error("KindCom filter mismatch")
	}
	if ChannelToGroup("chnX") != "grpX" || GroupToChannel("grpX") != "chnX" || ChannelToGroup("usrX") != "usrX" {
		t.Error("channel conversion failed")
	}
}

func TestIDGenerator(t *testing.T) {
	var gen IDGenerator
	if err := gen.Init(1, nil); err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.GetStr()
		if len(id) != 11 {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
