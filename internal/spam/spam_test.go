package spam

import (
	"strings"
	"testing"
)

func TestIsBannedName(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantBanned bool
		wantReason string
	}{
		{"plain name", "María José", false, ""},
		{"long name", strings.Repeat("a", 40), true, ReasonLongName},
		{"exactly at limit", strings.Repeat("a", 39), false, ""},
		{"url", "buy at shop.com", true, ReasonURIName},
		{"www prefix", "www.something.xyz", true, ReasonURIName},
		{"email", "me@mail.ru", true, ReasonURIName},
		{"deleted account", "Deleted Account", true, ReasonFakeName},
		{"spanish deleted", "Cuenta Eliminada", true, ReasonFakeName},
		{"marketing with accents", "Márketing", true, ReasonFakeName},
		{"only invisible", "\u2062\u00a0", true, ReasonFakeName},
		{"empty", "", true, ReasonFakeName},
		{"tgvip", "TGVIPmember", true, ReasonFakeName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			banned, reason := Screen{}.IsBannedName(tt.input)
			if banned != tt.wantBanned || reason != tt.wantReason {
				t.Errorf("IsBannedName(%q) = (%v, %q), want (%v, %q)", tt.input, banned, reason, tt.wantBanned, tt.wantReason)
			}
		})
	}
}

func TestIsSpam(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"tgmember", true},
		{"TG VIP MEMBER join now", true},
		{"t\u0435l\u0435gram marketing services", true},
		{"telegram   marketing", true},
		{"\u0442\u0262\u043cember", true},
		{"telegrammarketing", false},
		{"hello there", false},
		{"join tgmember", false},
	}
	for _, tt := range tests {
		if got := IsSpam(tt.input); got != tt.want {
			t.Errorf("IsSpam(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if IsSpam("", "") {
		t.Error("empty texts are not spam")
	}
	if !IsSpam("", "tgmember") {
		t.Error("any text may carry the signature")
	}
}

func TestHasURL(t *testing.T) {
	for _, s := range []string{"see example.com", "http://x.y", "write me@site.io"} {
		if !HasURL(s) {
			t.Errorf("HasURL(%q) = false", s)
		}
	}
	for _, s := range []string{"hello", "ok. fine", "3.14"} {
		if HasURL(s) {
			t.Errorf("HasURL(%q) = true", s)
		}
	}
}

func TestIsGreeting(t *testing.T) {
	for _, s := range []string{"Welcome!", "bienvenido", "Vienbenida"} {
		if !IsGreeting(s) {
			t.Errorf("IsGreeting(%q) = false", s)
		}
	}
	if IsGreeting("hola") {
		t.Error("IsGreeting(hola) = true")
	}
}

func TestRemoveDiacritics(t *testing.T) {
	if got := RemoveDiacritics("Ñandú café"); got != "Nandu cafe" {
		t.Errorf("RemoveDiacritics = %q", got)
	}
}
