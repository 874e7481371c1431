// Package spam holds the pattern checks applied to display names and
// message text.
package spam

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ban reasons reported by IsBannedName.
const (
	ReasonLongName = "long name"
	ReasonURIName  = "name with uri"
	ReasonFakeName = "fake name"
)

// MaxNameLength is the longest display name accepted.
const MaxNameLength = 39

const tld = `(?i:com|net|io|me|org|red|info|tools|mobi|xyz|biz|pro|blog|zip|link|to|kim|` +
	`review|country|cricket|science|work|party|g[dql]|jobs|c[co]|i[en]|ly|name|gg)`

var (
	urlMail = regexp.MustCompile(`(?i:[\x{03c9}w]+\.|[/@])[^\s.]+\.[^\s.]+|[^\s.]+\.` + tld)

	fakeName = regexp.MustCompile(`(?i:cuenta\s*eliminada|deleted\s*account|marketing|website|` +
		`promo\s*agent|telegram|discord\s*nitro|tg(vip)?member|` +
		`^[\s\x{2061}-\x{2064}\x{00a0}\x{2002}-\x{200b}\x{202f}\x{205f}\x{3000}\x{feff}]*$)`)

	greeting = regexp.MustCompile(`(?i:[bv]ien[vb]enid|welcome)`)

	spammer = buildSpammer()
)

// Screen is the name-based ban predicate.
type Screen struct{}

// IsBannedName evaluates the rules on the name with diacritics stripped and
// returns the first failing reason.
func (Screen) IsBannedName(name string) (bool, string) {
	name = RemoveDiacritics(name)
	switch {
	case utf8.RuneCountInString(name) > MaxNameLength:
		return true, ReasonLongName
	case urlMail.MatchString(name):
		return true, ReasonURIName
	case fakeName.MatchString(name):
		return true, ReasonFakeName
	}
	return false, ""
}

// HasURL reports whether text holds something that looks like a URL or an
// e-mail address.
func HasURL(text string) bool {
	return urlMail.MatchString(text)
}

// IsGreeting reports whether a member welcomed someone in text.
func IsGreeting(text string) bool {
	return greeting.MatchString(text)
}

// IsSpam reports whether any of the texts starts with a known spammer
// signature, including look-alike letters.
func IsSpam(texts ...string) bool {
	for _, t := range texts {
		if t != "" && spammer.MatchString(t) {
			return true
		}
	}
	return false
}

// RemoveDiacritics drops the nonspacing marks left after NFKD.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var lookAlikes = map[rune]string{
	'a': "\u1972\u1d00",
	'b': "\u0412",
	'c': "\u1d04\u0421",
	'd': "\u0274",
	'e': "\u1971\u1d07\u0415",
	'f': "\u0493",
	'g': "\u0262",
	'i': "\u03b9\u026a",
	'k': "\u1d0b",
	'l': "\u1963\u029f",
	'm': "\u043c",
	'n': "\u1952\u0274",
	'o': "\u1d0f",
	'r': "\u0280",
	't': "\u0442\u1d1b",
	'u': "\u1d1c",
	'w': "\u1d21\u03c9",
	'x': "\u0425",
}

func buildSpammer() *regexp.Regexp {
	const sketch = "(tg(vip)?member|telegram marketing)"
	var sb strings.Builder
	sb.WriteString(`^(?i)`)
	for _, c := range sketch {
		switch {
		case c == ' ':
			sb.WriteString(`\s+`)
		case unicode.IsLetter(c):
			sb.WriteString("[" + string(c) + lookAlikes[c] + `]\s*`)
		default:
			sb.WriteRune(c)
		}
	}
	// a letter run is followed by \s*, the space itself requires one
	return regexp.MustCompile(strings.ReplaceAll(sb.String(), `\s*\s+`, `\s+`))
}
