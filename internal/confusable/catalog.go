// Package confusable holds the look-alike code points used to render
// challenge text. A person reads the rendered text as plain arithmetic while
// a scraper sees a soup of unrelated characters.
package confusable

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/bidi"
)

// Equals is the symbol rendered between the operation and the answer region.
const Equals = '='

var table = map[rune][]rune{
	'0': {'0', 'O', '\u039f', '\u041e', '\u0555', '\u00d8', '\u0398'},
	'1': {'1'},
	'2': {'2'},
	'3': {'3', '\u04e0', '\u01b7', '\u021c', '\u0417'},
	'4': {'4'},
	'5': {'5', '\u01bc', '\u01bd'},
	'6': {'6'},
	'7': {'7'},
	'8': {'8', '\u0222', '\u0223', '\u09ea', '\u0a6a'},
	'9': {'9', '\u09ed', '\u0a67', '\u0b68', '\ua76e'},
	'+': {'+', '\u2795', '\u253c'},
	'-': {'-', '\u2796', '\u2012', '\u2013', '\u2014', '\u2015', '\u2212', '\u2500', '\u2501', '\u30fc', '\uff0d'},
	'/': {'/', '\u2797', '\u00f7', '\u2044', '\u2215', '\u2571'},
	'*': {'\u274c', '\u00d7', 'x', '\u0445', '\u2179', '\uff58', 'X', '\u03a7', '\u0425', '\u2573', '\uff38'},
	'=': {'=', '\uff1d', '\u2550', '\u30a0'},
}

// Spaces are blended whitespace variants. U+200B and U+FEFF have no width, so
// a run must contain at least one of the others to stay visible.
var Spaces = []rune{
	'\u0020', '\u00a0', '\u2002', '\u2003', '\u2004', '\u2005', '\u2006', '\u2007',
	'\u2008', '\u2009', '\u200a', '\u202f', '\u205f', '\u200b', '\ufeff',
}

// Invisibles are the invisible operators U+2061..U+2064.
var Invisibles = []rune{'\u2061', '\u2062', '\u2063', '\u2064'}

// Marks are light combining marks that keep the base glyph legible.
var Marks = []rune{'\u0307', '\u0323', '\u0324', '\u0330', '\u0331', '\u0358'}

var (
	inverse = buildInverse()
	filler  = buildFiller()
)

// For returns the look-alikes of symbol, or nil if the symbol is unknown.
// The returned slice must not be modified.
func For(symbol rune) []rune {
	return table[symbol]
}

// Symbols returns the base symbols in the catalog in ascending order.
func Symbols() []rune {
	out := make([]rune, 0, len(table))
	for s := range table {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsZeroWidth reports whether r renders without advancing the line.
func IsZeroWidth(r rune) bool {
	return r == '\u200b' || r == '\ufeff'
}

// Decode maps rendered text back to its base symbols. Spaces, invisibles and
// combining marks are dropped; runes outside the catalog are kept as they are.
func Decode(text string) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if filler[r] {
			continue
		}
		if base, ok := inverse[r]; ok {
			out = append(out, base)
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Check verifies the catalog invariants: no code point repeats inside a set,
// no code point is shared between sets, and none is right-to-left.
func Check() error {
	owner := make(map[rune]string)
	claim := func(group string, runes []rune) error {
		if len(runes) == 0 {
			return fmt.Errorf("%s: empty set", group)
		}
		seen := make(map[rune]bool, len(runes))
		for _, r := range runes {
			if seen[r] {
				return fmt.Errorf("%s: %U repeated", group, r)
			}
			seen[r] = true
			if prev, ok := owner[r]; ok {
				return fmt.Errorf("%s: %U already used by %s", group, r, prev)
			}
			owner[r] = group
			if isRightToLeft(r) {
				return fmt.Errorf("%s: %U is right-to-left", group, r)
			}
		}
		return nil
	}

	for _, s := range Symbols() {
		if err := claim(fmt.Sprintf("symbol %q", s), table[s]); err != nil {
			return err
		}
	}
	if err := claim("spaces", Spaces); err != nil {
		return err
	}
	if err := claim("invisibles", Invisibles); err != nil {
		return err
	}
	return claim("marks", Marks)
}

func isRightToLeft(r rune) bool {
	p, _ := bidi.LookupRune(r)
	switch p.Class() {
	case bidi.R, bidi.AL:
		return true
	}
	return false
}

func buildInverse() map[rune]rune {
	m := make(map[rune]rune)
	for base, runes := range table {
		for _, r := range runes {
			m[r] = base
		}
	}
	return m
}

func buildFiller() map[rune]bool {
	m := make(map[rune]bool)
	for _, set := range [][]rune{Spaces, Invisibles, Marks} {
		for _, r := range set {
			m[r] = true
		}
	}
	return m
}
