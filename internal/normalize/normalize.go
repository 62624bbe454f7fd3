// Package normalize cleans raw field values before comparison.
//
// Field transliterates to ASCII, strips punctuation that varies between
// sources (hyphens, quotes, commas), folds separators to spaces, collapses
// whitespace, and lower-cases. An empty result is reported as absent.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters that survive NFKD without decomposing into ASCII.
var specialLetters = map[rune]string{
	'ß': "ss", 'ẞ': "SS",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'ø': "o", 'Ø': "O",
	'ł': "l", 'Ł': "L",
	'đ': "d", 'Đ': "D",
	'ð': "d", 'Ð': "D",
	'þ': "th", 'Þ': "TH",
	'ħ': "h", 'Ħ': "H",
	'ı': "i",
	'ŋ': "ng", 'Ŋ': "NG",
	'‘': "'", '’': "'", '‚': "'", '‛': "'", '′': "'",
	'“': `"`, '”': `"`, '„': `"`, '«': `"`, '»': `"`, '″': `"`,
	'‐': "-", '‑': "-", '‒': "-", '–': "-", '—': "-", '―': "-", '−': "-",
	'⁄': "/",
	'…': "...",
	'•': " ", '·': " ",
}

var punctuation = strings.NewReplacer(
	"\n", " ",
	"-", "",
	"/", " ",
	"'", "",
	`"`, "",
	",", "",
	":", " ",
)

// Field normalizes one raw value. It returns ("", false) when nothing
// remains. Field is idempotent: Field(Field(x)) == Field(x).
func Field(raw string) (string, bool) {
	value := ToASCII(raw)
	value = punctuation.Replace(value)
	value = strings.Join(strings.Fields(value), " ")
	value = strings.Trim(value, `"' `)
	value = strings.ToLower(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// ToASCII transliterates s: compatibility decomposition, combining marks
// removed, the special letter table applied, and any other non-ASCII rune
// dropped.
func ToASCII(s string) string {
	if isASCII(s) {
		return s
	}
	decomposed, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), s)
	if err != nil {
		decomposed = s
	}
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case specialLetters[r] != "":
			b.WriteString(specialLetters[r])
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
