package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var canonical = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Letters that do not decompose into an ASCII base plus combining marks.
var foldTable = map[rune]string{
	'ß': "ss",
	'æ': "ae",
	'œ': "oe",
	'ø': "o",
	'ł': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
	'ı': "i",
}

// Normalize returns the canonical slug for raw: lowercase ASCII letters and
// digits, with every run of other characters collapsed to one hyphen and no
// leading or trailing hyphen. Latin diacritics are folded to their base letter.
//
// Normalize is total and idempotent. An empty result means raw carries no
// usable identifier and the caller should skip the entity.
func Normalize(raw string) string {
	folded := fold(strings.ToLower(raw))

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// Valid reports whether s is a non-empty slug that Normalize leaves unchanged.
func Valid(s string) bool {
	return canonical.MatchString(s)
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	if !strings.ContainsFunc(out, func(r rune) bool { _, ok := foldTable[r]; return ok }) {
		return out
	}
	var b strings.Builder
	for _, r := range out {
		if rep, ok := foldTable[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
