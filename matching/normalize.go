package matching

import (
	"strings"
	"unicode"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Normalizer string

const (
	NormalizerName       Normalizer = "name"
	NormalizerIdentifier Normalizer = "identifier"
	NormalizerPhone      Normalizer = "phone"
	NormalizerText       Normalizer = "text"
)

// DefaultPhoneRegion is the region used when a phone number carries no country prefix.
var DefaultPhoneRegion = "US"

func (n Normalizer) IsValid() bool {
	switch n {
	case NormalizerName, NormalizerIdentifier, NormalizerPhone, NormalizerText:
		return true
	}
	return false
}

// Normalize returns the canonical form of v for the given normalizer.
func Normalize(n Normalizer, v string) string {
	switch n {
	case NormalizerName:
		return normalizeName(v)
	case NormalizerIdentifier:
		return digitsOnly(v)
	case NormalizerPhone:
		return normalizePhone(v)
	case NormalizerText:
		return strings.Join(strings.Fields(strings.ToLower(v)), " ")
	}
	return v
}

// normalizeName folds case and diacritics, turns punctuation into spaces and collapses whitespace.
// "  O'Brien-Smith, José " becomes "o brien smith jose".
func normalizeName(v string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, v)
	if err != nil {
		folded = v
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

func digitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizePhone(v string) string {
	num, err := libphonenumber.Parse(v, DefaultPhoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return digitsOnly(v)
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
