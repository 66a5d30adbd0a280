package matching

import "strings"

var soundexCodes = map[rune]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// Soundex returns the American Soundex code of a single word, or "" when the word has no
// ASCII letters.
func Soundex(word string) string {
	var letters []rune
	for _, r := range strings.ToLower(word) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{byte(letters[0] - 'a' + 'A')}
	last := soundexCodes[letters[0]]
	for _, r := range letters[1:] {
		c, ok := soundexCodes[r]
		if ok && c != last {
			code = append(code, c)
			if len(code) == 4 {
				break
			}
		}
		// h and w do not separate letters with the same code
		if r != 'h' && r != 'w' {
			last = c
		}
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

// phoneticKey is the space-joined Soundex code of every token of the normalized name.
func phoneticKey(v string) string {
	tokens := strings.Fields(normalizeName(v))
	codes := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if c := Soundex(t); c != "" {
			codes = append(codes, c)
		}
	}
	return strings.Join(codes, " ")
}
