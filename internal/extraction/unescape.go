package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/doeshing/oncomn/internal/domain"
)

// Unescape decodes JSON string escapes repeatedly until the text stops
// changing or domain.MaxUnescapePasses passes have run. Models sometimes
// escape their output twice, so a single pass is not enough.
func Unescape(s string) string {
	for pass := 0; pass < domain.MaxUnescapePasses; pass++ {
		next := unescapeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// partialEscapePattern matches an escape cut off at the end of the text: a
// `\u` with fewer than four hex digits, or a high surrogate whose low half
// has not fully arrived.
var partialEscapePattern = regexp.MustCompile(`\\u(?:[dD][89abAB][0-9a-fA-F]{2}(?:\\(?:u[0-9a-fA-F]{0,3})?)?|[0-9a-fA-F]{0,3})$`)

// unescapeOpen unescapes a value that may still grow. An escape sequence cut
// off at the end is held back after every pass, so the result for a longer
// prefix of the same stream always extends the result for a shorter one.
func unescapeOpen(s string) string {
	s = trimPartialEscape(s)
	for pass := 0; pass < domain.MaxUnescapePasses; pass++ {
		next := trimPartialEscape(unescapeOnce(s))
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// trimPartialEscape drops an unfinished escape sequence at the end of s.
func trimPartialEscape(s string) string {
	if loc := partialEscapePattern.FindStringIndex(s); loc != nil && !escaped(s, loc[0]) {
		return s[:loc[0]]
	}
	if trailing := len(s) - len(strings.TrimRight(s, `\`)); trailing%2 == 1 {
		return s[:len(s)-1]
	}
	return s
}

// escaped reports whether the backslash at s[i] is itself escaped by an odd
// run of backslashes before it.
func escaped(s string, i int) bool {
	run := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		run++
	}
	return run%2 == 1
}

// unescapeOnce performs one left-to-right pass. Unknown escapes and a
// trailing lone backslash are kept verbatim.
func unescapeOnce(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}

		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
		case 'u':
			r, width, ok := decodeUnicodeEscape(s[i:])
			if !ok {
				b.WriteByte(c)
				continue
			}
			b.WriteRune(r)
			i += width - 1
			continue
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

// decodeUnicodeEscape decodes `\uXXXX` (or a `\uD8xx\uDCxx` surrogate pair)
// at the start of s and returns the rune and the number of bytes consumed.
func decodeUnicodeEscape(s string) (rune, int, bool) {
	first, ok := parseHex4(s)
	if !ok {
		return 0, 0, false
	}
	r := rune(first)
	if !utf16.IsSurrogate(r) {
		return r, 6, true
	}

	second, ok := parseHex4(s[6:])
	if !ok {
		return 0, 0, false
	}
	combined := utf16.DecodeRune(r, rune(second))
	if combined == utf8.RuneError {
		return 0, 0, false
	}
	return combined, 12, true
}

func parseHex4(s string) (uint64, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:6], 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
