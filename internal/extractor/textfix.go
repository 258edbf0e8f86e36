package extractor

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// FixMojibake repairs UTF-8 text that was decoded as Windows-1252 somewhere
// upstream (e.g. "ChÃ o" for "Chào").
//
// Repair works per run of consecutive non-ASCII runes that Windows-1252 can
// encode, so correct text elsewhere in the string (including characters such
// as "ộ" that Windows-1252 lacks) does not block it. A run whose bytes are not
// valid UTF-8 is kept as is.
func FixMojibake(s string) string {
	if s == "" || isASCII(s) {
		return s
	}

	var (
		out      strings.Builder
		run      []byte
		runStart int
	)
	out.Grow(len(s))
	flush := func(end int) {
		if utf8.Valid(run) {
			out.Write(run)
		} else {
			out.WriteString(s[runStart:end])
		}
		run = run[:0]
	}

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r >= utf8.RuneSelf && size > 1 {
			if b, ok := charmap.Windows1252.EncodeRune(r); ok {
				if len(run) == 0 {
					runStart = i
				}
				run = append(run, b)
				i += size
				continue
			}
		}
		if len(run) > 0 {
			flush(i)
		}
		out.WriteString(s[i : i+size])
		i += size
	}
	if len(run) > 0 {
		flush(len(s))
	}
	return out.String()
}

func isASCII(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= utf8.RuneSelf }) < 0
}

// truncateRunes keeps at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
