package assistant

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

// Repair rewrites near-JSON model output into something encoding/json can
// read. It strips code fences and any prose around the outermost object,
// collapses control characters and whitespace runs to a single space and
// drops trailing commas before a closing bracket. String literals are
// tracked so that valid JSON only ever loses insignificant whitespace.
func Repair(raw string) string {
	s := fenceRe.ReplaceAllString(raw, " ")
	if first, last := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); first >= 0 && last > first {
		s = s[first : last+1]
	}

	var b strings.Builder
	b.Grow(len(s))
	inString, escaped, pendingSpace := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c < 0x20 || c == 0x7f:
				// raw control characters are illegal inside JSON strings
				if !pendingSpace {
					b.WriteByte(' ')
				}
				pendingSpace = true
				continue
			default:
				b.WriteByte(c)
			}
			pendingSpace = false
			continue
		}

		switch {
		case c <= ' ' || c == 0x7f:
			pendingSpace = true
		case c == ',' && closesNext(s, i+1):
			// trailing comma
		default:
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closesNext reports whether the next significant byte at or after i is a
// closing bracket.
func closesNext(s string, i int) bool {
	for ; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f {
			continue
		}
		return c == '}' || c == ']'
	}
	return false
}
