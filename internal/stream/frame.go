// Package stream turns a chunked byte stream into an ordered sequence of
// parsed packets: incremental UTF-8 decoding, JSON object framing over
// arbitrary chunk boundaries, and retrying transport attempts.
package stream

// NextFrame pulls one complete JSON object off the front of buf. It skips
// leading whitespace and a single array separator comma, then requires an
// opening brace. Brace depth is tracked outside strings only; a backslash
// escapes exactly the next character. When depth returns to zero the scanned
// span is the frame and everything after it the remainder. If the buffer ends
// before that, ok is false and buf is returned untouched so the caller can
// wait for more bytes.
//
// A frame with balanced braces but invalid JSON is still consumed here;
// rejecting it is the caller's job.
func NextFrame(buf string) (frame, rest string, ok bool) {
	i := 0
	for i < len(buf) && isSpace(buf[i]) {
		i++
	}
	if i < len(buf) && buf[i] == ',' {
		i++
		for i < len(buf) && isSpace(buf[i]) {
			i++
		}
	}
	if i >= len(buf) || buf[i] != '{' {
		return "", buf, false
	}

	depth := 0
	inString := false
	escaped := false
	for j := i; j < len(buf); j++ {
		if escaped {
			escaped = false
			continue
		}
		switch buf[j] {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return buf[i : j+1], buf[j+1:], true
				}
			}
		}
	}
	return "", buf, false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
