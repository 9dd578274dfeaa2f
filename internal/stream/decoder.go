package stream

import "unicode/utf8"

// chunkDecoder accumulates bytes into text without ever splitting a UTF-8
// sequence: a trailing partial rune is held back undecoded until the next
// chunk completes it.
type chunkDecoder struct {
	pending []byte
}

// Decode returns the longest prefix of pending+chunk that ends on a rune
// boundary. The rest is kept for the next call.
func (d *chunkDecoder) Decode(chunk []byte) string {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}

	cut := len(data)
	for back := 1; back <= utf8.UTFMax && back <= len(data); back++ {
		i := len(data) - back
		b := data[i]
		if b < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}

	if cut < len(data) {
		d.pending = append([]byte(nil), data[cut:]...)
	}
	return string(data[:cut])
}
