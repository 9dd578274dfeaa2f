package stream

import "testing"

func TestNextFrameLeadingSeparators(t *testing.T) {
	cases := []struct {
		name     string
		buf      string
		frame    string
		rest     string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, ""},
		{"leading whitespace", "  \n\t" + `{"a":1}`, `{"a":1}`, ""},
		{"leading comma", `,{"a":1}`, `{"a":1}`, ""},
		{"comma then whitespace", ", \n" + `{"a":1}`, `{"a":1}`, ""},
		{"whitespace comma whitespace", " , " + `{"a":1}`, `{"a":1}`, ""},
		{"trailing remainder", `{"a":1}, {"b":2}`, `{"a":1}`, `, {"b":2}`},
		{"nested objects", `{"a":{"b":{"c":3}}}x`, `{"a":{"b":{"c":3}}}`, "x"},
		{"braces inside string", `{"a":"}{"}tail`, `{"a":"}{"}`, "tail"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, rest, ok := NextFrame(tc.buf)
			if !ok {
				t.Fatalf("NextFrame(%q) not ok", tc.buf)
			}
			if frame != tc.frame {
				t.Errorf("frame = %q, want %q", frame, tc.frame)
			}
			if rest != tc.rest {
				t.Errorf("rest = %q, want %q", rest, tc.rest)
			}
		})
	}
}

func TestNextFrameEscapedQuoteBeforeBrace(t *testing.T) {
	// The embedded \" must not close the string, so the } after it is
	// string content, not a frame boundary.
	buf := `{"k":"a\"}b"}rest`
	frame, rest, ok := NextFrame(buf)
	if !ok {
		t.Fatal("no frame extracted")
	}
	if frame != `{"k":"a\"}b"}` {
		t.Errorf("frame = %q", frame)
	}
	if rest != "rest" {
		t.Errorf("rest = %q", rest)
	}
}

func TestNextFrameEscapedBackslash(t *testing.T) {
	// \\ ends the escape, so the following quote closes the string.
	buf := `{"k":"a\\"}tail`
	frame, rest, ok := NextFrame(buf)
	if !ok {
		t.Fatal("no frame extracted")
	}
	if frame != `{"k":"a\\"}` {
		t.Errorf("frame = %q", frame)
	}
	if rest != "tail" {
		t.Errorf("rest = %q", rest)
	}
}

func TestNextFrameIncomplete(t *testing.T) {
	for _, buf := range []string{
		"",
		"   ",
		",",
		`{"a":1`,
		`{"a":{"b":2}`,
		`{"a":"unterminated`,
		`{"a":"quote\"still open}`,
	} {
		frame, rest, ok := NextFrame(buf)
		if ok {
			t.Errorf("NextFrame(%q) ok with frame %q, want incomplete", buf, frame)
		}
		if rest != buf {
			t.Errorf("NextFrame(%q) altered buffer to %q", buf, rest)
		}
	}
}

func TestNextFrameNonObjectPrefix(t *testing.T) {
	for _, buf := range []string{"]", "null,", `"str"`, "42"} {
		if _, rest, ok := NextFrame(buf); ok || rest != buf {
			t.Errorf("NextFrame(%q) = ok=%v rest=%q, want no frame and untouched buffer", buf, ok, rest)
		}
	}
}

func TestNextFrameConsumesBalancedInvalidJSON(t *testing.T) {
	// Framing only checks brace balance; JSON validity is the caller's
	// problem. This span must still be consumed as one frame.
	buf := `{invalid json!},{"b":2}`
	frame, rest, ok := NextFrame(buf)
	if !ok {
		t.Fatal("balanced span not consumed")
	}
	if frame != `{invalid json!}` {
		t.Errorf("frame = %q", frame)
	}
	if rest != `,{"b":2}` {
		t.Errorf("rest = %q", rest)
	}
}

func TestNextFrameDrainLoop(t *testing.T) {
	buf := `{"a":1},{"b":2}, {"c":3}`
	var frames []string
	for {
		frame, rest, ok := NextFrame(buf)
		if !ok {
			break
		}
		frames = append(frames, frame)
		buf = rest
	}
	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	if len(frames) != len(want) {
		t.Fatalf("extracted %d frames, want %d: %v", len(frames), len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame[%d] = %q, want %q", i, frames[i], want[i])
		}
	}
}
