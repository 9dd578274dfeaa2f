package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

// fakeStream hands out one scripted chunk per Read, then EOF (or a scripted
// error instead).
type fakeStream struct {
	chunks [][]byte
	errAt  error
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		if f.errAt != nil {
			return 0, f.errAt
		}
		return 0, io.EOF
	}
	n := copy(p, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

func (f *fakeStream) Close() error { return nil }

// fakeTransport runs a scripted sequence of attempts.
type fakeTransport struct {
	attempts int
	open     func(attempt int) (io.ReadCloser, error)
}

func (t *fakeTransport) Open(ctx context.Context) (io.ReadCloser, error) {
	t.attempts++
	return t.open(t.attempts)
}

func collectSession(t *testing.T, tr Transport, cfg SessionConfig) ([]*packet.Packet, error) {
	t.Helper()
	var got []*packet.Packet
	s := NewSession(tr, cfg, func(p *packet.Packet) { got = append(got, p) })
	err := s.Run(context.Background())
	return got, err
}

func TestSessionChunkSplitMidFrame(t *testing.T) {
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return &fakeStream{chunks: [][]byte{
			[]byte(`[{"sender":"SYSTEM","intent":"INFO","content":{"log":"hi"}}, {"sen`),
			[]byte(`der":"OBSERVER","intent":"INFO","content":{"log":"bye"}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("emitted %d packets, want 2", len(got))
	}
	if got[0].Sender != packet.SenderSystem || got[0].Content.Log != "hi" {
		t.Errorf("first packet = %+v", got[0])
	}
	if got[1].Sender != packet.SenderObserver || got[1].Content.Log != "bye" {
		t.Errorf("second packet = %+v", got[1])
	}
}

func TestSessionBracketSplitFromContent(t *testing.T) {
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return &fakeStream{chunks: [][]byte{
			[]byte("  \n"),
			[]byte("["),
			[]byte(`{"sender":"SYSTEM","intent":"INFO","content":{"log":"x"}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || got[0].Content.Log != "x" {
		t.Fatalf("got %d packets: %+v", len(got), got)
	}
}

func TestSessionRuneSplitAcrossChunks(t *testing.T) {
	raw := []byte(`[{"sender":"SYSTEM","intent":"INFO","content":{"log":"café"}}]`)
	cut := strings.Index(string(raw), "caf") + 4 // one byte into the é
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return &fakeStream{chunks: [][]byte{raw[:cut], raw[cut:]}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("emitted %d packets, want 1", len(got))
	}
	if got[0].Content.Log != "café" {
		t.Errorf("log = %q, want café", got[0].Content.Log)
	}
}

func TestSessionSkipsMalformedFrame(t *testing.T) {
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return &fakeStream{chunks: [][]byte{
			[]byte(`[{"sender":"NOBODY","intent":"INFO","content":{}},` +
				`{"sender":"SYSTEM","intent":"INFO","content":{"log":"ok"}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || got[0].Content.Log != "ok" {
		t.Fatalf("got %d packets: %+v", len(got), got)
	}
}

func TestSessionNormalizesConceptGroup(t *testing.T) {
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return &fakeStream{chunks: [][]byte{
			[]byte(`[{"sender":"HARVESTER","intent":"GRAPH_UPDATE","content":` +
				`{"concept":{"id":"c1","term":"lease","type":"concept","confidence":0.8}}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("emitted %d packets, want 1", len(got))
	}
	if g := got[0].Content.Concept.UIGroup; g != packet.DefaultUIGroup {
		t.Errorf("ui_group = %q, want %q", g, packet.DefaultUIGroup)
	}
}

func TestSessionRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{open: func(attempt int) (io.ReadCloser, error) {
		if attempt < 3 {
			return nil, errors.New("connection refused")
		}
		return &fakeStream{chunks: [][]byte{
			[]byte(`[{"sender":"SYSTEM","intent":"INFO","content":{"log":"up"}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{RetryAttempts: 3, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.attempts != 3 {
		t.Errorf("attempts = %d, want 3", tr.attempts)
	}
	if len(got) != 1 || got[0].Content.Log != "up" {
		t.Fatalf("got %d packets: %+v", len(got), got)
	}
}

func TestSessionMidStreamErrorRestartsAttempt(t *testing.T) {
	tr := &fakeTransport{open: func(attempt int) (io.ReadCloser, error) {
		if attempt == 1 {
			// dies before any complete frame arrives
			return &fakeStream{
				chunks: [][]byte{[]byte(`[{"sen`)},
				errAt:  errors.New("connection reset"),
			}, nil
		}
		return &fakeStream{chunks: [][]byte{
			[]byte(`[{"sender":"SYSTEM","intent":"INFO","content":{"log":"a"}},` +
				`{"sender":"SYSTEM","intent":"INFO","content":{"log":"b"}}]`),
		}}, nil
	}}

	got, err := collectSession(t, tr, SessionConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.attempts != 2 {
		t.Errorf("attempts = %d, want 2", tr.attempts)
	}
	if len(got) != 2 || got[0].Content.Log != "a" || got[1].Content.Log != "b" {
		t.Fatalf("got %d packets: %+v", len(got), got)
	}
}

func TestSessionExhaustsRetryBudget(t *testing.T) {
	dial := errors.New("no route to host")
	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) { return nil, dial }}

	_, err := collectSession(t, tr, SessionConfig{RetryAttempts: 2, RetryDelay: time.Millisecond})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, dial) {
		t.Errorf("error %v does not wrap transport error", err)
	}
	if tr.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", tr.attempts)
	}
}

func TestSessionHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &fakeTransport{open: func(int) (io.ReadCloser, error) {
		return nil, errors.New("boom")
	}}
	s := NewSession(tr, SessionConfig{RetryAttempts: 5, RetryDelay: time.Hour}, func(*packet.Packet) {})

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if tr.attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retries after cancel)", tr.attempts)
	}
}
