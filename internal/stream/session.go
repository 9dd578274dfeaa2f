package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/skarlatos/foliograph/internal/packet"
)

// Transport opens one streaming connection attempt. Implementations decide
// what a connection is (an HTTP response body, a test script).
type Transport interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type SessionConfig struct {
	// RetryAttempts is how many times a failed attempt is retried before the
	// session gives up. Zero means a single attempt.
	RetryAttempts int
	// RetryDelay is the base backoff, doubled on every retry.
	RetryDelay time.Duration
}

// Session drives one logical stream to completion: it opens the transport,
// decodes chunks, strips the top-level array bracket once, frames packets and
// emits them in arrival order. Transport failures restart the whole attempt
// with exponential backoff; every attempt begins with fresh buffer state.
type Session struct {
	transport Transport
	cfg       SessionConfig
	emit      func(*packet.Packet)
}

func NewSession(t Transport, cfg SessionConfig, emit func(*packet.Packet)) *Session {
	return &Session{transport: t, cfg: cfg, emit: emit}
}

// Run returns nil when the stream ends cleanly, meaning no more frames will
// arrive. That is distinct from the protocol's own completion packet, which
// the caller watches for among the emitted packets.
func (s *Session) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := s.runAttempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if attempt >= s.cfg.RetryAttempts {
			return fmt.Errorf("stream failed after %d attempts: %w", attempt+1, lastErr)
		}
		delay := s.cfg.RetryDelay * (1 << attempt)
		slog.Warn("stream attempt failed, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) runAttempt(ctx context.Context) error {
	body, err := s.transport.Open(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer body.Close()

	var dec chunkDecoder
	var buf string
	arrayStarted := false
	chunk := make([]byte, 4096)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf += dec.Decode(chunk[:n])
			if !arrayStarted {
				buf, arrayStarted = stripArrayOpen(buf)
			}
			if arrayStarted {
				buf = s.drainFrames(buf)
			}
		}
		if err == io.EOF {
			if tail := strings.Trim(buf, " \t\r\n]"); tail != "" {
				slog.Debug("discarding incomplete stream tail", "bytes", len(tail))
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// drainFrames extracts every complete frame currently in buf, since one chunk
// may carry several frames or a fraction of one. Malformed frames are logged
// and skipped; the session keeps going.
func (s *Session) drainFrames(buf string) string {
	for {
		frame, rest, ok := NextFrame(buf)
		if !ok {
			return buf
		}
		buf = rest
		p, err := packet.Parse([]byte(frame))
		if err != nil {
			slog.Warn("skipping malformed frame", "error", err)
			continue
		}
		p.Normalize()
		s.emit(p)
	}
}

// stripArrayOpen consumes the opening bracket of the top-level packet array.
// A buffer that is still all whitespace stays unconsumed. A stream that skips
// the array wrapper entirely is tolerated.
func stripArrayOpen(buf string) (string, bool) {
	for i := 0; i < len(buf); i++ {
		switch {
		case isSpace(buf[i]):
		case buf[i] == '[':
			return buf[i+1:], true
		default:
			return buf[i:], true
		}
	}
	return buf, false
}
