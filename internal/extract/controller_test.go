package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/skarlatos/foliograph/internal/llm"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/stream"
)

// scriptedGateway serves one scripted response per analysis call and records
// the exclusion list each call carried.
type scriptedGateway struct {
	mu        sync.Mutex
	calls     int
	exclusion [][]string
	respond   func(call int, w http.ResponseWriter)
}

func (g *scriptedGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req llm.AnalysisRequest
		json.NewDecoder(r.Body).Decode(&req)
		g.mu.Lock()
		g.calls++
		call := g.calls
		g.exclusion = append(g.exclusion, req.ExcludeTerms)
		g.mu.Unlock()
		g.respond(call, w)
	}
}

func conceptFrame(id, term string) string {
	return fmt.Sprintf(`{"sender":"HARVESTER","intent":"GRAPH_UPDATE","content":{"concept":{"id":%q,"term":%q,"type":"concept","confidence":0.9}}}`, id, term)
}

const completeFrame = `{"sender":"SYSTEM","intent":"TASK_COMPLETE","content":{"log":"done"}}`

func newTestController(t *testing.T, g *scriptedGateway, cfg Config) *Controller {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	client := llm.NewClient(llm.Config{Endpoint: srv.URL, Model: "gpt-4o", Timeout: time.Second})
	return NewController(client, cfg)
}

func TestRunStopsOnCompletionPacket(t *testing.T) {
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		fmt.Fprintf(w, "[%s,%s,%s]", conceptFrame("c1", "lease"), conceptFrame("c2", "tenant"), completeFrame)
	}}
	c := newTestController(t, g, Config{BatchDelay: time.Millisecond})

	var emitted []*packet.Packet
	res, err := c.Run(context.Background(), Request{PageNumber: 1}, func(p *packet.Packet) {
		emitted = append(emitted, p)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed || res.Exhausted || res.Batches != 1 {
		t.Errorf("result = %+v", res)
	}
	if g.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", g.calls)
	}
	if len(emitted) != 3 {
		t.Errorf("forwarded %d packets, want 3", len(emitted))
	}
	if len(res.Terms) != 2 || res.Terms[0] != "lease" || res.Terms[1] != "tenant" {
		t.Errorf("terms = %v", res.Terms)
	}
}

func TestRunGrowsExclusionList(t *testing.T) {
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		switch call {
		case 1:
			fmt.Fprintf(w, "[%s]", conceptFrame("c1", "indemnity"))
		default:
			fmt.Fprintf(w, "[%s,%s]", conceptFrame("c2", "waiver"), completeFrame)
		}
	}}
	c := newTestController(t, g, Config{BatchDelay: time.Millisecond})

	res, err := c.Run(context.Background(), Request{
		PageNumber:   2,
		ExcludeTerms: []string{"lease"},
	}, func(*packet.Packet) {})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 2 || !res.Completed {
		t.Fatalf("result = %+v", res)
	}

	if got := g.exclusion[0]; len(got) != 1 || got[0] != "lease" {
		t.Errorf("batch 1 exclusions = %v", got)
	}
	if got := g.exclusion[1]; len(got) != 2 || got[0] != "lease" || got[1] != "indemnity" {
		t.Errorf("batch 2 exclusions = %v", got)
	}
	if len(res.Terms) != 3 {
		t.Errorf("final terms = %v", res.Terms)
	}
}

func TestRunFinalizesByExhaustion(t *testing.T) {
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		fmt.Fprintf(w, "[%s]", conceptFrame(fmt.Sprintf("c%d", call), fmt.Sprintf("term%d", call)))
	}}
	c := newTestController(t, g, Config{MaxBatches: 5, BatchDelay: time.Millisecond})

	res, err := c.Run(context.Background(), Request{PageNumber: 1}, func(*packet.Packet) {})
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if g.calls != 5 {
		t.Errorf("gateway calls = %d, want exactly 5", g.calls)
	}
	if !res.Exhausted || res.Completed || res.Batches != 5 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Terms) != 5 {
		t.Errorf("terms = %v", res.Terms)
	}
}

func TestRunTreatsTransportFailureAsNonCompletingBatch(t *testing.T) {
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		if call == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, "[%s]", completeFrame)
	}}
	c := newTestController(t, g, Config{BatchDelay: time.Millisecond})

	res, err := c.Run(context.Background(), Request{PageNumber: 1}, func(*packet.Packet) {})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 2 || !res.Completed {
		t.Errorf("result = %+v", res)
	}
}

func TestRunSessionRetriesAreIndependentOfBatches(t *testing.T) {
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		if call == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "[%s]", completeFrame)
	}}
	// The session retries the transport within batch one; the controller
	// never needs a second batch.
	c := newTestController(t, g, Config{
		BatchDelay: time.Minute, // would stall the test if a second batch ran
		Session:    stream.SessionConfig{RetryAttempts: 2, RetryDelay: time.Millisecond},
	})

	res, err := c.Run(context.Background(), Request{PageNumber: 1}, func(*packet.Packet) {})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 1 || !res.Completed {
		t.Errorf("result = %+v", res)
	}
	if g.calls != 2 {
		t.Errorf("gateway calls = %d, want 2 (one retry inside the batch)", g.calls)
	}
}

func TestRunHonorsCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := &scriptedGateway{respond: func(call int, w http.ResponseWriter) {
		fmt.Fprintf(w, "[%s]", conceptFrame("c1", "x"))
	}}
	c := newTestController(t, g, Config{BatchDelay: time.Minute})

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = c.Run(ctx, Request{PageNumber: 1}, func(*packet.Packet) {})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond) // let batch one finish into the delay
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if runErr == nil {
		t.Fatal("expected context error")
	}
}
