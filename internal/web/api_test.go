package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skarlatos/foliograph/internal/analysis"
	"github.com/skarlatos/foliograph/internal/bus"
	"github.com/skarlatos/foliograph/internal/config"
	"github.com/skarlatos/foliograph/internal/coordinator"
	"github.com/skarlatos/foliograph/internal/extract"
	"github.com/skarlatos/foliograph/internal/llm"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/store"
)

func conceptFrame(id, term string) string {
	return fmt.Sprintf(`{"sender":"HARVESTER","intent":"GRAPH_UPDATE","content":{"concept":{"id":%q,"term":%q,"type":"concept","confidence":0.9}}}`, id, term)
}

const completeFrame = `{"sender":"SYSTEM","intent":"TASK_COMPLETE","content":{"log":"done"}}`

func newTestServer(t *testing.T, cfg config.WebConfig) (*Server, *store.Store, *coordinator.Coordinator) {
	t.Helper()

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s,%s,%s]", conceptFrame("c1", "lease"), conceptFrame("c2", "tenant"), completeFrame)
	}))
	t.Cleanup(gateway.Close)

	client := llm.NewClient(llm.Config{Endpoint: gateway.URL, Model: "gpt-4o", Timeout: time.Second})
	ctrl := extract.NewController(client, extract.Config{BatchDelay: time.Millisecond})
	coord := coordinator.New(nil, time.Hour)
	svc := analysis.New(coord, ctrl, st, client)

	return NewServer(st, svc, coord, nil, cfg, "test"), st, coord
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t, config.WebConfig{})
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/documents", map[string]any{"filename": "lease.pdf", "page_count": 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created store.Document
	decode(t, rec, &created)
	if created.ID == "" || created.Status != store.DocPending {
		t.Errorf("created = %+v", created)
	}

	rec = doJSON(t, h, "GET", "/api/documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var docs []store.Document
	decode(t, rec, &docs)
	if len(docs) != 1 {
		t.Errorf("listed %d documents, want 1", len(docs))
	}

	rec = doJSON(t, h, "GET", "/api/documents/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/api/documents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, "DELETE", "/api/documents/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, "GET", "/api/documents/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rec.Code)
	}

	// Missing filename rejected
	rec = doJSON(t, h, "POST", "/api/documents", map[string]any{"page_count": 3})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create without filename status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	s, st, coord := newTestServer(t, config.WebConfig{})
	h := s.Handler()
	_ = st.SaveDocument(&store.Document{ID: "doc-1", Filename: "lease.pdf"})

	rec := doJSON(t, h, "POST", "/api/documents/doc-1/analyze", map[string]any{"page_number": 1, "page_image": "aGk="})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res analysis.PageResult
	decode(t, rec, &res)
	if !res.Completed || res.Concepts != 2 {
		t.Errorf("result = %+v", res)
	}

	rec = doJSON(t, h, "GET", "/api/concepts?document_id=doc-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("concepts status = %d", rec.Code)
	}
	var concepts []store.Concept
	decode(t, rec, &concepts)
	if len(concepts) != 2 {
		t.Errorf("concepts = %d, want 2", len(concepts))
	}

	// Unknown document
	rec = doJSON(t, h, "POST", "/api/documents/ghost/analyze", map[string]any{"page_number": 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown doc status = %d, want 404", rec.Code)
	}

	// Text extraction requires text
	rec = doJSON(t, h, "POST", "/api/documents/doc-1/extract-text", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("extract without text status = %d, want 400", rec.Code)
	}

	// Round held elsewhere
	if _, err := coord.StartRound(0, "held"); err != nil {
		t.Fatalf("start round: %v", err)
	}
	rec = doJSON(t, h, "POST", "/api/documents/doc-1/analyze", map[string]any{"page_number": 2})
	if rec.Code != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", rec.Code)
	}
}

func TestGraphEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t, config.WebConfig{})
	h := s.Handler()
	_ = st.SaveDocument(&store.Document{ID: "doc-1", Filename: "lease.pdf"})
	_ = st.SaveConcept("doc-1", &packet.Concept{ID: "c1", Term: "lease", Type: "concept", Confidence: 0.9})
	_ = st.SaveConcept("doc-1", &packet.Concept{ID: "c2", Term: "tenant", Type: "concept", Confidence: 0.8})
	_ = st.SaveDomain("doc-1", &packet.Domain{ID: "d1", Name: "Contract Law"})
	_ = st.SaveRelationship("doc-1", &packet.Relationship{Source: "c1", Target: "c2", Predicate: "binds"})
	_ = st.SaveTaxonomy("doc-1", &packet.Taxonomy{Parent: "d1", Child: "c1"})

	rec := doJSON(t, h, "GET", "/api/documents/doc-1/graph", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("graph status = %d", rec.Code)
	}

	var graph struct {
		Nodes []struct {
			ID        string `json:"id"`
			Label     string `json:"label"`
			NodeGroup string `json:"node_group"`
		} `json:"nodes"`
		Edges []struct {
			Source string `json:"source"`
			Target string `json:"target"`
			Type   string `json:"type"`
		} `json:"edges"`
		Metadata struct {
			TotalNodes int    `json:"total_nodes"`
			TotalEdges int    `json:"total_edges"`
			DocumentID string `json:"document_id"`
		} `json:"metadata"`
	}
	decode(t, rec, &graph)

	if len(graph.Nodes) != 3 || graph.Metadata.TotalNodes != 3 {
		t.Errorf("nodes = %d (meta %d), want 3", len(graph.Nodes), graph.Metadata.TotalNodes)
	}
	if len(graph.Edges) != 2 || graph.Metadata.TotalEdges != 2 {
		t.Errorf("edges = %d (meta %d), want 2", len(graph.Edges), graph.Metadata.TotalEdges)
	}
	if graph.Metadata.DocumentID != "doc-1" {
		t.Errorf("metadata document = %s", graph.Metadata.DocumentID)
	}

	groups := map[string]int{}
	for _, n := range graph.Nodes {
		groups[n.NodeGroup]++
	}
	if groups["concept"] != 2 || groups["domain"] != 1 {
		t.Errorf("node groups = %v", groups)
	}

	// Taxonomy link defaults to is_a
	foundLink := false
	for _, e := range graph.Edges {
		if e.Source == "d1" && e.Target == "c1" && e.Type == "is_a" {
			foundLink = true
		}
	}
	if !foundLink {
		t.Errorf("missing taxonomy edge in %v", graph.Edges)
	}
}

func TestAgentAndTaskEndpoints(t *testing.T) {
	s, _, coord := newTestServer(t, config.WebConfig{})
	h := s.Handler()

	rec := doJSON(t, h, "GET", "/api/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("agents status = %d", rec.Code)
	}
	var agents []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	decode(t, rec, &agents)
	if len(agents) != 6 {
		t.Fatalf("agents = %d, want 6", len(agents))
	}
	for _, a := range agents {
		if a.State != "idle" {
			t.Errorf("agent %s state = %s, want idle", a.Name, a.State)
		}
	}

	rec = doJSON(t, h, "POST", "/api/tasks", map[string]any{"agent": "HARVESTER", "type": "extract", "priority": "high"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The idle harvester picks the task up immediately
	rec = doJSON(t, h, "GET", "/api/tasks", nil)
	var tasks struct {
		Pending  []json.RawMessage `json:"pending"`
		InFlight []json.RawMessage `json:"in_flight"`
	}
	decode(t, rec, &tasks)
	if len(tasks.InFlight) != 1 || len(tasks.Pending) != 0 {
		t.Errorf("tasks = %d in flight / %d pending, want 1/0", len(tasks.InFlight), len(tasks.Pending))
	}

	rec = doJSON(t, h, "POST", "/api/tasks", map[string]any{"agent": "NOBODY", "type": "extract"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown agent status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/agents/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if len(coord.InFlightTasks()) != 0 {
		t.Error("expected no in-flight tasks after reset")
	}
}

func TestStatusAndHealth(t *testing.T) {
	s, st, _ := newTestServer(t, config.WebConfig{})
	h := s.Handler()
	_ = st.SaveDocument(&store.Document{ID: "doc-1", Filename: "lease.pdf"})

	rec := doJSON(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status status = %d", rec.Code)
	}
	var status map[string]any
	decode(t, rec, &status)
	if status["status"] != "ok" || status["version"] != "test" {
		t.Errorf("status = %v", status)
	}
	if status["agents"].(float64) != 6 {
		t.Errorf("agents = %v, want 6", status["agents"])
	}
	if status["documents"].(float64) != 1 {
		t.Errorf("documents = %v, want 1", status["documents"])
	}
}

func TestBearerAuth(t *testing.T) {
	s, _, _ := newTestServer(t, config.WebConfig{Auth: "secret"})
	h := s.Handler()

	rec := doJSON(t, h, "GET", "/api/status", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}

	// Health stays open for probes
	rec = doJSON(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	s, _, _ := newTestServer(t, config.WebConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	s.hub.Broadcast(bus.Event{Type: bus.EventRound, DocumentID: "doc-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var event bus.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != bus.EventRound || event.DocumentID != "doc-1" {
		t.Errorf("event = %+v", event)
	}
}
