package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skarlatos/foliograph/internal/agent"
	"github.com/skarlatos/foliograph/internal/analysis"
	"github.com/skarlatos/foliograph/internal/store"
	"github.com/skarlatos/foliograph/internal/task"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Documents
	mux.HandleFunc("POST /api/documents", s.createDocument)
	mux.HandleFunc("GET /api/documents", s.listDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.getDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", s.deleteDocument)

	// Analysis
	mux.HandleFunc("POST /api/documents/{id}/analyze", s.analyzePage)
	mux.HandleFunc("POST /api/documents/{id}/extract-text", s.extractText)

	// Graph reads
	mux.HandleFunc("GET /api/documents/{id}/graph", s.getGraph)
	mux.HandleFunc("GET /api/concepts", s.listConcepts)

	// Protocol state
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("POST /api/agents/reset", s.resetAgents)
	mux.HandleFunc("GET /api/rounds", s.listRounds)
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename  string `json:"filename"`
		FilePath  string `json:"file_path"`
		FileSize  int64  `json:"file_size"`
		PageCount int    `json:"page_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Filename == "" {
		jsonError(w, "filename is required", http.StatusBadRequest)
		return
	}

	d := &store.Document{
		ID:        uuid.New().String(),
		Filename:  body.Filename,
		FilePath:  body.FilePath,
		FileSize:  body.FileSize,
		PageCount: body.PageCount,
		Status:    store.DocPending,
	}
	if err := s.store.SaveDocument(d); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	saved, err := s.store.GetDocument(d.ID)
	if err != nil || saved == nil {
		jsonError(w, "document not saved", http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusCreated, saved)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	jsonResponse(w, docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.store.GetDocument(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, d)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.store.GetDocument(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err := s.store.DeleteDocument(id); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) analyzePage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req analysis.PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PageNumber <= 0 {
		req.PageNumber = 1
	}

	res, err := s.svc.AnalyzePage(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrUnknownDocument):
			jsonError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, analysis.ErrBusy):
			jsonError(w, "an analysis round is already active", http.StatusConflict)
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	jsonResponse(w, res)
}

func (s *Server) extractText(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Text   string `json:"text"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Text == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}

	res, err := s.svc.ExtractText(r.Context(), id, body.Text, body.Prompt)
	if err != nil {
		if errors.Is(err, analysis.ErrUnknownDocument) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, res)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.store.GetDocument(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	concepts, err := s.store.ListConcepts(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	domains, err := s.store.ListDomains(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	priors, err := s.store.ListPriors(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rels, err := s.store.ListRelationships(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	links, err := s.store.ListTaxonomies(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	nodes := make([]map[string]any, 0, len(concepts)+len(domains)+len(priors))
	for _, c := range concepts {
		nodes = append(nodes, map[string]any{
			"id":         c.ID,
			"label":      c.Term,
			"type":       c.Kind,
			"node_group": c.Kind,
			"properties": map[string]any{
				"confidence":   c.Confidence,
				"data_type":    c.DataType,
				"category":     c.Category,
				"ui_group":     c.UIGroup,
				"extracted_by": c.ExtractedBy,
			},
		})
	}
	for _, d := range domains {
		nodes = append(nodes, map[string]any{
			"id":         d.ID,
			"label":      d.Name,
			"type":       "domain",
			"node_group": "domain",
			"properties": map[string]any{
				"description": d.Description,
				"sensitivity": d.Sensitivity,
			},
		})
	}
	for _, p := range priors {
		nodes = append(nodes, map[string]any{
			"id":         p.ID,
			"label":      p.Axiom,
			"type":       "prior",
			"node_group": "prior",
			"properties": map[string]any{
				"weight": p.Weight,
			},
		})
	}

	edges := make([]map[string]any, 0, len(rels)+len(links))
	for _, rel := range rels {
		edges = append(edges, map[string]any{
			"id":     fmt.Sprintf("r%d", rel.ID),
			"source": rel.SourceID,
			"target": rel.TargetID,
			"type":   rel.Kind,
			"properties": map[string]any{
				"predicate":  rel.Predicate,
				"weight":     rel.Weight,
				"created_by": rel.CreatedBy,
			},
		})
	}
	for _, l := range links {
		edges = append(edges, map[string]any{
			"id":     fmt.Sprintf("t%d", l.ID),
			"source": l.Parent,
			"target": l.Child,
			"type":   l.Kind,
			"properties": map[string]any{
				"created_by": l.CreatedBy,
			},
		})
	}

	jsonResponse(w, map[string]any{
		"nodes": nodes,
		"edges": edges,
		"metadata": map[string]any{
			"total_nodes": len(nodes),
			"total_edges": len(edges),
			"document_id": id,
		},
	})
}

func (s *Server) listConcepts(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		jsonError(w, "document_id is required", http.StatusBadRequest)
		return
	}
	concepts, err := s.store.ListConcepts(documentID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if concepts == nil {
		concepts = []store.Concept{}
	}
	jsonResponse(w, concepts)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.coord.Agents())
}

func (s *Server) resetAgents(w http.ResponseWriter, r *http.Request) {
	s.coord.Reset()
	jsonResponse(w, map[string]string{"status": "reset"})
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	stats := s.coord.Stats()
	jsonResponse(w, map[string]any{
		"active":          s.coord.ActiveRound(),
		"history":         s.coord.RoundHistory(),
		"completed":       stats.CompletedRounds,
		"avg_duration_ms": stats.AvgRoundMs,
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"pending":   s.coord.PendingTasks(),
		"in_flight": s.coord.InFlightTasks(),
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent    string          `json:"agent"`
		Type     string          `json:"type"`
		Priority string          `json:"priority"`
		Payload  json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Agent == "" || body.Type == "" {
		jsonError(w, "agent and type are required", http.StatusBadRequest)
		return
	}

	t, err := s.coord.SubmitTask(body.Agent, body.Type, task.Priority(body.Priority), body.Payload)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonStatus(w, http.StatusCreated, t)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.coord.Stats()
	docs, _ := s.store.ListDocuments()

	active := 0
	for _, a := range stats.Agents {
		if a.State == agent.StateActive {
			active++
		}
	}

	status := map[string]any{
		"status":          "ok",
		"agents":          len(stats.Agents),
		"active_agents":   active,
		"pending_tasks":   stats.PendingTasks,
		"in_flight_tasks": stats.InFlightTasks,
		"documents":       len(docs),
		"rounds_done":     stats.CompletedRounds,
		"uptime":          formatUptime(time.Since(s.startedAt)),
		"timestamp":       time.Now().UTC(),
		"version":         s.version,
	}
	if stats.ActiveRoundID != nil {
		status["active_round_id"] = *stats.ActiveRoundID
	}
	jsonResponse(w, status)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
