// Package analysis drives document analysis end to end: it opens a round,
// streams extraction batches through the coordinator and records the
// resulting graph under the document.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skarlatos/foliograph/internal/coordinator"
	"github.com/skarlatos/foliograph/internal/extract"
	"github.com/skarlatos/foliograph/internal/llm"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/round"
	"github.com/skarlatos/foliograph/internal/store"
)

// ErrBusy reports that another analysis holds the active round.
var ErrBusy = round.ErrRoundActive

// ErrUnknownDocument reports a document id with no registered document.
var ErrUnknownDocument = errors.New("unknown document")

type Service struct {
	coord    *coordinator.Coordinator
	ctrl     *extract.Controller
	store    *store.Store
	recorder *store.Recorder
	llm      *llm.Client
}

func New(coord *coordinator.Coordinator, ctrl *extract.Controller, st *store.Store, client *llm.Client) *Service {
	return &Service{
		coord:    coord,
		ctrl:     ctrl,
		store:    st,
		recorder: store.NewRecorder(st),
		llm:      client,
	}
}

// PageRequest asks for one page to be analyzed until the extractor signals
// completion or the batch budget runs out.
type PageRequest struct {
	PageNumber  int      `json:"page_number"`
	PageImage   string   `json:"page_image"`
	DomainHints []string `json:"domain_hints,omitempty"`
}

type PageResult struct {
	DocumentID string       `json:"document_id"`
	Round      *store.Round `json:"round,omitempty"`
	Batches    int          `json:"batches"`
	Completed  bool         `json:"completed"`
	Exhausted  bool         `json:"exhausted"`
	Packets    int          `json:"packets"`
	Concepts   int          `json:"concepts"`
}

// AnalyzePage runs the streaming extraction pipeline for one page. Exactly
// one analysis runs at a time; a second caller gets ErrBusy while the round
// is open. Terms already extracted for the document seed the exclusion list,
// so re-analyzing a page surfaces new material instead of repeating itself.
func (s *Service) AnalyzePage(ctx context.Context, documentID string, req PageRequest) (*PageResult, error) {
	doc, err := s.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}

	terms, err := s.store.ConceptTerms(documentID)
	if err != nil {
		return nil, err
	}

	r, err := s.coord.StartRound(0, fmt.Sprintf("Page %d analysis", req.PageNumber))
	if err != nil {
		return nil, err
	}

	sub := s.coord.Subscribe(func(p *packet.Packet) {
		if err := s.recorder.Record(documentID, p); err != nil {
			slog.Warn("record packet", "doc", documentID, "error", err)
		}
	})
	defer sub.Cancel()

	s.coord.Announce(documentID, packet.NewRoundStart(r.ID, r.Name))

	if err := s.beginRound(documentID, r); err != nil {
		_, _ = s.coord.FailRound()
		return nil, err
	}

	var packets, concepts int
	res, err := s.ctrl.Run(ctx, extract.Request{
		PageImage:    req.PageImage,
		PageNumber:   req.PageNumber,
		ExcludeTerms: terms,
		DomainHints:  req.DomainHints,
	}, func(p *packet.Packet) {
		packets++
		if p.Content.Concept != nil {
			concepts++
		}
		s.coord.HandlePacket(documentID, p)
	})
	if err != nil {
		s.finishRound(documentID, false)
		return nil, err
	}

	closed := s.finishRound(documentID, true)
	slog.Info("page analysis finished",
		"doc", documentID, "page", req.PageNumber,
		"batches", res.Batches, "packets", packets, "concepts", concepts,
		"exhausted", res.Exhausted)

	return &PageResult{
		DocumentID: documentID,
		Round:      closed,
		Batches:    res.Batches,
		Completed:  res.Completed,
		Exhausted:  res.Exhausted,
		Packets:    packets,
		Concepts:   concepts,
	}, nil
}

// beginRound persists the opened round and flips the document to processing.
func (s *Service) beginRound(documentID string, r *round.Round) error {
	row := &store.Round{
		DocumentID: documentID,
		ID:         r.ID,
		Name:       r.Name,
		Status:     string(r.Status),
		StartedAt:  r.StartedAt,
	}
	if err := s.store.SaveRound(row); err != nil {
		return err
	}
	return s.store.UpdateDocumentStatus(documentID, store.DocProcessing)
}

// finishRound closes the active round through the coordinator and persists
// the terminal row. Persistence failures are logged, not propagated; the
// in-memory protocol state is the source of truth for the running session.
func (s *Service) finishRound(documentID string, completed bool) *store.Round {
	var (
		r   *round.Round
		err error
	)
	if completed {
		r, err = s.coord.CompleteRound()
	} else {
		r, err = s.coord.FailRound()
	}
	if err != nil {
		slog.Warn("close round", "doc", documentID, "error", err)
		return nil
	}

	row := &store.Round{
		DocumentID:  documentID,
		ID:          r.ID,
		Name:        r.Name,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.DurationMs,
	}
	if err := s.store.SaveRound(row); err != nil {
		slog.Warn("persist round", "doc", documentID, "round", r.ID, "error", err)
	}

	status := store.DocCompleted
	if !completed {
		status = store.DocError
	}
	if err := s.store.UpdateDocumentStatus(documentID, status); err != nil {
		slog.Warn("update document status", "doc", documentID, "error", err)
	}
	return row
}

type TextResult struct {
	DocumentID string `json:"document_id"`
	Concepts   int    `json:"concepts"`
}

// ExtractText is the non-streaming path: one chat completion extracts
// concepts from raw text, each wrapped in a harvester packet and fed through
// the same coordinator pipeline as the streaming protocol.
func (s *Service) ExtractText(ctx context.Context, documentID, text, prompt string) (*TextResult, error) {
	doc, err := s.store.GetDocument(documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}

	if prompt == "" {
		prompt = llm.DefaultExtractionPrompt
	}

	if err := s.store.UpdateDocumentStatus(documentID, store.DocProcessing); err != nil {
		return nil, err
	}

	concepts, err := s.llm.ExtractFromText(ctx, text, prompt)
	if err != nil {
		if uerr := s.store.UpdateDocumentStatus(documentID, store.DocError); uerr != nil {
			slog.Warn("update document status", "doc", documentID, "error", uerr)
		}
		return nil, err
	}

	sub := s.coord.Subscribe(func(p *packet.Packet) {
		if err := s.recorder.Record(documentID, p); err != nil {
			slog.Warn("record packet", "doc", documentID, "error", err)
		}
	})
	defer sub.Cancel()

	for i := range concepts {
		s.coord.HandlePacket(documentID, packet.NewConceptUpdate(packet.SenderHarvester, &concepts[i]))
	}
	s.coord.HandlePacket(documentID, packet.NewTaskComplete(packet.SenderHarvester, "text extraction complete"))

	if err := s.store.UpdateDocumentStatus(documentID, store.DocCompleted); err != nil {
		slog.Warn("update document status", "doc", documentID, "error", err)
	}

	slog.Info("text extraction finished", "doc", documentID, "concepts", len(concepts))
	return &TextResult{DocumentID: documentID, Concepts: len(concepts)}, nil
}
