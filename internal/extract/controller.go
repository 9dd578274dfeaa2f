// Package extract runs the multi-batch continuation protocol: successive
// streaming sessions against the same page, each excluding the terms already
// surfaced, until the stream announces completion or the batch budget runs
// out.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/skarlatos/foliograph/internal/llm"
	"github.com/skarlatos/foliograph/internal/packet"
	"github.com/skarlatos/foliograph/internal/stream"
)

// DefaultMaxBatches bounds how many sessions one logical extraction may run.
const DefaultMaxBatches = 5

type Config struct {
	// MaxBatches caps the continuation budget. Defaults to DefaultMaxBatches.
	MaxBatches int
	// BatchDelay is the fixed pause between consecutive batches.
	BatchDelay time.Duration
	// Session configures transport retries within each batch. That budget is
	// independent of MaxBatches: the session retries connections, the
	// controller retries whole batches.
	Session stream.SessionConfig
}

// Request describes one logical "analyze this page until exhausted"
// operation.
type Request struct {
	PageImage      string
	PageNumber     int
	ExcludeTerms   []string
	DomainHints    []string
	PromptOverride string
	ModelOverride  string
}

// Result reports how the operation finished. Exhausted distinguishes
// complete-by-exhaustion from an explicit completion packet; both are
// success.
type Result struct {
	Batches   int
	Completed bool
	Exhausted bool
	Terms     []string
}

type Controller struct {
	client *llm.Client
	cfg    Config
}

func NewController(client *llm.Client, cfg Config) *Controller {
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultMaxBatches
	}
	return &Controller{client: client, cfg: cfg}
}

// Run drives batches until a TASK_COMPLETE packet arrives or the budget is
// spent. Every packet is forwarded to emit in arrival order; concept terms
// accumulate into the exclusion list fed to the next batch. A batch whose
// transport budget is exhausted is logged and counted as non-completing, not
// fatal. Only context cancellation aborts the operation.
func (c *Controller) Run(ctx context.Context, req Request, emit func(*packet.Packet)) (*Result, error) {
	seen := make(map[string]bool, len(req.ExcludeTerms))
	terms := make([]string, 0, len(req.ExcludeTerms))
	for _, t := range req.ExcludeTerms {
		if t != "" && !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}

	for batch := 1; batch <= c.cfg.MaxBatches; batch++ {
		completed := false
		transport := &llm.PageTransport{
			Client: c.client,
			Request: llm.AnalysisRequest{
				PageImage:      req.PageImage,
				PageNumber:     req.PageNumber,
				ExcludeTerms:   append([]string(nil), terms...),
				DomainHints:    req.DomainHints,
				PromptOverride: req.PromptOverride,
				ModelOverride:  req.ModelOverride,
			},
		}

		sess := stream.NewSession(transport, c.cfg.Session, func(p *packet.Packet) {
			emit(p)
			if con := p.Content.Concept; con != nil && con.Term != "" && !seen[con.Term] {
				seen[con.Term] = true
				terms = append(terms, con.Term)
			}
			if p.Intent == packet.IntentTaskComplete {
				completed = true
			}
		})

		err := sess.Run(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			slog.Warn("batch transport budget exhausted", "batch", batch, "error", err)
		}

		if completed {
			slog.Info("extraction complete", "batch", batch, "terms", len(terms))
			return &Result{Batches: batch, Completed: true, Terms: terms}, nil
		}
		if batch == c.cfg.MaxBatches {
			break
		}

		slog.Debug("no completion signal, continuing", "batch", batch, "exclusions", len(terms))
		select {
		case <-time.After(c.cfg.BatchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// The budget ran out without an explicit signal. The operation still
	// finalizes as done: best-effort exhaustion, not failure.
	slog.Info("extraction finished by exhaustion", "batches", c.cfg.MaxBatches, "terms", len(terms))
	return &Result{Batches: c.cfg.MaxBatches, Exhausted: true, Terms: terms}, nil
}
