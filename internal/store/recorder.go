package store

import (
	"errors"

	"github.com/skarlatos/foliograph/internal/packet"
)

// Recorder persists the graph content carried by packets. The analysis
// pipeline subscribes it to the packet feed for the duration of a run,
// binding every packet to the document under analysis.
type Recorder struct {
	store *Store
}

func NewRecorder(s *Store) *Recorder {
	return &Recorder{store: s}
}

// Record writes every graph payload present on the packet. A packet may
// carry several payload kinds at once; all of them are persisted before
// any error is reported.
func (r *Recorder) Record(documentID string, p *packet.Packet) error {
	c := p.Content
	var errs []error

	if c.Concept != nil {
		if err := r.store.SaveConcept(documentID, c.Concept); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Domain != nil {
		if err := r.store.SaveDomain(documentID, c.Domain); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Taxonomy != nil {
		if err := r.store.SaveTaxonomy(documentID, c.Taxonomy); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Prior != nil {
		if err := r.store.SavePrior(documentID, c.Prior); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Relationship != nil {
		if err := r.store.SaveRelationship(documentID, c.Relationship); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Hypothesis != nil {
		if err := r.store.SaveHypothesis(documentID, c.Hypothesis); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
