package packet

import "fmt"

const (
	ConceptKindConcept   = "concept"
	ConceptKindHypernode = "hypernode"

	SensitivityLow    = "LOW"
	SensitivityMedium = "MEDIUM"
	SensitivityHigh   = "HIGH"

	TaxonomyIsA    = "is_a"
	TaxonomyPartOf = "part_of"

	RelationshipStructural = "structural"
	RelationshipSemantic   = "semantic"
	RelationshipHyperlink  = "hyperlink"

	HypothesisProposed = "PROPOSED"
	HypothesisAccepted = "ACCEPTED"
	HypothesisRejected = "REJECTED"
)

var conceptDataTypes = map[string]bool{
	"entity": true, "date": true, "location": true, "organization": true,
	"person": true, "money": true, "legal": true, "condition": true,
}

// ValidDataType reports whether s is one of the recognized concept data
// types (entity, date, location, ...).
func ValidDataType(s string) bool {
	return conceptDataTypes[s]
}

// Concept is one extracted term, optionally anchored to a page region.
type Concept struct {
	ID          string    `json:"id"`
	Term        string    `json:"term"`
	Type        string    `json:"type"`
	DataType    string    `json:"dataType,omitempty"`
	Category    string    `json:"category,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"boundingBox,omitempty"`
	UIGroup     string    `json:"ui_group,omitempty"`
	ExtractedBy string    `json:"extractedBy,omitempty"`
	Timestamp   string    `json:"timestamp,omitempty"`
}

func (c *Concept) validate() error {
	if c.ID == "" || c.Term == "" {
		return fmt.Errorf("missing id or term")
	}
	if c.Type != ConceptKindConcept && c.Type != ConceptKindHypernode {
		return fmt.Errorf("unknown type %q", c.Type)
	}
	if c.DataType != "" && !conceptDataTypes[c.DataType] {
		return fmt.Errorf("unknown dataType %q", c.DataType)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %g out of range", c.Confidence)
	}
	return nil
}

// Domain is a subject area grouping concepts, with a sensitivity grade.
type Domain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Sensitivity string `json:"sensitivity,omitempty"`
	DefinedBy   string `json:"definedBy,omitempty"`
}

func (d *Domain) validate() error {
	if d.ID == "" || d.Name == "" {
		return fmt.Errorf("missing id or name")
	}
	switch d.Sensitivity {
	case "", SensitivityLow, SensitivityMedium, SensitivityHigh:
		return nil
	}
	return fmt.Errorf("unknown sensitivity %q", d.Sensitivity)
}

// Taxonomy is a parent/child link in the concept hierarchy.
type Taxonomy struct {
	Parent    string `json:"parent"`
	Child     string `json:"child"`
	Type      string `json:"type,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}

func (t *Taxonomy) validate() error {
	if t.Parent == "" || t.Child == "" {
		return fmt.Errorf("missing parent or child")
	}
	switch t.Type {
	case "", TaxonomyIsA, TaxonomyPartOf:
		return nil
	}
	return fmt.Errorf("unknown type %q", t.Type)
}

// Prior is an axiom the agents weigh extracted claims against.
type Prior struct {
	ID     string  `json:"id"`
	Axiom  string  `json:"axiom"`
	Weight float64 `json:"weight,omitempty"`
}

func (p *Prior) validate() error {
	if p.ID == "" || p.Axiom == "" {
		return fmt.Errorf("missing id or axiom")
	}
	return nil
}

// Relationship is a directed predicate edge between two concepts.
type Relationship struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Predicate string  `json:"predicate"`
	Type      string  `json:"type,omitempty"`
	Weight    float64 `json:"weight,omitempty"`
	CreatedBy string  `json:"createdBy,omitempty"`
}

func (r *Relationship) validate() error {
	if r.Source == "" || r.Target == "" || r.Predicate == "" {
		return fmt.Errorf("missing source, target or predicate")
	}
	switch r.Type {
	case "", RelationshipStructural, RelationshipSemantic, RelationshipHyperlink:
	default:
		return fmt.Errorf("unknown type %q", r.Type)
	}
	if r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("weight %g out of range", r.Weight)
	}
	return nil
}

// Hypothesis is a claim about a concept awaiting critic review.
type Hypothesis struct {
	ID              string `json:"id"`
	TargetConceptID string `json:"target_concept_id"`
	Claim           string `json:"claim"`
	Evidence        string `json:"evidence,omitempty"`
	Status          string `json:"status,omitempty"`
}

func (h *Hypothesis) validate() error {
	if h.ID == "" || h.TargetConceptID == "" || h.Claim == "" {
		return fmt.Errorf("missing id, target_concept_id or claim")
	}
	switch h.Status {
	case "", HypothesisProposed, HypothesisAccepted, HypothesisRejected:
		return nil
	}
	return fmt.Errorf("unknown status %q", h.Status)
}

// Optimization is observer feedback on graph layout quality.
type Optimization struct {
	Score      float64  `json:"score"`
	Suggestion string   `json:"suggestion"`
	FocusNodes []string `json:"focus_nodes,omitempty"`
}

func (o *Optimization) validate() error {
	if o.Suggestion == "" {
		return fmt.Errorf("missing suggestion")
	}
	return nil
}
