package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// PerspectiveBasis says how an event's articles were grouped into
// perspectives: by the political lean of their sources, or by country when
// no political signal exists.
type PerspectiveBasis string

const (
	BasisPolitical  PerspectiveBasis = "political"
	BasisGeographic PerspectiveBasis = "geographic"
)

// DifferenceType classifies what actually differs between perspectives.
type DifferenceType string

const (
	DifferenceFraming        DifferenceType = "framing"
	DifferenceFact           DifferenceType = "fact"
	DifferenceEmphasis       DifferenceType = "emphasis"
	DifferenceInterpretation DifferenceType = "interpretation"
)

// NarrativePerspective is one viewpoint group within a conflicted event.
// Derived fresh on every coherence run; persisted only inside
// ConflictExplanation.
type NarrativePerspective struct {
	Group               string           `json:"group"` // "left", "center", "right", or a country code
	Basis               PerspectiveBasis `json:"basis"`
	SourceCount         int              `json:"source_count"`
	RepresentativeTitle string           `json:"representative_title"`
	FocusKeywords       []string         `json:"focus_keywords"`
	Sentiment           string           `json:"sentiment"` // negative, neutral, positive
	Excerpts            []string         `json:"excerpts"`
}

// NumericDiscrepancy records a quantitative claim that differs between
// perspectives. Ratio is max/min of the reported values; significance is
// "high" when the ratio is at least 10x, otherwise "low".
type NumericDiscrepancy struct {
	Context       string             `json:"context"` // e.g. "casualties", "magnitude"
	ValuesByGroup map[string]float64 `json:"values_by_group"`
	Ratio         float64            `json:"ratio"`
	Significance  string             `json:"significance"` // "low" or "high"
}

// ConflictExplanation is the typed payload stored in
// events.conflict_explanation_json.
type ConflictExplanation struct {
	Perspectives         []NarrativePerspective `json:"perspectives"`
	KeyDifference        string                 `json:"key_difference"`
	DifferenceType       DifferenceType         `json:"difference_type"`
	NumericDiscrepancies []NumericDiscrepancy   `json:"numeric_discrepancies,omitempty"`
}

// Validate checks the payload's enums and shape before it crosses the
// serialization boundary. Malformed explanations are a programming error
// upstream; they must not reach the store.
func (c *ConflictExplanation) Validate() error {
	if len(c.Perspectives) == 0 {
		return fmt.Errorf("model: conflict explanation has no perspectives")
	}
	for _, p := range c.Perspectives {
		if p.Group == "" {
			return fmt.Errorf("model: perspective with empty group")
		}
		if p.Basis != BasisPolitical && p.Basis != BasisGeographic {
			return fmt.Errorf("model: unknown perspective basis %q", p.Basis)
		}
	}
	switch c.DifferenceType {
	case DifferenceFraming, DifferenceFact, DifferenceEmphasis, DifferenceInterpretation:
	default:
		return fmt.Errorf("model: unknown difference type %q", c.DifferenceType)
	}
	for _, d := range c.NumericDiscrepancies {
		if d.Significance != "low" && d.Significance != "high" {
			return fmt.Errorf("model: unknown discrepancy significance %q", d.Significance)
		}
	}
	return nil
}

// Value implements driver.Valuer, serializing the explanation as JSON text.
func (c ConflictExplanation) Value() (driver.Value, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("model: marshal conflict explanation: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for TEXT/BLOB columns.
func (c *ConflictExplanation) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = ConflictExplanation{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), c)
	case []byte:
		return json.Unmarshal(v, c)
	default:
		return fmt.Errorf("model: cannot scan %T into ConflictExplanation", src)
	}
}

// BiasCompass aggregates political lean as left/center/right weights.
// A well-formed compass sums to 1; the zero value means "no signal".
type BiasCompass struct {
	Left   float64 `json:"left"`
	Center float64 `json:"center"`
	Right  float64 `json:"right"`
}

// Zero reports whether the compass carries no signal at all.
func (b BiasCompass) Zero() bool {
	return b.Left == 0 && b.Center == 0 && b.Right == 0
}

// Sum returns the total weight.
func (b BiasCompass) Sum() float64 { return b.Left + b.Center + b.Right }

// Normalized rescales the compass so the weights sum to 1. Upstream bias
// ratings are not guaranteed well-formed, so every vector is normalized at
// ingestion. The zero compass stays zero.
func (b BiasCompass) Normalized() BiasCompass {
	sum := b.Sum()
	if sum <= 0 {
		return BiasCompass{}
	}
	return BiasCompass{Left: b.Left / sum, Center: b.Center / sum, Right: b.Right / sum}
}

// Dominant returns the strongest category, or "" for the zero compass.
func (b BiasCompass) Dominant() string {
	if b.Zero() {
		return ""
	}
	switch {
	case b.Left >= b.Center && b.Left >= b.Right:
		return "left"
	case b.Right >= b.Center && b.Right >= b.Left:
		return "right"
	default:
		return "center"
	}
}

// Valid reports whether the weights are non-negative and sum to 1 within
// tolerance (or are all zero).
func (b BiasCompass) Valid() bool {
	if b.Left < 0 || b.Center < 0 || b.Right < 0 {
		return false
	}
	if b.Zero() {
		return true
	}
	return math.Abs(b.Sum()-1) < 1e-6
}

// Value implements driver.Valuer.
func (b BiasCompass) Value() (driver.Value, error) {
	norm := b.Normalized()
	out, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("model: marshal bias compass: %w", err)
	}
	return string(out), nil
}

// Scan implements sql.Scanner.
func (b *BiasCompass) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = BiasCompass{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), b)
	case []byte:
		return json.Unmarshal(v, b)
	default:
		return fmt.Errorf("model: cannot scan %T into BiasCompass", src)
	}
}
