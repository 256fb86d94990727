package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// DefaultConfidence is assigned when the planner omits a confidence value.
	// It is below LowTrustThreshold: an unstated confidence is not trusted.
	DefaultConfidence = 0.0
	// FallbackConfidence is the confidence of a plan built without the delegate
	FallbackConfidence = 0.25
	// LowTrustThreshold marks plans that should not be trusted without review
	LowTrustThreshold = 0.3
	// MissingConfidenceHint is added to plans that arrive without a confidence
	MissingConfidenceHint = "Planner omitted confidence; treated as 0 (low trust)"
)

// Plan is the structured query plan produced by the planning stage.
// A retry replaces the whole plan; later stages never modify it.
type Plan struct {
	PlanID         string        `json:"plan_id"`
	ColumnsToUse   []string      `json:"columns_to_use" validate:"dive,required"`
	Filters        []Filter      `json:"filters" validate:"dive"`
	Aggregations   []Aggregation `json:"aggregations" validate:"dive"`
	GroupBy        []string      `json:"group_by" validate:"dive,required"`
	OrderBy        []OrderBy     `json:"order_by" validate:"dive"`
	Limit          *int          `json:"limit" validate:"omitempty,gte=0"`
	SQLTemplate    *string       `json:"sql_template,omitempty"`
	Hints          []string      `json:"hints"`
	Steps          []string      `json:"steps"`
	Confidence     *float64      `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Explain        string        `json:"explain"`
	RawModelOutput string        `json:"raw_model_output,omitempty"`
}

// Filter is a single selection predicate: column operator value
type Filter struct {
	Column   string `json:"column" validate:"required"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Reason   string `json:"reason,omitempty"`
}

// Aggregation is a derived projection such as SUM(amount)
type Aggregation struct {
	Type   string `json:"type" validate:"required,oneof=sum avg count min max pct_change"`
	Column string `json:"column"`
	Alias  string `json:"alias,omitempty"`
}

// OrderBy is a (column-or-alias, direction) ordering pair
type OrderBy struct {
	Column    string `json:"column" validate:"required"`
	Direction string `json:"direction" validate:"omitempty,oneof=asc desc"`
}

// ConfidenceValue returns the plan confidence, or DefaultConfidence when unset
func (p *Plan) ConfidenceValue() float64 {
	if p.Confidence == nil {
		return DefaultConfidence
	}
	return *p.Confidence
}

// LowTrust reports whether the plan confidence is below LowTrustThreshold
func (p *Plan) LowTrust() bool {
	return p.ConfidenceValue() < LowTrustThreshold
}

// Normalize fills defaults so downstream stages never see nil collections.
// A missing confidence becomes DefaultConfidence with MissingConfidenceHint;
// confidence is clamped to [0,1]; operator, aggregation type and direction
// are lower-cased.
func (p *Plan) Normalize() {
	if p.PlanID == "" {
		p.PlanID = uuid.NewString()
	}
	if p.ColumnsToUse == nil {
		p.ColumnsToUse = []string{}
	}
	if p.Filters == nil {
		p.Filters = []Filter{}
	}
	if p.Aggregations == nil {
		p.Aggregations = []Aggregation{}
	}
	if p.GroupBy == nil {
		p.GroupBy = []string{}
	}
	if p.OrderBy == nil {
		p.OrderBy = []OrderBy{}
	}
	if p.Hints == nil {
		p.Hints = []string{}
	}
	if p.Steps == nil {
		p.Steps = []string{}
	}
	if p.Confidence == nil {
		p.Hints = append(p.Hints, MissingConfidenceHint)
	}

	confidence := p.ConfidenceValue()
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	p.Confidence = &confidence

	for i := range p.Filters {
		p.Filters[i].Operator = strings.ToLower(strings.TrimSpace(p.Filters[i].Operator))
		if p.Filters[i].Operator == "" {
			p.Filters[i].Operator = "="
		}
	}
	for i := range p.Aggregations {
		p.Aggregations[i].Type = strings.ToLower(strings.TrimSpace(p.Aggregations[i].Type))
	}
	for i := range p.OrderBy {
		p.OrderBy[i].Direction = strings.ToLower(strings.TrimSpace(p.OrderBy[i].Direction))
	}
}

// Clone returns a deep enough copy that Normalize on it leaves p untouched
func (p *Plan) Clone() *Plan {
	c := *p
	c.ColumnsToUse = append([]string(nil), p.ColumnsToUse...)
	c.Filters = append([]Filter(nil), p.Filters...)
	c.Aggregations = append([]Aggregation(nil), p.Aggregations...)
	c.GroupBy = append([]string(nil), p.GroupBy...)
	c.OrderBy = append([]OrderBy(nil), p.OrderBy...)
	c.Hints = append([]string(nil), p.Hints...)
	c.Steps = append([]string(nil), p.Steps...)
	if p.Limit != nil {
		limit := *p.Limit
		c.Limit = &limit
	}
	if p.Confidence != nil {
		confidence := *p.Confidence
		c.Confidence = &confidence
	}
	return &c
}

// Validate checks the structural integrity of the plan
func (p *Plan) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}

// FallbackPlan builds the conservative plan used when the delegate output
// cannot be turned into a plan. It selects the first three metadata columns.
func FallbackPlan(metadata Metadata, reason, raw string) *Plan {
	names := metadata.Names()
	if len(names) > 3 {
		names = names[:3]
	}
	confidence := FallbackConfidence
	plan := &Plan{
		PlanID:         uuid.NewString(),
		ColumnsToUse:   names,
		Filters:        []Filter{},
		Aggregations:   []Aggregation{},
		GroupBy:        []string{},
		OrderBy:        []OrderBy{},
		Hints:          []string{reason},
		Steps:          []string{"inspect model output", "ask for clarification"},
		Confidence:     &confidence,
		Explain:        "Fallback plan because the model output could not be parsed as a plan.",
		RawModelOutput: raw,
	}
	return plan
}
