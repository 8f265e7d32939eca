package domain

import "context"

// RuleView provides read-only access to documents for rule evaluation.
type RuleView interface {
	ListEntities() []Entity
	ListCollections() []Collection
	FindEntity(id string) (Entity, bool)
	FindCollection(id string) (Collection, bool)
}

// Rule defines an integrity check evaluated over a consistent view.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in registration order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// Severity captures rule outcomes.
type Severity string

// Rule severities.
const (
	// SeverityBlock marks data that cannot be repaired automatically.
	SeverityBlock Severity = "block"
	// SeverityWarn marks a repairable inconsistency.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation describes a rule failure for one document reference.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Kind     Kind     `json:"kind"`
	ID       string   `json:"id"`
	Relation Relation `json:"relation,omitempty"`
	TargetID string   `json:"target_id,omitempty"`
}

// Result aggregates violations from rule evaluation.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if any violation is blocking.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
