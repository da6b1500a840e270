// Package rules provides the CEL-Go based label rule engine used to
// derive the binary training target from feature rows.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/payrisk/internal/domain"
	"github.com/opensource-finance/payrisk/internal/feature"
)

// Engine compiles and evaluates label rules. Rules run in ascending
// priority order and the first rule that evaluates true labels the row
// a failure (1); if none match the label is 0. The engine is only used
// at training time; prediction labels come from the classifier.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.LabelRule
	Program cel.Program
}

// NewEngine creates a label rule engine with the feature row variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("occupation", cel.StringType),
		cel.Variable("purpose", cel.StringType),
		cel.Variable("source_of_funds", cel.StringType),
		cel.Variable("country_of_birth", cel.StringType),
		cel.Variable("nationality", cel.StringType),
		cel.Variable("receiver_country", cel.StringType),
		cel.Variable("age", cel.IntType),
		cel.Variable("id_verified", cel.IntType),
		cel.Variable("cross_border", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.LabelRule) error {
	if cfg == nil {
		return fmt.Errorf("label rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRules compiles and loads the enabled rules, replacing any
// previously loaded set. Evaluation order follows rule priority.
func (e *Engine) LoadRules(configs []*domain.LabelRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		rule, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, rule)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Config.Priority < compiled[j].Config.Priority
	})

	e.compiledRules = compiled
	return nil
}

// Label evaluates the loaded rules against one feature row and returns
// the binary label. Pure function of the row: no cross-row state.
func (e *Engine) Label(row feature.Row) (int, error) {
	e.mu.RLock()
	rules := e.compiledRules
	e.mu.RUnlock()

	activation := activationFor(row)

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			return 0, fmt.Errorf("rule %s: evaluation error: %w", rule.Config.ID, err)
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return 1, nil
		}
	}
	return 0, nil
}

// LabelAll labels a batch of rows.
func (e *Engine) LabelAll(rows []feature.Row) ([]int, error) {
	labels := make([]int, len(rows))
	for i, row := range rows {
		label, err := e.Label(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		labels[i] = label
	}
	return labels, nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.LabelRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.LabelRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.LabelRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func activationFor(row feature.Row) map[string]any {
	return map[string]any{
		"occupation":       row.Occupation,
		"purpose":          row.Purpose,
		"source_of_funds":  row.SourceOfFunds,
		"country_of_birth": row.CountryOfBirth,
		"nationality":      row.Nationality,
		"receiver_country": row.ReceiverCountry,
		"age":              row.Age,
		"id_verified":      row.IDVerified,
		"cross_border":     row.CrossBorder,
	}
}
