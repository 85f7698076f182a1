package exclusion

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/agencyops/harrier/internal/domain"
)

// CustomEngine evaluates agency-defined exclusion predicates written in CEL.
// Custom rules run after the built-in chain and before the UNKNOWN fallback,
// and may only assign reasons from the existing taxonomy.
type CustomEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules []*CompiledCustomRule
}

// CompiledCustomRule holds a pre-compiled CEL program.
type CompiledCustomRule struct {
	Config  *domain.CustomRuleConfig
	Program cel.Program
}

// NewCustomEngine creates a custom-rule engine with the transaction
// variables exposed to expressions.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("policy_number", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("product", cel.StringType),
		cel.Variable("product_category", cel.StringType),
		cel.Variable("business_type", cel.StringType),
		cel.Variable("bundle_type", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("premium", cel.DoubleType),
		cel.Variable("base_commission", cel.DoubleType),
		cel.Variable("vc_amount", cel.DoubleType),
		cel.Variable("is_service_fee", cel.BoolType),
		cel.Variable("is_plus_policy", cel.BoolType),
		cel.Variable("is_first_renewal", cel.BoolType),
		cel.Variable("term_months", cel.IntType),
		cel.Variable("sub_producer", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{env: env}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *CustomEngine) ValidateRule(cfg *domain.CustomRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and appends a rule. Custom rules keep their load order.
func (e *CustomEngine) LoadRule(cfg *domain.CustomRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules = append(e.compiledRules, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *CustomEngine) LoadRules(configs []*domain.CustomRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *CustomEngine) ReloadRules(configs []*domain.CustomRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make([]*CompiledCustomRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules = append(newRules, compiled)
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) GetLoadedRules() []*domain.CustomRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Match evaluates the loaded rules against a transaction in load order and
// returns the first rule whose predicate is true. Evaluation errors on a
// single rule never abort the row; the rule simply does not match.
func (e *CustomEngine) Match(tx *domain.StatementTransaction) (domain.ExclusionReason, string, bool) {
	e.mu.RLock()
	rules := make([]*CompiledCustomRule, len(e.compiledRules))
	copy(rules, e.compiledRules)
	e.mu.RUnlock()

	if len(rules) == 0 {
		return domain.ExclusionNone, "", false
	}

	activation := activationFor(tx)

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			return rule.Config.Reason, rule.Config.Note, true
		}
	}

	return domain.ExclusionNone, "", false
}

// Close cleans up the engine.
func (e *CustomEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = nil
	return nil
}

func (e *CustomEngine) compileRule(cfg *domain.CustomRuleConfig) (*CompiledCustomRule, error) {
	if !cfg.ValidReason() {
		return nil, fmt.Errorf("rule %s: reason %q is not an assignable exclusion reason", cfg.ID, cfg.Reason)
	}

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

	return &CompiledCustomRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func activationFor(tx *domain.StatementTransaction) map[string]any {
	return map[string]any{
		"policy_number":    tx.PolicyNumber,
		"tx_type":          string(tx.TransactionType),
		"product":          tx.ProductRaw,
		"product_category": tx.ProductCategory,
		"business_type":    tx.BusinessType,
		"bundle_type":      string(tx.BundleType),
		"channel":          tx.ChannelOfBind,
		"premium":          tx.WrittenPremium,
		"base_commission":  tx.BaseCommissionAmount,
		"vc_amount":        tx.VCAmount,
		"is_service_fee":   tx.IsServiceFee,
		"is_plus_policy":   tx.IsPlusPolicy,
		"is_first_renewal": tx.IsFirstRenewal,
		"term_months":      int64(tx.PolicyTermMonths),
		"sub_producer":     tx.SubProducerCode,
	}
}
