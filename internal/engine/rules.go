package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// maxRuleScore caps the accumulated rule weight.
const maxRuleScore = 10.0

// Evaluator applies the active risk-rule set to transaction events.
//
// The rule set is held as an immutable snapshot behind an atomic pointer:
// Replace publishes a fully compiled new set in one store, so every
// concurrent Evaluate sees either the old set or the new set in full,
// never a partial mix.
type Evaluator struct {
	snapshot    atomic.Pointer[ruleSet]
	env         *cel.Env
	homeCountry string
}

type ruleSet struct {
	rules     []compiledRule
	active    int
	updatedAt time.Time
}

type compiledRule struct {
	rule domain.RiskRule
	// program is non-nil when the rule carries a CEL expression that
	// overrides the built-in category predicate.
	program cel.Program
}

// NewEvaluator creates a rule evaluator and loads the initial rule set.
func NewEvaluator(homeCountry string, rules []domain.RiskRule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("country", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("new_merchant", cel.BoolType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{env: env, homeCountry: homeCountry}
	if err := e.Replace(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Replace compiles and atomically publishes a new rule set, fully
// replacing the previous one. On compile error the previous set stays
// active untouched.
func (e *Evaluator) Replace(rules []domain.RiskRule) error {
	set := &ruleSet{
		rules:     make([]compiledRule, 0, len(rules)),
		updatedAt: time.Now().UTC(),
	}
	for _, r := range rules {
		cr := compiledRule{rule: r}
		if r.Expression != "" {
			program, err := e.compile(r)
			if err != nil {
				return err
			}
			cr.program = program
		}
		set.rules = append(set.rules, cr)
		if r.Active {
			set.active++
		}
	}
	e.snapshot.Store(set)
	return nil
}

func (e *Evaluator) compile(r domain.RiskRule) (cel.Program, error) {
	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Name, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.Name, err)
	}
	return program, nil
}

// Evaluate applies every active rule to the event in rule-set order.
// Returns the capped rule score and the triggered rule names; the name
// order matches iteration order for reproducibility.
func (e *Evaluator) Evaluate(event *domain.TransactionEvent, activity *domain.RecentActivity) (float64, []string) {
	set := e.snapshot.Load()
	if set == nil {
		return 0, nil
	}

	var activation map[string]any
	total := 0.0
	triggered := make([]string, 0, 4)

	for _, cr := range set.rules {
		if !cr.rule.Active {
			continue
		}

		var hit bool
		if cr.program != nil {
			if activation == nil {
				activation = celActivation(event, activity)
			}
			hit = evalProgram(cr.program, activation)
		} else {
			hit = e.builtin(cr.rule, event, activity)
		}

		if hit {
			total += cr.rule.Weight
			triggered = append(triggered, cr.rule.Name)
		}
	}

	if total > maxRuleScore {
		total = maxRuleScore
	}
	return total, triggered
}

// builtin evaluates the category-specific predicate for rules without a
// CEL expression.
func (e *Evaluator) builtin(r domain.RiskRule, event *domain.TransactionEvent, activity *domain.RecentActivity) bool {
	switch r.Category {
	case domain.RuleCategoryAmount:
		return event.Amount >= r.Threshold
	case domain.RuleCategoryLocation:
		return event.Country != "" && event.Country != e.homeCountry
	case domain.RuleCategoryTime:
		// 22:00 through 06:59, inclusive boundaries, wrapping midnight.
		hour := event.Timestamp.Hour()
		return hour >= 22 || hour <= 6
	case domain.RuleCategoryVelocity:
		// Velocity triggers only on an explicit recent-activity signal;
		// the evaluator never infers history from the event itself.
		return activity != nil && float64(activity.Count) >= r.Threshold
	case domain.RuleCategoryPattern:
		return event.NewMerchant
	default:
		return false
	}
}

func celActivation(event *domain.TransactionEvent, activity *domain.RecentActivity) map[string]any {
	var velocityCount int64
	if activity != nil {
		velocityCount = activity.Count
	}
	return map[string]any{
		"amount":            event.Amount,
		"hour":              int64(event.Timestamp.Hour()),
		"day_of_week":       int64((int(event.Timestamp.Weekday()) + 6) % 7),
		"country":           event.Country,
		"channel":           event.Channel,
		"kind":              event.Kind,
		"merchant_category": event.MerchantCategory,
		"new_merchant":      event.NewMerchant,
		"velocity_count":    velocityCount,
	}
}

// evalProgram runs a compiled CEL predicate. Evaluation errors count as
// not triggered rather than failing the scoring call.
func evalProgram(program cel.Program, activation map[string]any) bool {
	out, _, err := program.Eval(activation)
	if err != nil {
		return false
	}
	return toBool(out)
}

func toBool(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}

// Rules returns a copy of the current rule set in iteration order.
func (e *Evaluator) Rules() []domain.RiskRule {
	set := e.snapshot.Load()
	if set == nil {
		return nil
	}
	rules := make([]domain.RiskRule, len(set.rules))
	for i, cr := range set.rules {
		rules[i] = cr.rule
	}
	return rules
}

// ActiveCount returns the number of active rules in the current set.
func (e *Evaluator) ActiveCount() int {
	set := e.snapshot.Load()
	if set == nil {
		return 0
	}
	return set.active
}

// UpdatedAt returns when the current rule set was published.
func (e *Evaluator) UpdatedAt() time.Time {
	set := e.snapshot.Load()
	if set == nil {
		return time.Time{}
	}
	return set.updatedAt
}

// DefaultRules returns the built-in starting rule set.
func DefaultRules() []domain.RiskRule {
	return []domain.RiskRule{
		{
			Name:        "high_amount_threshold",
			Category:    domain.RuleCategoryAmount,
			Threshold:   5000,
			Weight:      3.0,
			Description: "Transactions above 5,000",
			Active:      true,
		},
		{
			Name:        "foreign_transaction",
			Category:    domain.RuleCategoryLocation,
			Threshold:   1,
			Weight:      2.0,
			Description: "Transactions outside the home country",
			Active:      true,
		},
		{
			Name:        "unusual_time",
			Category:    domain.RuleCategoryTime,
			Threshold:   1,
			Weight:      1.5,
			Description: "Transactions outside normal hours (22:00-06:00)",
			Active:      true,
		},
		{
			Name:        "velocity_check",
			Category:    domain.RuleCategoryVelocity,
			Threshold:   3,
			Weight:      2.5,
			Description: "More than 3 transactions in 10 minutes",
			Active:      true,
		},
		{
			Name:        "new_merchant",
			Category:    domain.RuleCategoryPattern,
			Threshold:   1,
			Weight:      1.0,
			Description: "First transaction with merchant",
			Active:      true,
		},
	}
}
