package domain

import "time"

// Rule categories. Each category selects a built-in predicate over the
// transaction event; a rule may override the predicate with a CEL expression.
const (
	RuleCategoryAmount   = "amount"
	RuleCategoryLocation = "location"
	RuleCategoryTime     = "time"
	RuleCategoryVelocity = "velocity"
	RuleCategoryPattern  = "pattern"
)

// RiskRule is a named, weighted, deterministic predicate over a transaction.
// Rules are data: the active set is replaced wholesale at runtime without
// restarting the engine.
type RiskRule struct {
	// Name is the unique key within a rule set.
	Name string `json:"name"`

	// Category: "amount", "location", "time", "velocity", "pattern"
	Category string `json:"category"`

	// Threshold for the category predicate. Only the amount and velocity
	// categories consult it in the base design, but it is carried for all
	// categories so operators can tune without a schema change.
	Threshold float64 `json:"threshold"`

	// Weight contributed to the rule score when triggered.
	Weight float64 `json:"weight"`

	Description string `json:"description,omitempty"`

	// Expression is an optional CEL predicate that replaces the built-in
	// category check. Variables: amount, hour, day_of_week, country,
	// channel, kind, merchant_category, new_merchant, velocity_count.
	Expression string `json:"expression,omitempty"`

	Active bool `json:"active"`
}

// RecentActivity is the velocity signal supplied by the caller. The engine
// never derives it from the event itself; when nil, velocity rules do not
// trigger.
type RecentActivity struct {
	// Count of transactions observed for the account within Window,
	// excluding the event being scored.
	Count int64 `json:"count"`

	// Window the count was taken over.
	Window time.Duration `json:"window"`
}
