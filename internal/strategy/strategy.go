// Package strategy defines the signal-generation contract and provides the
// SMA crossover implementation.
package strategy

import (
	"sort"

	"tradegate/internal/domain"
)

// Strategy produces at most one signal per symbol per cycle from the
// symbol's bar history, oldest first.
type Strategy interface {
	// Name returns the unique identifier for this strategy. It feeds the
	// idempotency key, so renaming a deployed strategy resets its dedupe
	// history.
	Name() string

	// Evaluate inspects the bar series and returns a signal, or false when
	// the strategy has nothing to say this cycle.
	Evaluate(symbol string, bars []domain.Bar) (domain.Signal, bool)

	// MinBars returns how many bars Evaluate needs to produce a decision.
	MinBars() int
}

// Registry holds a named collection of strategies for lookup by config name.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates
// whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
