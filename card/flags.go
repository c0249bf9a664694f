/*
flags.go - Account flags and the MAD override rule list

PURPOSE:
  Flags are boolean account attributes with an optional expiry, added and
  expired by external flag events (OVER_90_DPD, REPAYMENT_HOLIDAY,
  ACCOUNT_CLOSURE_REQUESTED, ...). Flag-driven conditional logic is a
  priority-ordered rule list evaluated against the active-flag set, not
  nested conditionals: the precedence (zero-MAD over full-statement-MAD)
  is data-declared order, testable in isolation.

RULE ORDER:
  1. MADEqualToZeroFlags      -> MAD = 0
  2. AccountClosureFlags      -> MAD = full outstanding (0 if outstanding <= 0)
  3. MADAsFullStatementFlags  -> MAD = full statement balance

SEE ALSO:
  - statement.go: MAD computation consuming the override
*/
package card

import (
	"sort"
	"sync"

	"github.com/warp/card-engine/engine"
)

// =============================================================================
// FLAG SET
// =============================================================================

// Flag is an active boolean account attribute.
type Flag struct {
	Name      string
	ExpiresAt engine.TimePoint // zero = no expiry
}

// FlagSet holds the account's active flags.
type FlagSet struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

func NewFlagSet() *FlagSet {
	return &FlagSet{flags: make(map[string]Flag)}
}

// Activate adds or refreshes a flag.
func (fs *FlagSet) Activate(name string, expiresAt engine.TimePoint) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.flags[name] = Flag{Name: name, ExpiresAt: expiresAt}
}

// Expire removes a flag explicitly.
func (fs *FlagSet) Expire(name string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.flags, name)
}

// Active reports whether the flag is set and unexpired at the given time.
func (fs *FlagSet) Active(name string, at engine.TimePoint) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	f, ok := fs.flags[name]
	if !ok {
		return false
	}
	return f.ExpiresAt.IsZero() || at.Before(f.ExpiresAt)
}

// AnyActive reports whether any of the named flags is active.
func (fs *FlagSet) AnyActive(names []string, at engine.TimePoint) bool {
	for _, n := range names {
		if fs.Active(n, at) {
			return true
		}
	}
	return false
}

// All returns every stored flag, expired or not, sorted by name. Used to
// serialize the set for persistence.
func (fs *FlagSet) All() []Flag {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	flags := make([]Flag, 0, len(fs.flags))
	for _, f := range fs.flags {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags
}

// ActiveNames returns the names of all unexpired flags.
func (fs *FlagSet) ActiveNames(at engine.TimePoint) []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var names []string
	for _, f := range fs.flags {
		if f.ExpiresAt.IsZero() || at.Before(f.ExpiresAt) {
			names = append(names, f.Name)
		}
	}
	return names
}

// =============================================================================
// MAD OVERRIDE RULES
// =============================================================================

// MADOverride is the outcome of evaluating the flag rule list.
type MADOverride int

const (
	// MADFormula applies the standard percentage-based formula.
	MADFormula MADOverride = iota

	// MADZero forces the minimum due to zero (e.g. repayment holiday).
	MADZero

	// MADFullOutstanding demands the full outstanding balance (closure request).
	MADFullOutstanding

	// MADFullStatement demands the full statement balance (e.g. OVER_90_DPD).
	MADFullStatement
)

// madRule binds a flag list selector to its override outcome.
type madRule struct {
	flags    func(TemplateParams) []string
	override MADOverride
}

// madRules is evaluated top-down; the first active rule wins. The order is
// the precedence contract: zero beats closure beats full-statement.
var madRules = []madRule{
	{flags: func(t TemplateParams) []string { return t.MADEqualToZeroFlags }, override: MADZero},
	{flags: func(t TemplateParams) []string { return t.AccountClosureFlags }, override: MADFullOutstanding},
	{flags: func(t TemplateParams) []string { return t.MADAsFullStatementFlags }, override: MADFullStatement},
}

// EvaluateMADOverride walks the rule list against the active-flag set.
func EvaluateMADOverride(tpl TemplateParams, flags *FlagSet, at engine.TimePoint) MADOverride {
	for _, rule := range madRules {
		if flags.AnyActive(rule.flags(tpl), at) {
			return rule.override
		}
	}
	return MADFormula
}

// BlocksOverdue reports whether the overdue-bucket transition is suppressed.
func BlocksOverdue(tpl TemplateParams, flags *FlagSet, at engine.TimePoint) bool {
	return flags.AnyActive(tpl.OverdueAmountBlockingFlags, at)
}

// BlocksBilledToUnpaid reports whether the billed->unpaid sweep is suppressed.
func BlocksBilledToUnpaid(tpl TemplateParams, flags *FlagSet, at engine.TimePoint) bool {
	return flags.AnyActive(tpl.BilledToUnpaidTransferBlockingFlags, at)
}
