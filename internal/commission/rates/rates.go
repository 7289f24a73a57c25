// Package rates holds the static commission rate lookups. The table is
// an injectable value: callers pass it per calculation, so swapping to
// time-varying pricing later touches only the call sites that build it.
package rates

import (
	"upline/internal/commission/models"
	"upline/pkg/money"
)

// Table maps category groups and hierarchy levels to rate fractions.
type Table struct {
	Category map[string]money.Amount
	Level    map[models.Level]money.Amount
}

// Default is the current flat rate schedule. F2 carries 1.00 because
// the buyer's own line receives the full category-derived commission.
func Default() Table {
	return Table{
		Category: map[string]money.Amount{
			"A": money.MustRate("0.20"),
			"B": money.MustRate("0.30"),
			"C": money.MustRate("0.50"),
		},
		Level: map[models.Level]money.Amount{
			models.LevelF0: money.MustRate("0.20"),
			models.LevelF1: money.MustRate("0.30"),
			models.LevelF2: money.MustRate("1.00"),
		},
	}
}

// CategoryRate looks up the rate for a category group.
func (t Table) CategoryRate(group string) (money.Amount, bool) {
	rate, ok := t.Category[group]
	return rate, ok
}

// LevelRate looks up the rate for a hierarchy level.
func (t Table) LevelRate(level models.Level) (money.Amount, bool) {
	rate, ok := t.Level[level]
	return rate, ok
}
