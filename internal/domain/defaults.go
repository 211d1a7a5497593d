package domain

import "unicode"

// Default categories ship with deterministic ids so that the same baseline
// set lines up across devices and across the remote store. A ledger missing
// any of these ids is a pre-migration ledger and gets them backfilled on
// load.
var defaultCategories = []Category{
	{ID: "a1e7e720-4e56-42f7-927c-9b788a8d1a1e", Name: "Food", Icon: "🍔", Kind: KindExpense},
	{ID: "b2e7e720-4e56-42f7-927c-9b788a8d1b2e", Name: "Transport", Icon: "🚗", Kind: KindExpense},
	{ID: "c3e7e720-4e56-42f7-927c-9b788a8d1c3e", Name: "Shopping", Icon: "🛍️", Kind: KindExpense},
	{ID: "d4e7e720-4e56-42f7-927c-9b788a8d1d4e", Name: "Fun", Icon: "🎮", Kind: KindExpense},
	{ID: "e5e7e720-4e56-42f7-927c-9b788a8d1e5e", Name: "Bills", Icon: "🧾", Kind: KindExpense},
	{ID: "f6e7e720-4e56-42f7-927c-9b788a8d1f6e", Name: "Health", Icon: "💊", Kind: KindExpense},
	{ID: "10e7e720-4e56-42f7-927c-9b788a8d101e", Name: "Salary", Icon: "💰", Kind: KindIncome},
	{ID: "20e7e720-4e56-42f7-927c-9b788a8d202e", Name: "Bonus", Icon: "🎁", Kind: KindIncome},
	{ID: "30e7e720-4e56-42f7-927c-9b788a8d303e", Name: "Invest", Icon: "📈", Kind: KindIncome},
}

// legacyCategoryIDs maps the human-readable category ids used by early
// versions of the app to the stable ids above. Consulted on every read of
// persisted or imported data.
var legacyCategoryIDs = map[string]string{
	"food":          "a1e7e720-4e56-42f7-927c-9b788a8d1a1e",
	"transport":     "b2e7e720-4e56-42f7-927c-9b788a8d1b2e",
	"shopping":      "c3e7e720-4e56-42f7-927c-9b788a8d1c3e",
	"entertainment": "d4e7e720-4e56-42f7-927c-9b788a8d1d4e",
	"bills":         "e5e7e720-4e56-42f7-927c-9b788a8d1e5e",
	"health":        "f6e7e720-4e56-42f7-927c-9b788a8d1f6e",
	"salary":        "10e7e720-4e56-42f7-927c-9b788a8d101e",
	"bonus":         "20e7e720-4e56-42f7-927c-9b788a8d202e",
	"investment":    "30e7e720-4e56-42f7-927c-9b788a8d303e",
}

// DefaultCategories returns a fresh copy of the baseline category set.
// Callers may stamp and mutate the result freely.
func DefaultCategories() []Category {
	out := make([]Category, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

// ResolveCategoryID maps a legacy category id to its stable id. Unknown ids
// pass through unchanged. Pure; never fails.
func ResolveCategoryID(raw string) string {
	if id, ok := legacyCategoryIDs[raw]; ok {
		return id
	}
	return raw
}

// PlaceholderCategory synthesizes a category for an orphaned foreign key
// found during reconciliation: the id itself capitalized as the name, a
// generic icon, and the owning transaction's kind.
func PlaceholderCategory(id string, kind Kind) Category {
	name := id
	if r := []rune(name); len(r) > 0 {
		r[0] = unicode.ToUpper(r[0])
		name = string(r)
	}
	return Category{ID: id, Name: name, Icon: "🏷️", Kind: kind}
}
