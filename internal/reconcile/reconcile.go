// Package reconcile implements the merge algorithm that keeps the local and
// remote snapshots of a ledger consistent. It is used when a backup bundle
// is imported into an existing in-memory collection and when an initial
// remote fetch needs default categories seeded.
//
// Conflict resolution is last-modified-wins on updated_at, compared per
// whole record: a strictly newer incoming record replaces the existing one,
// ties and older incoming records never overwrite. Records with no
// timestamp compare as the zero time.
package reconcile

import (
	"sort"
	"time"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

// Result is the outcome of a full bundle merge. Merged holds the complete
// post-merge collections; Changed holds only the records that are new or
// were overwritten and therefore need persisting. Unchanged records are
// never re-sent to the store.
type Result struct {
	Transactions []domain.Transaction
	Categories   []domain.Category

	ChangedTransactions []domain.Transaction
	ChangedCategories   []domain.Category
}

// MergeCategories merges incoming categories into existing ones. It returns
// the merged collection and the subset of it that changed. The inputs are
// not mutated. It never fails; when nothing qualifies, changed is empty.
func MergeCategories(existing, incoming []domain.Category) (merged, changed []domain.Category) {
	merged = make([]domain.Category, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.ID] = i
	}

	for _, in := range incoming {
		i, ok := index[in.ID]
		if !ok {
			index[in.ID] = len(merged)
			merged = append(merged, in)
			changed = append(changed, in)
			continue
		}
		if in.UpdatedTime().After(merged[i].UpdatedTime()) {
			merged[i] = in
			changed = append(changed, in)
		}
	}
	return merged, changed
}

// MergeTransactions merges incoming transactions into existing ones with
// the same last-modified-wins rule as MergeCategories. The merged
// collection is sorted descending by date.
func MergeTransactions(existing, incoming []domain.Transaction) (merged, changed []domain.Transaction) {
	merged = make([]domain.Transaction, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, t := range merged {
		index[t.ID] = i
	}

	for _, in := range incoming {
		i, ok := index[in.ID]
		if !ok {
			index[in.ID] = len(merged)
			merged = append(merged, in)
			changed = append(changed, in)
			continue
		}
		if in.UpdatedTime().After(merged[i].UpdatedTime()) {
			merged[i] = in
			changed = append(changed, in)
		}
	}

	sortByDateDesc(merged)
	return merged, changed
}

// Merge reconciles a full incoming bundle against the existing in-memory
// collections. Steps, in order:
//
//  1. Incoming transaction category ids are passed through the legacy-id
//     table.
//  2. Incoming categories merge into existing ones.
//  3. Every incoming transaction whose category id is absent from the
//     merged category set gets a placeholder category synthesized, so the
//     category exists before its owning transaction is committed.
//  4. Incoming transactions merge into existing ones.
//
// No dangling category reference survives a merge.
func Merge(existingTx []domain.Transaction, existingCats []domain.Category, incomingTx []domain.Transaction, incomingCats []domain.Category) Result {
	resolved := make([]domain.Transaction, len(incomingTx))
	for i, t := range incomingTx {
		t.CategoryID = domain.ResolveCategoryID(t.CategoryID)
		resolved[i] = t
	}

	cats, changedCats := MergeCategories(existingCats, incomingCats)

	known := make(map[string]bool, len(cats))
	for _, c := range cats {
		known[c.ID] = true
	}
	for _, t := range resolved {
		if t.CategoryID == "" || known[t.CategoryID] {
			continue
		}
		placeholder := domain.PlaceholderCategory(t.CategoryID, t.Kind)
		known[placeholder.ID] = true
		cats = append(cats, placeholder)
		changedCats = append(changedCats, placeholder)
	}

	txs, changedTx := MergeTransactions(existingTx, resolved)

	return Result{
		Transactions:        txs,
		Categories:          cats,
		ChangedTransactions: changedTx,
		ChangedCategories:   changedCats,
	}
}

// SeedDefaults appends the baseline categories that are missing from
// existing, each stamped with now. Existing categories are left untouched;
// in particular a user-renamed default keeps its name. Append-only on
// purpose: a freshly stamped default must never win a timestamp comparison
// against a record the user already owns.
func SeedDefaults(existing []domain.Category, now time.Time) (merged, added []domain.Category) {
	merged = make([]domain.Category, len(existing))
	copy(merged, existing)

	have := make(map[string]bool, len(merged))
	for _, c := range merged {
		have[c.ID] = true
	}
	for _, d := range domain.DefaultCategories() {
		if have[d.ID] {
			continue
		}
		d = d.Stamp(now)
		merged = append(merged, d)
		added = append(added, d)
	}
	return merged, added
}

func sortByDateDesc(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date > txs[j].Date
	})
}
