package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/darrenwu-git/snap-ledger/internal/backup"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/store"
)

// mockStore implements store.Store with per-operation failure switches and
// call recording.
type mockStore struct {
	transactions []domain.Transaction
	categories   []domain.Category

	failTxWrites  bool
	failCatWrites bool

	insertedTx   []domain.Transaction
	upsertedTx   []domain.Transaction
	upsertedCats []domain.Category
	deletedTxIDs []string
}

var errBoom = errors.New("boom")

func (m *mockStore) Load(ctx context.Context) ([]domain.Transaction, []domain.Category, error) {
	return append([]domain.Transaction(nil), m.transactions...),
		append([]domain.Category(nil), m.categories...), nil
}

func (m *mockStore) InsertTransaction(ctx context.Context, t domain.Transaction) error {
	if m.failTxWrites {
		return store.NewWriteError("transactions", "insert", errBoom)
	}
	m.insertedTx = append(m.insertedTx, t)
	return nil
}

func (m *mockStore) UpdateTransaction(ctx context.Context, t domain.Transaction) error {
	if m.failTxWrites {
		return store.NewWriteError("transactions", "update", errBoom)
	}
	return nil
}

func (m *mockStore) DeleteTransaction(ctx context.Context, id string) error {
	if m.failTxWrites {
		return store.NewWriteError("transactions", "delete", errBoom)
	}
	m.deletedTxIDs = append(m.deletedTxIDs, id)
	return nil
}

func (m *mockStore) UpsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	if m.failTxWrites {
		return store.NewWriteError("transactions", "upsert", errBoom)
	}
	m.upsertedTx = append(m.upsertedTx, txs...)
	return nil
}

func (m *mockStore) InsertCategory(ctx context.Context, c domain.Category) error {
	if m.failCatWrites {
		return store.NewWriteError("categories", "insert", errBoom)
	}
	return nil
}

func (m *mockStore) UpdateCategory(ctx context.Context, c domain.Category) error {
	if m.failCatWrites {
		return store.NewWriteError("categories", "update", errBoom)
	}
	return nil
}

func (m *mockStore) DeleteCategory(ctx context.Context, id string) error {
	if m.failCatWrites {
		return store.NewWriteError("categories", "delete", errBoom)
	}
	return nil
}

func (m *mockStore) UpsertCategories(ctx context.Context, cats []domain.Category) error {
	if m.failCatWrites {
		return store.NewWriteError("categories", "upsert", errBoom)
	}
	m.upsertedCats = append(m.upsertedCats, cats...)
	return nil
}

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestLedger(t *testing.T, mock *mockStore) *Ledger {
	t.Helper()
	sel := store.NewSelector(mock, nil)
	l := New(sel, zerolog.Nop())
	l.clock = testClock
	n := 0
	l.newID = func() string {
		n++
		return "id-" + string(rune('0'+n))
	}
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return l
}

func ts(s string) *time.Time {
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &v
}

func sampleTx(id string) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		Amount:     decimal.NewFromInt(42),
		Kind:       domain.KindExpense,
		CategoryID: "a1e7e720-4e56-42f7-927c-9b788a8d1a1e",
		Date:       "2025-05-30",
		Status:     domain.StatusCompleted,
		UpdatedAt:  ts("2025-05-30T09:00:00Z"),
	}
}

func TestAddTransaction(t *testing.T) {
	mock := &mockStore{transactions: []domain.Transaction{sampleTx("t-old")}}
	l := newTestLedger(t, mock)

	added, err := l.AddTransaction(context.Background(), domain.Transaction{
		Amount:     decimal.NewFromInt(9),
		Kind:       domain.KindExpense,
		CategoryID: "food",
		Date:       "2025-06-01",
	})
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if added.ID == "" {
		t.Error("no id minted")
	}
	if added.CategoryID != "a1e7e720-4e56-42f7-927c-9b788a8d1a1e" {
		t.Errorf("legacy category id not resolved: %q", added.CategoryID)
	}
	if added.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed default", added.Status)
	}
	if added.UpdatedAt == nil || !added.UpdatedAt.Equal(testClock()) {
		t.Error("record not stamped")
	}

	txs := l.Transactions()
	if len(txs) != 2 || txs[0].ID != added.ID {
		t.Errorf("new transaction should be prepended, got %+v", txs)
	}
	if len(mock.insertedTx) != 1 {
		t.Errorf("store saw %d inserts, want 1", len(mock.insertedTx))
	}
}

func TestAddTransactionRollsBackOnWriteFailure(t *testing.T) {
	mock := &mockStore{
		transactions: []domain.Transaction{sampleTx("t1"), sampleTx("t2")},
		failTxWrites: true,
	}
	l := newTestLedger(t, mock)
	before := l.Transactions()

	_, err := l.AddTransaction(context.Background(), domain.Transaction{
		Amount: decimal.NewFromInt(9),
		Kind:   domain.KindExpense,
		Date:   "2025-06-01",
	})
	if err == nil {
		t.Fatal("expected write failure")
	}
	var we *store.WriteError
	if !errors.As(err, &we) {
		t.Errorf("error = %v, want *store.WriteError", err)
	}

	after := l.Transactions()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("state not rolled back:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestUpdateTransaction(t *testing.T) {
	mock := &mockStore{transactions: []domain.Transaction{sampleTx("t1")}}
	l := newTestLedger(t, mock)

	updated, err := l.UpdateTransaction(context.Background(), "t1", domain.Transaction{
		ID:         "ignored",
		Amount:     decimal.NewFromInt(77),
		Kind:       domain.KindExpense,
		CategoryID: "gym",
		Date:       "2025-05-30",
		Status:     domain.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.ID != "t1" {
		t.Errorf("id changed to %q, ids are immutable", updated.ID)
	}
	if !updated.Amount.Equal(decimal.NewFromInt(77)) {
		t.Errorf("amount = %s, want 77", updated.Amount)
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(testClock()) {
		t.Error("updated_at not refreshed")
	}
}

func TestUpdateTransactionNotFound(t *testing.T) {
	l := newTestLedger(t, &mockStore{})

	_, err := l.UpdateTransaction(context.Background(), "missing", sampleTx("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTransactionRollsBackOnWriteFailure(t *testing.T) {
	mock := &mockStore{
		transactions: []domain.Transaction{sampleTx("t1")},
		failTxWrites: true,
	}
	l := newTestLedger(t, mock)
	before := l.Transactions()

	if err := l.DeleteTransaction(context.Background(), "t1"); err == nil {
		t.Fatal("expected write failure")
	}
	if !reflect.DeepEqual(before, l.Transactions()) {
		t.Error("state not rolled back after failed delete")
	}
}

func TestDeleteTransactionNotFound(t *testing.T) {
	l := newTestLedger(t, &mockStore{})
	if err := l.DeleteTransaction(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCategoryMutations(t *testing.T) {
	mock := &mockStore{categories: domain.DefaultCategories()}
	l := newTestLedger(t, mock)

	added, err := l.AddCategory(context.Background(), domain.Category{
		Name: "Gym", Icon: "🏋️", Kind: domain.KindExpense,
	})
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if added.ID == "" || added.UpdatedAt == nil {
		t.Error("added category not minted or not stamped")
	}

	renamed, err := l.UpdateCategory(context.Background(), added.ID, domain.Category{
		Name: "Fitness", Icon: "🏋️", Kind: domain.KindExpense,
	})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if got, ok := l.Category(added.ID); !ok || got.Name != renamed.Name {
		t.Errorf("Category(%q) = %+v, want name %q", added.ID, got, renamed.Name)
	}

	if err := l.DeleteCategory(context.Background(), added.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if _, ok := l.Category(added.ID); ok {
		t.Error("category still present after delete")
	}
}

func TestDeleteCategoryDoesNotCascade(t *testing.T) {
	orphaned := sampleTx("t1")
	orphaned.CategoryID = "c-doomed"
	mock := &mockStore{
		transactions: []domain.Transaction{orphaned},
		categories: []domain.Category{
			{ID: "c-doomed", Name: "Doomed", Kind: domain.KindExpense},
		},
	}
	l := newTestLedger(t, mock)

	if err := l.DeleteCategory(context.Background(), "c-doomed"); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	txs := l.Transactions()
	if txs[0].CategoryID != "c-doomed" {
		t.Errorf("transaction category id = %q, dangling reference should stay", txs[0].CategoryID)
	}
}

func TestCategoryRollbackOnWriteFailure(t *testing.T) {
	mock := &mockStore{
		categories:    domain.DefaultCategories(),
		failCatWrites: true,
	}
	l := newTestLedger(t, mock)
	before := l.Categories()

	if _, err := l.AddCategory(context.Background(), domain.Category{Name: "Gym"}); err == nil {
		t.Fatal("expected write failure")
	}
	if !reflect.DeepEqual(before, l.Categories()) {
		t.Error("state not rolled back after failed category add")
	}
}

func TestImportMergesAndPersistsChanged(t *testing.T) {
	existing := sampleTx("t1")
	mock := &mockStore{
		transactions: []domain.Transaction{existing},
		categories:   domain.DefaultCategories(),
	}
	l := newTestLedger(t, mock)

	newer := existing
	newer.Amount = decimal.NewFromInt(100)
	newer.UpdatedAt = ts("2025-05-31T09:00:00Z")
	fresh := sampleTx("t2")

	res := l.Import(context.Background(), backup.Bundle{
		Version:      backup.Version,
		Transactions: []domain.Transaction{newer, fresh, existing},
		Categories:   nil,
	})

	if !res.FullyPersisted() {
		t.Fatalf("import reported errors: %+v", res)
	}
	if res.TransactionsChanged != 2 {
		t.Errorf("TransactionsChanged = %d, want 2 (overwrite + new)", res.TransactionsChanged)
	}
	// Only changed records reach the store.
	if len(mock.upsertedTx) != 2 {
		t.Errorf("store saw %d upserts, want 2", len(mock.upsertedTx))
	}
	got := l.Transactions()
	if len(got) != 2 {
		t.Fatalf("cache has %d transactions, want 2", len(got))
	}
}

func TestImportAppliesInMemoryDespitePersistFailure(t *testing.T) {
	mock := &mockStore{
		transactions: []domain.Transaction{sampleTx("t1")},
		failTxWrites: true,
	}
	l := newTestLedger(t, mock)

	res := l.Import(context.Background(), backup.Bundle{
		Version:      backup.Version,
		Transactions: []domain.Transaction{sampleTx("t2")},
	})

	if res.TransactionErr == nil {
		t.Fatal("expected transaction persistence error")
	}
	if res.FullyPersisted() {
		t.Error("FullyPersisted should be false")
	}
	if len(l.Transactions()) != 2 {
		t.Error("merge should still be applied in memory")
	}
}

func TestImportPerKindErrorsIndependent(t *testing.T) {
	mock := &mockStore{failCatWrites: true}
	l := newTestLedger(t, mock)

	res := l.Import(context.Background(), backup.Bundle{
		Version:      backup.Version,
		Transactions: []domain.Transaction{sampleTx("t1")},
		Categories:   []domain.Category{{ID: "c1", Name: "Gym", Kind: domain.KindExpense}},
	})

	if res.CategoryErr == nil {
		t.Error("expected category persistence error")
	}
	if res.TransactionErr != nil {
		t.Errorf("transaction persistence should have succeeded: %v", res.TransactionErr)
	}
	if len(mock.upsertedTx) != 1 {
		t.Errorf("store saw %d transaction upserts, want 1", len(mock.upsertedTx))
	}
}

func TestImportNothingChangedSkipsStore(t *testing.T) {
	existing := sampleTx("t1")
	mock := &mockStore{transactions: []domain.Transaction{existing}}
	l := newTestLedger(t, mock)

	res := l.Import(context.Background(), backup.Bundle{
		Version:      backup.Version,
		Transactions: []domain.Transaction{existing},
	})

	if res.TransactionsChanged != 0 {
		t.Errorf("TransactionsChanged = %d, want 0", res.TransactionsChanged)
	}
	if len(mock.upsertedTx) != 0 {
		t.Errorf("store saw %d upserts, want 0", len(mock.upsertedTx))
	}
}

func TestSetIdentitySwitchesStoreAndReloads(t *testing.T) {
	local := &mockStore{transactions: []domain.Transaction{sampleTx("local-1")}}
	remote := &mockStore{transactions: []domain.Transaction{sampleTx("remote-1"), sampleTx("remote-2")}}

	sel := store.NewSelector(local, func(userID string) store.Store { return remote })
	l := New(sel, zerolog.Nop())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(l.Transactions()) != 1 {
		t.Fatal("expected local data before sign-in")
	}

	if err := l.SetIdentity(context.Background(), &store.Identity{UserID: "u1"}); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if len(l.Transactions()) != 2 {
		t.Error("expected remote data after sign-in")
	}

	if err := l.SetIdentity(context.Background(), nil); err != nil {
		t.Fatalf("SetIdentity(nil): %v", err)
	}
	if got := l.Transactions(); len(got) != 1 || got[0].ID != "local-1" {
		t.Errorf("expected local data after sign-out, got %+v", got)
	}
}

func TestExport(t *testing.T) {
	mock := &mockStore{
		transactions: []domain.Transaction{sampleTx("t1")},
		categories:   domain.DefaultCategories(),
	}
	l := newTestLedger(t, mock)

	b := l.Export()
	if b.Version != backup.Version {
		t.Errorf("version = %d, want %d", b.Version, backup.Version)
	}
	if len(b.Transactions) != 1 || len(b.Categories) != 9 {
		t.Errorf("bundle has %d transactions and %d categories", len(b.Transactions), len(b.Categories))
	}
	if b.ExportedAt != testClock().UTC().Format(time.RFC3339) {
		t.Errorf("exportedAt = %q, not taken from clock", b.ExportedAt)
	}
}
