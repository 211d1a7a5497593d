package remote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

func TestTransactionRowMapping(t *testing.T) {
	stamp := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	tx := domain.Transaction{
		ID:         "t1",
		Amount:     decimal.RequireFromString("12.50"),
		Kind:       domain.KindExpense,
		CategoryID: "a1e7e720-4e56-42f7-927c-9b788a8d1a1e",
		Date:       "2025-05-30",
		Note:       "lunch",
		Status:     domain.StatusCompleted,
		UpdatedAt:  &stamp,
	}

	row, err := transactionRow("user-1", tx)
	if err != nil {
		t.Fatalf("transactionRow: %v", err)
	}
	if row.UserID != "user-1" {
		t.Errorf("user_id = %q", row.UserID)
	}
	// The warehouse renames two columns.
	if row.Category != tx.CategoryID {
		t.Errorf("category column = %q, want the domain category id", row.Category)
	}
	if !row.Description.Valid || row.Description.StringVal != "lunch" {
		t.Errorf("description column = %+v, want the domain note", row.Description)
	}
	if row.Date.String() != "2025-05-30" {
		t.Errorf("date = %s", row.Date)
	}
	if !row.UpdatedAt.Valid || !row.UpdatedAt.Timestamp.Equal(stamp) {
		t.Errorf("updated_at = %+v", row.UpdatedAt)
	}

	back := row.Domain()
	if back.ID != tx.ID || back.CategoryID != tx.CategoryID || back.Note != tx.Note {
		t.Errorf("round trip = %+v, want %+v", back, tx)
	}
	if !back.Amount.Equal(tx.Amount) {
		t.Errorf("amount = %s, want %s", back.Amount, tx.Amount)
	}
	if back.Date != tx.Date {
		t.Errorf("date = %q, want %q", back.Date, tx.Date)
	}
	if back.UpdatedAt == nil || !back.UpdatedAt.Equal(stamp) {
		t.Error("updated_at lost in round trip")
	}
}

func TestTransactionRowRejectsBadDate(t *testing.T) {
	_, err := transactionRow("user-1", domain.Transaction{
		ID:     "t1",
		Amount: decimal.NewFromInt(1),
		Kind:   domain.KindExpense,
		Date:   "30/05/2025",
	})
	if err == nil {
		t.Error("expected a date parse error")
	}
}

func TestTransactionRowDomainDefaults(t *testing.T) {
	row := &TransactionRow{
		ID:       "t1",
		UserID:   "user-1",
		Type:     "expense",
		Category: "food", // legacy id straight from the warehouse
	}

	got := row.Domain()
	if got.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed backfill", got.Status)
	}
	if got.CategoryID != "a1e7e720-4e56-42f7-927c-9b788a8d1a1e" {
		t.Errorf("category id = %q, want resolved stable id", got.CategoryID)
	}
	if got.UpdatedAt != nil {
		t.Error("null updated_at should stay nil")
	}
	if !got.Amount.IsZero() {
		t.Errorf("nil amount should decode as zero, got %s", got.Amount)
	}
}

func TestCategoryRowMapping(t *testing.T) {
	stamp := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	c := domain.Category{
		ID:        "c1",
		Name:      "Gym",
		Icon:      "🏋️",
		Kind:      domain.KindExpense,
		UpdatedAt: &stamp,
	}

	row := categoryRow("user-1", c)
	if row.UserID != "user-1" || row.Type != "expense" {
		t.Errorf("row = %+v", row)
	}

	back := row.Domain()
	if back.ID != c.ID || back.Name != c.Name || back.Icon != c.Icon || back.Kind != c.Kind {
		t.Errorf("round trip = %+v, want %+v", back, c)
	}
	if back.UpdatedAt == nil || !back.UpdatedAt.Equal(stamp) {
		t.Error("updated_at lost in round trip")
	}
}

func TestAmountPrecisionSurvivesRow(t *testing.T) {
	tests := []string{"0.01", "1234567.89", "99.999"}
	for _, s := range tests {
		amt := decimal.RequireFromString(s)
		row, err := transactionRow("u", domain.Transaction{
			ID: "t", Amount: amt, Kind: domain.KindExpense, Date: "2025-01-01",
		})
		if err != nil {
			t.Fatalf("transactionRow(%s): %v", s, err)
		}
		if got := row.Domain().Amount; !got.Equal(amt) {
			t.Errorf("amount %s came back as %s", s, got)
		}
	}
}
