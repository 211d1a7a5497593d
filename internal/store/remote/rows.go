package remote

import (
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

// amountScale is the number of decimal places kept when converting warehouse
// NUMERIC values back into domain amounts.
const amountScale = 9

// TransactionRow is the warehouse shape of a transaction. The column names
// differ from the domain field names in two places: the domain's
// category_id is stored in the `category` column and the domain's note in
// `description`. This file is the only place that knows about the renames.
type TransactionRow struct {
	ID     string `bigquery:"id"`      // REQUIRED
	UserID string `bigquery:"user_id"` // REQUIRED, owning user

	Amount *big.Rat   `bigquery:"amount"` // REQUIRED NUMERIC
	Type   string     `bigquery:"type"`   // REQUIRED, expense|income
	Date   civil.Date `bigquery:"date"`   // REQUIRED

	Category    string              `bigquery:"category"`    // domain category_id
	Description bigquery.NullString `bigquery:"description"` // domain note

	Status    string                 `bigquery:"status"`     // draft|completed
	UpdatedAt bigquery.NullTimestamp `bigquery:"updated_at"` // NULLABLE
}

// CategoryRow is the warehouse shape of a category.
type CategoryRow struct {
	ID     string `bigquery:"id"`      // REQUIRED
	UserID string `bigquery:"user_id"` // REQUIRED, owning user

	Name string `bigquery:"name"`
	Icon string `bigquery:"icon"`
	Type string `bigquery:"type"` // expense|income

	UpdatedAt bigquery.NullTimestamp `bigquery:"updated_at"` // NULLABLE
}

// transactionRow maps a domain transaction into its warehouse row for the
// given owning user.
func transactionRow(userID string, t domain.Transaction) (*TransactionRow, error) {
	date, err := civil.ParseDate(t.Date)
	if err != nil {
		return nil, err
	}
	row := &TransactionRow{
		ID:       t.ID,
		UserID:   userID,
		Amount:   t.Amount.Rat(),
		Type:     string(t.Kind),
		Date:     date,
		Category: t.CategoryID,
		Status:   string(t.Status),
	}
	if t.Note != "" {
		row.Description = bigquery.NullString{StringVal: t.Note, Valid: true}
	}
	if t.UpdatedAt != nil {
		row.UpdatedAt = bigquery.NullTimestamp{Timestamp: *t.UpdatedAt, Valid: true}
	}
	return row, nil
}

// Domain maps the row back into the domain transaction, undoing the column
// renames and resolving legacy category ids.
func (r *TransactionRow) Domain() domain.Transaction {
	t := domain.Transaction{
		ID:         r.ID,
		Kind:       domain.Kind(r.Type),
		CategoryID: domain.ResolveCategoryID(r.Category),
		Date:       r.Date.String(),
		Status:     domain.Status(r.Status),
	}
	if r.Amount != nil {
		t.Amount = decimal.NewFromBigRat(r.Amount, amountScale)
	}
	if r.Description.Valid {
		t.Note = r.Description.StringVal
	}
	if r.UpdatedAt.Valid {
		ts := r.UpdatedAt.Timestamp
		t.UpdatedAt = &ts
	}
	if t.Status == "" {
		t.Status = domain.StatusCompleted
	}
	return t
}

// categoryRow maps a domain category into its warehouse row.
func categoryRow(userID string, c domain.Category) *CategoryRow {
	row := &CategoryRow{
		ID:     c.ID,
		UserID: userID,
		Name:   c.Name,
		Icon:   c.Icon,
		Type:   string(c.Kind),
	}
	if c.UpdatedAt != nil {
		row.UpdatedAt = bigquery.NullTimestamp{Timestamp: *c.UpdatedAt, Valid: true}
	}
	return row
}

// Domain maps the row back into the domain category.
func (r *CategoryRow) Domain() domain.Category {
	c := domain.Category{
		ID:   r.ID,
		Name: r.Name,
		Icon: r.Icon,
		Kind: domain.Kind(r.Type),
	}
	if r.UpdatedAt.Valid {
		ts := r.UpdatedAt.Timestamp
		c.UpdatedAt = &ts
	}
	return c
}
