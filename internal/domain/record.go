package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a record as money going out or coming in.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Status tracks whether a transaction has been confirmed by the user.
// Voice-extracted entries with low confidence start as drafts.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// DateFormat is the wire format for transaction dates. Dates carry no time
// component; lexicographic order on this format equals date order.
const DateFormat = "2006-01-02"

// Category is a tag for grouping transactions. ID is immutable once created.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Icon      string     `json:"icon"`
	Kind      Kind       `json:"type"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Transaction is a single money movement. This is a domain struct, not a
// store row; the remote adapter maps it into the warehouse schema.
type Transaction struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Kind       Kind            `json:"type"`
	CategoryID string          `json:"categoryId"`
	Date       string          `json:"date"` // YYYY-MM-DD
	Note       string          `json:"note,omitempty"`
	Status     Status          `json:"status"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
}

// NewID mints an opaque record identifier.
func NewID() string {
	return uuid.New().String()
}

// UpdatedTime returns the record's last-modified timestamp, or the zero
// time when it was never stamped. Merge comparisons rely on this.
func (c Category) UpdatedTime() time.Time {
	if c.UpdatedAt == nil {
		return time.Time{}
	}
	return *c.UpdatedAt
}

// UpdatedTime returns the record's last-modified timestamp, or the zero
// time when it was never stamped.
func (t Transaction) UpdatedTime() time.Time {
	if t.UpdatedAt == nil {
		return time.Time{}
	}
	return *t.UpdatedAt
}

// Completable reports whether the transaction has everything required to
// leave draft status: a positive amount and a category.
func (t Transaction) Completable() bool {
	return t.Amount.IsPositive() && t.CategoryID != ""
}

// Stamp returns a copy of the category with UpdatedAt set to now.
func (c Category) Stamp(now time.Time) Category {
	c.UpdatedAt = &now
	return c
}

// Stamp returns a copy of the transaction with UpdatedAt set to now.
func (t Transaction) Stamp(now time.Time) Transaction {
	t.UpdatedAt = &now
	return t
}
