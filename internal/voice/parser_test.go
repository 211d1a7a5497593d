package voice

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/darrenwu-git/snap-ledger/internal/config"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

func TestNewParserRequiresAPIKey(t *testing.T) {
	if _, err := NewParser(""); !errors.Is(err, config.ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
	if _, err := NewParser("   "); !errors.Is(err, config.ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential for blank key", err)
	}
	if _, err := NewParser("key-123"); err != nil {
		t.Errorf("NewParser with a key: %v", err)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"raw json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
		{"fence without newline", "```", "```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeReplyTransaction(t *testing.T) {
	raw := `{
		"is_transaction": true,
		"amount": 12.5,
		"categoryId": "a1e7e720-4e56-42f7-927c-9b788a8d1a1e",
		"type": "expense",
		"date": "2025-06-01",
		"note": "coffee and sandwich",
		"confidence": 1.0
	}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Kind != IntentTransaction {
		t.Fatalf("kind = %q, want transaction", intent.Kind)
	}
	c := intent.Candidate
	if !c.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("amount = %s", c.Amount)
	}
	if c.Date != "2025-06-01" {
		t.Errorf("date = %q, model-provided date should win", c.Date)
	}
	if !c.AutoComplete() {
		t.Error("confident complete candidate should auto-complete")
	}
	if got := c.Transaction(); got.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestDecodeReplyResolvesLegacyCategory(t *testing.T) {
	raw := `{"is_transaction": true, "amount": 10, "categoryId": "food", "type": "expense", "confidence": 1.0}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Candidate.CategoryID != "a1e7e720-4e56-42f7-927c-9b788a8d1a1e" {
		t.Errorf("category id = %q, want resolved stable id", intent.Candidate.CategoryID)
	}
}

func TestDecodeReplyDefaults(t *testing.T) {
	// Model omitted confidence, date and type.
	raw := `{"is_transaction": true, "amount": 10, "categoryId": "food"}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	c := intent.Candidate
	if c.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 fallback with a category", c.Confidence)
	}
	if c.Date != "2025-06-02" {
		t.Errorf("date = %q, want today", c.Date)
	}
	if c.Kind != domain.KindExpense {
		t.Errorf("kind = %q, want expense default", c.Kind)
	}
}

func TestDecodeReplyUncategorized(t *testing.T) {
	raw := `{"is_transaction": true, "amount": 10, "categoryId": null, "new_category": "Gym"}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Kind != IntentUncategorized {
		t.Fatalf("kind = %q, want uncategorized", intent.Kind)
	}
	c := intent.Candidate
	if c.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 fallback without a category", c.Confidence)
	}
	if c.NewCategory != "Gym" {
		t.Errorf("new category = %q", c.NewCategory)
	}
	if c.AutoComplete() {
		t.Error("uncategorized candidate must not auto-complete")
	}
	if got := c.Transaction(); got.Status != domain.StatusDraft {
		t.Errorf("status = %q, want draft", got.Status)
	}
}

func TestDecodeReplyNonAccounting(t *testing.T) {
	raw := `{"is_transaction": false, "message": "That sounded like a shopping list."}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Kind != IntentNonAccounting {
		t.Errorf("kind = %q", intent.Kind)
	}
	if intent.Message != "That sounded like a shopping list." {
		t.Errorf("message = %q", intent.Message)
	}
	if intent.Candidate != nil {
		t.Error("non-accounting intent should carry no candidate")
	}
}

func TestDecodeReplyMissingAmount(t *testing.T) {
	raw := `{"is_transaction": true, "amount": null, "categoryId": "food"}`

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Kind != IntentNonAccounting {
		t.Errorf("kind = %q, a transaction without an amount is unusable", intent.Kind)
	}
	if intent.Message == "" {
		t.Error("expected an explanatory message")
	}
}

func TestDecodeReplyMalformed(t *testing.T) {
	if _, err := decodeReply("the model rambled instead of JSON", "2025-06-02"); err == nil {
		t.Error("expected an unmarshal error")
	}
}

func TestDecodeReplyFenced(t *testing.T) {
	raw := "```json\n{\"is_transaction\": true, \"amount\": 5, \"categoryId\": \"food\", \"confidence\": 1.0}\n```"

	intent, err := decodeReply(raw, "2025-06-02")
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if intent.Kind != IntentTransaction {
		t.Errorf("kind = %q", intent.Kind)
	}
}

func TestBuildPromptListsCategories(t *testing.T) {
	prompt := buildPrompt([]domain.Category{
		{ID: "c1", Name: "Food", Kind: domain.KindExpense},
		{ID: "c2", Name: "Salary", Kind: domain.KindIncome},
	}, "2025-06-02")

	for _, want := range []string{"Food", "c1", "Salary", "c2", "2025-06-02", "is_transaction"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
