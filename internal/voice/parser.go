// Package voice turns recorded speech into a structured transaction
// candidate using Gemini. The model is an external collaborator: this
// package owns the prompt contract and the decoding of its strict-JSON
// reply, nothing else. Whether a candidate is auto-completed or lands as a
// draft for manual review is the caller's policy, encoded in
// Candidate.AutoComplete.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/darrenwu-git/snap-ledger/internal/config"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

// ModelName is the Gemini model used for extraction.
const ModelName = "gemini-2.5-flash"

// AutoCompleteConfidence is the threshold above which a candidate with both
// an amount and a resolved category is treated as auto-completable.
const AutoCompleteConfidence = 0.9

// IntentKind classifies the model's reading of the audio.
type IntentKind string

const (
	// IntentTransaction carries a structured candidate.
	IntentTransaction IntentKind = "transaction"
	// IntentUncategorized carries a candidate missing its category.
	IntentUncategorized IntentKind = "uncategorized"
	// IntentNonAccounting means the speech was not a transaction.
	IntentNonAccounting IntentKind = "non_accounting"
)

// Candidate is a structured transaction candidate extracted from speech.
type Candidate struct {
	Amount      decimal.Decimal
	CategoryID  string
	Kind        domain.Kind
	Date        string
	Note        string
	Confidence  float64
	NewCategory string // optional suggested category name, may be empty
}

// AutoComplete reports whether the candidate is complete and confident
// enough to be recorded without manual review.
func (c Candidate) AutoComplete() bool {
	return c.Confidence >= AutoCompleteConfidence && c.Amount.IsPositive() && c.CategoryID != ""
}

// Transaction converts the candidate into a domain transaction: completed
// when auto-completable, otherwise a draft awaiting confirmation.
func (c Candidate) Transaction() domain.Transaction {
	status := domain.StatusDraft
	if c.AutoComplete() {
		status = domain.StatusCompleted
	}
	return domain.Transaction{
		Amount:     c.Amount,
		Kind:       c.Kind,
		CategoryID: c.CategoryID,
		Date:       c.Date,
		Note:       c.Note,
		Status:     status,
	}
}

// Intent is the parser's result: exactly one of a candidate or a message.
type Intent struct {
	Kind      IntentKind
	Candidate *Candidate
	Message   string
}

// Parser calls Gemini with recorded audio and the current category list.
type Parser struct {
	apiKey string
	clock  func() time.Time
}

// NewParser creates a parser. A missing API key is a hard precondition
// failure, rejected here before any call is attempted.
func NewParser(apiKey string) (*Parser, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("voice.NewParser: %w", config.ErrMissingCredential)
	}
	return &Parser{apiKey: apiKey, clock: time.Now}, nil
}

// modelReply is the strict-JSON shape the prompt demands from the model.
type modelReply struct {
	IsTransaction bool     `json:"is_transaction"`
	Amount        *float64 `json:"amount"`
	CategoryID    *string  `json:"categoryId"`
	Type          string   `json:"type"`
	Date          string   `json:"date"`
	Note          string   `json:"note"`
	Message       string   `json:"message"`
	Confidence    *float64 `json:"confidence"`
	NewCategory   string   `json:"new_category"`
}

// Parse sends the audio and category list to the model and decodes the
// reply into an intent.
func (p *Parser) Parse(ctx context.Context, audio []byte, mimeType string, cats []domain.Category) (Intent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("voice.Parse: create genai client: %w", err)
	}

	if mimeType == "" {
		mimeType = "audio/webm"
	}
	today := p.clock().Format(domain.DateFormat)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(cats, today)},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     audio,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, ModelName, contents, nil)
	if err != nil {
		return Intent{}, fmt.Errorf("voice.Parse: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return Intent{}, fmt.Errorf("voice.Parse: empty response from model")
	}

	return decodeReply(rawText, today)
}

// decodeReply turns the raw model output into an intent, applying the
// confidence fallbacks when the model omitted the score.
func decodeReply(raw, today string) (Intent, error) {
	clean := cleanModelJSON(raw)

	var reply modelReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return Intent{}, fmt.Errorf("voice.decodeReply: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	if !reply.IsTransaction {
		msg := reply.Message
		if msg == "" {
			msg = "I didn't catch a transaction in that."
		}
		return Intent{Kind: IntentNonAccounting, Message: msg}, nil
	}

	if reply.Amount == nil {
		return Intent{Kind: IntentNonAccounting, Message: "I heard numbers but couldn't make sense of the transaction."}, nil
	}

	categoryID := ""
	if reply.CategoryID != nil {
		categoryID = domain.ResolveCategoryID(*reply.CategoryID)
	}

	confidence := 0.0
	if reply.Confidence != nil {
		confidence = *reply.Confidence
	}
	if confidence == 0 {
		if categoryID != "" {
			confidence = 0.9
		} else {
			confidence = 0.5
		}
	}

	kind := domain.Kind(reply.Type)
	if kind != domain.KindIncome {
		kind = domain.KindExpense
	}
	date := reply.Date
	if date == "" {
		date = today
	}

	cand := &Candidate{
		Amount:      decimal.NewFromFloat(*reply.Amount),
		CategoryID:  categoryID,
		Kind:        kind,
		Date:        date,
		Note:        reply.Note,
		Confidence:  confidence,
		NewCategory: reply.NewCategory,
	}

	if categoryID == "" {
		return Intent{Kind: IntentUncategorized, Candidate: cand}, nil
	}
	return Intent{Kind: IntentTransaction, Candidate: cand}, nil
}

// buildPrompt lists the known categories and today's date, and pins the
// model to a strict-JSON reply.
func buildPrompt(cats []domain.Category, today string) string {
	var b strings.Builder
	b.WriteString("You are a smart financial assistant. Listen to the audio and extract the transaction details.\n\n")
	b.WriteString("Available Categories:\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "- %s (ID: %s, Type: %s)\n", c.Name, c.ID, c.Kind)
	}
	fmt.Fprintf(&b, "\nCurrent Date: %s\n\n", today)
	b.WriteString("Rules:\n" +
		"1. AUDIO ANALYSIS: Listen to the user's speech.\n" +
		"2. Identify if this is a transaction (expense/income) or purely non-accounting speech.\n" +
		"3. If it is a transaction, extract:\n" +
		"   - Amount (number)\n" +
		"   - Category ID (map to closest ID. If unsure, null; you may suggest a new category name in \"new_category\")\n" +
		"   - Type (expense/income)\n" +
		"   - Date (YYYY-MM-DD)\n" +
		"   - Note (short summary)\n" +
		"4. CONFIDENCE check:\n" +
		"   - If amount, category, and date are clear -> confidence: 1.0\n" +
		"   - If category is ambiguous -> confidence: 0.6\n" +
		"   - If amount missing -> confidence: 0.0\n\n" +
		"Return ONLY raw JSON. Do NOT wrap the response in code fences.\n" +
		"{\n" +
		"  \"is_transaction\": boolean,\n" +
		"  \"amount\": number | null,\n" +
		"  \"categoryId\": string | null,\n" +
		"  \"type\": \"expense\" | \"income\",\n" +
		"  \"date\": string,\n" +
		"  \"note\": string,\n" +
		"  \"message\": string,\n" +
		"  \"confidence\": number,\n" +
		"  \"new_category\": string | null\n" +
		"}\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences if the model ignored instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
