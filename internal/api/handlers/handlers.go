// Package handlers exposes the ledger over HTTP. The rendering layer is
// external; these endpoints are its data surface.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/darrenwu-git/snap-ledger/internal/api/middleware"
	"github.com/darrenwu-git/snap-ledger/internal/backup"
	"github.com/darrenwu-git/snap-ledger/internal/config"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/ledger"
	"github.com/darrenwu-git/snap-ledger/internal/store"
	"github.com/darrenwu-git/snap-ledger/internal/voice"
)

// maxVoiceUpload bounds voice recording uploads.
const maxVoiceUpload = 16 << 20

// LedgerHandler handles transaction, category, session and backup
// endpoints.
type LedgerHandler struct {
	ledger    *ledger.Ledger
	parser    *voice.Parser // nil when no Gemini key is configured
	remoteErr error         // non-nil when remote mode is not configured
	log       zerolog.Logger
}

// NewLedgerHandler creates the handler. parser may be nil and remoteErr
// non-nil; the corresponding endpoints then reject with a precondition
// failure before any I/O.
func NewLedgerHandler(l *ledger.Ledger, parser *voice.Parser, remoteErr error, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, parser: parser, remoteErr: remoteErr, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.ledger.Transactions()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CreateTransaction handles POST /api/transactions
func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.ledger.AddTransaction(r.Context(), t)
	if err != nil {
		h.writeMutationError(w, err, "Failed to save transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *LedgerHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	var t domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.ledger.UpdateTransaction(r.Context(), id, t)
	if err != nil {
		h.writeMutationError(w, err, "Failed to update transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *LedgerHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteTransaction(r.Context(), id); err != nil {
		h.writeMutationError(w, err, "Failed to delete transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// ListCategories handles GET /api/categories
func (h *LedgerHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats := h.ledger.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": cats,
		"count":      len(cats),
	})
}

// CreateCategory handles POST /api/categories
func (h *LedgerHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.ledger.AddCategory(r.Context(), c)
	if err != nil {
		h.writeMutationError(w, err, "Failed to save category")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateCategory handles PUT /api/categories/{id}
func (h *LedgerHandler) UpdateCategory(w http.ResponseWriter, r *http.Request, id string) {
	var c domain.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.ledger.UpdateCategory(r.Context(), id, c)
	if err != nil {
		h.writeMutationError(w, err, "Failed to update category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteCategory handles DELETE /api/categories/{id}
func (h *LedgerHandler) DeleteCategory(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteCategory(r.Context(), id); err != nil {
		h.writeMutationError(w, err, "Failed to delete category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// CreateSession handles POST /api/session: sign-in, switching the ledger to
// remote mode and reloading.
func (h *LedgerHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if h.remoteErr != nil {
		middleware.WriteError(w, http.StatusUnauthorized, h.remoteErr.Error())
		return
	}

	if err := h.ledger.SetIdentity(r.Context(), &store.Identity{UserID: req.UserID}); err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			middleware.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to switch to remote mode")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to load remote ledger")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"mode": "remote", "userId": req.UserID})
}

// DeleteSession handles DELETE /api/session: sign-out, back to local mode.
func (h *LedgerHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.SetIdentity(r.Context(), nil); err != nil {
		h.log.Error().Err(err).Msg("Failed to reload local ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load local ledger")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"mode": "local"})
}

// Export handles GET /api/backup: returns the backup bundle.
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.Export())
}

// Import handles POST /api/backup: reconciles an uploaded bundle. Partial
// persistence failures yield 200 with per-kind errors listed, never a
// claim of full success.
func (h *LedgerHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	bundle, err := backup.Decode(data)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.ledger.Import(r.Context(), bundle)
	body := map[string]interface{}{
		"transactionsChanged": res.TransactionsChanged,
		"categoriesChanged":   res.CategoriesChanged,
		"fullyPersisted":      res.FullyPersisted(),
	}
	if res.TransactionErr != nil {
		body["transactionError"] = res.TransactionErr.Error()
	}
	if res.CategoryErr != nil {
		body["categoryError"] = res.CategoryErr.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

// Voice handles POST /api/voice: raw audio in the body, Content-Type set to
// the audio MIME type. A structured candidate is recorded immediately —
// completed when auto-completable, as a draft otherwise.
func (h *LedgerHandler) Voice(w http.ResponseWriter, r *http.Request) {
	if h.parser == nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Voice entry requires a Gemini API key")
		return
	}

	audio, err := io.ReadAll(io.LimitReader(r.Body, maxVoiceUpload))
	if err != nil || len(audio) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Audio body is required")
		return
	}

	intent, err := h.parser.Parse(r.Context(), audio, r.Header.Get("Content-Type"), h.ledger.Categories())
	if err != nil {
		h.log.Error().Err(err).Msg("Voice extraction failed")
		middleware.WriteError(w, http.StatusBadGateway, "Voice extraction failed")
		return
	}

	if intent.Candidate == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"intent":  string(intent.Kind),
			"message": intent.Message,
		})
		return
	}

	created, err := h.ledger.AddTransaction(r.Context(), intent.Candidate.Transaction())
	if err != nil {
		h.writeMutationError(w, err, "Failed to save transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"intent":      string(intent.Kind),
		"confidence":  intent.Candidate.Confidence,
		"transaction": created,
	})
}

// writeMutationError maps coordinator failures to HTTP statuses. A store
// write failure means the optimistic change was rolled back; the caller
// sees the revert plus this message.
func (h *LedgerHandler) writeMutationError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Record not found")
		return
	}
	var werr *store.WriteError
	if errors.As(err, &werr) {
		middleware.WriteError(w, http.StatusBadGateway, werr.Error())
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, fallback)
}
