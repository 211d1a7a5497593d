// Package backup defines the external backup bundle format and moves
// bundles to and from Google Cloud Storage. A bundle is a projection of the
// ledger, never persisted internally: export writes records as-is, import
// feeds them to the reconciliation engine.
package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
)

// Version is the current bundle format version.
const Version = 1

// Bundle is the export/import envelope.
type Bundle struct {
	Version      int                  `json:"version"`
	ExportedAt   string               `json:"exportedAt"`
	Transactions []domain.Transaction `json:"transactions"`
	Categories   []domain.Category    `json:"categories"`
}

// New builds a bundle from the given collections with no transformation.
func New(txs []domain.Transaction, cats []domain.Category, now time.Time) Bundle {
	return Bundle{
		Version:      Version,
		ExportedAt:   now.UTC().Format(time.RFC3339),
		Transactions: txs,
		Categories:   cats,
	}
}

// Encode serializes the bundle as indented JSON.
func (b Bundle) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup.Encode: %w", err)
	}
	return data, nil
}

// Decode parses a bundle, rejecting unknown format versions.
func Decode(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("backup.Decode: %w", err)
	}
	if b.Version != Version {
		return Bundle{}, fmt.Errorf("backup.Decode: unsupported bundle version %d", b.Version)
	}
	return b, nil
}
