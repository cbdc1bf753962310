// Package sequence assigns human-readable document numbers of the form
// PREFIX-YYYY-NNNN, one counter per prefix per calendar year.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/smallbiznis/atelier/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Document number prefixes.
const (
	PrefixInvoice      = "INV"
	PrefixQuote        = "QUO"
	PrefixStockReceipt = "BR"
)

// NumberPattern matches every number this package can produce.
var NumberPattern = regexp.MustCompile(`^(INV|QUO|BR)-\d{4}-\d{4}$`)

var ErrAllocationFailed = errors.New("sequence_allocation_failed")

const ensureRetries = 3

// DocumentSequence is the serialized counter row. Incrementing it inside
// the caller's transaction takes a row lock, so two concurrent creations
// of the same prefix/year can never read the same value.
type DocumentSequence struct {
	Prefix  string `gorm:"type:text;primaryKey"`
	Year    int    `gorm:"primaryKey"`
	NextSeq int64  `gorm:"not null;default:0"`
}

func (DocumentSequence) TableName() string { return "document_sequences" }

type Allocator struct {
	log *zap.Logger
}

func NewAllocator(log *zap.Logger) *Allocator {
	return &Allocator{log: log.Named("sequence.allocator")}
}

// Next allocates the next number for prefix/year. It must be called with
// the transaction that also inserts the document, so a rolled-back
// creation rolls the counter back with it and numbers stay gapless.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB, prefix string, year int) (string, error) {
	if err := a.ensureRow(ctx, tx, prefix, year); err != nil {
		return "", err
	}

	err := tx.WithContext(ctx).Exec(
		`UPDATE document_sequences
		 SET next_seq = next_seq + 1
		 WHERE prefix = ? AND year = ?`,
		prefix, year,
	).Error
	if err != nil {
		return "", fmt.Errorf("increment sequence %s-%d: %w", prefix, year, err)
	}

	var seq int64
	err = tx.WithContext(ctx).Raw(
		`SELECT next_seq FROM document_sequences WHERE prefix = ? AND year = ?`,
		prefix, year,
	).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("read sequence %s-%d: %w", prefix, year, err)
	}
	if seq == 0 {
		return "", ErrAllocationFailed
	}

	return Format(prefix, year, seq), nil
}

// ensureRow creates the counter row on first use. Concurrent first users
// race on the primary key; the duplicate loser simply retries and finds
// the row present.
func (a *Allocator) ensureRow(ctx context.Context, tx *gorm.DB, prefix string, year int) error {
	var lastErr error
	for attempt := 0; attempt < ensureRetries; attempt++ {
		err := tx.WithContext(ctx).Exec(
			`INSERT INTO document_sequences (prefix, year, next_seq)
			 VALUES (?, ?, 0)
			 ON CONFLICT (prefix, year) DO NOTHING`,
			prefix, year,
		).Error
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("ensure sequence %s-%d: %w", prefix, year, err)
		}
		a.log.Debug("sequence row already present, retrying",
			zap.String("prefix", prefix),
			zap.Int("year", year),
			zap.Int("attempt", attempt+1),
		)
		lastErr = err
	}
	return fmt.Errorf("ensure sequence %s-%d: %w", prefix, year, lastErr)
}

// Format renders a document number: Format("INV", 2025, 7) == "INV-2025-0007".
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}
