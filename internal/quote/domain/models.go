// Package domain contains persistence models for quotes, the estimate
// variant of a billing document.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/atelier/internal/billing"
)

// QuoteStatus represents quote lifecycle states.
type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusDeclined  QuoteStatus = "DECLINED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
	QuoteStatusConverted QuoteStatus = "CONVERTED"
)

func ValidQuoteStatus(s QuoteStatus) bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted,
		QuoteStatusDeclined, QuoteStatusExpired, QuoteStatusConverted:
		return true
	default:
		return false
	}
}

type Quote struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	Number   string       `gorm:"type:text;not null;uniqueIndex"`
	ClientID snowflake.ID `gorm:"not null;index"`

	QuoteDate  time.Time  `gorm:"not null;index"`
	ValidUntil *time.Time `gorm:""`

	Status QuoteStatus `gorm:"type:text;not null;default:'DRAFT'"`

	Subtotal           decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	IsDealerDiscount   bool            `gorm:"not null;default:false"`
	GSTAmount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	QSTAmount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`

	// ConvertedInvoiceID is set exactly once, by conversion.
	ConvertedInvoiceID *snowflake.ID `gorm:"uniqueIndex"`

	Notes *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Quote) TableName() string { return "quotes" }

func (q Quote) IsConverted() bool { return q.ConvertedInvoiceID != nil }

// IsExpired is a derived read; the stored status only moves to EXPIRED
// through UpdateStatus.
func (q Quote) IsExpired(today time.Time) bool {
	if q.ValidUntil == nil {
		return false
	}
	switch q.Status {
	case QuoteStatusDraft, QuoteStatusSent:
		return q.ValidUntil.Before(today)
	default:
		return false
	}
}

// Convertible reports whether the quote may still become an invoice.
func (q Quote) Convertible() bool {
	return !q.IsConverted() &&
		(q.Status == QuoteStatusSent || q.Status == QuoteStatusAccepted)
}

// QuoteItem is a line on a quote.
type QuoteItem struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	QuoteID snowflake.ID `gorm:"not null;index"`

	billing.Line `gorm:"embedded"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (QuoteItem) TableName() string { return "quote_items" }
