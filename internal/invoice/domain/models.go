// Package domain contains persistence models for invoicing. Monetary
// fields are derived: only the totals engine writes them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func ValidInvoiceStatus(s InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

type Invoice struct {
	ID snowflake.ID `gorm:"primaryKey"`
	// Number is assigned once at creation and never changes.
	Number   string       `gorm:"type:text;not null;uniqueIndex"`
	ClientID snowflake.ID `gorm:"not null;index"`
	// SourceQuoteID links back to the quote this invoice was converted
	// from. One invoice per quote.
	SourceQuoteID *snowflake.ID `gorm:"uniqueIndex"`

	InvoiceDate time.Time `gorm:"not null;index"`
	DueDate     time.Time `gorm:"not null"`

	Status InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'"`

	Subtotal           decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	IsDealerDiscount   bool            `gorm:"not null;default:false"`
	GSTAmount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	QSTAmount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`

	// ArchivedFiscalYear excludes the invoice from future archive runs
	// and freezes it against mutation once set.
	ArchivedFiscalYear *int `gorm:"index"`

	Notes *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

func (i Invoice) IsArchived() bool { return i.ArchivedFiscalYear != nil }

// IsOverdue is a derived read; the stored status is only advanced by an
// explicit status update.
func (i Invoice) IsOverdue(today time.Time) bool {
	if i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled {
		return false
	}
	return i.DueDate.Before(today)
}
