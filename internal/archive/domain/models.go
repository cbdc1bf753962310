// Package domain holds the fiscal year archive: an aggregated, locked
// snapshot of one fiscal year's invoices and expenses. The archive tags
// documents rather than owning them; tagged documents are excluded from
// any later aggregation.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	ErrAlreadyArchived      = errors.New("fiscal_year_already_archived")
	ErrFiscalYearNotElapsed = errors.New("fiscal_year_not_elapsed")
	ErrArchiveNotFound      = errors.New("archive_not_found")
	ErrArchiveLocked        = errors.New("archive_locked")
	ErrNotPrivileged        = errors.New("actor_not_privileged")
)

type FiscalYearArchive struct {
	ID snowflake.ID `gorm:"primaryKey"`
	// FiscalYear is the calendar year the period ends in. One archive
	// per year, enforced by the database.
	FiscalYear int `gorm:"not null;uniqueIndex"`

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`

	TotalInvoices int             `gorm:"not null;default:0"`
	TotalExpenses int             `gorm:"not null;default:0"`
	TotalRevenue  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalSpent    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	GSTCollected decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	QSTCollected decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	GSTPaid      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	QSTPaid      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	// IsLocked refuses mutation and deletion. Only a privileged actor
	// may unlock, and only explicitly.
	IsLocked   bool    `gorm:"not null;default:true"`
	ArchivedBy string  `gorm:"type:text"`
	Notes      *string `gorm:"type:text"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FiscalYearArchive) TableName() string { return "fiscal_year_archives" }

// NetProfit is revenue minus expenses, derived on read.
func (a FiscalYearArchive) NetProfit() decimal.Decimal {
	return a.TotalRevenue.Sub(a.TotalSpent)
}

// TaxSummary reports what is owed to (positive) or reclaimable from
// (negative) each tax authority.
type TaxSummary struct {
	GSTNet decimal.Decimal
	QSTNet decimal.Decimal
}

func (a FiscalYearArchive) TaxSummary() TaxSummary {
	return TaxSummary{
		GSTNet: a.GSTCollected.Sub(a.GSTPaid),
		QSTNet: a.QSTCollected.Sub(a.QSTPaid),
	}
}
