// Package domain holds expense records. Expenses feed the fiscal archive
// aggregation; their entry forms live in the admin layer.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid_expense_amount")
	ErrExpenseNotFound = errors.New("expense_not_found")
)

type Category string

const (
	CategoryMaterials    Category = "MATERIALS"
	CategoryTools        Category = "TOOLS"
	CategoryRent         Category = "RENT"
	CategoryUtilities    Category = "UTILITIES"
	CategoryInsurance    Category = "INSURANCE"
	CategoryMarketing    Category = "MARKETING"
	CategoryFuel         Category = "FUEL"
	CategoryMaintenance  Category = "MAINTENANCE"
	CategoryOffice       Category = "OFFICE"
	CategoryProfessional Category = "PROFESSIONAL"
	CategoryOther        Category = "OTHER"
)

type Expense struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	Description string          `gorm:"type:text;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ExpenseDate time.Time       `gorm:"not null;index"`
	Category    Category        `gorm:"type:text;not null;default:'OTHER'"`

	// Taxes paid on the expense, reclaimed at filing time.
	GSTAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	QSTAmount decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`

	// ArchivedFiscalYear excludes the expense from future archive runs
	// once set.
	ArchivedFiscalYear *int `gorm:"index"`

	Notes *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Expense) TableName() string { return "expenses" }

func (e *Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// TotalWithTaxes is the out-of-pocket cost of the expense.
func (e Expense) TotalWithTaxes() decimal.Decimal {
	return e.Amount.Add(e.GSTAmount).Add(e.QSTAmount)
}
