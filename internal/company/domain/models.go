// Package domain contains the company profile governing tax and fiscal
// behavior. At most one profile row is effective; services read it once
// per operation and hand values to the pure calculators.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/atelier/internal/fiscal"
)

var (
	ErrNoProfileConfigured = errors.New("no_profile_configured")
	ErrInvalidName         = errors.New("invalid_name")
)

type Profile struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	Name    string       `gorm:"type:text;not null"`
	Address string       `gorm:"type:text"`
	Phone   string       `gorm:"type:text"`
	Email   string       `gorm:"type:text"`

	// Tax registration numbers, shown on invoices by the rendering layer.
	GSTNumber       *string `gorm:"type:text"`
	QSTNumber       *string `gorm:"type:text"`
	IsTaxRegistered bool    `gorm:"not null;default:false"`

	FiscalYearEndMonth int `gorm:"not null;default:12"`
	FiscalYearEndDay   int `gorm:"not null;default:31"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Profile) TableName() string { return "company_profiles" }

// FiscalConfig exposes the profile's year-end as a fiscal.Config value.
func (p Profile) FiscalConfig() fiscal.Config {
	return fiscal.Config{EndMonth: p.FiscalYearEndMonth, EndDay: p.FiscalYearEndDay}
}

func (p *Profile) Validate() error {
	if p.Name == "" {
		return ErrInvalidName
	}
	return p.FiscalConfig().Validate()
}

type Service interface {
	// Get returns the effective profile or ErrNoProfileConfigured.
	Get(ctx context.Context) (Profile, error)
	// Upsert creates or replaces the effective profile. Fiscal month/day
	// are validated here, never inside the period calculator.
	Upsert(ctx context.Context, profile Profile) (Profile, error)
}
