// Package domain holds the client model. Client CRUD lives in the admin
// layer; the billing engines only read the default discount.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrClientNotFound         = errors.New("client_not_found")
	ErrInvalidDefaultDiscount = errors.New("invalid_default_discount")
)

type Client struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	FirstName string       `gorm:"type:text;not null"`
	LastName  string       `gorm:"type:text;not null"`
	Email     *string      `gorm:"type:text"`
	Phone     string       `gorm:"type:text"`

	// DefaultDiscountPercentage is adopted onto new billing documents
	// that carry no explicit discount.
	DefaultDiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Client) TableName() string { return "clients" }

func (c Client) FullName() string {
	return c.FirstName + " " + c.LastName
}
