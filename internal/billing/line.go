// Package billing holds the line-item shape shared by invoices and
// quotes, the two variants of one billing document.
package billing

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// LineKind tags which reference a line carries.
type LineKind string

const (
	LineKindService   LineKind = "SERVICE"
	LineKindInventory LineKind = "INVENTORY"
)

var (
	ErrInvalidLineKind        = errors.New("invalid_line_kind")
	ErrMissingLineReference   = errors.New("missing_line_reference")
	ErrAmbiguousLineReference = errors.New("ambiguous_line_reference")
	ErrInvalidLinePrice       = errors.New("invalid_line_price")
)

// Line is one unit of work or material on a document: either a service
// or an inventory item, never both, selected by Kind. Construct with
// ServiceLine or InventoryLine so the invariant holds by construction.
type Line struct {
	Kind            LineKind      `gorm:"type:text;not null"`
	ServiceID       *snowflake.ID `gorm:"index"`
	InventoryItemID *snowflake.ID `gorm:"index"`

	Description *string         `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
}

func ServiceLine(serviceID snowflake.ID, price decimal.Decimal) Line {
	id := serviceID
	return Line{Kind: LineKindService, ServiceID: &id, Price: price}
}

func InventoryLine(itemID snowflake.ID, price decimal.Decimal) Line {
	id := itemID
	return Line{Kind: LineKindInventory, InventoryItemID: &id, Price: price}
}

func (l Line) Validate() error {
	switch l.Kind {
	case LineKindService:
		if l.ServiceID == nil {
			return ErrMissingLineReference
		}
		if l.InventoryItemID != nil {
			return ErrAmbiguousLineReference
		}
	case LineKindInventory:
		if l.InventoryItemID == nil {
			return ErrMissingLineReference
		}
		if l.ServiceID != nil {
			return ErrAmbiguousLineReference
		}
	default:
		return ErrInvalidLineKind
	}
	if !l.Price.IsPositive() {
		return ErrInvalidLinePrice
	}
	return nil
}

// TotalPrice is the line's contribution to the subtotal. One unit per
// line in the current model, so it equals Price.
func (l Line) TotalPrice() decimal.Decimal { return l.Price }
