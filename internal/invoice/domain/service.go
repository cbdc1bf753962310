package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/atelier/internal/billing"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrItemNotFound      = errors.New("invoice_item_not_found")
	ErrInvalidStatus     = errors.New("invalid_invoice_status")
	ErrInvalidDiscount   = errors.New("invalid_discount_percentage")
	ErrInvoiceArchived   = errors.New("invoice_archived")
	ErrInvalidInvoiceDue = errors.New("invalid_due_date")
)

type CreateRequest struct {
	ClientID    snowflake.ID
	InvoiceDate time.Time
	DueDate     time.Time
	// DiscountPercentage, when nil, lets the client default apply.
	DiscountPercentage *decimal.Decimal
	IsDealerDiscount   bool
	Notes              *string
	Lines              []billing.Line
}

type SetDiscountRequest struct {
	// DiscountPercentage nil clears the explicit discount, letting the
	// client default win again on the next recompute.
	DiscountPercentage *decimal.Decimal
	IsDealerDiscount   bool
}

type ListRequest struct {
	Status   *InvoiceStatus
	ClientID *snowflake.ID
	DateFrom *time.Time
	DateTo   *time.Time
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (Invoice, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, error)
	Items(ctx context.Context, invoiceID snowflake.ID) ([]InvoiceItem, error)

	AddItem(ctx context.Context, invoiceID snowflake.ID, line billing.Line) (Invoice, error)
	UpdateItemPrice(ctx context.Context, invoiceID, itemID snowflake.ID, price decimal.Decimal) (Invoice, error)
	RemoveItem(ctx context.Context, invoiceID, itemID snowflake.ID) (Invoice, error)
	SetDiscount(ctx context.Context, invoiceID snowflake.ID, req SetDiscountRequest) (Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID snowflake.ID, status InvoiceStatus) (Invoice, error)

	// Recompute re-derives all monetary fields from the current line
	// items. Idempotent: with unchanged items and discount settings the
	// stored values do not change.
	Recompute(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)
}
