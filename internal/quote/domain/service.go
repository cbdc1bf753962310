package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/atelier/internal/billing"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
)

var (
	ErrQuoteNotFound             = errors.New("quote_not_found")
	ErrItemNotFound              = errors.New("quote_item_not_found")
	ErrInvalidStatus             = errors.New("invalid_quote_status")
	ErrInvalidDiscount           = errors.New("invalid_discount_percentage")
	ErrAlreadyConverted          = errors.New("quote_already_converted")
	ErrInvalidStateForConversion = errors.New("invalid_state_for_conversion")
	ErrConvertedQuoteImmutable   = errors.New("converted_quote_immutable")
)

type CreateRequest struct {
	ClientID   snowflake.ID
	QuoteDate  time.Time
	ValidUntil *time.Time
	// DiscountPercentage, when nil, lets the client default apply.
	DiscountPercentage *decimal.Decimal
	IsDealerDiscount   bool
	Notes              *string
	Lines              []billing.Line
}

type SetDiscountRequest struct {
	DiscountPercentage *decimal.Decimal
	IsDealerDiscount   bool
}

type ListRequest struct {
	Status   *QuoteStatus
	ClientID *snowflake.ID
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Quote, error)
	Get(ctx context.Context, id snowflake.ID) (Quote, error)
	List(ctx context.Context, req ListRequest) ([]Quote, error)
	Items(ctx context.Context, quoteID snowflake.ID) ([]QuoteItem, error)

	AddItem(ctx context.Context, quoteID snowflake.ID, line billing.Line) (Quote, error)
	UpdateItemPrice(ctx context.Context, quoteID, itemID snowflake.ID, price decimal.Decimal) (Quote, error)
	RemoveItem(ctx context.Context, quoteID, itemID snowflake.ID) (Quote, error)
	SetDiscount(ctx context.Context, quoteID snowflake.ID, req SetDiscountRequest) (Quote, error)
	UpdateStatus(ctx context.Context, quoteID snowflake.ID, status QuoteStatus) (Quote, error)
	Recompute(ctx context.Context, quoteID snowflake.ID) (Quote, error)

	// Convert turns a sent or accepted quote into a draft invoice.
	// Line items and discount settings are copied verbatim; the quote is
	// marked converted and linked to the invoice, one to one, forever.
	Convert(ctx context.Context, quoteID snowflake.ID) (invoicedomain.Invoice, error)
}
