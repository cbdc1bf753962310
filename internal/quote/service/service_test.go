package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/smallbiznis/atelier/internal/billing"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
	"github.com/smallbiznis/atelier/internal/clock"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
	"github.com/smallbiznis/atelier/internal/sequence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	svc   quotedomain.Service
	clock *clock.FakeClock
	genID *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.AutoMigrate(
		&companydomain.Profile{},
		&clientdomain.Client{},
		&quotedomain.Quote{},
		&quotedomain.QuoteItem{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&sequence.DocumentSequence{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Allocator: sequence.NewAllocator(zap.NewNop()),
	})
	return &testEnv{db: conn, svc: svc, clock: fake, genID: node}
}

func (e *testEnv) seedProfile(t *testing.T, registered bool) {
	t.Helper()
	profile := companydomain.Profile{
		ID:                 e.genID.Generate(),
		Name:               "Atelier Mecanique",
		IsTaxRegistered:    registered,
		FiscalYearEndMonth: 12,
		FiscalYearEndDay:   31,
	}
	require.NoError(t, e.db.Create(&profile).Error)
}

func (e *testEnv) seedClient(t *testing.T, defaultDiscount string) snowflake.ID {
	t.Helper()
	client := clientdomain.Client{
		ID:                        e.genID.Generate(),
		FirstName:                 "Jean",
		LastName:                  "Gagnon",
		DefaultDiscountPercentage: decimal.RequireFromString(defaultDiscount),
	}
	require.NoError(t, e.db.Create(&client).Error)
	return client.ID
}

func serviceLine(e *testEnv, price string) billing.Line {
	return billing.ServiceLine(e.genID.Generate(), decimal.RequireFromString(price))
}

func (e *testEnv) createQuote(t *testing.T, clientID snowflake.ID, prices ...string) quotedomain.Quote {
	t.Helper()
	lines := make([]billing.Line, 0, len(prices))
	for _, p := range prices {
		lines = append(lines, serviceLine(e, p))
	}
	quote, err := e.svc.Create(context.Background(), quotedomain.CreateRequest{
		ClientID: clientID,
		Lines:    lines,
	})
	require.NoError(t, err)
	return quote
}

func TestCreateAssignsQuoteNumber(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")

	quote := env.createQuote(t, clientID, "100.00")
	assert.Equal(t, "QUO-2025-0001", quote.Number)
	assert.Equal(t, quotedomain.QuoteStatusDraft, quote.Status)
	assert.Regexp(t, sequence.NumberPattern, quote.Number)
}

func TestQuoteTaxedDespiteUnregisteredCompany(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, false)
	clientID := env.seedClient(t, "0")

	// Estimates always show taxed totals; the registration gate applies
	// to invoices only.
	quote := env.createQuote(t, clientID, "100.00")
	assert.Equal(t, "5.00", quote.GSTAmount.StringFixed(2))
	assert.Equal(t, "9.98", quote.QSTAmount.StringFixed(2))
	assert.Equal(t, "114.98", quote.TotalAmount.StringFixed(2))
}

func TestUpdateStatusRefusesConverted(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	quote := env.createQuote(t, clientID, "100.00")

	_, err := env.svc.UpdateStatus(context.Background(), quote.ID, quotedomain.QuoteStatusConverted)
	assert.ErrorIs(t, err, quotedomain.ErrInvalidStatus)
}

func TestConvertPreservesLinesAndDiscount(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	discount := decimal.RequireFromString("10")
	quote, err := env.svc.Create(ctx, quotedomain.CreateRequest{
		ClientID:           clientID,
		DiscountPercentage: &discount,
		Lines:              []billing.Line{serviceLine(env, "60.00"), serviceLine(env, "40.00")},
	})
	require.NoError(t, err)

	quote, err = env.svc.UpdateStatus(ctx, quote.ID, quotedomain.QuoteStatusAccepted)
	require.NoError(t, err)

	inv, err := env.svc.Convert(ctx, quote.ID)
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-0001", inv.Number)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	require.NotNil(t, inv.SourceQuoteID)
	assert.Equal(t, quote.ID, *inv.SourceQuoteID)

	// Conservation: subtotal and effective discount carry over exactly.
	assert.Equal(t, quote.Subtotal.StringFixed(2), inv.Subtotal.StringFixed(2))
	assert.Equal(t, quote.DiscountPercentage.StringFixed(2), inv.DiscountPercentage.StringFixed(2))
	assert.Equal(t, quote.TotalAmount.StringFixed(2), inv.TotalAmount.StringFixed(2))

	var items []invoicedomain.InvoiceItem
	require.NoError(t, env.db.Where("invoice_id = ?", inv.ID).Find(&items).Error)
	assert.Len(t, items, 2)

	converted, err := env.svc.Get(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.QuoteStatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedInvoiceID)
	assert.Equal(t, inv.ID, *converted.ConvertedInvoiceID)
}

func TestConvertTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	quote := env.createQuote(t, clientID, "100.00")
	_, err := env.svc.UpdateStatus(ctx, quote.ID, quotedomain.QuoteStatusSent)
	require.NoError(t, err)

	_, err = env.svc.Convert(ctx, quote.ID)
	require.NoError(t, err)

	_, err = env.svc.Convert(ctx, quote.ID)
	assert.ErrorIs(t, err, quotedomain.ErrAlreadyConverted)
}

func TestConvertRequiresSentOrAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	quote := env.createQuote(t, clientID, "100.00")
	_, err := env.svc.Convert(ctx, quote.ID)
	assert.ErrorIs(t, err, quotedomain.ErrInvalidStateForConversion)

	_, err = env.svc.UpdateStatus(ctx, quote.ID, quotedomain.QuoteStatusDeclined)
	require.NoError(t, err)
	_, err = env.svc.Convert(ctx, quote.ID)
	assert.ErrorIs(t, err, quotedomain.ErrInvalidStateForConversion)
}

func TestConvertedQuoteIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	quote := env.createQuote(t, clientID, "100.00")
	_, err := env.svc.UpdateStatus(ctx, quote.ID, quotedomain.QuoteStatusAccepted)
	require.NoError(t, err)
	_, err = env.svc.Convert(ctx, quote.ID)
	require.NoError(t, err)

	_, err = env.svc.AddItem(ctx, quote.ID, serviceLine(env, "5.00"))
	assert.ErrorIs(t, err, quotedomain.ErrConvertedQuoteImmutable)

	_, err = env.svc.SetDiscount(ctx, quote.ID, quotedomain.SetDiscountRequest{IsDealerDiscount: true})
	assert.ErrorIs(t, err, quotedomain.ErrConvertedQuoteImmutable)
}

func TestConvertAppliesInvoiceTaxPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, false)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	quote := env.createQuote(t, clientID, "100.00")
	require.Equal(t, "114.98", quote.TotalAmount.StringFixed(2))

	_, err := env.svc.UpdateStatus(ctx, quote.ID, quotedomain.QuoteStatusAccepted)
	require.NoError(t, err)
	inv, err := env.svc.Convert(ctx, quote.ID)
	require.NoError(t, err)

	// Unregistered company: the invoice drops the taxes the quote showed.
	assert.True(t, inv.GSTAmount.IsZero())
	assert.True(t, inv.QSTAmount.IsZero())
	assert.Equal(t, "100.00", inv.TotalAmount.StringFixed(2))
}
