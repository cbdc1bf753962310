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
	"github.com/smallbiznis/atelier/internal/sequence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	svc   invoicedomain.Service
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
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&sequence.DocumentSequence{},
	))

	node, err := snowflake.NewNode(1)
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
		FirstName:                 "Marie",
		LastName:                  "Tremblay",
		DefaultDiscountPercentage: decimal.RequireFromString(defaultDiscount),
	}
	require.NoError(t, e.db.Create(&client).Error)
	return client.ID
}

func serviceLine(e *testEnv, price string) billing.Line {
	return billing.ServiceLine(e.genID.Generate(), decimal.RequireFromString(price))
}

func TestCreateAssignsNumberAndTotals(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00"), serviceLine(env, "50.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-0001", inv.Number)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "150.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "7.50", inv.GSTAmount.StringFixed(2))
	assert.Equal(t, "14.96", inv.QSTAmount.StringFixed(2))
	assert.Equal(t, "172.46", inv.TotalAmount.StringFixed(2))
	assert.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)
}

func TestCreateWithExplicitDiscount(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	discount := decimal.RequireFromString("10")

	inv, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID:           clientID,
		DiscountPercentage: &discount,
		Lines:              []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "10.00", inv.DiscountAmount.StringFixed(2))
	assert.Equal(t, "4.50", inv.GSTAmount.StringFixed(2))
	assert.Equal(t, "8.98", inv.QSTAmount.StringFixed(2))
	assert.Equal(t, "103.48", inv.TotalAmount.StringFixed(2))
}

func TestDealerDiscountOverridesExplicit(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	discount := decimal.RequireFromString("15")

	inv, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID:           clientID,
		DiscountPercentage: &discount,
		IsDealerDiscount:   true,
		Lines:              []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "30.00", inv.DiscountAmount.StringFixed(2))
	assert.Equal(t, "70.00", inv.Subtotal.Sub(inv.DiscountAmount).StringFixed(2))
}

func TestClientDefaultAdoptedAndSticky(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "10")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", inv.DiscountPercentage.StringFixed(2))
	assert.Equal(t, "10.00", inv.DiscountAmount.StringFixed(2))

	// The adopted value is persisted; a changed client default must not
	// shift totals on recompute.
	err = env.db.Model(&clientdomain.Client{}).
		Where("id = ?", clientID).
		Update("default_discount_percentage", decimal.RequireFromString("25")).Error
	require.NoError(t, err)

	again, err := env.svc.Recompute(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.DiscountAmount.StringFixed(2), again.DiscountAmount.StringFixed(2))
	assert.Equal(t, inv.TotalAmount.StringFixed(2), again.TotalAmount.StringFixed(2))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "33.33"), serviceLine(env, "66.67")},
	})
	require.NoError(t, err)

	first, err := env.svc.Recompute(ctx, inv.ID)
	require.NoError(t, err)
	second, err := env.svc.Recompute(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Subtotal.StringFixed(2), second.Subtotal.StringFixed(2))
	assert.Equal(t, first.GSTAmount.StringFixed(2), second.GSTAmount.StringFixed(2))
	assert.Equal(t, first.QSTAmount.StringFixed(2), second.QSTAmount.StringFixed(2))
	assert.Equal(t, first.TotalAmount.StringFixed(2), second.TotalAmount.StringFixed(2))
}

func TestUnregisteredCompanySkipsTax(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, false)
	clientID := env.seedClient(t, "0")

	inv, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "200.00")},
	})
	require.NoError(t, err)

	assert.True(t, inv.GSTAmount.IsZero())
	assert.True(t, inv.QSTAmount.IsZero())
	assert.Equal(t, "200.00", inv.TotalAmount.StringFixed(2))
}

func TestItemMutationsRecompute(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)

	inv, err = env.svc.AddItem(ctx, inv.ID, serviceLine(env, "50.00"))
	require.NoError(t, err)
	assert.Equal(t, "150.00", inv.Subtotal.StringFixed(2))

	items, err := env.svc.Items(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	inv, err = env.svc.UpdateItemPrice(ctx, inv.ID, items[1].ID, decimal.RequireFromString("75.00"))
	require.NoError(t, err)
	assert.Equal(t, "175.00", inv.Subtotal.StringFixed(2))

	inv, err = env.svc.RemoveItem(ctx, inv.ID, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "75.00", inv.Subtotal.StringFixed(2))
}

func TestUpdateItemPriceUnknownItem(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)

	_, err = env.svc.UpdateItemPrice(ctx, inv.ID, env.genID.Generate(), decimal.RequireFromString("10.00"))
	assert.ErrorIs(t, err, invoicedomain.ErrItemNotFound)
}

func TestArchivedInvoiceIsFrozen(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)

	year := 2024
	err = env.db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", inv.ID).
		Update("archived_fiscal_year", year).Error
	require.NoError(t, err)

	_, err = env.svc.AddItem(ctx, inv.ID, serviceLine(env, "1.00"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceArchived)

	_, err = env.svc.SetDiscount(ctx, inv.ID, invoicedomain.SetDiscountRequest{IsDealerDiscount: true})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceArchived)
}

func TestCreateRejectsUnknownClient(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)

	_, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID: env.genID.Generate(),
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	assert.ErrorIs(t, err, clientdomain.ErrClientNotFound)
}

func TestCreateRejectsDueBeforeInvoiceDate(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")

	invoiceDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID:    clientID,
		InvoiceDate: invoiceDate,
		DueDate:     invoiceDate.AddDate(0, 0, -1),
		Lines:       []billing.Line{serviceLine(env, "100.00")},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceDue)
}

func TestMissingProfileComputesNoTax(t *testing.T) {
	env := newTestEnv(t)
	clientID := env.seedClient(t, "0")

	inv, err := env.svc.Create(context.Background(), invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "100.00")},
	})
	require.NoError(t, err)
	assert.True(t, inv.GSTAmount.IsZero())
	assert.Equal(t, "100.00", inv.TotalAmount.StringFixed(2))
}

func TestNumbersAreSequentialPerYear(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, true)
	clientID := env.seedClient(t, "0")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
			ClientID: clientID,
			Lines:    []billing.Line{serviceLine(env, "10.00")},
		})
		require.NoError(t, err)
		assert.Regexp(t, `^INV-2025-000\d$`, inv.Number)
	}

	env.clock.Set(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	inv, err := env.svc.Create(ctx, invoicedomain.CreateRequest{
		ClientID: clientID,
		Lines:    []billing.Line{serviceLine(env, "10.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001", inv.Number)
}
