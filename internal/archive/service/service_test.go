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
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	"github.com/smallbiznis/atelier/internal/clock"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	operator  = archivedomain.Actor{Name: "claudette"}
	superuser = archivedomain.Actor{Name: "owner", Superuser: true}
)

type testEnv struct {
	db    *gorm.DB
	svc   archivedomain.Service
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
		&invoicedomain.Invoice{},
		&expensedomain.Expense{},
		&archivedomain.FiscalYearArchive{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return &testEnv{db: conn, svc: svc, clock: fake, genID: node}
}

func (e *testEnv) seedProfile(t *testing.T) {
	t.Helper()
	profile := companydomain.Profile{
		ID:                 e.genID.Generate(),
		Name:               "Atelier Mecanique",
		IsTaxRegistered:    true,
		FiscalYearEndMonth: 12,
		FiscalYearEndDay:   31,
	}
	require.NoError(t, e.db.Create(&profile).Error)
}

func (e *testEnv) seedInvoice(t *testing.T, date time.Time, total, gst, qst string) invoicedomain.Invoice {
	t.Helper()
	inv := invoicedomain.Invoice{
		ID:          e.genID.Generate(),
		Number:      "INV-" + date.Format("2006") + "-" + e.genID.Generate().String(),
		ClientID:    e.genID.Generate(),
		InvoiceDate: date,
		DueDate:     date.AddDate(0, 0, 30),
		Status:      invoicedomain.InvoiceStatusPaid,
		TotalAmount: decimal.RequireFromString(total),
		GSTAmount:   decimal.RequireFromString(gst),
		QSTAmount:   decimal.RequireFromString(qst),
	}
	require.NoError(t, e.db.Create(&inv).Error)
	return inv
}

func (e *testEnv) seedExpense(t *testing.T, date time.Time, amount, gst, qst string) expensedomain.Expense {
	t.Helper()
	exp := expensedomain.Expense{
		ID:          e.genID.Generate(),
		Description: "parts",
		Amount:      decimal.RequireFromString(amount),
		ExpenseDate: date,
		Category:    expensedomain.CategoryMaterials,
		GSTAmount:   decimal.RequireFromString(gst),
		QSTAmount:   decimal.RequireFromString(qst),
	}
	require.NoError(t, e.db.Create(&exp).Error)
	return exp
}

func TestRunArchivesAndTags(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t)
	ctx := context.Background()

	in := env.seedInvoice(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "1000.00", "50.00", "99.75")
	env.seedInvoice(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), "500.00", "25.00", "49.88")
	out := env.seedInvoice(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "999.00", "0", "0")
	env.seedExpense(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), "400.00", "20.00", "39.90")

	summary, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	require.NoError(t, err)

	assert.Equal(t, 2024, summary.FiscalYear)
	assert.Equal(t, 2, summary.InvoiceCount)
	assert.Equal(t, 1, summary.ExpenseCount)
	assert.Equal(t, "1500.00", summary.TotalRevenue.StringFixed(2))
	assert.Equal(t, "400.00", summary.TotalSpent.StringFixed(2))
	assert.Equal(t, "1100.00", summary.NetProfit.StringFixed(2))
	assert.Equal(t, "55.00", summary.GSTNet.StringFixed(2))
	assert.Equal(t, "109.73", summary.QSTNet.StringFixed(2))

	archive, err := env.svc.Get(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, archive.IsLocked)
	assert.Equal(t, "claudette", archive.ArchivedBy)
	assert.Equal(t, "1100.00", archive.NetProfit().StringFixed(2))

	var tagged invoicedomain.Invoice
	require.NoError(t, env.db.First(&tagged, "id = ?", in.ID).Error)
	require.NotNil(t, tagged.ArchivedFiscalYear)
	assert.Equal(t, 2024, *tagged.ArchivedFiscalYear)

	var untouched invoicedomain.Invoice
	require.NoError(t, env.db.First(&untouched, "id = ?", out.ID).Error)
	assert.Nil(t, untouched.ArchivedFiscalYear)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t)
	ctx := context.Background()

	inv := env.seedInvoice(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "100.00", "5.00", "9.98")

	summary, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, DryRun: true, Actor: operator})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, "100.00", summary.TotalRevenue.StringFixed(2))

	_, err = env.svc.Get(ctx, 2024)
	assert.ErrorIs(t, err, archivedomain.ErrArchiveNotFound)

	var reread invoicedomain.Invoice
	require.NoError(t, env.db.First(&reread, "id = ?", inv.ID).Error)
	assert.Nil(t, reread.ArchivedFiscalYear)
}

func TestRunPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	assert.ErrorIs(t, err, companydomain.ErrNoProfileConfigured)

	env.seedProfile(t)
	_, err = env.svc.Run(ctx, archivedomain.Request{Year: 2025, Actor: operator})
	assert.ErrorIs(t, err, archivedomain.ErrFiscalYearNotElapsed)

	_, err = env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	require.NoError(t, err)
	_, err = env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	assert.ErrorIs(t, err, archivedomain.ErrAlreadyArchived)
}

func TestTaggedDocumentsExcludedFromRerun(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t)
	ctx := context.Background()

	inv := env.seedInvoice(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "100.00", "0", "0")
	year := 2023
	require.NoError(t, env.db.Model(&inv).Update("archived_fiscal_year", year).Error)

	summary, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, DryRun: true, Actor: operator})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.InvoiceCount)
	assert.True(t, summary.TotalRevenue.IsZero())
}

func TestLockEnforcement(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t)
	ctx := context.Background()

	env.seedInvoice(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "100.00", "0", "0")
	_, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	require.NoError(t, err)

	notes := "corrected"
	_, err = env.svc.Update(ctx, 2024, archivedomain.UpdateRequest{Actor: superuser, Notes: &notes})
	assert.ErrorIs(t, err, archivedomain.ErrArchiveLocked)

	err = env.svc.Delete(ctx, 2024, superuser)
	assert.ErrorIs(t, err, archivedomain.ErrArchiveLocked)

	_, err = env.svc.Unlock(ctx, 2024, operator)
	assert.ErrorIs(t, err, archivedomain.ErrNotPrivileged)

	unlocked, err := env.svc.Unlock(ctx, 2024, superuser)
	require.NoError(t, err)
	assert.False(t, unlocked.IsLocked)

	updated, err := env.svc.Update(ctx, 2024, archivedomain.UpdateRequest{Actor: superuser, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "corrected", *updated.Notes)

	relocked, err := env.svc.Lock(ctx, 2024, superuser)
	require.NoError(t, err)
	assert.True(t, relocked.IsLocked)
}

func TestDeleteUntagsDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t)
	ctx := context.Background()

	inv := env.seedInvoice(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "100.00", "0", "0")
	_, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	require.NoError(t, err)

	_, err = env.svc.Unlock(ctx, 2024, superuser)
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, 2024, superuser))

	var reread invoicedomain.Invoice
	require.NoError(t, env.db.First(&reread, "id = ?", inv.ID).Error)
	assert.Nil(t, reread.ArchivedFiscalYear)

	// The year can be archived again after deletion.
	summary, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, Actor: operator})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InvoiceCount)
}

func TestOffsetFiscalYearBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	profile := companydomain.Profile{
		ID:                 env.genID.Generate(),
		Name:               "Atelier Mecanique",
		FiscalYearEndMonth: 3,
		FiscalYearEndDay:   31,
	}
	require.NoError(t, env.db.Create(&profile).Error)

	// FY2024 runs Apr 1 2023 through Mar 31 2024.
	env.seedInvoice(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), "10.00", "0", "0")
	env.seedInvoice(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), "20.00", "0", "0")
	env.seedInvoice(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "40.00", "0", "0")

	summary, err := env.svc.Run(ctx, archivedomain.Request{Year: 2024, DryRun: true, Actor: operator})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.InvoiceCount)
	assert.Equal(t, "30.00", summary.TotalRevenue.StringFixed(2))
}
