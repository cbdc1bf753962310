package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Actor identifies who requested an archive mutation. Unlocking and
// editing a locked archive is reserved to superusers.
type Actor struct {
	Name      string
	Superuser bool
}

type Request struct {
	Year int
	// DryRun aggregates and reports without writing anything.
	DryRun bool
	Actor  Actor
	Notes  *string
}

// Summary is what an archive run reports, dry or real.
type Summary struct {
	FiscalYear  int
	PeriodStart time.Time
	PeriodEnd   time.Time
	DryRun      bool

	InvoiceCount int
	ExpenseCount int

	TotalRevenue decimal.Decimal
	TotalSpent   decimal.Decimal
	NetProfit    decimal.Decimal

	GSTCollected decimal.Decimal
	QSTCollected decimal.Decimal
	GSTPaid      decimal.Decimal
	QSTPaid      decimal.Decimal
	GSTNet       decimal.Decimal
	QSTNet       decimal.Decimal
}

type UpdateRequest struct {
	Actor Actor
	Notes *string
}

type Service interface {
	// Run archives the requested fiscal year, or reports what it would
	// do when req.DryRun is set. Preconditions, in order: a company
	// profile exists, the year has fully elapsed, and no archive row
	// exists yet.
	Run(ctx context.Context, req Request) (Summary, error)

	Get(ctx context.Context, year int) (FiscalYearArchive, error)
	List(ctx context.Context) ([]FiscalYearArchive, error)

	// Unlock clears the lock for a superuser actor so the archive can
	// be corrected. Lock restores protection.
	Unlock(ctx context.Context, year int, actor Actor) (FiscalYearArchive, error)
	Lock(ctx context.Context, year int, actor Actor) (FiscalYearArchive, error)

	// Update edits the notes of an unlocked archive. Refused while
	// locked, for any actor.
	Update(ctx context.Context, year int, req UpdateRequest) (FiscalYearArchive, error)

	// Delete removes an unlocked archive and untags its documents so a
	// later run can re-aggregate them. Refused while locked.
	Delete(ctx context.Context, year int, actor Actor) error
}
