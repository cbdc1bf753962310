package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	"github.com/smallbiznis/atelier/internal/clock"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	"github.com/smallbiznis/atelier/internal/metrics"
	"github.com/smallbiznis/atelier/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) archivedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("archive.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Run executes the archive procedure for one fiscal year in a single
// transaction. A dry run stops after aggregation; a real run writes the
// locked archive row and tags every aggregated document, or rolls back
// entirely.
func (s *Service) Run(ctx context.Context, req archivedomain.Request) (archivedomain.Summary, error) {
	var summary archivedomain.Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.loadProfile(ctx, tx)
		if err != nil {
			return err
		}

		start, end := profile.FiscalConfig().PeriodForYear(req.Year)
		if err := s.ensureElapsed(end); err != nil {
			return err
		}
		if err := s.ensureNotArchived(ctx, tx, req.Year); err != nil {
			return err
		}

		invoices, expenses, err := s.collect(ctx, tx, start, end)
		if err != nil {
			return err
		}

		summary = aggregate(req, start, end, invoices, expenses)
		if req.DryRun {
			return nil
		}

		archive := archivedomain.FiscalYearArchive{
			ID:            s.genID.Generate(),
			FiscalYear:    req.Year,
			PeriodStart:   start,
			PeriodEnd:     end,
			TotalInvoices: summary.InvoiceCount,
			TotalExpenses: summary.ExpenseCount,
			TotalRevenue:  summary.TotalRevenue,
			TotalSpent:    summary.TotalSpent,
			GSTCollected:  summary.GSTCollected,
			QSTCollected:  summary.QSTCollected,
			GSTPaid:       summary.GSTPaid,
			QSTPaid:       summary.QSTPaid,
			IsLocked:      true,
			ArchivedBy:    req.Actor.Name,
			Notes:         req.Notes,
			Metadata: datatypes.JSONMap{
				"invoice_count": summary.InvoiceCount,
				"expense_count": summary.ExpenseCount,
			},
			CreatedAt: s.clock.Now(),
			UpdatedAt: s.clock.Now(),
		}
		if err := tx.WithContext(ctx).Create(&archive).Error; err != nil {
			// A concurrent run for the same year loses on the unique
			// year index.
			if db.IsDuplicateKeyErr(err) {
				return archivedomain.ErrAlreadyArchived
			}
			return err
		}

		if err := s.tag(ctx, tx, req.Year, invoices, expenses); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordArchiveRun(metrics.ArchiveResultError)
		return archivedomain.Summary{}, err
	}

	if req.DryRun {
		s.metrics.RecordArchiveRun(metrics.ArchiveResultDryRun)
	} else {
		s.metrics.RecordArchiveRun(metrics.ArchiveResultOK)
		s.log.Info("fiscal year archived",
			zap.Int("fiscal_year", summary.FiscalYear),
			zap.Int("invoices", summary.InvoiceCount),
			zap.Int("expenses", summary.ExpenseCount),
			zap.String("net_profit", summary.NetProfit.String()),
			zap.String("archived_by", req.Actor.Name),
		)
	}
	return summary, nil
}

func (s *Service) Get(ctx context.Context, year int) (archivedomain.FiscalYearArchive, error) {
	return s.loadArchive(ctx, s.db, year)
}

func (s *Service) List(ctx context.Context) ([]archivedomain.FiscalYearArchive, error) {
	var archives []archivedomain.FiscalYearArchive
	err := s.db.WithContext(ctx).Order("fiscal_year DESC").Find(&archives).Error
	return archives, err
}

func (s *Service) Unlock(ctx context.Context, year int, actor archivedomain.Actor) (archivedomain.FiscalYearArchive, error) {
	if !actor.Superuser {
		return archivedomain.FiscalYearArchive{}, archivedomain.ErrNotPrivileged
	}
	archive, err := s.setLock(ctx, year, false)
	if err != nil {
		return archivedomain.FiscalYearArchive{}, err
	}
	s.log.Warn("archive unlocked",
		zap.Int("fiscal_year", year),
		zap.String("actor", actor.Name),
	)
	return archive, nil
}

func (s *Service) Lock(ctx context.Context, year int, actor archivedomain.Actor) (archivedomain.FiscalYearArchive, error) {
	return s.setLock(ctx, year, true)
}

func (s *Service) Update(ctx context.Context, year int, req archivedomain.UpdateRequest) (archivedomain.FiscalYearArchive, error) {
	var updated archivedomain.FiscalYearArchive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		archive, err := s.loadArchive(ctx, tx, year)
		if err != nil {
			return err
		}
		if archive.IsLocked {
			return archivedomain.ErrArchiveLocked
		}
		archive.Notes = req.Notes
		archive.UpdatedAt = s.clock.Now()
		if err := tx.WithContext(ctx).Save(&archive).Error; err != nil {
			return err
		}
		updated = archive
		return nil
	})
	if err != nil {
		return archivedomain.FiscalYearArchive{}, err
	}
	return updated, nil
}

// Delete removes an unlocked archive and untags its documents. The
// untag restores the data to the pre-archive state so a corrected run
// can aggregate again.
func (s *Service) Delete(ctx context.Context, year int, actor archivedomain.Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		archive, err := s.loadArchive(ctx, tx, year)
		if err != nil {
			return err
		}
		if archive.IsLocked {
			return archivedomain.ErrArchiveLocked
		}

		err = tx.WithContext(ctx).
			Model(&invoicedomain.Invoice{}).
			Where("archived_fiscal_year = ?", year).
			Update("archived_fiscal_year", nil).Error
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).
			Model(&expensedomain.Expense{}).
			Where("archived_fiscal_year = ?", year).
			Update("archived_fiscal_year", nil).Error
		if err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Delete(&archive).Error; err != nil {
			return err
		}
		s.log.Warn("archive deleted",
			zap.Int("fiscal_year", year),
			zap.String("actor", actor.Name),
		)
		return nil
	})
}

func (s *Service) loadProfile(ctx context.Context, tx *gorm.DB) (companydomain.Profile, error) {
	var profile companydomain.Profile
	err := tx.WithContext(ctx).Order("created_at ASC").First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return companydomain.Profile{}, companydomain.ErrNoProfileConfigured
		}
		return companydomain.Profile{}, err
	}
	return profile, nil
}

// ensureElapsed requires the period end to be strictly in the past. A
// year still in progress cannot be archived.
func (s *Service) ensureElapsed(periodEnd time.Time) error {
	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !periodEnd.Before(today) {
		return archivedomain.ErrFiscalYearNotElapsed
	}
	return nil
}

func (s *Service) ensureNotArchived(ctx context.Context, tx *gorm.DB, year int) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&archivedomain.FiscalYearArchive{}).
		Where("fiscal_year = ?", year).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return archivedomain.ErrAlreadyArchived
	}
	return nil
}

// collect selects the not-yet-archived documents dated inside the
// period. Already tagged rows stay out, which keeps a retried run from
// counting anything twice.
func (s *Service) collect(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]invoicedomain.Invoice, []expensedomain.Expense, error) {
	endExclusive := end.AddDate(0, 0, 1)

	var invoices []invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("invoice_date >= ? AND invoice_date < ? AND archived_fiscal_year IS NULL", start, endExclusive).
		Find(&invoices).Error
	if err != nil {
		return nil, nil, err
	}

	var expenses []expensedomain.Expense
	err = tx.WithContext(ctx).
		Where("expense_date >= ? AND expense_date < ? AND archived_fiscal_year IS NULL", start, endExclusive).
		Find(&expenses).Error
	if err != nil {
		return nil, nil, err
	}
	return invoices, expenses, nil
}

func (s *Service) tag(ctx context.Context, tx *gorm.DB, year int, invoices []invoicedomain.Invoice, expenses []expensedomain.Expense) error {
	now := s.clock.Now()
	for _, inv := range invoices {
		err := tx.WithContext(ctx).
			Model(&invoicedomain.Invoice{}).
			Where("id = ?", inv.ID).
			Updates(map[string]any{"archived_fiscal_year": year, "updated_at": now}).Error
		if err != nil {
			return err
		}
	}
	for _, exp := range expenses {
		err := tx.WithContext(ctx).
			Model(&expensedomain.Expense{}).
			Where("id = ?", exp.ID).
			Updates(map[string]any{"archived_fiscal_year": year, "updated_at": now}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) setLock(ctx context.Context, year int, locked bool) (archivedomain.FiscalYearArchive, error) {
	var updated archivedomain.FiscalYearArchive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		archive, err := s.loadArchive(ctx, tx, year)
		if err != nil {
			return err
		}
		archive.IsLocked = locked
		archive.UpdatedAt = s.clock.Now()
		if err := tx.WithContext(ctx).Save(&archive).Error; err != nil {
			return err
		}
		updated = archive
		return nil
	})
	if err != nil {
		return archivedomain.FiscalYearArchive{}, err
	}
	return updated, nil
}

func (s *Service) loadArchive(ctx context.Context, tx *gorm.DB, year int) (archivedomain.FiscalYearArchive, error) {
	var archive archivedomain.FiscalYearArchive
	err := tx.WithContext(ctx).
		Where("fiscal_year = ?", year).
		First(&archive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return archivedomain.FiscalYearArchive{}, archivedomain.ErrArchiveNotFound
		}
		return archivedomain.FiscalYearArchive{}, err
	}
	return archive, nil
}

func aggregate(req archivedomain.Request, start, end time.Time, invoices []invoicedomain.Invoice, expenses []expensedomain.Expense) archivedomain.Summary {
	summary := archivedomain.Summary{
		FiscalYear:   req.Year,
		PeriodStart:  start,
		PeriodEnd:    end,
		DryRun:       req.DryRun,
		InvoiceCount: len(invoices),
		ExpenseCount: len(expenses),
		TotalRevenue: decimal.Zero,
		TotalSpent:   decimal.Zero,
		GSTCollected: decimal.Zero,
		QSTCollected: decimal.Zero,
		GSTPaid:      decimal.Zero,
		QSTPaid:      decimal.Zero,
	}
	for _, inv := range invoices {
		summary.TotalRevenue = summary.TotalRevenue.Add(inv.TotalAmount)
		summary.GSTCollected = summary.GSTCollected.Add(inv.GSTAmount)
		summary.QSTCollected = summary.QSTCollected.Add(inv.QSTAmount)
	}
	for _, exp := range expenses {
		summary.TotalSpent = summary.TotalSpent.Add(exp.Amount)
		summary.GSTPaid = summary.GSTPaid.Add(exp.GSTAmount)
		summary.QSTPaid = summary.QSTPaid.Add(exp.QSTAmount)
	}
	summary.NetProfit = summary.TotalRevenue.Sub(summary.TotalSpent)
	summary.GSTNet = summary.GSTCollected.Sub(summary.GSTPaid)
	summary.QSTNet = summary.QSTCollected.Sub(summary.QSTPaid)
	return summary
}
