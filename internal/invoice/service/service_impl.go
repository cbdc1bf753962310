package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/atelier/internal/billing"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
	"github.com/smallbiznis/atelier/internal/clock"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	"github.com/smallbiznis/atelier/internal/metrics"
	"github.com/smallbiznis/atelier/internal/sequence"
	"github.com/smallbiznis/atelier/internal/tax"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// invoiceTaxPolicy gates GST/QST on company tax registration. Quotes use
// the unconditional policy; see the quote service.
const invoiceTaxPolicy = tax.PolicyRegisteredOnly

const defaultDueDays = 30

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Allocator *sequence.Allocator
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	alloc   *sequence.Allocator
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		alloc:   p.Allocator,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (invoicedomain.Invoice, error) {
	if req.DiscountPercentage != nil && !tax.ValidDiscountPercentage(*req.DiscountPercentage) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDiscount
	}
	for _, line := range req.Lines {
		if err := line.Validate(); err != nil {
			return invoicedomain.Invoice{}, err
		}
	}

	now := s.clock.Now()
	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = now
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = invoiceDate.AddDate(0, 0, defaultDueDays)
	}
	if dueDate.Before(invoiceDate) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceDue
	}

	var created invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClient(ctx, tx, req.ClientID); err != nil {
			return err
		}

		number, err := s.alloc.Next(ctx, tx, sequence.PrefixInvoice, now.Year())
		if err != nil {
			return err
		}

		invoice := invoicedomain.Invoice{
			ID:               s.genID.Generate(),
			Number:           number,
			ClientID:         req.ClientID,
			InvoiceDate:      invoiceDate,
			DueDate:          dueDate,
			Status:           invoicedomain.InvoiceStatusDraft,
			IsDealerDiscount: req.IsDealerDiscount,
			Notes:            req.Notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if req.DiscountPercentage != nil {
			invoice.DiscountPercentage = *req.DiscountPercentage
		}
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}

		for _, line := range req.Lines {
			item := invoicedomain.InvoiceItem{
				ID:        s.genID.Generate(),
				InvoiceID: invoice.ID,
				Line:      line,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
				return err
			}
		}

		if err := s.recomputeTx(ctx, tx, &invoice); err != nil {
			return err
		}
		created = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("number", created.Number),
		zap.String("client_id", created.ClientID.String()),
		zap.String("total", created.TotalAmount.String()),
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	return s.loadInvoice(ctx, s.db, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where(&invoicedomain.Invoice{Number: number}).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	stmt := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}
	if req.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *req.ClientID)
	}
	if req.DateFrom != nil {
		stmt = stmt.Where("invoice_date >= ?", *req.DateFrom)
	}
	if req.DateTo != nil {
		stmt = stmt.Where("invoice_date <= ?", *req.DateTo)
	}

	var invoices []invoicedomain.Invoice
	err := stmt.Order("invoice_date DESC, number DESC").Find(&invoices).Error
	return invoices, err
}

func (s *Service) Items(ctx context.Context, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	if _, err := s.loadInvoice(ctx, s.db, invoiceID); err != nil {
		return nil, err
	}
	var items []invoicedomain.InvoiceItem
	err := s.db.WithContext(ctx).
		Where(&invoicedomain.InvoiceItem{InvoiceID: invoiceID}).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (s *Service) AddItem(ctx context.Context, invoiceID snowflake.ID, line billing.Line) (invoicedomain.Invoice, error) {
	if err := line.Validate(); err != nil {
		return invoicedomain.Invoice{}, err
	}

	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		now := s.clock.Now()
		item := invoicedomain.InvoiceItem{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			Line:      line,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&item).Error
	})
}

func (s *Service) UpdateItemPrice(ctx context.Context, invoiceID, itemID snowflake.ID, price decimal.Decimal) (invoicedomain.Invoice, error) {
	if !price.IsPositive() {
		return invoicedomain.Invoice{}, billing.ErrInvalidLinePrice
	}

	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		result := tx.WithContext(ctx).
			Model(&invoicedomain.InvoiceItem{}).
			Where("id = ? AND invoice_id = ?", itemID, invoice.ID).
			Updates(map[string]any{"price": price, "updated_at": s.clock.Now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, invoiceID, itemID snowflake.ID) (invoicedomain.Invoice, error) {
	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		result := tx.WithContext(ctx).
			Where("id = ? AND invoice_id = ?", itemID, invoice.ID).
			Delete(&invoicedomain.InvoiceItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return invoicedomain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) SetDiscount(ctx context.Context, invoiceID snowflake.ID, req invoicedomain.SetDiscountRequest) (invoicedomain.Invoice, error) {
	if req.DiscountPercentage != nil && !tax.ValidDiscountPercentage(*req.DiscountPercentage) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDiscount
	}

	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		invoice.IsDealerDiscount = req.IsDealerDiscount
		if req.DiscountPercentage != nil {
			invoice.DiscountPercentage = *req.DiscountPercentage
		} else {
			invoice.DiscountPercentage = decimal.Zero
		}
		return nil
	})
}

func (s *Service) UpdateStatus(ctx context.Context, invoiceID snowflake.ID, status invoicedomain.InvoiceStatus) (invoicedomain.Invoice, error) {
	if !invoicedomain.ValidInvoiceStatus(status) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidStatus
	}

	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		invoice.Status = status
		return nil
	})
}

func (s *Service) Recompute(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Invoice, error) {
	var recomputed invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, &invoice); err != nil {
			return err
		}
		recomputed = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return recomputed, nil
}

// mutate loads the invoice, applies fn, then recomputes and persists in
// one transaction. Archived invoices are frozen.
func (s *Service) mutate(ctx context.Context, invoiceID snowflake.ID, fn func(tx *gorm.DB, invoice *invoicedomain.Invoice) error) (invoicedomain.Invoice, error) {
	var mutated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.IsArchived() {
			return invoicedomain.ErrInvoiceArchived
		}
		if err := fn(tx, &invoice); err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, &invoice); err != nil {
			return err
		}
		mutated = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return mutated, nil
}

// recomputeTx is the totals engine: subtotal from line items, then the
// discount/tax resolver, then persist. Any failure rolls the transaction
// back, leaving prior stored values untouched.
func (s *Service) recomputeTx(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	var items []invoicedomain.InvoiceItem
	err := tx.WithContext(ctx).
		Where(&invoicedomain.InvoiceItem{InvoiceID: invoice.ID}).
		Find(&items).Error
	if err != nil {
		return fmt.Errorf("load invoice items: %w", err)
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice())
	}

	clientDefault, err := s.clientDefaultDiscount(ctx, tx, invoice.ClientID)
	if err != nil {
		return err
	}

	registered, err := s.taxRegistered(ctx, tx)
	if err != nil {
		return err
	}

	breakdown := tax.Resolve(tax.ResolveInput{
		Subtotal:              subtotal,
		DiscountPercentage:    invoice.DiscountPercentage,
		IsDealerDiscount:      invoice.IsDealerDiscount,
		ClientDefaultDiscount: clientDefault,
		IsTaxRegistered:       registered,
		Policy:                invoiceTaxPolicy,
	})

	if breakdown.DiscountAdopted {
		invoice.DiscountPercentage = breakdown.EffectiveDiscount
	}
	invoice.Subtotal = subtotal
	invoice.DiscountAmount = breakdown.DiscountAmount
	invoice.GSTAmount = breakdown.GSTAmount
	invoice.QSTAmount = breakdown.QSTAmount
	invoice.TotalAmount = breakdown.Total
	invoice.UpdatedAt = s.clock.Now()

	if err := tx.WithContext(ctx).Save(invoice).Error; err != nil {
		return fmt.Errorf("persist invoice totals: %w", err)
	}

	s.metrics.RecordRecompute(metrics.DocTypeInvoice)
	return nil
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where(&invoicedomain.Invoice{ID: id}).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) ensureClient(ctx context.Context, tx *gorm.DB, clientID snowflake.ID) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("id = ?", clientID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return clientdomain.ErrClientNotFound
	}
	return nil
}

func (s *Service) clientDefaultDiscount(ctx context.Context, tx *gorm.DB, clientID snowflake.ID) (decimal.Decimal, error) {
	var client clientdomain.Client
	err := tx.WithContext(ctx).
		Where(&clientdomain.Client{ID: clientID}).
		First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, clientdomain.ErrClientNotFound
		}
		return decimal.Zero, err
	}
	return client.DefaultDiscountPercentage, nil
}

// taxRegistered reads the company profile. A missing profile disables
// tax computation rather than failing the recompute.
func (s *Service) taxRegistered(ctx context.Context, tx *gorm.DB) (bool, error) {
	var profile companydomain.Profile
	err := tx.WithContext(ctx).Order("created_at ASC").First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.IsTaxRegistered, nil
}
