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
	"github.com/smallbiznis/atelier/internal/metrics"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
	"github.com/smallbiznis/atelier/internal/sequence"
	"github.com/smallbiznis/atelier/internal/tax"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// quoteTaxPolicy taxes quotes unconditionally: an estimate shows the
// customer the taxed price whether or not the shop is registered yet.
// Invoices gate on registration instead; see the invoice service.
const quoteTaxPolicy = tax.PolicyAlways

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

func NewService(p ServiceParam) quotedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quote.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		alloc:   p.Allocator,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req quotedomain.CreateRequest) (quotedomain.Quote, error) {
	if req.DiscountPercentage != nil && !tax.ValidDiscountPercentage(*req.DiscountPercentage) {
		return quotedomain.Quote{}, quotedomain.ErrInvalidDiscount
	}
	for _, line := range req.Lines {
		if err := line.Validate(); err != nil {
			return quotedomain.Quote{}, err
		}
	}

	now := s.clock.Now()
	quoteDate := req.QuoteDate
	if quoteDate.IsZero() {
		quoteDate = now
	}

	var created quotedomain.Quote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClient(ctx, tx, req.ClientID); err != nil {
			return err
		}

		number, err := s.alloc.Next(ctx, tx, sequence.PrefixQuote, now.Year())
		if err != nil {
			return err
		}

		quote := quotedomain.Quote{
			ID:               s.genID.Generate(),
			Number:           number,
			ClientID:         req.ClientID,
			QuoteDate:        quoteDate,
			ValidUntil:       req.ValidUntil,
			Status:           quotedomain.QuoteStatusDraft,
			IsDealerDiscount: req.IsDealerDiscount,
			Notes:            req.Notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if req.DiscountPercentage != nil {
			quote.DiscountPercentage = *req.DiscountPercentage
		}
		if err := tx.WithContext(ctx).Create(&quote).Error; err != nil {
			return err
		}

		for _, line := range req.Lines {
			item := quotedomain.QuoteItem{
				ID:        s.genID.Generate(),
				QuoteID:   quote.ID,
				Line:      line,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
				return err
			}
		}

		if err := s.recomputeTx(ctx, tx, &quote); err != nil {
			return err
		}
		created = quote
		return nil
	})
	if err != nil {
		return quotedomain.Quote{}, err
	}

	s.log.Info("quote created",
		zap.String("number", created.Number),
		zap.String("client_id", created.ClientID.String()),
		zap.String("total", created.TotalAmount.String()),
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (quotedomain.Quote, error) {
	return s.loadQuote(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, req quotedomain.ListRequest) ([]quotedomain.Quote, error) {
	stmt := s.db.WithContext(ctx).Model(&quotedomain.Quote{})
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}
	if req.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *req.ClientID)
	}

	var quotes []quotedomain.Quote
	err := stmt.Order("quote_date DESC, number DESC").Find(&quotes).Error
	return quotes, err
}

func (s *Service) Items(ctx context.Context, quoteID snowflake.ID) ([]quotedomain.QuoteItem, error) {
	if _, err := s.loadQuote(ctx, s.db, quoteID); err != nil {
		return nil, err
	}
	var items []quotedomain.QuoteItem
	err := s.db.WithContext(ctx).
		Where(&quotedomain.QuoteItem{QuoteID: quoteID}).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (s *Service) AddItem(ctx context.Context, quoteID snowflake.ID, line billing.Line) (quotedomain.Quote, error) {
	if err := line.Validate(); err != nil {
		return quotedomain.Quote{}, err
	}

	return s.mutate(ctx, quoteID, func(tx *gorm.DB, quote *quotedomain.Quote) error {
		now := s.clock.Now()
		item := quotedomain.QuoteItem{
			ID:        s.genID.Generate(),
			QuoteID:   quote.ID,
			Line:      line,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&item).Error
	})
}

func (s *Service) UpdateItemPrice(ctx context.Context, quoteID, itemID snowflake.ID, price decimal.Decimal) (quotedomain.Quote, error) {
	if !price.IsPositive() {
		return quotedomain.Quote{}, billing.ErrInvalidLinePrice
	}

	return s.mutate(ctx, quoteID, func(tx *gorm.DB, quote *quotedomain.Quote) error {
		result := tx.WithContext(ctx).
			Model(&quotedomain.QuoteItem{}).
			Where("id = ? AND quote_id = ?", itemID, quote.ID).
			Updates(map[string]any{"price": price, "updated_at": s.clock.Now()})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return quotedomain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, quoteID, itemID snowflake.ID) (quotedomain.Quote, error) {
	return s.mutate(ctx, quoteID, func(tx *gorm.DB, quote *quotedomain.Quote) error {
		result := tx.WithContext(ctx).
			Where("id = ? AND quote_id = ?", itemID, quote.ID).
			Delete(&quotedomain.QuoteItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return quotedomain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) SetDiscount(ctx context.Context, quoteID snowflake.ID, req quotedomain.SetDiscountRequest) (quotedomain.Quote, error) {
	if req.DiscountPercentage != nil && !tax.ValidDiscountPercentage(*req.DiscountPercentage) {
		return quotedomain.Quote{}, quotedomain.ErrInvalidDiscount
	}

	return s.mutate(ctx, quoteID, func(tx *gorm.DB, quote *quotedomain.Quote) error {
		quote.IsDealerDiscount = req.IsDealerDiscount
		if req.DiscountPercentage != nil {
			quote.DiscountPercentage = *req.DiscountPercentage
		} else {
			quote.DiscountPercentage = decimal.Zero
		}
		return nil
	})
}

func (s *Service) UpdateStatus(ctx context.Context, quoteID snowflake.ID, status quotedomain.QuoteStatus) (quotedomain.Quote, error) {
	if !quotedomain.ValidQuoteStatus(status) || status == quotedomain.QuoteStatusConverted {
		// Converted is only reachable through Convert.
		return quotedomain.Quote{}, quotedomain.ErrInvalidStatus
	}

	return s.mutate(ctx, quoteID, func(tx *gorm.DB, quote *quotedomain.Quote) error {
		quote.Status = status
		return nil
	})
}

func (s *Service) Recompute(ctx context.Context, quoteID snowflake.ID) (quotedomain.Quote, error) {
	var recomputed quotedomain.Quote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.loadQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, &quote); err != nil {
			return err
		}
		recomputed = quote
		return nil
	})
	if err != nil {
		return quotedomain.Quote{}, err
	}
	return recomputed, nil
}

func (s *Service) mutate(ctx context.Context, quoteID snowflake.ID, fn func(tx *gorm.DB, quote *quotedomain.Quote) error) (quotedomain.Quote, error) {
	var mutated quotedomain.Quote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.loadQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quote.IsConverted() {
			return quotedomain.ErrConvertedQuoteImmutable
		}
		if err := fn(tx, &quote); err != nil {
			return err
		}
		if err := s.recomputeTx(ctx, tx, &quote); err != nil {
			return err
		}
		mutated = quote
		return nil
	})
	if err != nil {
		return quotedomain.Quote{}, err
	}
	return mutated, nil
}

func (s *Service) recomputeTx(ctx context.Context, tx *gorm.DB, quote *quotedomain.Quote) error {
	var items []quotedomain.QuoteItem
	err := tx.WithContext(ctx).
		Where(&quotedomain.QuoteItem{QuoteID: quote.ID}).
		Find(&items).Error
	if err != nil {
		return fmt.Errorf("load quote items: %w", err)
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice())
	}

	clientDefault, err := s.clientDefaultDiscount(ctx, tx, quote.ClientID)
	if err != nil {
		return err
	}

	breakdown := tax.Resolve(tax.ResolveInput{
		Subtotal:              subtotal,
		DiscountPercentage:    quote.DiscountPercentage,
		IsDealerDiscount:      quote.IsDealerDiscount,
		ClientDefaultDiscount: clientDefault,
		Policy:                quoteTaxPolicy,
	})

	if breakdown.DiscountAdopted {
		quote.DiscountPercentage = breakdown.EffectiveDiscount
	}
	quote.Subtotal = subtotal
	quote.DiscountAmount = breakdown.DiscountAmount
	quote.GSTAmount = breakdown.GSTAmount
	quote.QSTAmount = breakdown.QSTAmount
	quote.TotalAmount = breakdown.Total
	quote.UpdatedAt = s.clock.Now()

	if err := tx.WithContext(ctx).Save(quote).Error; err != nil {
		return fmt.Errorf("persist quote totals: %w", err)
	}

	s.metrics.RecordRecompute(metrics.DocTypeQuote)
	return nil
}

func (s *Service) loadQuote(ctx context.Context, tx *gorm.DB, id snowflake.ID) (quotedomain.Quote, error) {
	var quote quotedomain.Quote
	err := tx.WithContext(ctx).
		Where(&quotedomain.Quote{ID: id}).
		First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return quotedomain.Quote{}, quotedomain.ErrQuoteNotFound
		}
		return quotedomain.Quote{}, err
	}
	return quote, nil
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
