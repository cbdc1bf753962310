package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	"github.com/smallbiznis/atelier/internal/metrics"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
	"github.com/smallbiznis/atelier/internal/sequence"
	"github.com/smallbiznis/atelier/internal/tax"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const convertedDueDays = 30

// Convert turns an accepted or sent quote into a draft invoice. The
// quote is marked CONVERTED and the invoice carries a back-link, both in
// one transaction, so a concurrent second call loses on the conditional
// update and the whole attempt rolls back.
func (s *Service) Convert(ctx context.Context, quoteID snowflake.ID) (invoicedomain.Invoice, error) {
	var created invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.loadQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quote.IsConverted() {
			return quotedomain.ErrAlreadyConverted
		}
		if !quote.Convertible() {
			return quotedomain.ErrInvalidStateForConversion
		}

		now := s.clock.Now()
		invoiceID := s.genID.Generate()

		// Claim the quote first. The guard re-checks state so two
		// transactions racing on the same quote cannot both win.
		claim := tx.WithContext(ctx).
			Model(&quotedomain.Quote{}).
			Where("id = ? AND converted_invoice_id IS NULL AND status IN ?",
				quote.ID,
				[]quotedomain.QuoteStatus{quotedomain.QuoteStatusSent, quotedomain.QuoteStatusAccepted}).
			Updates(map[string]any{
				"status":               quotedomain.QuoteStatusConverted,
				"converted_invoice_id": invoiceID,
				"updated_at":           now,
			})
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			current, err := s.loadQuote(ctx, tx, quoteID)
			if err != nil {
				return err
			}
			if current.IsConverted() {
				return quotedomain.ErrAlreadyConverted
			}
			return quotedomain.ErrInvalidStateForConversion
		}

		number, err := s.alloc.Next(ctx, tx, sequence.PrefixInvoice, now.Year())
		if err != nil {
			return err
		}

		invoice := invoicedomain.Invoice{
			ID:                 invoiceID,
			Number:             number,
			ClientID:           quote.ClientID,
			SourceQuoteID:      &quote.ID,
			InvoiceDate:        now,
			DueDate:            now.AddDate(0, 0, convertedDueDays),
			Status:             invoicedomain.InvoiceStatusDraft,
			DiscountPercentage: quote.DiscountPercentage,
			IsDealerDiscount:   quote.IsDealerDiscount,
			Notes:              quote.Notes,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			return err
		}

		var quoteItems []quotedomain.QuoteItem
		err = tx.WithContext(ctx).
			Where(&quotedomain.QuoteItem{QuoteID: quote.ID}).
			Order("id ASC").
			Find(&quoteItems).Error
		if err != nil {
			return err
		}

		// Lines are copied as-is. Prices were frozen when the quote was
		// sent; conversion must not reprice anything.
		subtotal := decimal.Zero
		for _, qi := range quoteItems {
			item := invoicedomain.InvoiceItem{
				ID:        s.genID.Generate(),
				InvoiceID: invoice.ID,
				Line:      qi.Line,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
				return err
			}
			subtotal = subtotal.Add(item.TotalPrice())
		}

		if err := s.recomputeInvoiceTx(ctx, tx, &invoice, subtotal); err != nil {
			return err
		}

		created = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordQuoteConversion()
	s.log.Info("quote converted",
		zap.String("quote_id", quoteID.String()),
		zap.String("invoice_number", created.Number),
		zap.String("total", created.TotalAmount.String()),
	)
	return created, nil
}

// recomputeInvoiceTx applies invoice totals semantics to the freshly
// converted invoice: taxes gate on company registration, unlike quotes.
func (s *Service) recomputeInvoiceTx(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, subtotal decimal.Decimal) error {
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
		Policy:                tax.PolicyRegisteredOnly,
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
		return err
	}

	s.metrics.RecordRecompute(metrics.DocTypeInvoice)
	return nil
}

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
