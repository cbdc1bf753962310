package migration

import (
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
	"github.com/smallbiznis/atelier/internal/sequence"
)

func models() []any {
	return []any{
		&companydomain.Profile{},
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&quotedomain.Quote{},
		&quotedomain.QuoteItem{},
		&expensedomain.Expense{},
		&archivedomain.FiscalYearArchive{},
		&sequence.DocumentSequence{},
	}
}
