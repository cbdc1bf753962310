// Package tax resolves the effective discount and Québec sales taxes for
// a billing document. Everything here is pure; persistence of the
// resolved values is the document services' job.
package tax

import "github.com/shopspring/decimal"

// Jurisdiction constants. Rates are statutory, not configurable.
var (
	// GSTRate is the federal goods and services tax (TPS), 5%.
	GSTRate = decimal.RequireFromString("0.05")
	// QSTRate is the Québec sales tax (TVQ), 9.975%.
	QSTRate = decimal.RequireFromString("0.09975")
	// DealerDiscountPercent is the fixed dealer discount. It overrides
	// every other discount source.
	DealerDiscountPercent = decimal.NewFromInt(30)

	hundred = decimal.NewFromInt(100)
)

// Policy decides when GST/QST apply to a document type.
type Policy string

const (
	// PolicyRegisteredOnly taxes only when the company is tax-registered.
	// Invoices use this.
	PolicyRegisteredOnly Policy = "registered_only"
	// PolicyAlways taxes unconditionally. Quotes use this: an estimate
	// shows the customer the taxed price regardless of registration.
	PolicyAlways Policy = "always"
)

// ResolveInput carries everything the resolver needs. The company profile
// and client are read by the caller and passed by value so the resolver
// stays free of hidden lookups.
type ResolveInput struct {
	Subtotal              decimal.Decimal
	DiscountPercentage    decimal.Decimal
	IsDealerDiscount      bool
	ClientDefaultDiscount decimal.Decimal
	IsTaxRegistered       bool
	Policy                Policy
}

// Breakdown is the resolved monetary state of a document.
type Breakdown struct {
	// EffectiveDiscount is the winning discount percentage.
	EffectiveDiscount decimal.Decimal
	// DiscountAdopted is true when the client default was promoted to the
	// effective discount; the caller must persist it onto the document so
	// a later recompute is idempotent even if the client default changes.
	DiscountAdopted       bool
	DiscountAmount        decimal.Decimal
	SubtotalAfterDiscount decimal.Decimal
	GSTAmount             decimal.Decimal
	QSTAmount             decimal.Decimal
	Total                 decimal.Decimal
}

// Resolve applies the discount precedence then the tax policy.
//
// Precedence, each step short-circuiting the next:
//  1. dealer discount: fixed 30%
//  2. explicit document discount > 0
//  3. client default discount > 0 (adopted onto the document)
//  4. no discount
func Resolve(in ResolveInput) Breakdown {
	var out Breakdown

	switch {
	case in.IsDealerDiscount:
		out.EffectiveDiscount = DealerDiscountPercent
	case in.DiscountPercentage.IsPositive():
		out.EffectiveDiscount = in.DiscountPercentage
	case in.ClientDefaultDiscount.IsPositive():
		out.EffectiveDiscount = in.ClientDefaultDiscount
		out.DiscountAdopted = true
	default:
		out.EffectiveDiscount = decimal.Zero
	}

	out.DiscountAmount = roundMoney(in.Subtotal.Mul(out.EffectiveDiscount).Div(hundred))
	out.SubtotalAfterDiscount = in.Subtotal.Sub(out.DiscountAmount)

	if in.Policy == PolicyAlways || in.IsTaxRegistered {
		out.GSTAmount = roundMoney(out.SubtotalAfterDiscount.Mul(GSTRate))
		out.QSTAmount = roundMoney(out.SubtotalAfterDiscount.Mul(QSTRate))
	} else {
		out.GSTAmount = decimal.Zero
		out.QSTAmount = decimal.Zero
	}

	out.Total = out.SubtotalAfterDiscount.Add(out.GSTAmount).Add(out.QSTAmount)
	return out
}

// roundMoney rounds to the cent, half up, matching currency display.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidDiscountPercentage reports whether p is usable as a discount.
func ValidDiscountPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
