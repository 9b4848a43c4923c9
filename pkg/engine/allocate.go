package engine

import (
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/money"
)

// Allocation is how a single payment splits across the obligation
// buckets. The four parts always sum to the rounded payment amount.
type Allocation struct {
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	LateFeePaid   decimal.Decimal `json:"late_fee_paid"`
	AVGenerated   decimal.Decimal `json:"av_generated"`
}

// AllocatePayment distributes a payment across an installment's debt
// in strict waterfall order: late fee, then interest, then principal.
// Whatever is left after all three buckets are cleared becomes AV, an
// advance credit the caller decides how to apply. No bucket ever
// receives more than its outstanding amount. The caller must reject
// zero or negative amounts before calling.
func AllocatePayment(amount decimal.Decimal, due DueAmount) Allocation {
	remaining := money.Round(amount)

	payLateFee := decimal.Min(remaining, due.LateFee)
	remaining = money.Round(remaining.Sub(payLateFee))

	payInterest := decimal.Min(remaining, due.Interest)
	remaining = money.Round(remaining.Sub(payInterest))

	payPrincipal := decimal.Min(remaining, due.Principal)
	remaining = money.Round(remaining.Sub(payPrincipal))

	return Allocation{
		PrincipalPaid: money.Round(payPrincipal),
		InterestPaid:  money.Round(payInterest),
		LateFeePaid:   money.Round(payLateFee),
		AVGenerated:   remaining,
	}
}
