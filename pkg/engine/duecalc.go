// Package engine implements the financial reconciliation core: the
// due-amount calculator, the payment allocator, ledger replay and the
// installment status classifier. Every function here is a pure,
// deterministic transformation over in-memory values; "today" is
// always an explicit parameter, never read from the wall clock.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/money"
)

// DueAmount is the breakdown of what an installment owes today.
type DueAmount struct {
	Total       decimal.Decimal `json:"total"`
	Principal   decimal.Decimal `json:"principal"`
	Interest    decimal.Decimal `json:"interest"`
	LateFee     decimal.Decimal `json:"late_fee"`
	BaseForFine decimal.Decimal `json:"base_for_fine"`
	DaysLate    int             `json:"days_late"`
}

// CalculateTotalDue computes the amount owed on an installment as of
// today, using the loan's frozen policy snapshot. The late fee is a
// one-time fine percent plus a per-day penalty, both applied to the
// outstanding principal + interest. A fully paid installment owes
// nothing no matter how much time has passed.
func CalculateTotalDue(loan *models.Loan, inst *models.Installment, today dateonly.Date) DueAmount {
	daysLate := today.Sub(inst.EffectiveDueDate())
	if daysLate < 0 {
		daysLate = 0
	}

	policy := loan.Policy()

	baseForFine := money.Round(inst.PrincipalRemaining.Add(inst.InterestRemaining))

	lateFee := decimal.Zero
	if daysLate > 0 && baseForFine.GreaterThan(decimal.Zero) {
		fineFixed := money.Percent(baseForFine, policy.FinePercent)
		fineDaily := money.Percent(baseForFine, policy.DailyInterestPercent).
			Mul(decimal.NewFromInt(int64(daysLate)))
		lateFee = money.Round(fineFixed.Add(fineDaily))
	}

	return DueAmount{
		Total:       money.Round(baseForFine.Add(lateFee)),
		Principal:   inst.PrincipalRemaining,
		Interest:    inst.InterestRemaining,
		LateFee:     lateFee,
		BaseForFine: baseForFine,
		DaysLate:    daysLate,
	}
}
