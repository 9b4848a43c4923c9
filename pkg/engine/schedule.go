package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/money"
)

// monthlyStepDays: monthly contracts bill on exact 30-day cycles from
// the start date, date-only, so due dates never drift with calendar
// month lengths or timezones.
const monthlyStepDays = 30

// ScheduleParams are the contract terms a schedule is generated from.
// For MONTHLY cycles Rate is a per-month percent; for DAILY cycles it
// is the total percent for the whole period.
type ScheduleParams struct {
	Principal        decimal.Decimal
	Rate             decimal.Decimal
	Periods          int
	BillingCycle     models.BillingCycle
	AmortizationType models.AmortizationType
	StartDate        dateonly.Date
}

// Schedule is a generated installment plan.
type Schedule struct {
	Installments   []*models.Installment
	TotalInterest  decimal.Decimal
	TotalToReceive decimal.Decimal
}

// GenerateSchedule builds the installment sequence for a new contract.
// PRICE splits principal and interest evenly across all periods;
// BULLET charges interest-only periods with the full principal in the
// last one. Per-installment values are rounded and the rounding
// remainder is folded into the final installment so the scheduled
// principal sums exactly to the contract principal.
func GenerateSchedule(loanID uuid.UUID, p ScheduleParams) (*Schedule, error) {
	if p.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("principal must be positive")
	}
	if p.Periods <= 0 {
		return nil, fmt.Errorf("period count must be positive")
	}
	if p.StartDate.IsZero() {
		return nil, fmt.Errorf("start date is required")
	}

	periods := decimal.NewFromInt(int64(p.Periods))

	var totalInterest decimal.Decimal
	switch p.BillingCycle {
	case models.CycleDaily:
		// Rate covers the whole period: 30% over 10 days is 30% once.
		totalInterest = money.Percent(p.Principal, p.Rate)
	case models.CycleMonthly:
		totalInterest = money.Round(money.Percent(p.Principal, p.Rate).Mul(periods))
	default:
		return nil, fmt.Errorf("unknown billing cycle %q", p.BillingCycle)
	}

	var perPrincipal, perInterest decimal.Decimal
	switch p.AmortizationType {
	case models.AmortizationPrice:
		perPrincipal = money.Round(p.Principal.Div(periods))
		perInterest = money.Round(totalInterest.Div(periods))
	case models.AmortizationBullet:
		perPrincipal = decimal.Zero
		perInterest = money.Round(totalInterest.Div(periods))
	default:
		return nil, fmt.Errorf("unknown amortization type %q", p.AmortizationType)
	}

	stepDays := 1
	if p.BillingCycle == models.CycleMonthly {
		stepDays = monthlyStepDays
	}

	installments := make([]*models.Installment, 0, p.Periods)
	principalLeft := p.Principal
	interestLeft := totalInterest

	for i := 0; i < p.Periods; i++ {
		last := i == p.Periods-1

		principal := perPrincipal
		interest := perInterest
		if p.AmortizationType == models.AmortizationBullet {
			principal = decimal.Zero
			if last {
				principal = p.Principal
			}
		}
		if last {
			// Cents fix: the final installment absorbs whatever the
			// even split left over.
			if p.AmortizationType == models.AmortizationPrice {
				principal = money.Round(principalLeft)
			}
			interest = money.Round(interestLeft)
		}
		principalLeft = principalLeft.Sub(principal)
		interestLeft = interestLeft.Sub(interest)

		inst := &models.Installment{
			ID:                 uuid.New(),
			LoanID:             loanID,
			Number:             i + 1,
			DueDate:            p.StartDate.AddDays((i + 1) * stepDays),
			ScheduledPrincipal: principal,
			ScheduledInterest:  interest,
			Amount:             money.Round(principal.Add(interest)),
			PrincipalRemaining: principal,
			InterestRemaining:  interest,
			Status:             models.StatusPending,
		}
		inst.CurrentDueDate = inst.DueDate
		installments = append(installments, inst)
	}

	return &Schedule{
		Installments:   installments,
		TotalInterest:  totalInterest,
		TotalToReceive: money.Round(p.Principal.Add(totalInterest)),
	}, nil
}
