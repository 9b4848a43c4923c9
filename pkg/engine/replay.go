package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/money"
)

// renewalExtensionDays is how far an INTEREST_ROLLOVER entry pushes an
// installment's effective due date.
const renewalExtensionDays = 30

// Rebuild reconstructs the derived state of every installment from the
// loan's ledger. Each installment is reset to its scheduled values and
// the full entry history is reapplied in chronological order, so the
// result is a pure function of (scheduled fields, ledger) and running
// the replay again on the same input is a no-op.
//
// Entries that reference an installment id not present in the schedule
// are skipped and returned so the caller can report them; historical
// data may point at since-deleted installments and must not crash the
// replay. Entries with no installment linkage (disbursements, profit
// withdrawals) do not touch installment state at all.
func Rebuild(loan *models.Loan, today dateonly.Date) (orphans []uuid.UUID) {
	byID := make(map[uuid.UUID]*models.Installment, len(loan.Installments))
	for _, inst := range loan.Installments {
		inst.CurrentDueDate = inst.DueDate
		inst.PrincipalRemaining = money.Round(inst.ScheduledPrincipal)
		inst.InterestRemaining = money.Round(inst.ScheduledInterest)
		inst.LateFeeAccrued = decimal.Zero
		inst.PaidPrincipal = decimal.Zero
		inst.PaidInterest = decimal.Zero
		inst.PaidLateFee = decimal.Zero
		inst.PaidTotal = decimal.Zero
		inst.Status = models.StatusPending
		inst.PaidDate = nil
		inst.Logs = nil
		byID[inst.ID] = inst
	}

	entries := make([]*models.LedgerEntry, len(loan.Ledger))
	copy(entries, loan.Ledger)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	lastTouch := make(map[uuid.UUID]*models.LedgerEntry)

	for _, entry := range entries {
		if entry.InstallmentID == nil {
			continue
		}
		inst, ok := byID[*entry.InstallmentID]
		if !ok {
			orphans = append(orphans, entry.ID)
			continue
		}

		switch entry.Type {
		case models.EntryPaymentFull, models.EntryPaymentPartial, models.EntryAdjustment:
			inst.PaidPrincipal = money.Round(inst.PaidPrincipal.Add(entry.PrincipalDelta))
			inst.PaidInterest = money.Round(inst.PaidInterest.Add(entry.InterestDelta))
			inst.PaidLateFee = money.Round(inst.PaidLateFee.Add(entry.LateFeeDelta))
			inst.PaidTotal = money.Round(inst.PaidTotal.Add(entry.Amount))

			// Clamp at zero so rounding or out-of-order history can
			// never produce a negative amount owed.
			inst.PrincipalRemaining = clampSub(inst.PrincipalRemaining, entry.PrincipalDelta)
			inst.InterestRemaining = clampSub(inst.InterestRemaining, entry.InterestDelta)

		case models.EntryInterestRollover:
			// Period renewal: the next period's interest becomes part
			// of the installment's open balance and the due date moves
			// forward. Modeled as its own entry kind so replay stays a
			// pure function of the ledger.
			inst.InterestRemaining = money.Round(inst.InterestRemaining.Add(entry.InterestDelta))
			inst.CurrentDueDate = inst.CurrentDueDate.AddDays(renewalExtensionDays)

		case models.EntryLendMore, models.EntryWithdrawProfit,
			models.EntryArchive, models.EntryRestore:
			// Capital-source and lifecycle facts; no installment math.
		}

		if entry.Notes != "" {
			inst.Logs = append(inst.Logs, entry.Notes)
		}
		lastTouch[inst.ID] = entry
	}

	for _, inst := range loan.Installments {
		inst.Status = ClassifyInstallment(inst, today)
		if inst.Status == models.StatusPaid && inst.PaidDate == nil {
			if entry, ok := lastTouch[inst.ID]; ok {
				paidAt := entry.Date
				inst.PaidDate = &paidAt
			}
		}
	}

	return orphans
}

// RefreshLateFees recomputes the display-only accrued late fee on
// every installment as of today. Fees are never replayed; they exist
// only in the due-amount view until a payment settles them.
func RefreshLateFees(loan *models.Loan, today dateonly.Date) {
	for _, inst := range loan.Installments {
		inst.LateFeeAccrued = CalculateTotalDue(loan, inst, today).LateFee
	}
}

func clampSub(balance, delta decimal.Decimal) decimal.Decimal {
	out := money.Round(balance.Sub(delta))
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
