package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) dateonly.Date {
	d, err := dateonly.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s %v", want, got, msgAndArgs)
}

// testLoan builds a one-installment contract matching the worked
// examples: 1000 principal + 100 interest due 2024-01-10, 2% fine,
// 1%/day penalty.
func testLoan() (*models.Loan, *models.Installment) {
	inst := &models.Installment{
		ID:                 uuid.New(),
		Number:             1,
		DueDate:            date("2024-01-10"),
		ScheduledPrincipal: dec("1000"),
		ScheduledInterest:  dec("100"),
		Amount:             dec("1100"),
		PrincipalRemaining: dec("1000"),
		InterestRemaining:  dec("100"),
		Status:             models.StatusPending,
	}
	loan := &models.Loan{
		ID:           uuid.New(),
		Principal:    dec("1000"),
		InterestRate: dec("10"),
		PoliciesSnapshot: &models.Policy{
			InterestRate:         dec("10"),
			FinePercent:          dec("2"),
			DailyInterestPercent: dec("1"),
		},
		Installments: []*models.Installment{inst},
	}
	inst.LoanID = loan.ID
	return loan, inst
}

func paymentEntry(loan *models.Loan, inst *models.Installment, day string, amount, principal, interest, lateFee string) *models.LedgerEntry {
	instID := inst.ID
	return &models.LedgerEntry{
		ID:             uuid.New(),
		LoanID:         loan.ID,
		Date:           date(day).Time(),
		Type:           models.EntryPaymentPartial,
		Amount:         dec(amount),
		PrincipalDelta: dec(principal),
		InterestDelta:  dec(interest),
		LateFeeDelta:   dec(lateFee),
		InstallmentID:  &instID,
	}
}

func TestCalculateTotalDue_FifteenDaysLate(t *testing.T) {
	loan, inst := testLoan()

	due := CalculateTotalDue(loan, inst, date("2024-01-25"))

	assert.Equal(t, 15, due.DaysLate)
	assertDec(t, "1100", due.BaseForFine)
	assertDec(t, "187", due.LateFee) // 22 fixed + 165 daily
	assertDec(t, "1287", due.Total)
	assertDec(t, "1000", due.Principal)
	assertDec(t, "100", due.Interest)
}

func TestCalculateTotalDue_FutureDueDateHasNoFee(t *testing.T) {
	loan, inst := testLoan()
	inst.DueDate = date("2024-02-01")
	inst.CurrentDueDate = inst.DueDate

	due := CalculateTotalDue(loan, inst, date("2024-01-28"))

	assert.Equal(t, 0, due.DaysLate)
	assertDec(t, "0", due.LateFee)
	assertDec(t, "1100", due.Total)
}

func TestCalculateTotalDue_PaidInstallmentOwesNothing(t *testing.T) {
	loan, inst := testLoan()
	inst.PrincipalRemaining = decimal.Zero
	inst.InterestRemaining = decimal.Zero

	due := CalculateTotalDue(loan, inst, date("2025-06-01"))

	assertDec(t, "0", due.BaseForFine)
	assertDec(t, "0", due.LateFee)
	assertDec(t, "0", due.Total)
}

func TestCalculateTotalDue_SnapshotWinsOverCurrentRates(t *testing.T) {
	loan, inst := testLoan()
	// Later global-rate edits must never change an existing contract.
	loan.FinePercent = dec("50")
	loan.DailyInterestPercent = dec("50")

	due := CalculateTotalDue(loan, inst, date("2024-01-25"))
	assertDec(t, "187", due.LateFee)
}

func TestCalculateTotalDue_FallsBackWithoutSnapshot(t *testing.T) {
	loan, inst := testLoan()
	loan.PoliciesSnapshot = nil
	loan.FinePercent = dec("2")
	loan.DailyInterestPercent = dec("1")

	due := CalculateTotalDue(loan, inst, date("2024-01-25"))
	assertDec(t, "187", due.LateFee)
}

func TestAllocatePayment_PartialWaterfall(t *testing.T) {
	loan, inst := testLoan()
	due := CalculateTotalDue(loan, inst, date("2024-01-25"))

	alloc := AllocatePayment(dec("500"), due)

	assertDec(t, "187", alloc.LateFeePaid)
	assertDec(t, "100", alloc.InterestPaid)
	assertDec(t, "213", alloc.PrincipalPaid)
	assertDec(t, "0", alloc.AVGenerated)
}

func TestAllocatePayment_OverpaymentGeneratesAV(t *testing.T) {
	loan, inst := testLoan()
	due := CalculateTotalDue(loan, inst, date("2024-01-25"))

	alloc := AllocatePayment(dec("1300"), due)

	assertDec(t, "187", alloc.LateFeePaid)
	assertDec(t, "100", alloc.InterestPaid)
	assertDec(t, "1000", alloc.PrincipalPaid)
	assertDec(t, "13", alloc.AVGenerated)
}

func TestAllocatePayment_ConservationAndNoOverdraw(t *testing.T) {
	loan, inst := testLoan()
	due := CalculateTotalDue(loan, inst, date("2024-01-25"))

	for _, amount := range []string{"0.01", "1", "186.99", "187", "187.01", "287", "500", "1286.99", "1287", "1300", "9999.99"} {
		alloc := AllocatePayment(dec(amount), due)

		sum := alloc.PrincipalPaid.Add(alloc.InterestPaid).Add(alloc.LateFeePaid).Add(alloc.AVGenerated)
		assertDec(t, amount, sum, "conservation for", amount)

		assert.True(t, alloc.LateFeePaid.LessThanOrEqual(due.LateFee), "fee overdraw at %s", amount)
		assert.True(t, alloc.InterestPaid.LessThanOrEqual(due.Interest), "interest overdraw at %s", amount)
		assert.True(t, alloc.PrincipalPaid.LessThanOrEqual(due.Principal), "principal overdraw at %s", amount)
		assert.False(t, alloc.AVGenerated.IsNegative(), "negative AV at %s", amount)
	}
}

func TestRebuild_PartialPaymentLeavesLate(t *testing.T) {
	loan, inst := testLoan()
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-25", "500", "213", "100", "187"),
	}

	orphans := Rebuild(loan, date("2024-01-25"))
	require.Empty(t, orphans)

	assertDec(t, "787", inst.PrincipalRemaining)
	assertDec(t, "0", inst.InterestRemaining)
	assertDec(t, "213", inst.PaidPrincipal)
	assertDec(t, "100", inst.PaidInterest)
	assertDec(t, "187", inst.PaidLateFee)
	assertDec(t, "500", inst.PaidTotal)
	assert.Equal(t, models.StatusLate, inst.Status)
	assert.Nil(t, inst.PaidDate)
}

func TestRebuild_FullPaymentSettles(t *testing.T) {
	loan, inst := testLoan()
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-25", "1300", "1000", "100", "187"),
	}

	Rebuild(loan, date("2024-01-25"))

	assertDec(t, "0", inst.PrincipalRemaining)
	assert.Equal(t, models.StatusPaid, inst.Status)
	require.NotNil(t, inst.PaidDate)
	assert.Equal(t, date("2024-01-25").Time(), *inst.PaidDate)
}

func TestRebuild_SortsEntriesChronologically(t *testing.T) {
	loan, inst := testLoan()
	// Inserted in reverse order on purpose; replay must sort by date.
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-20", "1000", "1000", "0", "0"),
		paymentEntry(loan, inst, "2024-01-15", "100", "0", "100", "0"),
	}

	Rebuild(loan, date("2024-01-21"))

	assertDec(t, "0", inst.PrincipalRemaining)
	assertDec(t, "0", inst.InterestRemaining)
	assert.Equal(t, models.StatusPaid, inst.Status)
	require.NotNil(t, inst.PaidDate)
	assert.Equal(t, date("2024-01-20").Time(), *inst.PaidDate)
}

func TestRebuild_Idempotent(t *testing.T) {
	loan, inst := testLoan()
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-15", "100", "0", "100", "0"),
		paymentEntry(loan, inst, "2024-01-25", "500", "313", "0", "187"),
	}
	today := date("2024-01-26")

	Rebuild(loan, today)
	first := *inst
	firstLogs := append([]string(nil), inst.Logs...)

	Rebuild(loan, today)

	assert.True(t, first.PrincipalRemaining.Equal(inst.PrincipalRemaining))
	assert.True(t, first.InterestRemaining.Equal(inst.InterestRemaining))
	assert.True(t, first.PaidPrincipal.Equal(inst.PaidPrincipal))
	assert.True(t, first.PaidInterest.Equal(inst.PaidInterest))
	assert.True(t, first.PaidLateFee.Equal(inst.PaidLateFee))
	assert.True(t, first.PaidTotal.Equal(inst.PaidTotal))
	assert.Equal(t, first.Status, inst.Status)
	assert.Equal(t, firstLogs, inst.Logs)
	assert.True(t, first.CurrentDueDate.Equal(inst.CurrentDueDate))
}

func TestRebuild_ClampsNegativeBalances(t *testing.T) {
	loan, inst := testLoan()
	// Overstated delta from a historical adjustment must not produce
	// a negative amount owed.
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-15", "1200", "1100", "100", "0"),
	}

	Rebuild(loan, date("2024-01-16"))

	assertDec(t, "0", inst.PrincipalRemaining)
	assertDec(t, "0", inst.InterestRemaining)
	assert.Equal(t, models.StatusPaid, inst.Status)
}

func TestRebuild_SkipsOrphanedEntries(t *testing.T) {
	loan, inst := testLoan()
	ghost := uuid.New()
	orphan := paymentEntry(loan, inst, "2024-01-15", "100", "0", "100", "0")
	orphan.InstallmentID = &ghost
	loan.Ledger = []*models.LedgerEntry{orphan}

	orphans := Rebuild(loan, date("2024-01-16"))

	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID, orphans[0])
	assertDec(t, "1000", inst.PrincipalRemaining)
	assertDec(t, "100", inst.InterestRemaining)
}

func TestRebuild_IgnoresUnlinkedEntries(t *testing.T) {
	loan, inst := testLoan()
	loan.Ledger = []*models.LedgerEntry{
		{
			ID:     uuid.New(),
			LoanID: loan.ID,
			Date:   date("2024-01-01").Time(),
			Type:   models.EntryLendMore,
			Amount: dec("1000"),
		},
	}

	orphans := Rebuild(loan, date("2024-01-02"))

	assert.Empty(t, orphans)
	assertDec(t, "1000", inst.PrincipalRemaining)
	assert.Equal(t, models.StatusPending, inst.Status)
}

func TestRebuild_InterestRolloverExtendsPeriod(t *testing.T) {
	loan, inst := testLoan()
	instID := inst.ID
	loan.Ledger = []*models.LedgerEntry{
		paymentEntry(loan, inst, "2024-01-10", "100", "0", "100", "0"),
		{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			Date:          date("2024-01-10").Time().Add(time.Millisecond),
			Type:          models.EntryInterestRollover,
			Amount:        decimal.Zero,
			InterestDelta: dec("100"),
			InstallmentID: &instID,
			Notes:         "Period renewed (+30 days)",
		},
	}

	Rebuild(loan, date("2024-01-15"))

	// Interest for the next period is open again, principal untouched,
	// and the due date moved so the contract is current, not late.
	assertDec(t, "1000", inst.PrincipalRemaining)
	assertDec(t, "100", inst.InterestRemaining)
	assert.Equal(t, "2024-02-09", inst.CurrentDueDate.String())
	assert.Equal(t, "2024-01-10", inst.DueDate.String())
	assert.Equal(t, models.StatusPartial, inst.Status)
	assert.Contains(t, inst.Logs, "Period renewed (+30 days)")
}

func TestClassifyInstallment_Precedence(t *testing.T) {
	_, inst := testLoan()

	// Paid wins over lateness, even with interest outstanding.
	inst.PrincipalRemaining = decimal.Zero
	inst.InterestRemaining = dec("100")
	assert.Equal(t, models.StatusPaid, ClassifyInstallment(inst, date("2024-06-01")))

	// Late: open principal past due date.
	inst.PrincipalRemaining = dec("500")
	assert.Equal(t, models.StatusLate, ClassifyInstallment(inst, date("2024-06-01")))

	// Partial: something paid, not yet due.
	inst.PaidTotal = dec("100")
	assert.Equal(t, models.StatusPartial, ClassifyInstallment(inst, date("2024-01-05")))

	// Pending: untouched, not yet due.
	inst.PaidTotal = decimal.Zero
	assert.Equal(t, models.StatusPending, ClassifyInstallment(inst, date("2024-01-05")))
}

func TestDescribeDue(t *testing.T) {
	_, inst := testLoan()
	assert.Equal(t, "due today", DescribeDue(inst, date("2024-01-10")))
	assert.Equal(t, "5 days overdue", DescribeDue(inst, date("2024-01-15")))
	assert.Equal(t, "on time", DescribeDue(inst, date("2024-01-05")))
	inst.Status = models.StatusPaid
	assert.Equal(t, "settled", DescribeDue(inst, date("2024-01-15")))
}

func TestGenerateSchedule_MonthlyPrice(t *testing.T) {
	loanID := uuid.New()
	schedule, err := GenerateSchedule(loanID, ScheduleParams{
		Principal:        dec("1000"),
		Rate:             dec("10"),
		Periods:          3,
		BillingCycle:     models.CycleMonthly,
		AmortizationType: models.AmortizationPrice,
		StartDate:        date("2024-01-01"),
	})
	require.NoError(t, err)

	assertDec(t, "300", schedule.TotalInterest)
	assertDec(t, "1300", schedule.TotalToReceive)
	require.Len(t, schedule.Installments, 3)

	assert.Equal(t, "2024-01-31", schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2024-03-01", schedule.Installments[1].DueDate.String())
	assert.Equal(t, "2024-03-31", schedule.Installments[2].DueDate.String())

	// The even split leaves a cent for the final installment.
	assertDec(t, "333.33", schedule.Installments[0].ScheduledPrincipal)
	assertDec(t, "333.33", schedule.Installments[1].ScheduledPrincipal)
	assertDec(t, "333.34", schedule.Installments[2].ScheduledPrincipal)

	sumPrincipal := decimal.Zero
	sumInterest := decimal.Zero
	for _, inst := range schedule.Installments {
		sumPrincipal = sumPrincipal.Add(inst.ScheduledPrincipal)
		sumInterest = sumInterest.Add(inst.ScheduledInterest)
		assert.Equal(t, models.StatusPending, inst.Status)
		assert.True(t, inst.PrincipalRemaining.Equal(inst.ScheduledPrincipal))
		assert.True(t, inst.InterestRemaining.Equal(inst.ScheduledInterest))
	}
	assertDec(t, "1000", sumPrincipal)
	assertDec(t, "300", sumInterest)
}

func TestGenerateSchedule_DailyBullet(t *testing.T) {
	schedule, err := GenerateSchedule(uuid.New(), ScheduleParams{
		Principal:        dec("1000"),
		Rate:             dec("30"), // total rate for the whole period
		Periods:          10,
		BillingCycle:     models.CycleDaily,
		AmortizationType: models.AmortizationBullet,
		StartDate:        date("2024-01-01"),
	})
	require.NoError(t, err)

	assertDec(t, "300", schedule.TotalInterest)
	require.Len(t, schedule.Installments, 10)

	assert.Equal(t, "2024-01-02", schedule.Installments[0].DueDate.String())
	assert.Equal(t, "2024-01-11", schedule.Installments[9].DueDate.String())

	for i, inst := range schedule.Installments {
		assertDec(t, "30", inst.ScheduledInterest)
		if i < 9 {
			assertDec(t, "0", inst.ScheduledPrincipal)
		}
	}
	assertDec(t, "1000", schedule.Installments[9].ScheduledPrincipal)
	assertDec(t, "1030", schedule.Installments[9].Amount)
}

func TestGenerateSchedule_MonthlyBullet(t *testing.T) {
	schedule, err := GenerateSchedule(uuid.New(), ScheduleParams{
		Principal:        dec("2000"),
		Rate:             dec("5"),
		Periods:          4,
		BillingCycle:     models.CycleMonthly,
		AmortizationType: models.AmortizationBullet,
		StartDate:        date("2024-01-01"),
	})
	require.NoError(t, err)

	require.Len(t, schedule.Installments, 4)
	for i := 0; i < 3; i++ {
		assertDec(t, "0", schedule.Installments[i].ScheduledPrincipal)
		assertDec(t, "100", schedule.Installments[i].ScheduledInterest)
	}
	assertDec(t, "2000", schedule.Installments[3].ScheduledPrincipal)
}

func TestGenerateSchedule_Validation(t *testing.T) {
	_, err := GenerateSchedule(uuid.New(), ScheduleParams{
		Principal: dec("0"), Rate: dec("10"), Periods: 3,
		BillingCycle: models.CycleMonthly, AmortizationType: models.AmortizationPrice,
		StartDate: date("2024-01-01"),
	})
	assert.Error(t, err)

	_, err = GenerateSchedule(uuid.New(), ScheduleParams{
		Principal: dec("100"), Rate: dec("10"), Periods: 0,
		BillingCycle: models.CycleMonthly, AmortizationType: models.AmortizationPrice,
		StartDate: date("2024-01-01"),
	})
	assert.Error(t, err)

	_, err = GenerateSchedule(uuid.New(), ScheduleParams{
		Principal: dec("100"), Rate: dec("10"), Periods: 2,
		BillingCycle: "WEEKLY", AmortizationType: models.AmortizationPrice,
		StartDate: date("2024-01-01"),
	})
	assert.Error(t, err)
}

func TestRefreshLateFees(t *testing.T) {
	loan, inst := testLoan()

	RefreshLateFees(loan, date("2024-01-25"))
	assertDec(t, "187", inst.LateFeeAccrued)

	RefreshLateFees(loan, date("2024-01-05"))
	assertDec(t, "0", inst.LateFeeAccrued)
}
