// Package ledger holds the business logic for loan contracts and their
// transaction history. Every financial fact is recorded as an
// append-only ledger entry; installment balances are never mutated
// directly, only reconstructed by replaying the ledger through the
// engine package.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/engine"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/money"
	"github.com/SLever37/controlcredi/pkg/store"
)

// Ledger handles the business logic for loans, payments and capital
// sources over a Storage implementation.
type Ledger struct {
	storage store.Storage
	now     func() time.Time // swappable clock for deterministic tests
	log     *logrus.Entry
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{
		storage: s,
		now:     time.Now,
		log:     logrus.WithField("component", "ledger"),
	}
}

func (l *Ledger) today() dateonly.Date {
	return dateonly.FromTime(l.now())
}

// reconcile replays the loan's ledger and refreshes the display-only
// late fees. Derived installment state is only ever produced here.
func (l *Ledger) reconcile(loan *models.Loan) {
	today := l.today()
	orphans := engine.Rebuild(loan, today)
	if len(orphans) > 0 {
		l.log.WithFields(logrus.Fields{
			"loan_id": loan.ID,
			"entries": orphans,
		}).Warn("ledger entries reference missing installments, skipped during replay")
	}
	engine.RefreshLateFees(loan, today)
}

// CreateLoanInput carries the contract terms for a new loan.
type CreateLoanInput struct {
	DebtorName           string
	DebtorPhone          string
	DebtorDocument       string
	SourceID             uuid.UUID
	Principal            decimal.Decimal
	InterestRate         decimal.Decimal
	FinePercent          decimal.Decimal
	DailyInterestPercent decimal.Decimal
	BillingCycle         models.BillingCycle
	AmortizationType     models.AmortizationType
	StartDate            dateonly.Date
	Periods              int
	Notes                string
}

// CreateLoan initializes a new contract: freezes the policy snapshot,
// generates the installment schedule, debits the capital source and
// records the disbursement as the first ledger entry.
func (l *Ledger) CreateLoan(in CreateLoanInput) (*models.Loan, error) {
	if in.DebtorName == "" {
		return nil, fmt.Errorf("debtor name is required")
	}
	if in.BillingCycle == "" {
		in.BillingCycle = models.CycleMonthly
	}
	if in.AmortizationType == "" {
		in.AmortizationType = models.AmortizationPrice
	}

	source, err := l.storage.GetSource(in.SourceID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	loanID := uuid.New()

	schedule, err := engine.GenerateSchedule(loanID, engine.ScheduleParams{
		Principal:        in.Principal,
		Rate:             in.InterestRate,
		Periods:          in.Periods,
		BillingCycle:     in.BillingCycle,
		AmortizationType: in.AmortizationType,
		StartDate:        in.StartDate,
	})
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:                   loanID,
		DebtorName:           in.DebtorName,
		DebtorPhone:          in.DebtorPhone,
		DebtorDocument:       in.DebtorDocument,
		SourceID:             in.SourceID,
		Principal:            money.Round(in.Principal),
		InterestRate:         in.InterestRate,
		FinePercent:          in.FinePercent,
		DailyInterestPercent: in.DailyInterestPercent,
		BillingCycle:         in.BillingCycle,
		AmortizationType:     in.AmortizationType,
		StartDate:            in.StartDate,
		TotalToReceive:       schedule.TotalToReceive,
		PoliciesSnapshot: &models.Policy{
			InterestRate:         in.InterestRate,
			FinePercent:          in.FinePercent,
			DailyInterestPercent: in.DailyInterestPercent,
		},
		Installments: schedule.Installments,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	// Record disbursement. The entry carries no installment linkage:
	// it moves capital, not installment balances.
	sourceID := in.SourceID
	disbursement := &models.LedgerEntry{
		ID:       uuid.New(),
		LoanID:   loan.ID,
		Date:     now,
		Type:     models.EntryLendMore,
		Amount:   loan.Principal,
		SourceID: &sourceID,
		Notes:    fmt.Sprintf("Initial disbursement - %d installments", len(loan.Installments)),
	}
	if err := l.storage.AppendLedgerEntry(disbursement); err != nil {
		return nil, fmt.Errorf("failed to store disbursement entry: %w", err)
	}
	loan.Ledger = append(loan.Ledger, disbursement)

	newBalance := money.Round(source.Balance.Sub(loan.Principal))
	if err := l.storage.UpdateSourceBalance(source.ID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to debit capital source: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"principal": loan.Principal,
		"periods":   len(loan.Installments),
	}).Info("loan created")

	return loan, nil
}

// GetLoan retrieves a loan by its ID with fully reconciled state.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	l.reconcile(loan)
	return loan, nil
}

// GetAllLoans retrieves all loans with fully reconciled state.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return nil, err
	}
	for _, loan := range loans {
		l.reconcile(loan)
	}
	return loans, nil
}

// DeleteLoan deletes a loan with its schedule and history.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// DueToday computes the current amount owed on one installment.
func (l *Ledger) DueToday(loanID, installmentID uuid.UUID) (engine.DueAmount, error) {
	loan, err := l.GetLoan(loanID)
	if err != nil {
		return engine.DueAmount{}, err
	}
	inst := loan.InstallmentByID(installmentID)
	if inst == nil {
		return engine.DueAmount{}, fmt.Errorf("installment not found")
	}
	return engine.CalculateTotalDue(loan, inst, l.today()), nil
}

// PaymentKind selects how a payment amount is determined and whether
// the installment's period is renewed afterwards.
type PaymentKind string

const (
	// PaymentFull settles the installment's total due.
	PaymentFull PaymentKind = "FULL"
	// PaymentPartial pays an arbitrary caller-provided amount.
	PaymentPartial PaymentKind = "PARTIAL"
	// PaymentRenewInterest pays interest + fees and extends the period.
	PaymentRenewInterest PaymentKind = "RENEW_INTEREST"
	// PaymentRenewAV is a renewal plus an extra principal paydown.
	PaymentRenewAV PaymentKind = "RENEW_AV"
)

// RecordPayment processes a payment against one installment. The
// amount is allocated across late fee, interest and principal in
// waterfall order and appended to the ledger; for renewal kinds a
// rollover entry carrying the next period's interest is appended as
// well, so the extension survives replay. The amount parameter is the
// payment value for PARTIAL and the extra amortization for RENEW_AV;
// it is ignored for FULL and RENEW_INTEREST.
func (l *Ledger) RecordPayment(loanID, installmentID uuid.UUID, kind PaymentKind, amount decimal.Decimal) (*models.LedgerEntry, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.IsArchived {
		return nil, fmt.Errorf("loan is archived")
	}

	l.reconcile(loan)
	inst := loan.InstallmentByID(installmentID)
	if inst == nil {
		return nil, fmt.Errorf("installment not found")
	}

	due := engine.CalculateTotalDue(loan, inst, l.today())

	var amountToPay decimal.Decimal
	var note string
	switch kind {
	case PaymentFull:
		amountToPay = due.Total
		note = "Full settlement"
	case PaymentPartial:
		amountToPay = money.Round(amount)
		note = "Partial payment"
	case PaymentRenewInterest:
		amountToPay = money.Round(due.Interest.Add(due.LateFee))
		note = "Interest payment (renewal)"
	case PaymentRenewAV:
		av := money.Round(amount)
		if av.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("amortization amount must be positive")
		}
		amountToPay = money.Round(due.Interest.Add(due.LateFee).Add(av))
		note = fmt.Sprintf("Interest + amortization (%s)", av.StringFixed(2))
	default:
		return nil, fmt.Errorf("unknown payment kind %q", kind)
	}

	if amountToPay.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	alloc := engine.AllocatePayment(amountToPay, due)

	now := l.now()
	entryType := models.EntryPaymentPartial
	if kind == PaymentFull {
		entryType = models.EntryPaymentFull
	}
	sourceID := loan.SourceID
	instID := inst.ID
	payment := &models.LedgerEntry{
		ID:             uuid.New(),
		LoanID:         loan.ID,
		Date:           now,
		Type:           entryType,
		Amount:         amountToPay,
		PrincipalDelta: alloc.PrincipalPaid,
		InterestDelta:  alloc.InterestPaid,
		LateFeeDelta:   alloc.LateFeePaid,
		SourceID:       &sourceID,
		InstallmentID:  &instID,
		Notes:          note,
	}
	if err := l.storage.AppendLedgerEntry(payment); err != nil {
		return nil, fmt.Errorf("failed to store payment entry: %w", err)
	}
	loan.Ledger = append(loan.Ledger, payment)

	// Principal and advance credit flow back into the capital pool.
	// Interest and fees are profit, tracked via ProfitBalance.
	principalReturned := money.Round(alloc.PrincipalPaid.Add(alloc.AVGenerated))
	if principalReturned.IsPositive() {
		source, err := l.storage.GetSource(loan.SourceID)
		if err != nil {
			return nil, err
		}
		newBalance := money.Round(source.Balance.Add(principalReturned))
		if err := l.storage.UpdateSourceBalance(source.ID, newBalance); err != nil {
			return nil, fmt.Errorf("failed to credit capital source: %w", err)
		}
	}

	if kind == PaymentRenewInterest || kind == PaymentRenewAV {
		if err := l.appendRollover(loan, inst, alloc, now); err != nil {
			return nil, err
		}
	}

	l.reconcile(loan)
	if err := l.storage.UpdateInstallmentState(inst); err != nil {
		return nil, fmt.Errorf("failed to persist installment state: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":        loan.ID,
		"installment_id": inst.ID,
		"kind":           kind,
		"amount":         amountToPay,
		"principal":      alloc.PrincipalPaid,
		"interest":       alloc.InterestPaid,
		"late_fee":       alloc.LateFeePaid,
		"av":             alloc.AVGenerated,
	}).Info("payment recorded")

	return payment, nil
}

// appendRollover records the next period's interest obligation for a
// renewed installment. The rollover is its own ledger entry so that
// replay alone reproduces both the new interest balance and the
// extended due date.
func (l *Ledger) appendRollover(loan *models.Loan, inst *models.Installment, alloc engine.Allocation, paidAt time.Time) error {
	principalPaidNow := money.Round(alloc.PrincipalPaid.Add(alloc.AVGenerated))
	newPrincipal := money.Round(inst.PrincipalRemaining.Sub(principalPaidNow))
	if newPrincipal.IsNegative() {
		newPrincipal = decimal.Zero
	}

	nextInterest := money.Percent(newPrincipal, loan.Policy().InterestRate)

	instID := inst.ID
	rollover := &models.LedgerEntry{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		Date:          paidAt.Add(time.Millisecond), // strictly after the payment entry
		Type:          models.EntryInterestRollover,
		Amount:        decimal.Zero,
		InterestDelta: nextInterest,
		InstallmentID: &instID,
		Notes:         "Period renewed (+30 days)",
	}
	if err := l.storage.AppendLedgerEntry(rollover); err != nil {
		return fmt.Errorf("failed to store rollover entry: %w", err)
	}
	loan.Ledger = append(loan.Ledger, rollover)
	return nil
}

// LendMore records an additional disbursement to an existing contract
// and debits the capital source. It does not touch installment
// balances; the extra capital is serviced through renewals.
func (l *Ledger) LendMore(loanID, sourceID uuid.UUID, amount decimal.Decimal, notes string) (*models.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.IsArchived {
		return nil, fmt.Errorf("loan is archived")
	}
	source, err := l.storage.GetSource(sourceID)
	if err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:       uuid.New(),
		LoanID:   loan.ID,
		Date:     l.now(),
		Type:     models.EntryLendMore,
		Amount:   money.Round(amount),
		SourceID: &sourceID,
		Notes:    notes,
	}
	if err := l.storage.AppendLedgerEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to store lend-more entry: %w", err)
	}

	newBalance := money.Round(source.Balance.Sub(entry.Amount))
	if err := l.storage.UpdateSourceBalance(source.ID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to debit capital source: %w", err)
	}
	return entry, nil
}

// ProfitBalance derives the withdrawable profit from the ledger: all
// interest and fees collected, minus everything already withdrawn.
// There is no stored profit counter; the ledger is the source of truth.
func (l *Ledger) ProfitBalance() (decimal.Decimal, error) {
	entries, err := l.storage.GetAllLedgerEntries()
	if err != nil {
		return decimal.Zero, err
	}
	profit := decimal.Zero
	for _, entry := range entries {
		switch entry.Type {
		case models.EntryPaymentFull, models.EntryPaymentPartial, models.EntryAdjustment:
			profit = money.Round(profit.Add(entry.InterestDelta).Add(entry.LateFeeDelta))
		case models.EntryWithdrawProfit:
			profit = money.Round(profit.Sub(entry.Amount))
		}
	}
	return profit, nil
}

// WithdrawProfit moves collected interest/fees out of the profit pool.
// When a capital source is given the amount is credited to it;
// otherwise it is an external withdrawal, recorded only in the ledger.
func (l *Ledger) WithdrawProfit(sourceID *uuid.UUID, amount decimal.Decimal) (*models.LedgerEntry, error) {
	amount = money.Round(amount)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}
	available, err := l.ProfitBalance()
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(available) {
		return nil, fmt.Errorf("insufficient profit balance: have %s, want %s", available.StringFixed(2), amount.StringFixed(2))
	}

	entry := &models.LedgerEntry{
		ID:       uuid.New(),
		Date:     l.now(),
		Type:     models.EntryWithdrawProfit,
		Amount:   amount,
		SourceID: sourceID,
		Notes:    "Profit withdrawal",
	}
	if err := l.storage.AppendLedgerEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to store withdrawal entry: %w", err)
	}

	if sourceID != nil {
		source, err := l.storage.GetSource(*sourceID)
		if err != nil {
			return nil, err
		}
		newBalance := money.Round(source.Balance.Add(amount))
		if err := l.storage.UpdateSourceBalance(source.ID, newBalance); err != nil {
			return nil, fmt.Errorf("failed to credit capital source: %w", err)
		}
	}
	return entry, nil
}

// ArchiveLoan flags a loan archived and records the lifecycle event.
func (l *Ledger) ArchiveLoan(id uuid.UUID) error {
	return l.setArchived(id, true, models.EntryArchive, "Contract archived")
}

// RestoreLoan brings an archived loan back.
func (l *Ledger) RestoreLoan(id uuid.UUID) error {
	return l.setArchived(id, false, models.EntryRestore, "Contract restored")
}

func (l *Ledger) setArchived(id uuid.UUID, archived bool, entryType models.EntryType, note string) error {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return err
	}
	if loan.IsArchived == archived {
		return nil
	}
	loan.IsArchived = archived
	loan.UpdatedAt = l.now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return err
	}
	entry := &models.LedgerEntry{
		ID:     uuid.New(),
		LoanID: loan.ID,
		Date:   l.now(),
		Type:   entryType,
		Amount: decimal.Zero,
		Notes:  note,
	}
	if err := l.storage.AppendLedgerEntry(entry); err != nil {
		return fmt.Errorf("failed to store lifecycle entry: %w", err)
	}
	return nil
}

// CreateSource registers a new pool of lending capital.
func (l *Ledger) CreateSource(name string, sourceType models.SourceType, initialBalance decimal.Decimal) (*models.CapitalSource, error) {
	if name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	src := &models.CapitalSource{
		ID:      uuid.New(),
		Name:    name,
		Type:    sourceType,
		Balance: money.Round(initialBalance),
	}
	if err := l.storage.CreateSource(src); err != nil {
		return nil, err
	}
	return src, nil
}

// GetAllSources lists the capital sources.
func (l *Ledger) GetAllSources() ([]*models.CapitalSource, error) {
	return l.storage.GetAllSources()
}
