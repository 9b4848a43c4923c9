package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/dateonly"
)

// InstallmentStatus is derived from balances, never stored as truth.
type InstallmentStatus string

const (
	StatusPending InstallmentStatus = "PENDING"
	StatusPartial InstallmentStatus = "PARTIAL"
	StatusLate    InstallmentStatus = "LATE"
	StatusPaid    InstallmentStatus = "PAID"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleDaily   BillingCycle = "DAILY"
)

type AmortizationType string

const (
	// AmortizationPrice splits principal and interest evenly across
	// all installments.
	AmortizationPrice AmortizationType = "PRICE"
	// AmortizationBullet charges interest-only installments with the
	// full principal due in the last one.
	AmortizationBullet AmortizationType = "BULLET"
)

// EntryType is the closed set of ledger transaction kinds. Replay
// switches exhaustively over these, so a new kind cannot silently
// bypass balance updates.
type EntryType string

const (
	EntryPaymentFull      EntryType = "PAYMENT_FULL"
	EntryPaymentPartial   EntryType = "PAYMENT_PARTIAL"
	EntryLendMore         EntryType = "LEND_MORE"
	EntryWithdrawProfit   EntryType = "WITHDRAW_PROFIT"
	EntryAdjustment       EntryType = "ADJUSTMENT"
	EntryInterestRollover EntryType = "INTEREST_ROLLOVER"
	EntryArchive          EntryType = "ARCHIVE"
	EntryRestore          EntryType = "RESTORE"
)

// Policy freezes the rate terms of a contract. The snapshot taken at
// creation is immutable for the life of the loan; later edits to the
// loan's current rate fields never change past math.
type Policy struct {
	InterestRate         decimal.Decimal `json:"interest_rate"`
	FinePercent          decimal.Decimal `json:"fine_percent"`
	DailyInterestPercent decimal.Decimal `json:"daily_interest_percent"`
}

// SourceType categorizes a pool of lending capital.
type SourceType string

const (
	SourceCash   SourceType = "CASH"
	SourceBank   SourceType = "BANK"
	SourceWallet SourceType = "WALLET"
)

// CapitalSource is a pool of money that disbursements draw from and
// principal repayments flow back into.
type CapitalSource struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Type    SourceType      `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// Installment is one scheduled obligation within a loan. The scheduled
// fields are contract-original and immutable; everything else is
// derived by ledger replay and must always be reproducible from it.
type Installment struct {
	ID     uuid.UUID `json:"id"`
	LoanID uuid.UUID `json:"loan_id"`
	Number int       `json:"number"`

	// Scheduled (immutable).
	DueDate            dateonly.Date   `json:"due_date"`
	ScheduledPrincipal decimal.Decimal `json:"scheduled_principal"`
	ScheduledInterest  decimal.Decimal `json:"scheduled_interest"`
	Amount             decimal.Decimal `json:"amount"`

	// Derived (replay-computed).
	CurrentDueDate     dateonly.Date     `json:"current_due_date"`
	PrincipalRemaining decimal.Decimal   `json:"principal_remaining"`
	InterestRemaining  decimal.Decimal   `json:"interest_remaining"`
	LateFeeAccrued     decimal.Decimal   `json:"late_fee_accrued"`
	PaidPrincipal      decimal.Decimal   `json:"paid_principal"`
	PaidInterest       decimal.Decimal   `json:"paid_interest"`
	PaidLateFee        decimal.Decimal   `json:"paid_late_fee"`
	PaidTotal          decimal.Decimal   `json:"paid_total"`
	Status             InstallmentStatus `json:"status"`
	PaidDate           *time.Time        `json:"paid_date,omitempty"`
	Logs               []string          `json:"logs,omitempty"`
}

// EffectiveDueDate is the due date after renewal extensions. Before
// any replay has run it falls back to the contract-original due date.
func (i *Installment) EffectiveDueDate() dateonly.Date {
	if i.CurrentDueDate.IsZero() {
		return i.DueDate
	}
	return i.CurrentDueDate
}

// LedgerEntry is an immutable, timestamped financial fact. Entries are
// never mutated or deleted; all derived balances are reconstructed
// from them in Date order.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	Date           time.Time       `json:"date"`
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	PrincipalDelta decimal.Decimal `json:"principal_delta"`
	InterestDelta  decimal.Decimal `json:"interest_delta"`
	LateFeeDelta   decimal.Decimal `json:"late_fee_delta"`
	SourceID       *uuid.UUID      `json:"source_id,omitempty"`
	InstallmentID  *uuid.UUID      `json:"installment_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// Loan is one lending agreement: contract terms, the installment
// schedule, and the append-only ledger it is reconciled from.
type Loan struct {
	ID             uuid.UUID `json:"id"`
	DebtorName     string    `json:"debtor_name"`
	DebtorPhone    string    `json:"debtor_phone"`
	DebtorDocument string    `json:"debtor_document"`
	SourceID       uuid.UUID `json:"source_id"`

	Principal            decimal.Decimal  `json:"principal"`
	InterestRate         decimal.Decimal  `json:"interest_rate"`
	FinePercent          decimal.Decimal  `json:"fine_percent"`
	DailyInterestPercent decimal.Decimal  `json:"daily_interest_percent"`
	BillingCycle         BillingCycle     `json:"billing_cycle"`
	AmortizationType     AmortizationType `json:"amortization_type"`
	StartDate            dateonly.Date    `json:"start_date"`
	TotalToReceive       decimal.Decimal  `json:"total_to_receive"`

	PoliciesSnapshot *Policy `json:"policies_snapshot,omitempty"`

	Installments []*Installment `json:"installments"`
	Ledger       []*LedgerEntry `json:"ledger"`

	Notes      string    `json:"notes,omitempty"`
	IsArchived bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Policy returns the frozen snapshot, falling back to the loan's
// current rate fields when no snapshot exists (legacy contracts).
func (l *Loan) Policy() Policy {
	if l.PoliciesSnapshot != nil {
		return *l.PoliciesSnapshot
	}
	return Policy{
		InterestRate:         l.InterestRate,
		FinePercent:          l.FinePercent,
		DailyInterestPercent: l.DailyInterestPercent,
	}
}

// InstallmentByID finds an installment in the schedule, or nil.
func (l *Loan) InstallmentByID(id uuid.UUID) *Installment {
	for _, inst := range l.Installments {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}
