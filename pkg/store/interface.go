package store

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/models"
)

// Storage defines the interface for database operations on loans,
// installments, ledger entries and capital sources. GetLoan returns
// the full aggregate: the loan with its ordered installment schedule
// and its ledger ordered by entry date.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)

	// UpdateInstallmentState persists an installment's replay-derived
	// fields. These are a disposable cache of the ledger, stored only
	// so reads don't have to replay.
	UpdateInstallmentState(inst *models.Installment) error

	AppendLedgerEntry(entry *models.LedgerEntry) error
	GetLedgerForLoan(loanID uuid.UUID) ([]*models.LedgerEntry, error)
	GetAllLedgerEntries() ([]*models.LedgerEntry, error)

	CreateSource(src *models.CapitalSource) error
	GetSource(id uuid.UUID) (*models.CapitalSource, error)
	GetAllSources() ([]*models.CapitalSource, error)
	UpdateSourceBalance(id uuid.UUID, balance decimal.Decimal) error

	Close() error
}
