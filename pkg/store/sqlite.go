package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SLever37/controlcredi/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS capital_sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0'
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		debtor_name TEXT NOT NULL,
		debtor_phone TEXT NOT NULL DEFAULT '',
		debtor_document TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		fine_percent TEXT NOT NULL DEFAULT '0',
		daily_interest_percent TEXT NOT NULL DEFAULT '0',
		billing_cycle TEXT NOT NULL DEFAULT 'MONTHLY',
		amortization_type TEXT NOT NULL DEFAULT 'PRICE',
		start_date TEXT NOT NULL,
		total_to_receive TEXT NOT NULL DEFAULT '0',
		snapshot_interest_rate TEXT,
		snapshot_fine_percent TEXT,
		snapshot_daily_interest_percent TEXT,
		notes TEXT NOT NULL DEFAULT '',
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		scheduled_principal TEXT NOT NULL,
		scheduled_interest TEXT NOT NULL,
		amount TEXT NOT NULL,
		current_due_date TEXT NOT NULL,
		principal_remaining TEXT NOT NULL,
		interest_remaining TEXT NOT NULL,
		late_fee_accrued TEXT NOT NULL DEFAULT '0',
		paid_principal TEXT NOT NULL DEFAULT '0',
		paid_interest TEXT NOT NULL DEFAULT '0',
		paid_late_fee TEXT NOT NULL DEFAULT '0',
		paid_total TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'PENDING',
		paid_date DATETIME,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		loan_id TEXT,
		date DATETIME NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_delta TEXT NOT NULL DEFAULT '0',
		interest_delta TEXT NOT NULL DEFAULT '0',
		late_fee_delta TEXT NOT NULL DEFAULT '0',
		source_id TEXT,
		installment_id TEXT,
		notes TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE INDEX IF NOT EXISTS idx_installments_loan ON installments(loan_id, number);
	CREATE INDEX IF NOT EXISTS idx_ledger_loan_date ON ledger_entries(loan_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a new loan and its installment schedule in one
// transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var snapRate, snapFine, snapDaily any
	if p := loan.PoliciesSnapshot; p != nil {
		snapRate = p.InterestRate.String()
		snapFine = p.FinePercent.String()
		snapDaily = p.DailyInterestPercent.String()
	}

	_, err = tx.Exec(
		`INSERT INTO loans (id, debtor_name, debtor_phone, debtor_document, source_id, principal, interest_rate, fine_percent, daily_interest_percent, billing_cycle, amortization_type, start_date, total_to_receive, snapshot_interest_rate, snapshot_fine_percent, snapshot_daily_interest_percent, notes, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.DebtorName, loan.DebtorPhone, loan.DebtorDocument, loan.SourceID.String(),
		loan.Principal, loan.InterestRate, loan.FinePercent, loan.DailyInterestPercent,
		loan.BillingCycle, loan.AmortizationType, loan.StartDate, loan.TotalToReceive,
		snapRate, snapFine, snapDaily, loan.Notes, loan.IsArchived, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, inst := range loan.Installments {
		if err := insertInstallment(tx, inst); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertInstallment(tx *sql.Tx, inst *models.Installment) error {
	var paidDate any
	if inst.PaidDate != nil {
		paidDate = *inst.PaidDate
	}
	_, err := tx.Exec(
		`INSERT INTO installments (id, loan_id, number, due_date, scheduled_principal, scheduled_interest, amount, current_due_date, principal_remaining, interest_remaining, late_fee_accrued, paid_principal, paid_interest, paid_late_fee, paid_total, status, paid_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.LoanID.String(), inst.Number, inst.DueDate,
		inst.ScheduledPrincipal, inst.ScheduledInterest, inst.Amount,
		inst.CurrentDueDate, inst.PrincipalRemaining, inst.InterestRemaining,
		inst.LateFeeAccrued, inst.PaidPrincipal, inst.PaidInterest, inst.PaidLateFee,
		inst.PaidTotal, inst.Status, paidDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
	}
	return nil
}

// GetLoan retrieves a loan aggregate: the loan row, its installments
// ordered by number, and its ledger ordered by entry date.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(
		`SELECT id, debtor_name, debtor_phone, debtor_document, source_id, principal, interest_rate, fine_percent, daily_interest_percent, billing_cycle, amortization_type, start_date, total_to_receive, snapshot_interest_rate, snapshot_fine_percent, snapshot_daily_interest_percent, notes, is_archived, created_at, updated_at
		FROM loans WHERE id = ?`, id.String())

	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan not found")
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	if loan.Installments, err = s.getInstallmentsForLoan(id); err != nil {
		return nil, err
	}
	if loan.Ledger, err = s.GetLedgerForLoan(id); err != nil {
		return nil, err
	}
	return loan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var loanIDStr, sourceIDStr string
	var snapRate, snapFine, snapDaily sql.NullString
	var created, updated time.Time

	err := row.Scan(
		&loanIDStr, &loan.DebtorName, &loan.DebtorPhone, &loan.DebtorDocument, &sourceIDStr,
		&loan.Principal, &loan.InterestRate, &loan.FinePercent, &loan.DailyInterestPercent,
		&loan.BillingCycle, &loan.AmortizationType, &loan.StartDate, &loan.TotalToReceive,
		&snapRate, &snapFine, &snapDaily, &loan.Notes, &loan.IsArchived, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(loanIDStr)
	loan.SourceID = uuid.MustParse(sourceIDStr)
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	if snapRate.Valid && snapFine.Valid && snapDaily.Valid {
		rate, err := decimal.NewFromString(snapRate.String)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot interest rate: %w", err)
		}
		fine, err := decimal.NewFromString(snapFine.String)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot fine percent: %w", err)
		}
		daily, err := decimal.NewFromString(snapDaily.String)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot daily percent: %w", err)
		}
		loan.PoliciesSnapshot = &models.Policy{
			InterestRate:         rate,
			FinePercent:          fine,
			DailyInterestPercent: daily,
		}
	}
	return &loan, nil
}

func (s *SQLiteStore) getInstallmentsForLoan(loanID uuid.UUID) ([]*models.Installment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, number, due_date, scheduled_principal, scheduled_interest, amount, current_due_date, principal_remaining, interest_remaining, late_fee_accrued, paid_principal, paid_interest, paid_late_fee, paid_total, status, paid_date
		FROM installments WHERE loan_id = ? ORDER BY number ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		var inst models.Installment
		var instIDStr, loanIDStr string
		var paidDate sql.NullTime
		if err := rows.Scan(
			&instIDStr, &loanIDStr, &inst.Number, &inst.DueDate,
			&inst.ScheduledPrincipal, &inst.ScheduledInterest, &inst.Amount,
			&inst.CurrentDueDate, &inst.PrincipalRemaining, &inst.InterestRemaining,
			&inst.LateFeeAccrued, &inst.PaidPrincipal, &inst.PaidInterest,
			&inst.PaidLateFee, &inst.PaidTotal, &inst.Status, &paidDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		inst.ID = uuid.MustParse(instIDStr)
		inst.LoanID = uuid.MustParse(loanIDStr)
		if paidDate.Valid {
			t := paidDate.Time
			inst.PaidDate = &t
		}
		installments = append(installments, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return installments, nil
}

// UpdateLoan updates an existing loan's mutable contract fields.
// Snapshot columns are deliberately not in the SET list: the policy
// snapshot is immutable once written.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET debtor_name = ?, debtor_phone = ?, debtor_document = ?, source_id = ?, principal = ?, interest_rate = ?, fine_percent = ?, daily_interest_percent = ?, billing_cycle = ?, amortization_type = ?, start_date = ?, total_to_receive = ?, notes = ?, is_archived = ?, updated_at = ? WHERE id = ?`,
		loan.DebtorName, loan.DebtorPhone, loan.DebtorDocument, loan.SourceID.String(),
		loan.Principal, loan.InterestRate, loan.FinePercent, loan.DailyInterestPercent,
		loan.BillingCycle, loan.AmortizationType, loan.StartDate, loan.TotalToReceive,
		loan.Notes, loan.IsArchived, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}
	return nil
}

// UpdateInstallmentState persists an installment's derived fields.
func (s *SQLiteStore) UpdateInstallmentState(inst *models.Installment) error {
	var paidDate any
	if inst.PaidDate != nil {
		paidDate = *inst.PaidDate
	}
	result, err := s.db.Exec(
		`UPDATE installments SET current_due_date = ?, principal_remaining = ?, interest_remaining = ?, late_fee_accrued = ?, paid_principal = ?, paid_interest = ?, paid_late_fee = ?, paid_total = ?, status = ?, paid_date = ? WHERE id = ?`,
		inst.CurrentDueDate, inst.PrincipalRemaining, inst.InterestRemaining,
		inst.LateFeeAccrued, inst.PaidPrincipal, inst.PaidInterest, inst.PaidLateFee,
		inst.PaidTotal, inst.Status, paidDate, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("installment not found")
	}
	return nil
}

// DeleteLoan removes a loan with its installments and ledger entries
// within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ledger_entries WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated ledger entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated installments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loan aggregates.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT id, debtor_name, debtor_phone, debtor_document, source_id, principal, interest_rate, fine_percent, daily_interest_percent, billing_cycle, amortization_type, start_date, total_to_receive, snapshot_interest_rate, snapshot_fine_percent, snapshot_daily_interest_percent, notes, is_archived, created_at, updated_at
		FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	for _, loan := range loans {
		if loan.Installments, err = s.getInstallmentsForLoan(loan.ID); err != nil {
			return nil, err
		}
		if loan.Ledger, err = s.GetLedgerForLoan(loan.ID); err != nil {
			return nil, err
		}
	}
	return loans, nil
}

// AppendLedgerEntry inserts a new ledger entry. Entries are append
// only; there is deliberately no update or delete for this table.
func (s *SQLiteStore) AppendLedgerEntry(entry *models.LedgerEntry) error {
	var loanID, sourceID, installmentID any
	if entry.LoanID != uuid.Nil {
		loanID = entry.LoanID.String()
	}
	if entry.SourceID != nil {
		sourceID = entry.SourceID.String()
	}
	if entry.InstallmentID != nil {
		installmentID = entry.InstallmentID.String()
	}
	_, err := s.db.Exec(
		`INSERT INTO ledger_entries (id, loan_id, date, type, amount, principal_delta, interest_delta, late_fee_delta, source_id, installment_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), loanID, entry.Date, entry.Type, entry.Amount,
		entry.PrincipalDelta, entry.InterestDelta, entry.LateFeeDelta,
		sourceID, installmentID, entry.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// GetLedgerForLoan retrieves all ledger entries for a loan in
// chronological order.
func (s *SQLiteStore) GetLedgerForLoan(loanID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, date, type, amount, principal_delta, interest_delta, late_fee_delta, source_id, installment_id, notes
		FROM ledger_entries WHERE loan_id = ? ORDER BY date ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// GetAllLedgerEntries retrieves the full ledger across all loans in
// chronological order, including entries with no loan linkage (profit
// withdrawals).
func (s *SQLiteStore) GetAllLedgerEntries() ([]*models.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, date, type, amount, principal_delta, interest_delta, late_fee_delta, source_id, installment_id, notes
		FROM ledger_entries ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all ledger entries: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows *sql.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var entryIDStr string
		var loanID, sourceID, installmentID sql.NullString
		var date time.Time
		if err := rows.Scan(
			&entryIDStr, &loanID, &date, &entry.Type, &entry.Amount,
			&entry.PrincipalDelta, &entry.InterestDelta, &entry.LateFeeDelta,
			&sourceID, &installmentID, &entry.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		entry.ID = uuid.MustParse(entryIDStr)
		if loanID.Valid {
			entry.LoanID = uuid.MustParse(loanID.String)
		}
		entry.Date = date
		if sourceID.Valid {
			id := uuid.MustParse(sourceID.String)
			entry.SourceID = &id
		}
		if installmentID.Valid {
			id := uuid.MustParse(installmentID.String)
			entry.InstallmentID = &id
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during ledger rows iteration: %w", err)
	}
	return entries, nil
}

// CreateSource inserts a new capital source.
func (s *SQLiteStore) CreateSource(src *models.CapitalSource) error {
	_, err := s.db.Exec(
		`INSERT INTO capital_sources (id, name, type, balance) VALUES (?, ?, ?, ?)`,
		src.ID.String(), src.Name, src.Type, src.Balance,
	)
	if err != nil {
		return fmt.Errorf("failed to create capital source: %w", err)
	}
	return nil
}

// GetSource retrieves a capital source by its ID.
func (s *SQLiteStore) GetSource(id uuid.UUID) (*models.CapitalSource, error) {
	var src models.CapitalSource
	var idStr string
	row := s.db.QueryRow(`SELECT id, name, type, balance FROM capital_sources WHERE id = ?`, id.String())
	if err := row.Scan(&idStr, &src.Name, &src.Type, &src.Balance); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("source not found")
		}
		return nil, fmt.Errorf("failed to get capital source: %w", err)
	}
	src.ID = uuid.MustParse(idStr)
	return &src, nil
}

// GetAllSources retrieves all capital sources.
func (s *SQLiteStore) GetAllSources() ([]*models.CapitalSource, error) {
	rows, err := s.db.Query(`SELECT id, name, type, balance FROM capital_sources ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get capital sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.CapitalSource
	for rows.Next() {
		var src models.CapitalSource
		var idStr string
		if err := rows.Scan(&idStr, &src.Name, &src.Type, &src.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan capital source row: %w", err)
		}
		src.ID = uuid.MustParse(idStr)
		sources = append(sources, &src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for capital sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceBalance sets a capital source's balance.
func (s *SQLiteStore) UpdateSourceBalance(id uuid.UUID, balance decimal.Decimal) error {
	result, err := s.db.Exec(`UPDATE capital_sources SET balance = ? WHERE id = ?`, balance, id.String())
	if err != nil {
		return fmt.Errorf("failed to update source balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("source not found")
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
