package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/SLever37/controlcredi/pkg/config"
	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/ledger"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s),
		storage: s,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// notFound maps the storage layer's sentinel errors onto 404s.
func notFound(err error) bool {
	switch err.Error() {
	case "loan not found", "installment not found", "source not found":
		return true
	}
	return false
}

func handleError(w http.ResponseWriter, err error) {
	if notFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DebtorName           string                  `json:"debtor_name"`
		DebtorPhone          string                  `json:"debtor_phone"`
		DebtorDocument       string                  `json:"debtor_document"`
		SourceID             uuid.UUID               `json:"source_id"`
		Principal            decimal.Decimal         `json:"principal"`
		InterestRate         decimal.Decimal         `json:"interest_rate"`
		FinePercent          decimal.Decimal         `json:"fine_percent"`
		DailyInterestPercent decimal.Decimal         `json:"daily_interest_percent"`
		BillingCycle         models.BillingCycle     `json:"billing_cycle"`
		AmortizationType     models.AmortizationType `json:"amortization_type"`
		StartDate            dateonly.Date           `json:"start_date"`
		Periods              int                     `json:"periods"`
		Notes                string                  `json:"notes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(ledger.CreateLoanInput{
		DebtorName:           req.DebtorName,
		DebtorPhone:          req.DebtorPhone,
		DebtorDocument:       req.DebtorDocument,
		SourceID:             req.SourceID,
		Principal:            req.Principal,
		InterestRate:         req.InterestRate,
		FinePercent:          req.FinePercent,
		DailyInterestPercent: req.DailyInterestPercent,
		BillingCycle:         req.BillingCycle,
		AmortizationType:     req.AmortizationType,
		StartDate:            req.StartDate,
		Periods:              req.Periods,
		Notes:                req.Notes,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to create loan")
		http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ledger.DeleteLoan(loanID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dueHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	instID, err := pathID(r, "installmentId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	due, err := s.ledger.DueToday(loanID, instID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		InstallmentID uuid.UUID          `json:"installment_id"`
		Kind          ledger.PaymentKind `json:"kind"`
		Amount        decimal.Decimal    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = ledger.PaymentPartial
	}
	if req.Kind == ledger.PaymentPartial && req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	entry, err := s.ledger.RecordPayment(loanID, req.InstallmentID, req.Kind, req.Amount)
	if err != nil {
		if notFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) lendMoreHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		SourceID uuid.UUID       `json:"source_id"`
		Amount   decimal.Decimal `json:"amount"`
		Notes    string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.ledger.LendMore(loanID, req.SourceID, req.Amount, req.Notes)
	if err != nil {
		if notFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) archiveLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.lifecycleHandler(w, r, s.ledger.ArchiveLoan)
}

func (s *Server) restoreLoanHandler(w http.ResponseWriter, r *http.Request) {
	s.lifecycleHandler(w, r, s.ledger.RestoreLoan)
}

func (s *Server) lifecycleHandler(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) error) {
	loanID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := op(loanID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string            `json:"name"`
		Type    models.SourceType `json:"type"`
		Balance decimal.Decimal   `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	src, err := s.ledger.CreateSource(req.Name, req.Type, req.Balance)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) listSourcesHandler(w http.ResponseWriter, r *http.Request) {
	sources, err := s.ledger.GetAllSources()
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) profitHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.ProfitBalance()
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

func (s *Server) withdrawProfitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID *uuid.UUID      `json:"source_id,omitempty"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.ledger.WithdrawProfit(req.SourceID, req.Amount)
	if err != nil {
		if notFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{installmentId}/due", s.dueHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/lend-more", s.lendMoreHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/archive", s.archiveLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/restore", s.restoreLoanHandler).Methods("POST")

	router.HandleFunc("/sources", s.listSourcesHandler).Methods("GET")
	router.HandleFunc("/sources", s.createSourceHandler).Methods("POST")
	router.HandleFunc("/profit", s.profitHandler).Methods("GET")
	router.HandleFunc("/profit/withdraw", s.withdrawProfitHandler).Methods("POST")

	return router
}

func main() {
	cfg := config.Get()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize SQLite store")
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore)

	logrus.WithField("addr", cfg.ListenAddr).Info("server starting")
	logrus.Fatal(http.ListenAndServe(cfg.ListenAddr, server.routes()))
}
