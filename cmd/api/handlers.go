package main

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/ledger"
	"github.com/mcclellann/pawnledger/pkg/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.CustomerInput
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	customer, err := s.ledger.CreateCustomer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, customer)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := listParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ledger.CustomerFilter{
		Name:         q.Get("name"),
		GuardianName: q.Get("guardian_name"),
		Address:      q.Get("address"),
	}

	customers, err := s.ledger.ListCustomers(r.Context(), filter, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, customers)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	customer, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, customer)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ledger.CustomerInput
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	customer, err := s.ledger.UpdateCustomer(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, customer)
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteCustomer(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID  uuid.UUID       `json:"customer_id"`
		Name        string          `json:"name"`
		Category    models.Category `json:"category"`
		Weight      string          `json:"weight"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Percentage  decimal.Decimal `json:"percentage"`
		CreatedAt   apiDate         `json:"created_at"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	item, err := s.ledger.CreateItem(r.Context(), ledger.NewItem{
		CustomerID:  req.CustomerID,
		Name:        req.Name,
		Category:    req.Category,
		Weight:      req.Weight,
		Description: req.Description,
		Amount:      req.Amount,
		Percentage:  req.Percentage,
		CreatedAt:   req.CreatedAt.Time,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, item)
}

func (s *Server) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	params, ok := listParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	customerID := uuid.Nil
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, r, "customer_id", "invalid customer id")
			return
		}
		customerID = id
	}

	items, err := s.ledger.ListItems(r.Context(), ledger.ItemFilter{CustomerID: customerID, Name: q.Get("name")}, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

func (s *Server) getItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.ledger.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) updateItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ledger.ItemDetails
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	item, err := s.ledger.UpdateItemDetails(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

func (s *Server) deleteItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteItem(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		InterestAmount  decimal.Decimal `json:"interest_amount"`
		PrincipalAmount decimal.Decimal `json:"principal_amount"`
		PaidAt          apiDate         `json:"paid_at"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	paidAt := req.PaidAt.Time
	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}

	receipt, err := s.ledger.ApplyPayment(r.Context(), id, req.InterestAmount, req.PrincipalAmount, paidAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, receipt)
}

func (s *Server) paymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := s.ledger.GetPaymentHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

func (s *Server) interestStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := s.ledger.GetCurrentInterestStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) interestHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	records, err := s.ledger.GetInterestHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

func (s *Server) calculateInterestHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		FromDate    apiDate         `json:"from_date"`
		ToDate      apiDate         `json:"to_date"`
		MonthlyRate decimal.Decimal `json:"monthly_rate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	quote, err := s.ledger.CalculateStandaloneInterest(req.Amount, req.FromDate.Time, req.ToDate.Time, req.MonthlyRate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, quote)
}

func (s *Server) insightsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.insights.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

func (s *Server) monthlyInsightsHandler(w http.ResponseWriter, r *http.Request) {
	months, ok := queryInt(w, r, "months", 12)
	if !ok {
		return
	}
	series, err := s.insights.Monthly(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, series)
}

func (s *Server) dailyInsightsHandler(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 30)
	if !ok {
		return
	}
	series, err := s.insights.Daily(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, series)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(w, r, name, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// listParams reads page, limit, sort_by and sort_order. Page and limit must be
// positive when given; the ledger treats zero as the default.
func listParams(w http.ResponseWriter, r *http.Request) (ledger.ListParams, bool) {
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return ledger.ListParams{}, false
	}
	limit, ok := queryInt(w, r, "limit", ledger.DefaultPageLimit)
	if !ok {
		return ledger.ListParams{}, false
	}
	if page < 1 {
		badRequest(w, r, "page", "must be at least 1")
		return ledger.ListParams{}, false
	}
	if limit < 1 {
		badRequest(w, r, "limit", "must be at least 1")
		return ledger.ListParams{}, false
	}
	q := r.URL.Query()
	return ledger.ListParams{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}, true
}
