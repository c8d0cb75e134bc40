package http

import (
	"net/http"
	"strconv"
	"strings"

	"gastos/internal/core"
)

type expenseResponse struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	PaidBy      int64  `json:"paid_by"`
	CreatedBy   int64  `json:"created_by"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		CategoryID:  e.CategoryID,
		PaidBy:      e.PaidBy,
		CreatedBy:   e.CreatedBy,
		Amount:      e.Amount.Exact(),
		Description: e.Description,
		Date:        e.Date.Format("2006-01-02"),
	}
}

type monthExpensesResponse struct {
	Year     int               `json:"year"`
	Month    int               `json:"month"`
	Total    string            `json:"total"`
	Expenses []expenseResponse `json:"expenses"`
}

type yearOverviewResponse struct {
	Year   int                  `json:"year"`
	Months []monthTotalResponse `json:"months"`
}

type monthTotalResponse struct {
	Month int    `json:"month"`
	Total string `json:"total"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	expense, err := req.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateMonth(core.Period{Year: created.Date.Year(), Month: created.Date.Month()})

	writeJSON(w, r, http.StatusCreated, toExpenseResponse(created))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	expense, err := req.toExpense()
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense.ID = id

	updated, err := s.expenses.UpdateExpense(r.Context(), expense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateMonth(core.Period{Year: updated.Date.Year(), Month: updated.Date.Month()})

	writeJSON(w, r, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	expense, err := s.expenses.ExpenseByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toExpenseResponse(expense))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if cached, ok := s.monthCache.Get(monthKey(p)); ok {
		writeJSON(w, r, http.StatusOK, cached)
		return
	}

	expenses, err := s.expenses.ExpensesForMonth(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	total, err := s.expenses.MonthlyTotal(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := monthExpensesResponse{
		Year:     p.Year,
		Month:    p.Month,
		Total:    total.Exact(),
		Expenses: make([]expenseResponse, 0, len(expenses)),
	}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, toExpenseResponse(e))
	}
	s.monthCache.Set(monthKey(p), resp)

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleYearOverview(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		writeError(w, r, core.ErrInvalidPeriod)
		return
	}

	if cached, ok := s.overviewCache.Get(strconv.Itoa(year)); ok {
		writeJSON(w, r, http.StatusOK, cached)
		return
	}

	totals, err := s.expenses.YearOverview(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := yearOverviewResponse{
		Year:   year,
		Months: make([]monthTotalResponse, 0, len(totals)),
	}
	for _, t := range totals {
		resp.Months = append(resp.Months, monthTotalResponse{
			Month: t.Month,
			Total: t.Total.Exact(),
		})
	}
	s.overviewCache.Set(strconv.Itoa(year), resp)

	writeJSON(w, r, http.StatusOK, resp)
}
