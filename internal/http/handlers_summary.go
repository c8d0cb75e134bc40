package http

import (
	"net/http"
	"strconv"
	"strings"

	"gastos/internal/core"
)

type summaryResponse struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	TotalAmount   string `json:"total_amount"`
	TotalDiscount string `json:"total_discount"`
	ToPay         string `json:"to_pay"`
	Paid          bool   `json:"paid"`
}

func toSummaryResponse(s core.ExpenseShareSummary) summaryResponse {
	return summaryResponse{
		ID:            s.ID,
		UserID:        s.UserID,
		Year:          s.Year,
		Month:         s.Month,
		TotalAmount:   s.TotalAmount.Exact(),
		TotalDiscount: s.TotalDiscount.Exact(),
		ToPay:         s.ToPay.Exact(),
		Paid:          s.Paid,
	}
}

type statementLineResponse struct {
	Date          string `json:"date"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	ExpenseAmount string `json:"expense_amount"`
	Amount        string `json:"amount"`
	Discount      string `json:"discount"`
}

type statementResponse struct {
	UserID   int64                   `json:"user_id"`
	Username string                  `json:"username"`
	Year     int                     `json:"year"`
	Month    int                     `json:"month"`
	Lines    []statementLineResponse `json:"lines"`
	Subtotal string                  `json:"subtotal"`
	Discount string                  `json:"discount"`
	Total    string                  `json:"total"`
}

func (s *Server) handleRunSummaries(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	summaries, err := s.summaries.Summarize(r.Context(), core.Period{Year: req.Year, Month: req.Month})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]summaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp = append(resp, toSummaryResponse(sum))
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summaries, err := s.summaries.SummariesByPeriod(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]summaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp = append(resp, toSummaryResponse(sum))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	if err := s.summaries.MarkPaid(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("user_id")), 10, 64)
	if err != nil || userID < 1 {
		badRequest(w, r, "invalid user_id")
		return
	}

	statement, err := s.summaries.Statement(r.Context(), p, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := statementResponse{
		UserID:   statement.UserID,
		Username: statement.Username,
		Year:     statement.Period.Year,
		Month:    statement.Period.Month,
		Lines:    make([]statementLineResponse, 0, len(statement.Lines)),
		Subtotal: statement.Subtotal.Exact(),
		Discount: statement.Discount.Exact(),
		Total:    statement.Total.Exact(),
	}
	for _, line := range statement.Lines {
		resp.Lines = append(resp.Lines, statementLineResponse{
			Date:          line.Date.Format("2006-01-02"),
			Category:      line.Category,
			Description:   line.Description,
			ExpenseAmount: line.ExpenseAmount.Exact(),
			Amount:        line.Amount.Exact(),
			Discount:      line.Discount.Exact(),
		})
	}

	writeJSON(w, r, http.StatusOK, resp)
}
