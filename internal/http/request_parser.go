package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"
)

const maxBodySize = 1 << 20 // 1 MB

// expenseRequest is the JSON payload for creating or updating an
// expense. Amount is a decimal string; the wire format never uses
// floats.
type expenseRequest struct {
	CategoryID  int64  `json:"category_id"`
	PaidBy      int64  `json:"paid_by"`
	CreatedBy   int64  `json:"created_by"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// periodRequest is the JSON payload for triggering a summary run.
type periodRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// decodeJSON reads a size-capped JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

// toExpense converts the wire payload into a domain expense. Field
// validation beyond parsing is left to core.Expense.Validate.
func (req expenseRequest) toExpense() (core.Expense, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}

	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return core.Expense{}, core.ErrInvalidDate
	}

	return core.Expense{
		CategoryID:  req.CategoryID,
		PaidBy:      req.PaidBy,
		CreatedBy:   req.CreatedBy,
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
		Date:        core.NewDate(parsed.Year(), int(parsed.Month()), parsed.Day()),
	}, nil
}

// parsePeriod extracts year and month query parameters. Both are
// required; there is no implicit "current month" on the API.
func parsePeriod(r *http.Request) (core.Period, error) {
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil {
		return core.Period{}, core.ErrInvalidPeriod
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		return core.Period{}, core.ErrInvalidPeriod
	}

	p := core.Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

// parseID reads a positive integer path value.
func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
