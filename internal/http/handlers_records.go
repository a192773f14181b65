package http

import (
	"net/http"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/services"
)

type incomeRequest struct {
	Amount      amountParam `json:"amount"`
	Date        dateParam   `json:"date"`
	SourceID    string      `json:"source_id"`
	AccountType string      `json:"account_type"`
	Description string      `json:"description"`
}

type incomePatchRequest struct {
	Amount      *amountParam `json:"amount"`
	Date        *dateParam   `json:"date"`
	SourceID    *string      `json:"source_id"`
	AccountType *string      `json:"account_type"`
	Description *string      `json:"description"`
}

type expenseRequest struct {
	Amount      amountParam `json:"amount"`
	Date        dateParam   `json:"date"`
	CategoryID  string      `json:"category_id"`
	AccountType string      `json:"account_type"`
	Item        string      `json:"item"`
	Description string      `json:"description"`
}

type expensePatchRequest struct {
	Amount      *amountParam `json:"amount"`
	Date        *dateParam   `json:"date"`
	CategoryID  *string      `json:"category_id"`
	AccountType *string      `json:"account_type"`
	Item        *string      `json:"item"`
	Description *string      `json:"description"`
}

// listPeriod is the month named by the query, or the whole year when only
// a year is given.
func (s *Server) listPeriod(r *http.Request) (core.Period, error) {
	q := r.URL.Query()
	yearOnly := q.Has("year") && !q.Has("month")
	return ParsePeriodParams(q, s.now(), !yearOnly)
}

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	p, err := s.listPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.deps.Records.ListIncome(r.Context(), auth.GetUserID(r.Context()), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list(rows))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.deps.Records.CreateIncome(r.Context(), auth.GetUserID(r.Context()), services.IncomeInput{
		Amount:      req.Amount.Money,
		Date:        req.Date.Date,
		SourceID:    sanitizeInput(req.SourceID),
		AccountType: sanitizeInput(req.AccountType),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, row)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.IncomePatch{
		SourceID:    sanitizePtr(req.SourceID),
		AccountType: sanitizePtr(req.AccountType),
		Description: sanitizePtr(req.Description),
	}
	if req.Amount != nil {
		patch.Amount = &req.Amount.Money
	}
	if req.Date != nil {
		patch.Date = &req.Date.Date
	}
	row, err := s.deps.Records.UpdateIncome(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, row)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Records.DeleteIncome(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p, err := s.listPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.deps.Records.ListExpenses(r.Context(), auth.GetUserID(r.Context()), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list(rows))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := s.deps.Records.CreateExpense(r.Context(), auth.GetUserID(r.Context()), services.ExpenseInput{
		Amount:      req.Amount.Money,
		Date:        req.Date.Date,
		CategoryID:  sanitizeInput(req.CategoryID),
		AccountType: sanitizeInput(req.AccountType),
		Item:        sanitizeInput(req.Item),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, row)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expensePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := services.ExpensePatch{
		CategoryID:  sanitizePtr(req.CategoryID),
		AccountType: sanitizePtr(req.AccountType),
		Item:        sanitizePtr(req.Item),
		Description: sanitizePtr(req.Description),
	}
	if req.Amount != nil {
		patch.Amount = &req.Amount.Money
	}
	if req.Date != nil {
		patch.Date = &req.Date.Date
	}
	row, err := s.deps.Records.UpdateExpense(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, row)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Records.DeleteExpense(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	noContent(w)
}
