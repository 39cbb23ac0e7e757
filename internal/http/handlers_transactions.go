package http

import (
	"errors"
	"net/http"
	"time"

	"conti/internal/core"
	applog "conti/internal/log"
)

type transactionRequest struct {
	Title          string              `json:"title"`
	Amount         core.Money          `json:"amount"`
	CategoryID     *string             `json:"category_id"`
	Notes          string              `json:"notes"`
	Date           core.Date           `json:"date"`
	Status         core.Status         `json:"status"`
	RecurrenceType core.RecurrenceType `json:"recurrence_type"`
	RecurrenceDay  *int                `json:"recurrence_day"`
}

func (req transactionRequest) toDomain(userID string) core.Transaction {
	t := core.Transaction{
		UserID:         userID,
		Title:          sanitizeInput(req.Title),
		Amount:         req.Amount,
		CategoryID:     req.CategoryID,
		Notes:          sanitizeInput(req.Notes),
		Date:           req.Date,
		Status:         req.Status,
		RecurrenceType: req.RecurrenceType,
		RecurrenceDay:  req.RecurrenceDay,
	}
	if t.Date.IsZero() {
		t.Date = core.DateOf(time.Now().UTC())
	}
	return t
}

type transactionResponse struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Amount           core.Money          `json:"amount"`
	CategoryID       *string             `json:"category_id"`
	Notes            string              `json:"notes,omitempty"`
	Date             core.Date           `json:"date"`
	Status           core.Status         `json:"status"`
	RecurrenceType   core.RecurrenceType `json:"recurrence_type"`
	RecurrenceDay    *int                `json:"recurrence_day,omitempty"`
	IsRecurring      bool                `json:"is_recurring"`
	SourceTemplateID *string             `json:"source_template_id,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		Title:            t.Title,
		Amount:           t.Amount,
		CategoryID:       t.CategoryID,
		Notes:            t.Notes,
		Date:             t.Date,
		Status:           t.Status,
		RecurrenceType:   t.RecurrenceType,
		RecurrenceDay:    t.RecurrenceDay,
		IsRecurring:      t.IsRecurring,
		SourceTemplateID: t.SourceTemplateID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		DomainError(err, "invalid filter").Write(w)
		return
	}

	key := listCacheKey(userID, f)
	items, ok := s.listCache.Get(key)
	if !ok {
		items, err = s.svc.Transactions.ListTransactions(ctx, userID, f)
		if err != nil {
			applog.FromContext(ctx).LogError(ctx, "Failed to list transactions", err,
				applog.ErrorTypeDatabase, applog.OpList, applog.NewFields().WithUser(userID))
			InternalServerError("failed to list transactions").Write(w)
			return
		}
		s.listCache.Set(key, items)
	}

	out := make([]transactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionResponse(t))
	}
	NewJSONResponse().Body(map[string]any{"transactions": out}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	saved, err := s.svc.Transactions.CreateTransaction(ctx, req.toDomain(userID))
	if err != nil {
		s.logWriteError(r, "Failed to create transaction", err, applog.OpCreate, userID)
		DomainError(err, "failed to save transaction").Write(w)
		return
	}

	s.invalidateUser(userID)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+saved.ID).
		Body(toTransactionResponse(saved)).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	t, err := s.svc.Transactions.GetTransaction(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logWriteError(r, "Failed to get transaction", err, applog.OpRead, userID)
		}
		DomainError(err, "failed to load transaction").Write(w)
		return
	}
	NewJSONResponse().Body(toTransactionResponse(t)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	t := req.toDomain(userID)
	t.ID = r.PathValue("id")

	updated, err := s.svc.Transactions.UpdateTransaction(r.Context(), t)
	if err != nil {
		s.logWriteError(r, "Failed to update transaction", err, applog.OpUpdate, userID)
		DomainError(err, "failed to update transaction").Write(w)
		return
	}

	s.invalidateUser(userID)
	NewJSONResponse().Body(toTransactionResponse(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.svc.Transactions.DeleteTransaction(r.Context(), userID, r.PathValue("id")); err != nil {
		s.logWriteError(r, "Failed to delete transaction", err, applog.OpDelete, userID)
		DomainError(err, "failed to delete transaction").Write(w)
		return
	}

	s.invalidateUser(userID)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// logWriteError logs unexpected failures; client mistakes are logged at debug.
func (s *Server) logWriteError(r *http.Request, msg string, err error, op, userID string) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if core.IsValidationError(err) || errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrConflict) {
		logger.DebugContext(ctx, msg, applog.FieldUserID, userID, applog.FieldOperation, op, applog.FieldError, err)
		return
	}
	logger.LogError(ctx, msg, err, applog.ErrorTypeInternal, op, applog.NewFields().WithUser(userID))
}
