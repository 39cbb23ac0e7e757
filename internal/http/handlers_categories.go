package http

import (
	"net/http"
	"time"

	"conti/internal/core"
	applog "conti/internal/log"
)

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	cats, err := s.svc.Transactions.ListCategories(ctx, userID)
	if err != nil {
		applog.FromContext(ctx).LogError(ctx, "Failed to list categories", err,
			applog.ErrorTypeDatabase, applog.OpList, applog.NewFields().WithUser(userID))
		InternalServerError("failed to list categories").Write(w)
		return
	}

	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryResponse(c))
	}
	NewJSONResponse().Body(map[string]any{"categories": out}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, userID string) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	saved, err := s.svc.Transactions.CreateCategory(r.Context(), core.Category{
		UserID: userID,
		Name:   sanitizeInput(req.Name),
	})
	if err != nil {
		s.logWriteError(r, "Failed to create category", err, applog.OpCreate, userID)
		DomainError(err, "failed to save category").Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(toCategoryResponse(saved)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.svc.Transactions.DeleteCategory(r.Context(), userID, r.PathValue("id")); err != nil {
		s.logWriteError(r, "Failed to delete category", err, applog.OpDelete, userID)
		DomainError(err, "failed to delete category").Write(w)
		return
	}

	// Transactions lose their category; cached lists are stale.
	s.invalidateUser(userID)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
