package http

import (
	"net/http"
	"strconv"
	"time"

	"conti/internal/core"
	applog "conti/internal/log"
)

type categoryAmountResponse struct {
	CategoryID *string    `json:"category_id"`
	Name       string     `json:"name"`
	Amount     core.Money `json:"amount"`
}

type monthSummaryResponse struct {
	Year       int                      `json:"year"`
	Month      int                      `json:"month"`
	Count      int                      `json:"count"`
	Total      core.Money               `json:"total"`
	Paid       core.Money               `json:"paid"`
	Unpaid     core.Money               `json:"unpaid"`
	ByCategory []categoryAmountResponse `json:"by_category"`
}

func toMonthSummaryResponse(ov core.MonthOverview) monthSummaryResponse {
	out := monthSummaryResponse{
		Year:       ov.Year,
		Month:      ov.Month,
		Count:      ov.Count,
		Total:      ov.Total,
		Paid:       ov.Paid,
		Unpaid:     ov.Unpaid,
		ByCategory: make([]categoryAmountResponse, 0, len(ov.ByCategory)),
	}
	for _, ca := range ov.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountResponse{
			CategoryID: ca.CategoryID,
			Name:       ca.Name,
			Amount:     ca.Amount,
		})
	}
	return out
}

// handleMonthSummary serves GET /api/summary?year=&month=, defaulting to the
// current UTC month.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request, userID string) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())

	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			BadRequestError("invalid year").Write(w)
			return
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			BadRequestError("invalid month").Write(w)
			return
		}
		month = n
	}

	ctx := r.Context()
	ov, err := s.svc.Transactions.MonthSummary(ctx, userID, year, month)
	if err != nil {
		if !core.IsValidationError(err) {
			applog.FromContext(ctx).LogError(ctx, "Failed to build month summary", err,
				applog.ErrorTypeDatabase, applog.OpList, applog.NewFields().WithUser(userID))
		}
		DomainError(err, "failed to build summary").Write(w)
		return
	}

	NewJSONResponse().Body(toMonthSummaryResponse(ov)).Write(w)
}
