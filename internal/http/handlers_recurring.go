package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"conti/internal/core"
	applog "conti/internal/log"
)

const processFailedMessage = "failed to process recurring transactions"

type processRecurringRequest struct {
	TargetDate *core.Date `json:"target_date"`
}

type processRecurringResponse struct {
	Created int `json:"created"`
}

// handleProcessRecurring materializes the caller's recurring templates up to
// target_date (today when omitted). With ?async=true the run is queued for the
// worker and 202 is returned.
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentRecurring)

	var req processRecurringRequest
	if err := DecodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		BadRequestError(err.Error()).Write(w)
		return
	}
	target := req.TargetDate
	if target != nil && target.IsZero() {
		target = nil
	}

	async := false
	if v := strings.TrimSpace(r.URL.Query().Get("async")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			BadRequestError("invalid async flag").Write(w)
			return
		}
		async = b
	}

	if async {
		if s.svc.Queue == nil {
			ErrorResponse(http.StatusServiceUnavailable, "asynchronous processing is not available").Write(w)
			return
		}
		if err := s.svc.Queue.PublishMaterializeRequest(ctx, userID, target); err != nil {
			logger.LogError(ctx, "Failed to queue recurring processing", err,
				applog.ErrorTypeNetwork, applog.OpMaterialize, applog.NewFields().WithUser(userID))
			InternalServerError(processFailedMessage).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusAccepted).Body(map[string]string{"status": "queued"}).Write(w)
		return
	}

	created, err := s.svc.Recurring.ProcessRecurringTransactions(ctx, userID, target)
	if created > 0 {
		s.invalidateUser(userID)
	}
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			UnprocessableEntityError(ve.Msg).Write(w)
			return
		}
		logger.LogError(ctx, "Recurring processing failed", err,
			applog.ErrorTypeDatabase, applog.OpMaterialize,
			applog.NewFields().WithUser(userID).WithMaterialization(userID, dateString(target), created))
		InternalServerError(processFailedMessage).Write(w)
		return
	}

	logger.InfoContext(ctx, "Recurring processing done",
		applog.NewFields().WithMaterialization(userID, dateString(target), created).ToSlice()...)
	NewJSONResponse().Body(processRecurringResponse{Created: created}).Write(w)
}

func dateString(d *core.Date) string {
	if d == nil {
		return "today"
	}
	return d.String()
}
