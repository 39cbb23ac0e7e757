package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/storage/memory"
)

type fakeQueue struct {
	mu      sync.Mutex
	users   []string
	targets []*core.Date
	err     error
}

func (q *fakeQueue) PublishMaterializeRequest(_ context.Context, userID string, target *core.Date) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.users = append(q.users, userID)
	q.targets = append(q.targets, target)
	return q.err
}

type failingProcessor struct{ err error }

func (p failingProcessor) ProcessRecurringTransactions(context.Context, string, *core.Date) (int, error) {
	return 0, p.err
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

type testEnv struct {
	srv   *Server
	store *memory.Store
	queue *fakeQueue
}

func newTestEnv(t *testing.T, mutate ...func(*Services, *Options)) *testEnv {
	t.Helper()
	store := memory.New()
	queue := &fakeQueue{}
	svc := Services{
		Transactions: services.NewTransactionService(store, nil),
		Recurring:    services.NewRecurringProcessor(store, nil),
		Queue:        queue,
		Readiness:    store,
	}
	opts := Options{
		RateLimitPerMinute: 1000,
		Logger:             applog.New(applog.Config{Component: applog.ComponentHTTP, Output: &bytes.Buffer{}}),
	}
	for _, m := range mutate {
		m(&svc, &opts)
	}

	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type listBody struct {
	Transactions []map[string]any `json:"transactions"`
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestEnv(t, func(s *Services, _ *Options) { s.Readiness = failingPinger{} })
	rec = down.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSecurityAndTraceHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/transactions", "/api/categories"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := env.do(t, http.MethodPost, "/api/recurring/process", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"title":  "Groceries",
		"amount": "42.50",
		"date":   "2024-05-10",
		"status": "paid",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	id := created["id"].(string)
	assert.Equal(t, "/api/transactions/"+id, rec.Header().Get("Location"))
	assert.Equal(t, "42.50", created["amount"])
	assert.Equal(t, "2024-05-10", created["date"])
	assert.Equal(t, "none", created["recurrence_type"])
	assert.Equal(t, false, created["is_recurring"])

	rec = env.do(t, http.MethodGet, "/api/transactions/"+id, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions/"+id, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot see it")

	rec = env.do(t, http.MethodPut, "/api/transactions/"+id, "u1", map[string]any{
		"title":  "Groceries",
		"amount": 40,
		"date":   "2024-05-10",
		"status": "unpaid",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, "40.00", updated["amount"])
	assert.Equal(t, "unpaid", updated["status"])

	rec = env.do(t, http.MethodDelete, "/api/transactions/"+id, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/transactions/"+id, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTransaction_BadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"malformed json", `{"title":`, http.StatusBadRequest},
		{"unknown field", map[string]any{"title": "x", "amount": "1", "colour": "red"}, http.StatusBadRequest},
		{"bad amount", map[string]any{"title": "x", "amount": "abc"}, http.StatusBadRequest},
		{"zero amount", map[string]any{"title": "x", "amount": "0"}, http.StatusUnprocessableEntity},
		{"missing title", map[string]any{"amount": "5"}, http.StatusUnprocessableEntity},
		{"bad recurrence day", map[string]any{"title": "x", "amount": "5", "recurrence_type": "weekly", "recurrence_day": 9}, http.StatusUnprocessableEntity},
		{"unknown category", map[string]any{"title": "x", "amount": "5", "category_id": "nope"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/transactions", "u1", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestListTransactions_FiltersAndCache(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []map[string]any{
		{"title": "A", "amount": "1", "date": "2024-05-01", "status": "paid"},
		{"title": "B", "amount": "2", "date": "2024-05-02"},
		{"title": "Rent", "amount": "900", "date": "2024-05-01", "recurrence_type": "monthly", "recurrence_day": 1},
	} {
		rec := env.do(t, http.MethodPost, "/api/transactions", "u1", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/transactions", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listBody](t, rec).Transactions, 3)

	rec = env.do(t, http.MethodGet, "/api/transactions?status=paid", "u1", nil)
	assert.Len(t, decode[listBody](t, rec).Transactions, 1)

	rec = env.do(t, http.MethodGet, "/api/transactions?recurring=true", "u1", nil)
	assert.Len(t, decode[listBody](t, rec).Transactions, 1)

	rec = env.do(t, http.MethodGet, "/api/transactions?from=2024-05-02&to=2024-05-31", "u1", nil)
	assert.Len(t, decode[listBody](t, rec).Transactions, 1)

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=0", "u1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// A write drops the user's cached listings.
	rec = env.do(t, http.MethodPost, "/api/transactions", "u1", map[string]any{"title": "C", "amount": "3", "date": "2024-05-03"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/transactions", "u1", nil)
	assert.Len(t, decode[listBody](t, rec).Transactions, 4)

	rec = env.do(t, http.MethodGet, "/api/transactions", "u2", nil)
	assert.Empty(t, decode[listBody](t, rec).Transactions)
}

func TestProcessRecurring(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"title": "Rent", "amount": "950.00", "date": "2024-01-31",
		"recurrence_type": "monthly", "recurrence_day": 31,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Prime the list cache; processing must invalidate it.
	rec = env.do(t, http.MethodGet, "/api/transactions", "u1", nil)
	require.Len(t, decode[listBody](t, rec).Transactions, 1)

	rec = env.do(t, http.MethodPost, "/api/recurring/process", "u1", map[string]any{"target_date": "2024-03-31"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[processRecurringResponse](t, rec).Created)

	rec = env.do(t, http.MethodGet, "/api/transactions?recurring=false", "u1", nil)
	items := decode[listBody](t, rec).Transactions
	require.Len(t, items, 4)
	var generated []string
	for _, item := range items {
		if item["source_template_id"] != nil {
			generated = append(generated, item["date"].(string))
			assert.Equal(t, "unpaid", item["status"])
			assert.Equal(t, "950.00", item["amount"])
		}
	}
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, generated)

	rec = env.do(t, http.MethodPost, "/api/recurring/process", "u1", map[string]any{"target_date": "2024-03-31"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[processRecurringResponse](t, rec).Created)
}

func TestProcessRecurring_EmptyBodyDefaultsToToday(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/recurring/process", "nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"created":0}`, rec.Body.String())
}

func TestProcessRecurring_Async(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/recurring/process?async=true", "u1", map[string]any{"target_date": "2024-06-30"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Equal(t, []string{"u1"}, env.queue.users)
	require.NotNil(t, env.queue.targets[0])
	assert.Equal(t, "2024-06-30", env.queue.targets[0].String())

	noQueue := newTestEnv(t, func(s *Services, _ *Options) { s.Queue = nil })
	rec = noQueue.do(t, http.MethodPost, "/api/recurring/process?async=1", "u1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/recurring/process?async=maybe", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessRecurring_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		message string
	}{
		{"storage failure", errors.New("database is locked"), http.StatusInternalServerError, processFailedMessage},
		{"validation failure", core.NewValidationError("empty user id"), http.StatusUnprocessableEntity, "empty user id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(s *Services, _ *Options) { s.Recurring = failingProcessor{err: tt.err} })
			rec := env.do(t, http.MethodPost, "/api/recurring/process", "u1", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.message, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestProcessRecurring_BadTargetDate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/recurring/process", "u1", `{"target_date":"31/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/categories", "u1", map[string]any{"name": "Food"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cat := decode[categoryResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/api/categories", "u1", map[string]any{"name": "Food"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/categories", "u1", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/transactions", "u1", map[string]any{
		"title": "Pizza", "amount": "12", "date": "2024-05-01", "category_id": cat.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	txID := decode[map[string]any](t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/categories", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"Food"`))

	rec = env.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/transactions/"+txID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[map[string]any](t, rec)["category_id"])

	rec = env.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *Services, o *Options) { o.RateLimitPerMinute = 2 })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/categories", "u1", map[string]any{"name": "c" + string(rune('a'+i))})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// Reads are not limited.
	rec := env.do(t, http.MethodGet, "/api/categories", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMonthSummary(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []map[string]any{
		{"title": "Lunch", "amount": "12.50", "date": "2024-03-04", "status": "paid"},
		{"title": "Dinner", "amount": "30", "date": "2024-03-20"},
		{"title": "Next month", "amount": "99", "date": "2024-04-01"},
	} {
		rec := env.do(t, http.MethodPost, "/api/transactions", "u1", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/summary?year=2024&month=3", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), got["count"])
	assert.Equal(t, "42.50", got["total"])
	assert.Equal(t, "12.50", got["paid"])
	assert.Equal(t, "30.00", got["unpaid"])

	rec = env.do(t, http.MethodGet, "/api/summary?year=2024&month=3", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/summary?month=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/summary?year=2024&month=0", "u1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
