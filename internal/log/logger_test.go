package log

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_ComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentRecurring, Output: &buf})

	l.LogError(context.Background(), "Processing failed", errors.New("boom"),
		ErrorTypeDatabase, OpMaterialize, NewFields().WithUser("u1"))

	out := buf.String()
	assert.Contains(t, out, "component=recurring")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "error_type=database_error")
	assert.Contains(t, out, "operation=materialize")
	assert.Contains(t, out, "user_id=u1")
}

func TestMiddleware_RequestScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})

	h := Middleware(base, func(context.Context) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("Handling")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "request_id=req_1")
	assert.Contains(t, buf.String(), "component=http")
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(context.Background())
	assert.NotNil(t, l.Logger)
	assert.Equal(t, "unknown", l.Component())
}
