package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"conti/internal/cache"
	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
)

// Ports the handlers depend on.
type (
	TransactionService interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
		DeleteCategory(ctx context.Context, userID, id string) error
		MonthSummary(ctx context.Context, userID string, year, month int) (core.MonthOverview, error)
	}

	RecurringProcessor interface {
		ProcessRecurringTransactions(ctx context.Context, userID string, target *core.Date) (int, error)
	}

	// MaterializeQueue hands a processing run to the background worker.
	MaterializeQueue interface {
		PublishMaterializeRequest(ctx context.Context, userID string, target *core.Date) error
	}

	ReadinessChecker interface {
		Ping(ctx context.Context) error
	}
)

// Services groups the dependencies of the server. Queue and Readiness may be nil.
type Services struct {
	Transactions TransactionService
	Recurring    RecurringProcessor
	Queue        MaterializeQueue
	Readiness    ReadinessChecker
}

type Options struct {
	RateLimitPerMinute int
	ListCacheSize      int
	ListCacheTTL       time.Duration
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	svc    Services
	logger *applog.Logger

	ipResolver  *security.IPResolver
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	listCache    *cache.LRUCache[[]core.Transaction]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.ListCacheSize <= 0 {
		opts.ListCacheSize = 500
	}
	if opts.ListCacheTTL <= 0 {
		opts.ListCacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}

	s := &Server{
		svc:        svc,
		logger:     opts.Logger,
		ipResolver: security.MustIPResolver(security.DefaultTrustedProxies),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		listCache:    cache.NewLRUCache[[]core.Transaction](opts.ListCacheSize, opts.ListCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(s.ipResolver.ClientIP, opts.Logger.Logger)
	s.cacheManager.Register(s.listCache)
	s.cacheManager.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/recurring/process", s.limitWrites(s.withUser(s.handleProcessRecurring)))

	mux.HandleFunc("GET /api/transactions", s.withUser(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.limitWrites(s.withUser(s.handleCreateTransaction)))
	mux.HandleFunc("GET /api/transactions/{id}", s.withUser(s.handleGetTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.limitWrites(s.withUser(s.handleUpdateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.limitWrites(s.withUser(s.handleDeleteTransaction)))

	mux.HandleFunc("GET /api/categories", s.withUser(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.limitWrites(s.withUser(s.handleCreateCategory)))
	mux.HandleFunc("DELETE /api/categories/{id}", s.limitWrites(s.withUser(s.handleDeleteCategory)))

	mux.HandleFunc("GET /api/summary", s.withUser(s.handleMonthSummary))

	var handler http.Handler = mux
	handler = applog.Middleware(opts.Logger, trace.GetRequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type userHandlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// withUser rejects requests without a usable X-User-ID header.
func (s *Server) withUser(next userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromRequest(r)
		if !ok {
			ErrorResponse(http.StatusUnauthorized, "missing or invalid "+HeaderUserID+" header").Write(w)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) limitWrites(next http.HandlerFunc) http.HandlerFunc {
	limited := s.rateLimiter.Middleware(s.ipResolver.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.ipResolver.ClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})(next)
	return limited.ServeHTTP
}

func (s *Server) invalidateUser(userID string) {
	s.listCache.DeletePrefix(userID + "|")
}

func listCacheKey(userID string, f core.TransactionFilter) string {
	return userID + "|" + f.Key()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Readiness.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
