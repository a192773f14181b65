// Package http serves the JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/middleware/ratelimit"
	"kharcha/internal/middleware/security"
	"kharcha/internal/middleware/trace"
	"kharcha/internal/services"

	"github.com/rs/cors"
)

// SessionHeader optionally names a client view session, such as one
// browser tab, for the summary stale guard.
const (
	SessionHeader    = "X-Client-Session"
	maxSessionHeader = 64
)

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call into.
type Deps struct {
	Auth     *services.AuthService
	Tokens   *auth.JWTManager
	Taxonomy *services.TaxonomyService
	Records  *services.RecordService
	Summary  *services.SummaryService
	Backend  Pinger
	Metrics  *metrics.Metrics
}

type Options struct {
	CORSOrigins        []string
	RateLimitPerMinute int

	// Now is the clock used for default periods; nil means time.Now.
	Now func() time.Time

	// Logger is installed in every request context; nil uses the slog
	// default handler.
	Logger *log.Logger
}

type Server struct {
	http.Server
	deps     Deps
	limiter  *ratelimit.Limiter
	detector *security.Detector
	guard    *services.StaleGuard
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentHTTP})
	}
	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		guard:    services.NewStaleGuard(),
		now:      opts.Now,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Writes(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", trace.RequestHeader, SessionHeader},
		ExposedHeaders:   []string{trace.RequestHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = trace.NewMiddleware(s.detector.ExtractClientIP, deps.Metrics).Middleware(handler)
	handler = log.Middleware(opts.Logger)(handler)

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

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/login", s.handleLogIn)
	mux.Handle("POST /api/auth/logout", s.authed(s.handleLogOut))
	mux.Handle("GET /api/auth/me", s.authed(s.handleMe))

	s.taxonomyRoutes(mux, "/api/categories", core.KindCategory)
	s.taxonomyRoutes(mux, "/api/income-sources", core.KindIncomeSource)
	s.taxonomyRoutes(mux, "/api/account-types", core.KindAccountType)

	mux.Handle("GET /api/income", s.authed(s.handleListIncome))
	mux.Handle("POST /api/income", s.authed(s.handleCreateIncome))
	mux.Handle("PATCH /api/income/{id}", s.authed(s.handleUpdateIncome))
	mux.Handle("DELETE /api/income/{id}", s.authed(s.handleDeleteIncome))

	mux.Handle("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.authed(s.handleCreateExpense))
	mux.Handle("PATCH /api/expenses/{id}", s.authed(s.handleUpdateExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.authed(s.handleDeleteExpense))

	mux.Handle("GET /api/summary/month", s.authed(s.handleMonthSummary))
	mux.Handle("GET /api/summary/year", s.authed(s.handleYearSummary))
	mux.Handle("GET /api/export", s.authed(s.handleExport))
}

// authed requires a valid bearer token and puts its claims on the context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, auth.ErrMissingToken)
			return
		}
		claims, err := s.deps.Tokens.Validate(token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithClaims(r.Context(), claims)
		trace.SetUserID(ctx, claims.UserID)
		next(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
		Error:     "rate limit exceeded, please try again later",
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Backend.Ping(ctx); err != nil {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
