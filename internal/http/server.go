// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/storage"
)

// ExpenseAPI is the expense surface the server exposes.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	ExpenseByID(ctx context.Context, id int64) (core.Expense, error)
	ExpensesForMonth(ctx context.Context, p core.Period) ([]core.Expense, error)
	MonthlyTotal(ctx context.Context, p core.Period) (core.Money, error)
	YearOverview(ctx context.Context, year int) ([]storage.MonthTotal, error)
}

// SummaryAPI is the summary surface the server exposes.
type SummaryAPI interface {
	Summarize(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error)
	SummariesByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error)
	MarkPaid(ctx context.Context, id int64) error
	Statement(ctx context.Context, p core.Period, userID int64) (core.Statement, error)
}

type Server struct {
	http.Server
	expenses    ExpenseAPI
	summaries   SummaryAPI
	logger      *applog.Logger
	rateLimiter *rateLimiter

	// Read caches, invalidated on expense mutations.
	monthCache    *cache.LRU[monthExpensesResponse]
	overviewCache *cache.LRU[yearOverviewResponse]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and returns a ready-to-run http.Server.
// Request logging runs as outermost middleware; rate limiting applies
// to mutations only.
func NewServer(addr string, logger *applog.Logger, expenses ExpenseAPI, summaries SummaryAPI) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.Middleware(logger)(mux),
		},
		expenses:    expenses,
		summaries:   summaries,
		logger:      logger,
		rateLimiter: newRateLimiter(),

		monthCache:       cache.NewLRU[monthExpensesResponse](100, 5*time.Minute),
		overviewCache:    cache.NewLRU[yearOverviewResponse](20, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("POST /expenses", s.withRequestLog(s.handleCreateExpense))
	mux.HandleFunc("PUT /expenses/{id}", s.withRequestLog(s.handleUpdateExpense))
	mux.HandleFunc("GET /expenses/{id}", s.withRequestLog(s.handleGetExpense))
	mux.HandleFunc("GET /expenses", s.withRequestLog(s.handleListExpenses))
	mux.HandleFunc("GET /overview", s.withRequestLog(s.handleYearOverview))

	mux.HandleFunc("POST /summaries/run", s.withRequestLog(s.handleRunSummaries))
	mux.HandleFunc("GET /summaries", s.withRequestLog(s.handleListSummaries))
	mux.HandleFunc("POST /summaries/{id}/paid", s.withRequestLog(s.handleMarkPaid))
	mux.HandleFunc("GET /statements", s.withRequestLog(s.handleStatement))

	return s
}

// startCacheCleanup periodically drops expired cache entries.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			months := s.monthCache.CleanExpired()
			overviews := s.overviewCache.CleanExpired()
			if months > 0 || overviews > 0 {
				s.logger.Debug("Cache cleanup completed",
					"month_entries_removed", months,
					"overview_entries_removed", overviews)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateMonth drops cached reads touched by a mutation on p.
func (s *Server) invalidateMonth(p core.Period) {
	s.monthCache.Delete(monthKey(p))
	s.overviewCache.Delete(strconv.Itoa(p.Year))
}

func monthKey(p core.Period) string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withRequestLog tags each request with an ID and rate-limits
// mutations per client IP.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		// Rate limit mutations only
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

type requestIDKey struct{}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
