package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/raiox/internal/apperr"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", routePattern(r)),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// clientLimiter keeps one token bucket per client IP. Buckets idle for
// longer than ttl are evicted on the next request.
type clientLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	clients map[string]*clientBucket
	swept   time.Time
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int, ttl time.Duration) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.ttl {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.ttl {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, apperr.RateLimited())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type ctxKey int

const companyKey ctxKey = iota

func withCompany(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyKey, companyID)
}

// companyFrom returns the company that owns the request's assessment, or the
// company in the route, when known.
func companyFrom(r *http.Request) string {
	if id, ok := r.Context().Value(companyKey).(string); ok {
		return id
	}
	return chi.URLParam(r, "companyID")
}

// companyScope rejects requests whose X-Company-ID does not own the
// assessment. A mismatch is reported exactly like a missing assessment.
// Without the header the request passes through and the handler reports
// lookup failures itself.
func (s *Server) companyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		company := r.Header.Get(CompanyHeader)
		a, err := s.deps.Diagnostic.Get(r.Context(), chi.URLParam(r, "id"))
		if company == "" {
			if err == nil {
				r = r.WithContext(withCompany(r.Context(), a.CompanyID))
			}
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			if apperr.Is(err, apperr.CodeNotFound) {
				writeError(w, r, apperr.AccessDenied())
				return
			}
			writeError(w, r, err)
			return
		}
		if a.CompanyID != company {
			zap.L().Warn("api: company scope mismatch",
				zap.String("assessment_id", a.ID),
				zap.String("route", routePattern(r)),
			)
			writeError(w, r, apperr.AccessDenied())
			return
		}
		next.ServeHTTP(w, r.WithContext(withCompany(r.Context(), a.CompanyID)))
	})
}
