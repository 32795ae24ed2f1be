// Package http serves the debtor list and payment screens as HTML pages and
// HTMX partials.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nasiya/internal/attachments"
	"nasiya/internal/auth"
	"nasiya/internal/backend"
	"nasiya/internal/cache"
	"nasiya/internal/log"
	"nasiya/internal/middleware/ratelimit"
	"nasiya/internal/middleware/security"
	"nasiya/internal/middleware/trace"
	"nasiya/internal/screen/customers"
	"nasiya/internal/screen/detail"
	"nasiya/internal/session"
	appweb "nasiya/web"
)

const (
	defaultAwaitTimeout   = 3 * time.Second
	defaultMaxImageBytes  = 5 << 20
	defaultMaxDrafts      = 500
	defaultDraftTTL       = 30 * time.Minute
	cacheCleanupInterval  = 5 * time.Minute
	staticAssetMaxAge     = 3600
	readyCheckTimeout     = 5 * time.Second
	multipartMemoryBudget = 1 << 20
)

// Options configures a Server.
type Options struct {
	Addr    string
	Backend backend.Backend
	Ready   backend.ReadyFunc // nil means always ready

	// Issuer verifies session tokens and signs new ones on login. Nil
	// disables local login; tokens are still forwarded to the backend.
	Issuer      *auth.Issuer
	Credentials auth.Credentials

	SessionTTL    time.Duration
	MaxSessions   int
	DraftTTL      time.Duration
	MaxImageBytes int64
	SecureCookies bool

	// AwaitTimeout bounds how long a partial waits for a fetch before
	// answering with the loading state.
	AwaitTimeout time.Duration
	RateLimit    ratelimit.Config
	Clock        func() time.Time
	Logger       *log.Logger
}

// Server is the HTTP front of the two screens.
type Server struct {
	http.Server

	templates   *template.Template
	backend     backend.Backend
	ready       backend.ReadyFunc
	sessions    *session.Registry
	attachments *attachments.Store
	issuer      *auth.Issuer
	credentials auth.Credentials

	logger           *log.Logger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager

	awaitTimeout  time.Duration
	maxImageBytes int64
	secureCookies bool
	appMetrics    *appMetrics
	shutdownOnce  sync.Once
}

type appMetrics struct {
	uptime            time.Time
	paymentsSubmitted atomic.Int64
	paymentFailures   atomic.Int64
	starToggles       atomic.Int64
	starFailures      atomic.Int64
	imagesAttached    atomic.Int64
	loginFailures     atomic.Int64
	renderErrors      atomic.Int64
}

// NewServer wires templates, sessions and middleware around opts.Backend.
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("http server requires a backend")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = defaultAwaitTimeout
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = defaultMaxImageBytes
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = defaultDraftTTL
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	store := attachments.NewStore(defaultMaxDrafts, opts.DraftTTL, opts.MaxImageBytes)
	screenLogger := opts.Logger.Logger
	factory := session.Factory{
		Customers: func() *customers.Controller {
			return customers.NewController(opts.Backend, opts.Backend, screenLogger)
		},
		Detail: func(id string) *detail.Controller {
			return detail.NewController(id, detail.Deps{
				Backend:     opts.Backend,
				Stars:       opts.Backend,
				Attachments: store,
				Clock:       opts.Clock,
				Logger:      screenLogger,
			})
		},
	}
	registry := session.NewRegistry(factory, session.Options{
		MaxSessions:  opts.MaxSessions,
		TTL:          opts.SessionTTL,
		SecureCookie: opts.SecureCookies,
		Logger:       screenLogger,
	})

	cacheManager := cache.NewManager(screenLogger.With(log.FieldComponent, "cache"))
	cacheManager.Register("sessions", registry.Cleaner())
	for name, c := range store.Caches() {
		cacheManager.Register(name, c)
	}
	cacheManager.StartCleanup(cacheCleanupInterval)

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		templates:        tmpl,
		backend:          opts.Backend,
		ready:            opts.Ready,
		sessions:         registry,
		attachments:      store,
		issuer:           opts.Issuer,
		credentials:      opts.Credentials,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, opts.Logger),
		cacheManager:     cacheManager,
		awaitTimeout:     opts.AwaitTimeout,
		maxImageBytes:    opts.MaxImageBytes,
		secureCookies:    opts.SecureCookies,
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.Handler = s.middleware(s.routes())
	return s, nil
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticAssetMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Customer List
	mux.HandleFunc("GET /products", s.handleProductsPage)
	mux.HandleFunc("GET /ui/products", s.handleProductsPartial)
	mux.HandleFunc("POST /ui/products/{id}/star", s.handleProductsStar)

	// Customer Detail / Payment
	mux.HandleFunc("GET /news/{id}", s.handleNewsPage)
	mux.HandleFunc("GET /ui/news/{id}", s.handleNewsPartial)
	mux.HandleFunc("POST /ui/news/{id}/form", s.handleOpenForm)
	mux.HandleFunc("POST /ui/news/{id}/form/cancel", s.handleCancelForm)
	mux.HandleFunc("POST /ui/news/{id}/form/images/{slot}", s.handleAttachImage)
	mux.HandleFunc("POST /ui/news/{id}/payments", s.handleSubmitPayment)
	mux.HandleFunc("POST /ui/news/{id}/star", s.handleNewsStar)
	mux.Handle("GET /drafts/previews/{handle}", security.NoStoreMiddleware(http.HandlerFunc(s.handlePreview)))

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /create-debtor", s.handlePlaceholder("Yangi mijoz"))
	mux.HandleFunc("GET /profile", s.handlePlaceholder("Profil"))

	return mux
}

// middleware applies, outermost first: tracing, security headers, probe
// detection, token extraction and POST rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(next)
	h = auth.Middleware(s.issuer)(h)
	h = s.securityDetector.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.traceMiddleware.Middleware(h)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "60").
		TriggerErrorNotification("Juda ko'p so'rov. Birozdan so'ng urinib ko'ring").
		BodyString("rate limit exceeded").
		Write(w)
}

// Shutdown stops background cleanup, ends every session and drains the
// listener. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		n := s.sessions.Close()
		s.attachments.Close()
		s.logger.Info("Sessions closed", "count", n)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
