package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"trustgate/api/handlers"
	"trustgate/config"
	"trustgate/core/auth"
	"trustgate/core/csrf"
	"trustgate/core/login"
	"trustgate/core/secmon"
	"trustgate/core/store"
	"trustgate/core/utils"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	cfg        *config.AppConfig
	router     *chi.Mux
	httpServer *http.Server
	db         *sql.DB
	logger     *utils.Logger

	users     store.UsersStore
	sessions  store.SessionsStore
	csrfStore store.CSRFStore
	twoFA     store.TwoFAStore
	attempts  store.AttemptsStore
	events    store.EventsStore
	blocklist store.BlocklistStore

	sessionManager *auth.SessionManager
	csrfManager    *csrf.Manager
	monitor        *secmon.Monitor
	login          *login.Service

	janitor *janitor
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) *Server {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	csrfStore := store.NewCSRFStore(db)
	twoFA := store.NewTwoFAStore(db)
	attempts := store.NewAttemptsStore(db)
	events := store.NewEventsStore(db)
	blocklist := store.NewBlocklistStore(db)

	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	csrfManager := csrf.NewManager(csrfStore, cfg, logger)
	monitor := secmon.NewMonitor(attempts, events, blocklist, cfg, logger)
	loginSvc := login.NewService(users, twoFA, sessionManager, csrfManager, monitor, cfg, logger)

	s := &Server{
		cfg:            cfg,
		router:         chi.NewRouter(),
		db:             db,
		logger:         logger,
		users:          users,
		sessions:       sessions,
		csrfStore:      csrfStore,
		twoFA:          twoFA,
		attempts:       attempts,
		events:         events,
		blocklist:      blocklist,
		sessionManager: sessionManager,
		csrfManager:    csrfManager,
		monitor:        monitor,
		login:          loginSvc,
	}
	s.janitor = newJanitor(s)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.registerObservabilityRoutes()

	authH := handlers.NewAuthHandler(s.cfg, s.login, s.logger, s.cookieWriter())
	twoFAH := handlers.NewTwoFAHandler(s.cfg, s.login, s.logger, s.cookieWriter())
	secH := handlers.NewSecurityHandler(s.cfg, s.attempts, s.events, s.blocklist, s.monitor, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(s.blocklistMiddleware)
		r.Use(s.inspectMiddleware)

		r.MethodFunc(http.MethodGet, "/api/auth/csrf", s.wrapRC(authH.IssueCSRF))
		r.MethodFunc(http.MethodPost, "/api/auth/login", s.rateLimitMiddleware(s.wrapRC(authH.Login)))
		r.MethodFunc(http.MethodPost, "/api/auth/login/2fa", s.rateLimitMiddleware(s.wrapRC(twoFAH.Verify)))
		r.MethodFunc(http.MethodPost, "/api/auth/login/2fa/enroll", s.wrapRC(twoFAH.Enroll))
		r.MethodFunc(http.MethodGet, "/api/auth/login/2fa/enroll/qr", s.wrapRC(twoFAH.EnrollQR))
		r.MethodFunc(http.MethodPost, "/api/auth/logout", s.wrapRC(authH.Logout))

		r.MethodFunc(http.MethodGet, "/api/auth/me", s.withSession(authH.Me))
		r.MethodFunc(http.MethodGet, "/api/auth/ping", s.withSession(authH.Ping))

		r.MethodFunc(http.MethodGet, "/api/security/events", s.withSession(secH.Events))
		r.MethodFunc(http.MethodGet, "/api/security/attempts", s.withSession(secH.Attempts))
		r.MethodFunc(http.MethodGet, "/api/security/blocklist", s.withSession(secH.Blocklist))
		r.MethodFunc(http.MethodDelete, "/api/security/blocklist/{ip}", s.withSession(secH.Unblock))
	})
}

// wrapRC injects the resolved request context so handlers never parse
// cookies or proxy headers themselves.
func (s *Server) wrapRC(next func(http.ResponseWriter, *http.Request, auth.RequestContext)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, s.requestContext(r))
	}
}

func (s *Server) cookieWriter() handlers.CookieWriter {
	return handlers.CookieWriter{
		SessionName: sessionCookie,
		CSRFName:    csrfCookie,
		AnonName:    anonCookie,
		Secure:      s.cfg.TLSEnabled,
		SessionTTL:  s.cfg.EffectiveSessionTTL(),
		PreAuthTTL:  s.cfg.CSRF.PreAuthTTL,
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.janitor.start()
	if s.logger != nil {
		s.logger.Printf("listening on %s (tls=%v)", s.cfg.ListenAddr, s.cfg.TLSEnabled)
	}
	if s.cfg.TLSEnabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.janitor.stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }
