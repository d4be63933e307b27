package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"smart-todo/internal/ai"
	"smart-todo/internal/analytics"
	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/calendar"
	"smart-todo/internal/config"
	"smart-todo/internal/db"
	"smart-todo/internal/httpjson"
	"smart-todo/internal/observability"
)

func main() {
	log := observability.Logger()

	cfg := config.Load()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			log.Error("failed to load config file", "path", path, "error", err)
			os.Exit(1)
		}
	}

	var (
		store    auth.Store
		recorder analytics.Recorder
		database *sql.DB
	)
	switch cfg.StorageBackend {
	case "postgres":
		var err error
		database, err = db.Connect(cfg.ConnString())
		if err != nil {
			log.Error("failed to connect DB", "error", err)
			os.Exit(1)
		}
		defer database.Close()

		if err := db.Migrate(context.Background(), database); err != nil {
			log.Error("failed to migrate DB", "error", err)
			os.Exit(1)
		}
		log.Info("connected to PostgreSQL")

		store = auth.NewPostgresStore(database)
		recorder = analytics.NewPostgresRecorder(database)
	case "memory", "":
		store = auth.NewMemoryStore()
		recorder = analytics.LogRecorder{}
	default:
		log.Error("unknown storage backend", "backend", cfg.StorageBackend)
		os.Exit(1)
	}

	outbound := &http.Client{Timeout: cfg.HTTPTimeout}

	idp := auth.NewGoTrue(cfg.AuthURL, cfg.AuthAnonKey, outbound)
	mw := auth.NewMiddleware(auth.NewVerifier([]byte(cfg.AuthJWTSecret)), idp, store)
	authCfg := auth.HandlerConfig{
		IdP:                    idp,
		Store:                  store,
		SiteURL:                cfg.SiteURL,
		CallbackURL:            cfg.SiteURL + "/auth/callback",
		SecureCookies:          strings.HasPrefix(cfg.SiteURL, "https://"),
		ProfileRefreshAttempts: cfg.ProfileRefreshAttempts,
	}

	llm := ai.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.HTTPTimeout)
	enhancer := ai.NewEnhancer(llm)
	suggester := ai.NewSuggester(llm, cfg.APIBaseURL, apiclient.WithTimeout(cfg.HTTPTimeout))

	cal := calendar.NewService(calendar.NewClient(cfg.CalendarAPIURL, outbound), calendar.Config{
		CalendarID: cfg.CalendarID,
		SiteURL:    cfg.SiteURL,
		Location:   cfg.Location(),
		APIBaseURL: cfg.APIBaseURL,
		APIOptions: []apiclient.Option{apiclient.WithTimeout(cfg.HTTPTimeout)},
	})

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if database != nil {
			if err := database.PingContext(r.Context()); err != nil {
				httpjson.Error(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.Write([]byte("OK"))
	})

	// ----- AUTH -----
	mux.HandleFunc("/auth/login", httpjson.Method(http.MethodPost, auth.LoginHandler(authCfg)))
	mux.HandleFunc("/auth/signup", httpjson.Method(http.MethodPost, auth.SignupHandler(authCfg)))
	mux.HandleFunc("/auth/google", httpjson.Method(http.MethodGet, auth.GoogleHandler(authCfg)))
	mux.HandleFunc("/auth/callback", httpjson.Method(http.MethodGet, auth.CallbackHandler(authCfg)))
	mux.HandleFunc("/auth/me", httpjson.Method(http.MethodGet, mw.Wrap(auth.MeHandler())))
	mux.HandleFunc("/auth/profile", httpjson.Method(http.MethodPatch, mw.Wrap(auth.ProfileHandler(authCfg))))
	mux.HandleFunc("/auth/logout", httpjson.Method(http.MethodPost, mw.Attach(auth.LogoutHandler(authCfg))))

	// ----- AI RELAYS -----
	mux.HandleFunc("/enhance", httpjson.Method(http.MethodPost, mw.Attach(ai.EnhanceHandler(enhancer, recorder))))
	mux.HandleFunc("/suggest-task-details", httpjson.Method(http.MethodPost, mw.Wrap(ai.SuggestTaskDetailsHandler(suggester, recorder))))

	// ----- CALENDAR -----
	mux.HandleFunc("/google-calendar/status", httpjson.Method(http.MethodGet, mw.Wrap(calendar.StatusHandler(cal))))
	mux.HandleFunc("/google-calendar/create-event", httpjson.Method(http.MethodPost, mw.Wrap(calendar.CreateEventHandler(cal, recorder))))
	mux.HandleFunc("/google-calendar/sync-tasks", httpjson.Method(http.MethodPost, mw.Wrap(calendar.SyncTasksHandler(cal, recorder))))

	// ----- ANALYTICS -----
	mux.HandleFunc("/analytics/events", httpjson.Method(http.MethodPost, mw.Wrap(analytics.EventHandler(recorder))))

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			auth.ProviderTokenHeader,
			auth.ProviderRefreshTokenHeader,
			observability.RequestIDHeader,
			"X-Session-Id",
			"X-Platform",
			"X-App-Version",
			"X-Device-Locale",
			"X-Source-Event-Key",
			"Idempotency-Key",
		},
		ExposedHeaders:   []string{observability.RequestIDHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           observability.Middleware(c.Handler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("API server is running", "addr", srv.Addr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("API server stopped")
}
