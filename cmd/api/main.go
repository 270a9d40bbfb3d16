package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/currency"
	"github.com/noah-isme/storefront/internal/gate"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/notice"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/preference"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/resilience"
	"github.com/noah-isme/storefront/internal/security"
	"github.com/noah-isme/storefront/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if tracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	rules, err := loadTaxRules(cfg.TaxTablePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load tax table")
	}
	locale, err := language.Parse(cfg.DisplayLocale)
	if err != nil {
		logger.Warn().Err(err).Str("locale", cfg.DisplayLocale).Msg("unknown display locale, using en-US")
		locale = language.AmericanEnglish
	}
	engine, err := pricing.NewEngine(rules, pricing.WithLocale(locale), pricing.WithLookupObserver(obs.CountTaxLookup))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise pricing engine")
	}

	defaultCurrency, err := currency.Parse(cfg.DefaultCurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse DEFAULT_CURRENCY")
	}

	prefix := cfg.RedisKeyPrefix
	storage := session.NewStorage(redisClient, prefix, cfg.SessionTTL)
	locker := lock.Locker{R: redisClient, Prefix: prefix}
	notices := &notice.Bus{
		Store:     &notice.RedisStore{Client: redisClient, Prefix: prefix, Limit: cfg.NoticeBufferSize, TTL: cfg.SessionTTL},
		Notifiers: []notice.Notifier{notice.LogNotifier{Logger: logger}},
		Logger:    &logger,
	}

	cacheBreaker := resilience.NewBreaker(resilience.Config{
		Target:       "catalog_search_cache",
		MinRequests:  10,
		FailureRatio: 0.5,
		OpenFor:      30 * time.Second,
		Logger:       &logger,
	})
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Cache:        catalog.NewCache(redisClient, prefix, cfg.CatalogSearchTTL).WithBreaker(cacheBreaker),
		Logger:       &logger,
		DefaultPage:  cfg.CatalogDefaultPage,
		DefaultLimit: cfg.CatalogDefaultLim,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	prefs := &preference.Service{Storage: storage, Default: defaultCurrency, Logger: &logger}
	cartSvc := &cart.Service{Storage: storage, Catalog: catalogService, Locker: locker, Notices: notices, Logger: &logger}
	orderStore := &order.Store{Storage: storage, Locker: locker, Limit: cfg.OrderHistoryLimit, Logger: &logger}
	checkoutSvc := checkout.NewService(storage, cartSvc, orderStore, prefs, engine, notices, &logger)

	gateSvc, err := gate.NewService(gate.Config{
		Password:     cfg.GatePassword,
		PasswordHash: cfg.GatePasswordHash,
		Secret:       cfg.GateSessionSecret,
		TTL:          cfg.GateSessionTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise gate")
	}
	csrf := security.CSRF{Secure: cfg.CookieSecure}
	gateHandler := &gate.Handler{
		Service:        gateSvc,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
	}
	if cfg.CSRFEnabled {
		gateHandler.CSRF = &csrf
	}

	loginLimiter, err := ratelimit.New(cfg.RateLimitStrategy, redisClient, prefix+"ratelimit:")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	loginLimit := ratelimit.Handler{
		Limiter: loginLimiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("gate-login"),
			Window: cfg.GateLoginRateWin,
			Max:    cfg.GateLoginRateMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: prefix}

	cartHandler := &cart.Handler{Svc: cartSvc, Prefs: prefs, Engine: engine}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	orderHandler := &order.Handler{Store: orderStore}
	prefsHandler := &preference.Handler{Svc: prefs}
	noticeHandler := &notice.Handler{Bus: notices}
	pricingHandler := &pricing.Handler{Engine: engine}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.CookieSecure}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{
		Probes: []health.Probe{
			health.RedisProbe(redisClient),
			{Name: "catalog_cache", Optional: true, Check: func(context.Context) error {
				if cacheBreaker.State() == resilience.Open {
					return resilience.ErrOpenCircuit
				}
				return nil
			}},
		},
		Timeout: cfg.Obs.RedisPingTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/catalog", func(c chi.Router) {
			c.Get("/categories", catalogHandler.Categories)
			c.Get("/brands", catalogHandler.Brands)
			c.Get("/products", catalogHandler.Products)
			c.Get("/products/{model}", catalogHandler.ProductDetail)
			c.Get("/compare", catalogHandler.Compare)
		})
		v.Get("/locations", pricingHandler.Locations)
		v.Get("/tax/rate", pricingHandler.Rate)
		v.Post("/tax/quote", pricingHandler.Quote)

		v.Route("/gate", func(g chi.Router) {
			g.With(loginLimit.Middleware).Post("/login", gateHandler.Login)
			g.Post("/logout", gateHandler.Logout)
			g.With(gateSvc.RequireSession).Get("/session", gateHandler.Session)
		})

		v.Group(func(s chi.Router) {
			s.Use(gateSvc.RequireSession)
			if cfg.CSRFEnabled {
				s.Use(csrf.Middleware)
			}

			s.Get("/currency", prefsHandler.Get)
			s.Put("/currency", prefsHandler.Set)
			s.Post("/currency/toggle", prefsHandler.Toggle)

			s.Get("/notices", noticeHandler.Drain)

			s.Route("/cart", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Delete("/", cartHandler.Clear)
				c.Post("/items", cartHandler.AddItem)
				c.Patch("/items/{id}", cartHandler.UpdateItem)
				c.Delete("/items/{id}", cartHandler.RemoveItem)
			})

			s.Route("/checkout", func(c chi.Router) {
				c.Post("/quote", checkoutHandler.Quote)
				c.Get("/draft", checkoutHandler.GetDraft)
				c.Put("/draft", checkoutHandler.SaveDraft)
				c.Delete("/draft", checkoutHandler.DiscardDraft)
				c.With(idem.Middleware).Post("/orders", checkoutHandler.PlaceOrder)
			})

			s.Route("/orders", func(o chi.Router) {
				o.Get("/", orderHandler.List)
				o.Delete("/", orderHandler.Clear)
				o.Get("/{id}", orderHandler.Get)
				o.Patch("/{id}/status", orderHandler.PatchStatus)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}

	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func loadTaxRules(path string) ([]pricing.TaxRule, error) {
	if path == "" {
		return pricing.DefaultRules()
	}
	return pricing.LoadRulesFile(path)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
