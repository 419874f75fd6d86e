package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexforge/lexforge/modules/auth"
	"github.com/lexforge/lexforge/modules/billing"
	"github.com/lexforge/lexforge/modules/lawgen"
	"github.com/lexforge/lexforge/pkg/config"
	"github.com/lexforge/lexforge/pkg/httpserver"
	"github.com/lexforge/lexforge/pkg/logger"
	"github.com/lexforge/lexforge/pkg/pg"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	BaseURL     string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// PlanCatalogPath points at the YAML plan list; empty falls back to
	// the built-in catalog.
	PlanCatalogPath string `env:"PLAN_CATALOG_PATH"`
}

// defaultCatalog is used when no catalog file is configured. Price IDs
// must still match the Stripe dashboard of the target account.
func defaultCatalog() billing.Catalog {
	return billing.MustCatalog(
		billing.Plan{
			Name:            "starter",
			DisplayName:     "Starter",
			StripePriceID:   "price_starter",
			MonthlyPrice:    mustDecimal("4.99"),
			CreditsPerMonth: 50,
			Active:          true,
		},
		billing.Plan{
			Name:            "pro",
			DisplayName:     "Pro",
			StripePriceID:   "price_pro",
			MonthlyPrice:    mustDecimal("14.99"),
			CreditsPerMonth: 300,
			Active:          true,
		},
		billing.Plan{
			Name:            "premium",
			DisplayName:     "Premium",
			StripePriceID:   "price_premium",
			MonthlyPrice:    mustDecimal("49.99"),
			CreditsPerMonth: 1500,
			Active:          true,
		},
	)
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, "lexforge"))
	logger.SetAsDefault(log)

	if err := run(context.Background(), appCfg, log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg appConfig, log *slog.Logger) error {
	// Storage.
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	// Plan catalog.
	catalog := defaultCatalog()
	if appCfg.PlanCatalogPath != "" {
		catalog, err = billing.LoadCatalogFile(appCfg.PlanCatalogPath)
		if err != nil {
			return err
		}
	}

	// Billing.
	var stripeCfg billing.StripeConfig
	config.MustLoad(&stripeCfg)
	gateway, err := billing.NewStripeGateway(stripeCfg)
	if err != nil {
		return err
	}

	billingSvc := billing.NewService(
		catalog,
		billing.NewPgSubscriptionStore(pool),
		billing.NewPgBillingEventStore(pool),
		gateway,
		billing.WithLogger(log),
	)

	// Law generation.
	var openaiCfg lawgen.OpenAIConfig
	config.MustLoad(&openaiCfg)
	generator, err := lawgen.NewOpenAIGenerator(openaiCfg)
	if err != nil {
		return err
	}

	lawgenSvc := lawgen.NewService(
		lawgen.NewPgLawStore(pool),
		lawgen.NewPgAttemptStore(pool),
		lawgen.NewPgConstitutionStore(pool),
		generator,
		generator,
		billingSvc,
		lawgen.WithLogger(log),
	)

	// Auth.
	users := auth.NewPgUserStore(pool)

	var magicCfg auth.MagicLinkConfig
	config.MustLoad(&magicCfg)
	magicLink := auth.NewMagicLinkService(magicCfg, users, &auth.LogMailer{Log: log}, log)

	var sessionCfg auth.SessionConfig
	config.MustLoad(&sessionCfg)
	sessions := auth.NewSessionManager(sessionCfg, users)

	var googleCfg auth.GoogleConfig
	config.MustLoad(&googleCfg)
	var google *auth.GoogleService
	if googleCfg.Enabled() {
		google = auth.NewGoogleService(googleCfg, magicCfg.Secret, users, log)
	} else {
		log.Info("google oauth not configured, magic link only")
	}

	// HTTP surface.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(sessions.Middleware)

	r.Get("/healthz", healthHandler(pg.Healthcheck(pool)))

	r.Mount("/auth", auth.Router(auth.RouterConfig{
		MagicLink:        magicLink,
		Google:           google,
		Sessions:         sessions,
		LoginRedirectURL: appCfg.BaseURL + "/dashboard",
		Logger:           log,
	}))

	r.Mount("/billing", billing.Router(billing.RouterConfig{
		Service:            billingSvc,
		CurrentUser:        billingUser,
		CheckoutSuccessURL: appCfg.BaseURL + "/billing/success",
		CheckoutCancelURL:  appCfg.BaseURL + "/billing/plans",
		PortalReturnURL:    appCfg.BaseURL + "/billing",
		Logger:             log,
	}))

	r.Mount("/laws", lawgen.Router(lawgen.RouterConfig{
		Service:     lawgenSvc,
		CurrentUser: lawgenUser,
		Logger:      log,
	}))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)
	return httpserver.New(httpCfg, log).Run(ctx, r)
}

// billingUser adapts the session user to the billing module's view.
func billingUser(r *http.Request) (billing.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return billing.User{}, false
	}
	return billing.User{ID: user.ID.String(), Email: user.Email, Name: user.Name}, true
}

func lawgenUser(r *http.Request) (uuid.UUID, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
