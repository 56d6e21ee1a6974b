package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/account"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/storefront"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// NewRouter wires the storefront HTTP surface. redisClient may be nil, in
// which case idempotent replays and auth rate limits are switched off.
// gatherer is nil when metrics are disabled.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry *storefront.Registry,
	catalogService catalog.Service,
	accountService account.Service,
	redisClient *redis.Client,
	readiness map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateStore        counterStore
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		rateStore = redisClient
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginAccountLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if cfg.Metrics.Enabled && gatherer != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Device(cfg.Device, registry, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(logg))
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/admin/login", controllers.AdminAuthLogin(logg))
			r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg)).Post("/register", controllers.AuthRegister(logg))
			r.Post("/logout", controllers.AuthLogout(logg))
			r.Get("/me", controllers.AuthMe(logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(catalogService, logg))
			r.Get("/{productId}", controllers.ProductDetail(catalogService, logg))
			r.Get("/{productId}/recommendations", controllers.ProductRecommendations(catalogService, logg))
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.CategoryList(catalogService, logg))
			r.Get("/{categoryId}", controllers.CategoryDetail(catalogService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(logg))
			r.Delete("/", controllers.CartClear(logg))
			r.Post("/items", controllers.CartAddItem(catalogService, logg))
			r.Put("/items/{productId}", controllers.CartSetQuantity(logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(logg))
			r.Post("/reconcile", controllers.CartReconcile(catalogService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.RequireLogin(logg))
			r.Get("/", controllers.CheckoutPrefill(logg))
			r.Post("/", controllers.CheckoutSubmit(logg))
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(middleware.RequireLogin(logg))
			r.Get("/profile", controllers.AccountProfile(accountService, logg))
			r.Put("/profile", controllers.AccountUpdateProfile(accountService, logg))
			r.Post("/password", controllers.AccountChangePassword(accountService, logg))
			r.Get("/orders", controllers.AccountOrders(accountService, logg))
			r.Get("/orders/{orderId}", controllers.AccountOrder(accountService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Route("/products", func(r chi.Router) {
				r.Post("/", controllers.AdminProductCreate(catalogService, logg))
				r.Put("/{productId}", controllers.AdminProductUpdate(catalogService, logg))
				r.Patch("/{productId}", controllers.AdminProductPatch(catalogService, logg))
				r.Delete("/{productId}", controllers.AdminProductDelete(catalogService, logg))
			})
			r.Route("/categories", func(r chi.Router) {
				r.Post("/", controllers.AdminCategoryCreate(catalogService, logg))
				r.Put("/{categoryId}", controllers.AdminCategoryUpdate(catalogService, logg))
				r.Patch("/{categoryId}", controllers.AdminCategoryPatch(catalogService, logg))
				r.Delete("/{categoryId}", controllers.AdminCategoryDelete(catalogService, logg))
			})
		})
	})

	return r
}
