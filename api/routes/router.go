package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/loyalty-backend/api/controllers"
	loyaltycontrollers "github.com/angelmondragon/loyalty-backend/api/controllers/loyalty"
	redemptioncontrollers "github.com/angelmondragon/loyalty-backend/api/controllers/redemptions"
	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/internal/customers"
	"github.com/angelmondragon/loyalty-backend/internal/ledger"
	"github.com/angelmondragon/loyalty-backend/internal/loyaltyconfig"
	"github.com/angelmondragon/loyalty-backend/internal/menuitems"
	"github.com/angelmondragon/loyalty-backend/internal/points"
	"github.com/angelmondragon/loyalty-backend/internal/redemptions"
	"github.com/angelmondragon/loyalty-backend/internal/rewards"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	configService loyaltyconfig.Service,
	pointsService points.Service,
	customerService customers.Service,
	ledgerService ledger.Service,
	menuItemService menuitems.Service,
	rewardService rewards.Service,
	redemptionService redemptions.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy(
		"writes",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.RateLimitIP,
		cfg.HTTP.RateLimitRestaurant,
	)
	ownerOnly := middleware.RequireRole(logg, enums.MemberRoleOwner)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		writes := middleware.RateLimit(writePolicy, redisClient, logg)

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/loyalty", func(r chi.Router) {
			r.Get("/config", loyaltycontrollers.ConfigGet(configService, logg))
			r.With(ownerOnly, writes).Put("/config", loyaltycontrollers.ConfigUpdate(configService, logg))
			r.Post("/preview", loyaltycontrollers.Preview(pointsService, logg))
		})

		r.Route("/v1/points", func(r chi.Router) {
			r.Use(writes)
			r.Post("/award", loyaltycontrollers.Award(pointsService, logg))
			r.Post("/adjust", loyaltycontrollers.Adjust(pointsService, logg))
		})

		r.Route("/v1/customers", func(r chi.Router) {
			r.With(writes).Post("/", controllers.CustomerCreate(customerService, logg))
			r.Route("/{customer}", func(r chi.Router) {
				r.Get("/", controllers.CustomerGet(customerService, logg))
				r.Get("/transactions", controllers.CustomerTransactions(customerService, ledgerService, logg))
				r.Get("/rewards", controllers.CustomerRewards(rewardService, logg))
				r.Get("/redemptions", redemptioncontrollers.CustomerRedemptions(redemptionService, logg))
			})
		})

		r.Route("/v1/rewards", func(r chi.Router) {
			r.Get("/", controllers.RewardCatalog(rewardService, logg))
			r.With(ownerOnly, writes).Post("/", controllers.RewardCreate(rewardService, logg))
		})

		r.Route("/v1/menu-items", func(r chi.Router) {
			r.With(ownerOnly, writes).Post("/", controllers.MenuItemCreate(menuItemService, logg))
			r.Get("/{itemId}", controllers.MenuItemGet(menuItemService, logg))
		})

		r.Route("/v1/redemptions", func(r chi.Router) {
			r.Use(writes)
			r.Post("/", redemptioncontrollers.Redeem(redemptionService, logg))
			r.Post("/{redemptionId}/use", redemptioncontrollers.MarkUsed(redemptionService, logg))
		})
	})

	return r
}
