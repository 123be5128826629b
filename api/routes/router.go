package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/controllers"
	terminalcontrollers "github.com/angelmondragon/packfinderz-pos/api/controllers/terminal"
	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	terminalsvc "github.com/angelmondragon/packfinderz-pos/internal/terminal"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

// Deps are the services the router mounts.
type Deps struct {
	Readiness        map[string]controllers.Pinger
	IdempotencyStore redis.IdempotencyStore
	Terminals        terminalsvc.Service
	Attempts         terminalcontrollers.AttemptLister
	Metrics          http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/terminals/{terminalId}", func(r chi.Router) {
		r.Use(middleware.TerminalContext(logg))
		r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))

		svc := deps.Terminals
		r.Get("/ping", controllers.TerminalPing())
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", terminalcontrollers.CartFetch(svc, logg))
			r.Delete("/", terminalcontrollers.CartClear(svc, logg))
			r.Post("/scan", terminalcontrollers.CartScan(svc, logg))
			r.Post("/items", terminalcontrollers.CartAddItem(svc, logg))
			r.Patch("/items/{productId}", terminalcontrollers.CartUpdateItem(svc, logg))
			r.Delete("/items/{productId}", terminalcontrollers.CartRemoveItem(svc, logg))
			r.Put("/customer", terminalcontrollers.CartLinkCustomer(svc, logg))
			r.Put("/discount", terminalcontrollers.CartSetDiscount(svc, logg))
			r.Post("/park", terminalcontrollers.CartPark(svc, logg))
		})
		r.Post("/parked/{parkedSaleId}/resume", terminalcontrollers.ParkedResume(svc, logg))
		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/{customerId}", terminalcontrollers.LoyaltyQuote(svc, logg))
			r.Post("/redeem", terminalcontrollers.LoyaltyRedeem(svc, logg))
		})
		r.Post("/checkout", terminalcontrollers.Checkout(svc, logg))
		r.Get("/checkout/attempts", terminalcontrollers.CheckoutAttempts(deps.Attempts, logg))
	})

	return r
}
