package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tablyhq/tably-backend/api/controllers"
	"github.com/tablyhq/tably-backend/api/middleware"
	cartsvc "github.com/tablyhq/tably-backend/internal/cart"
	"github.com/tablyhq/tably-backend/internal/events"
	ordersvc "github.com/tablyhq/tably-backend/internal/orders"
	sessionsvc "github.com/tablyhq/tably-backend/internal/sessions"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/redis"
)

// NewRouter wires the HTTP surface. Guest routes authenticate with the
// session credential issued at join; staff routes with the shared staff key.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	credentials middleware.CredentialParser,
	sessionService sessionsvc.Service,
	cartService cartsvc.Service,
	orderService ordersvc.Service,
	broker events.Broker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.JoinRateLimit(redisClient, cfg.JoinRateLimit.IPLimit, cfg.JoinRateLimit.Window, logg)).
			Post("/sessions/join", controllers.SessionJoin(sessionService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(credentials, logg))

			r.Post("/sessions/refresh", controllers.SessionRefresh(sessionService, logg))
			r.Get("/sessions/me", controllers.SessionMe(sessionService, logg))

			r.Route("/carts/{cartId}", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartService, logg))
				r.Post("/mutations", controllers.CartMutate(cartService, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.OrderPlace(orderService, logg))
				r.Get("/", controllers.OrderList(orderService, logg))
			})

			r.Get("/events/ws", controllers.SessionEventsWS(broker, logg))
		})

		r.Route("/staff", func(r chi.Router) {
			r.Use(middleware.StaffKey(cfg.Staff, logg))

			r.Post("/sessions/{sessionId}/close", controllers.StaffSessionClose(sessionService, logg))
			r.Get("/orders", controllers.StaffOrderList(orderService, logg))
			r.Patch("/orders/{orderId}/status", controllers.StaffOrderStatus(orderService, logg))
			r.Get("/events/ws", controllers.StaffEventsWS(broker, logg))
		})
	})

	return r
}
