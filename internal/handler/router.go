package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles the stores and controllers served by the router.
type Services struct {
	Deals     *service.DealStore
	Signals   *service.SignalStore
	Momentum  *service.MomentumStore
	Board     *service.Board
	Dashboard *service.Dashboard
	// Faults is nil unless dev tools are enabled against the simulated backend.
	Faults FaultInjector
}

// Options configures the router's cross-cutting middleware.
type Options struct {
	CORSOrigins       []string
	ViewerTokenSecret []byte
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(ViewerMiddleware(opts.ViewerTokenSecret, logger))

		// =============================================
		// 1. Deals
		// =============================================
		r.Get("/deals", getDealsHandler(svc.Deals))
		r.Post("/deals", createDealHandler(svc.Board, logger))
		r.Post("/deals/sync", syncDealsHandler(svc.Deals, logger))
		r.Get("/deals/summary", dealsSummaryHandler(svc.Deals))
		r.Get("/deals/stream", dealStreamHandler(svc.Deals, logger))
		r.Get("/deals/form", newDealFormHandler(svc.Board))
		r.Put("/deals/{dealId}", updateDealHandler(svc.Board, logger))
		r.Get("/deals/{dealId}/form", editDealFormHandler(svc.Board, logger))
		r.Put("/deals/{dealId}/stage", moveDealStageHandler(svc.Deals, logger))

		// =============================================
		// 2. Board
		// =============================================
		r.Get("/board", getBoardHandler(svc.Deals))
		r.Post("/board/drag", dragEndHandler(svc.Board, svc.Deals, logger))
		r.Put("/board/filters/{dimension}", setFilterHandler(svc.Board, svc.Deals, logger))
		r.Put("/board/sort/{stage}", setSortHandler(svc.Board, svc.Deals, logger))

		// =============================================
		// 3. Signals & Momentum
		// =============================================
		r.Post("/signals/sync", syncSignalsHandler(svc.Signals, logger))
		r.Get("/signals", getSignalsHandler(svc.Signals))
		r.Get("/signals/summary", signalsSummaryHandler(svc.Signals))
		r.Post("/momentum/sync", syncMomentumHandler(svc.Momentum, logger))
		r.Get("/momentum", getMomentumHandler(svc.Momentum))

		// =============================================
		// 4. Dashboard & Metrics
		// =============================================
		r.Post("/dashboard/refresh", refreshDashboardHandler(svc.Dashboard))
		r.Get("/metrics/board", boardMetricsHandler(metrics))

		// =============================================
		// 5. Dev Tools (simulated backend only)
		// =============================================
		if svc.Faults != nil {
			r.Get("/dev/faults", listFaultsHandler(svc.Faults))
			r.Post("/dev/faults", setFaultHandler(svc.Faults, logger))
			r.Delete("/dev/faults", clearFaultsHandler(svc.Faults))
			r.Delete("/dev/faults/{operation}", clearFaultHandler(svc.Faults, logger))
		}
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "pipeline-bfa", Status: "healthy", LastChecked: now},
		}
		storeStatus := func(name, lastErr string) domain.ServiceHealth {
			status := "healthy"
			if lastErr != "" {
				status = "degraded"
			}
			return domain.ServiceHealth{Name: name, Status: status, LastChecked: now}
		}
		if svc.Deals != nil {
			services = append(services, storeStatus("deals", svc.Deals.State().Error))
		}
		if svc.Signals != nil {
			services = append(services, storeStatus("signals", svc.Signals.State().Error))
		}
		if svc.Momentum != nil {
			services = append(services, storeStatus("momentum", svc.Momentum.State().Error))
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
