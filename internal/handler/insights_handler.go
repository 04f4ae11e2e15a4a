package handler

import (
	"net/http"

	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Signals
// ============================================================

func syncSignalsHandler(signals *service.SignalStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/signals/sync")
		defer span.End()

		viewer := ViewerFromContext(ctx)
		span.SetAttributes(attribute.String("viewer.role", viewer.Role))

		state := signals.FetchSignals(ctx, viewer.Role, viewer.UserID)
		if state.Error != "" {
			logger.Warn("signals sync finished with error", zap.String("error", state.Error))
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func getSignalsHandler(signals *service.SignalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, signals.State())
	}
}

func signalsSummaryHandler(signals *service.SignalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, signals.Summary())
	}
}

// ============================================================
// Momentum
// ============================================================

func syncMomentumHandler(momentum *service.MomentumStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/momentum/sync")
		defer span.End()

		state := momentum.FetchMomentum(ctx)
		if state.Error != "" {
			logger.Warn("momentum sync finished with error", zap.String("error", state.Error))
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func getMomentumHandler(momentum *service.MomentumStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, momentum.State())
	}
}

// ============================================================
// Dashboard & Metrics
// ============================================================

func refreshDashboardHandler(dashboard *service.Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dashboard/refresh")
		defer span.End()

		writeJSON(w, http.StatusOK, dashboard.Refresh(ctx, ViewerFromContext(ctx)))
	}
}

func boardMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetBoardSnapshot())
	}
}
