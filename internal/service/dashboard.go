package service

import (
	"context"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// DashboardView combines the three stores after a refresh.
type DashboardView struct {
	Pipeline    domain.PipelineSummary   `json:"pipeline"`
	Signals     domain.SignalSummary     `json:"signals"`
	Scorecards  *domain.MomentumSnapshot `json:"scorecards"`
	Errors      map[string]string        `json:"errors,omitempty"`
	RefreshedAt time.Time                `json:"refreshedAt"`
}

// Dashboard refreshes every store at once for the landing page.
type Dashboard struct {
	deals    *DealStore
	signals  *SignalStore
	momentum *MomentumStore
	logger   *zap.Logger
}

// NewDashboard creates the dashboard aggregator.
func NewDashboard(deals *DealStore, signals *SignalStore, momentum *MomentumStore, logger *zap.Logger) *Dashboard {
	return &Dashboard{deals: deals, signals: signals, momentum: momentum, logger: logger}
}

// Refresh fetches deals, signals and momentum concurrently. Store failures do
// not abort the other fetches; they are collected in the view's Errors.
func (d *Dashboard) Refresh(ctx context.Context, viewer domain.Viewer) DashboardView {
	ctx, span := dashboardTracer.Start(ctx, "Dashboard.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("viewer.role", viewer.Role))

	var (
		dealState     DealState
		signalState   SignalState
		momentumState MomentumState
	)

	// Stores absorb fetch failures into their state, so the group never
	// fails and one slow store cannot cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		dealState = d.deals.FetchAll(ctx)
		return nil
	})
	g.Go(func() error {
		signalState = d.signals.FetchSignals(ctx, viewer.Role, viewer.UserID)
		return nil
	})
	g.Go(func() error {
		momentumState = d.momentum.FetchMomentum(ctx)
		return nil
	})
	g.Wait()

	view := DashboardView{
		Pipeline:    domain.Summarize(dealState.Deals),
		Signals:     domain.SummarizeSignals(signalState.Signals),
		Scorecards:  momentumState.Scorecards,
		RefreshedAt: time.Now(),
	}

	errs := map[string]string{}
	if dealState.Error != "" {
		errs["deals"] = dealState.Error
	}
	if signalState.Error != "" {
		errs["signals"] = signalState.Error
	}
	if momentumState.Error != "" {
		errs["momentum"] = momentumState.Error
	}
	if len(errs) > 0 {
		view.Errors = errs
	}

	d.logger.Info("dashboard refreshed",
		zap.String("pipeline", view.Pipeline.String()),
		zap.Int("signals", view.Signals.Total),
		zap.Int("errors", len(errs)),
	)
	return view
}
