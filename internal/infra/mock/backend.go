// Package mock provides an in-process simulated backend for the pipeline
// dashboard. Every call suspends for a fixed delay before resolving, and any
// operation can be made to fail through an injected fault.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("mock/backend")

// Operation identifies a backend call a fault can be attached to.
type Operation string

const (
	OpFetchDeals    Operation = "fetch_deals"
	OpMoveStage     Operation = "move_stage"
	OpAddDeal       Operation = "add_deal"
	OpUpdateDeal    Operation = "update_deal"
	OpFetchSignals  Operation = "fetch_signals"
	OpFetchMomentum Operation = "fetch_momentum"
)

// Operations lists every fault-injectable operation.
var Operations = []Operation{OpFetchDeals, OpMoveStage, OpAddDeal, OpUpdateDeal, OpFetchSignals, OpFetchMomentum}

// ParseOperation validates an operation name.
func ParseOperation(v string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == strings.TrimSpace(v) {
			return op, nil
		}
	}
	return "", &domain.ErrValidation{Field: "operation", Message: "unknown operation " + v}
}

// Backend is a simulated data backend. It implements port.DealSource,
// port.SignalSource and port.MomentumSource.
type Backend struct {
	mu           sync.Mutex
	fetchDelay   time.Duration
	confirmDelay time.Duration
	deals        []domain.Deal
	faults       map[Operation]error
	now          func() time.Time
	logger       *zap.Logger
}

// NewBackend creates a backend seeded with the demo pipeline.
func NewBackend(fetchDelay, confirmDelay time.Duration, logger *zap.Logger) *Backend {
	return &Backend{
		fetchDelay:   fetchDelay,
		confirmDelay: confirmDelay,
		deals:        seedDeals(),
		faults:       make(map[Operation]error),
		now:          time.Now,
		logger:       logger,
	}
}

// SetFault makes every subsequent call of op fail with err after its delay.
func (b *Backend) SetFault(op Operation, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = err
	b.logger.Info("mock backend: fault injected", zap.String("operation", string(op)), zap.Error(err))
}

// ClearFault removes the fault of op.
func (b *Backend) ClearFault(op Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.faults, op)
}

// ClearFaults removes every injected fault.
func (b *Backend) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = make(map[Operation]error)
}

// Faults returns the active faults keyed by operation name.
func (b *Backend) Faults() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.faults))
	for op, err := range b.faults {
		out[string(op)] = err.Error()
	}
	return out
}

// simulate waits for d (or ctx) and then reports the fault of op, if any.
func (b *Backend) simulate(ctx context.Context, op Operation, d time.Duration) error {
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.faults[op]; ok {
		return err
	}
	return nil
}

// ============================================================
// Deals
// ============================================================

// FetchDeals returns the backend's deal collection.
func (b *Backend) FetchDeals(ctx context.Context) ([]domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "Backend.FetchDeals")
	defer span.End()

	if err := b.simulate(ctx, OpFetchDeals, b.fetchDelay); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CloneDeals(b.deals), nil
}

// ConfirmStageMove persists a stage change.
func (b *Backend) ConfirmStageMove(ctx context.Context, dealID string, stage domain.Stage) error {
	ctx, span := tracer.Start(ctx, "Backend.ConfirmStageMove")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", dealID), attribute.String("deal.stage", string(stage)))

	if err := b.simulate(ctx, OpMoveStage, b.confirmDelay); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(dealID)
	if i < 0 {
		return &domain.ErrNotFound{Resource: "deal", ID: dealID}
	}
	b.deals[i].Stage = stage
	b.deals[i].LastActivity = b.now()
	return nil
}

// ConfirmAdd persists a new deal.
func (b *Backend) ConfirmAdd(ctx context.Context, deal domain.Deal) error {
	ctx, span := tracer.Start(ctx, "Backend.ConfirmAdd")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	if err := b.simulate(ctx, OpAddDeal, b.confirmDelay); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexOf(deal.ID) >= 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf("deal %s already exists", deal.ID)}
	}
	b.deals = append(b.deals, deal.Clone())
	return nil
}

// ConfirmUpdate persists a full-record replacement.
func (b *Backend) ConfirmUpdate(ctx context.Context, deal domain.Deal) error {
	ctx, span := tracer.Start(ctx, "Backend.ConfirmUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	if err := b.simulate(ctx, OpUpdateDeal, b.confirmDelay); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(deal.ID)
	if i < 0 {
		return &domain.ErrNotFound{Resource: "deal", ID: deal.ID}
	}
	b.deals[i] = deal.Clone()
	return nil
}

func (b *Backend) indexOf(id string) int {
	for i := range b.deals {
		if b.deals[i].ID == id {
			return i
		}
	}
	return -1
}

// ============================================================
// Signals & Momentum
// ============================================================

// FetchSignals returns every signal, unfiltered.
func (b *Backend) FetchSignals(ctx context.Context) ([]domain.Signal, error) {
	ctx, span := tracer.Start(ctx, "Backend.FetchSignals")
	defer span.End()

	if err := b.simulate(ctx, OpFetchSignals, b.fetchDelay); err != nil {
		return nil, err
	}

	return seedSignals(b.now()), nil
}

// FetchMomentum returns the seven scorecards of one evaluation.
func (b *Backend) FetchMomentum(ctx context.Context) (*domain.MomentumSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Backend.FetchMomentum")
	defer span.End()

	if err := b.simulate(ctx, OpFetchMomentum, b.fetchDelay); err != nil {
		return nil, err
	}
	return seedMomentum(), nil
}
