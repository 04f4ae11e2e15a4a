// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the store/service
// layer from the concrete backend (simulated or HTTP).
package port

import (
	"context"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
)

// DealSource loads deals and confirms mutations that stores apply optimistically.
type DealSource interface {
	FetchDeals(ctx context.Context) ([]domain.Deal, error)
	ConfirmStageMove(ctx context.Context, dealID string, stage domain.Stage) error
	ConfirmAdd(ctx context.Context, deal domain.Deal) error
	ConfirmUpdate(ctx context.Context, deal domain.Deal) error
}

// SignalSource returns the full, unfiltered signal candidate set.
type SignalSource interface {
	FetchSignals(ctx context.Context) ([]domain.Signal, error)
}

// MomentumSource returns all seven scorecards from a single evaluation.
type MomentumSource interface {
	FetchMomentum(ctx context.Context) (*domain.MomentumSnapshot, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
