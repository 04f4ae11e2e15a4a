package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var momentumTracer = otel.Tracer("service/momentum")

var errIncompleteSnapshot = errors.New("momentum snapshot is missing scorecards")

// MomentumState is a point-in-time copy of the momentum store.
type MomentumState struct {
	Scorecards *domain.MomentumSnapshot `json:"scorecards"`
	Loading    bool                     `json:"loading"`
	Error      string                   `json:"error"`
	LastSynced time.Time                `json:"lastSynced"`
}

// MomentumStore holds the seven scorecards of the last successful fetch.
// The scorecards are replaced together or not at all.
type MomentumStore struct {
	source  port.MomentumSource
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.RWMutex
	snapshot   *domain.MomentumSnapshot
	fetching   int
	fetchGen   uint64
	settledGen uint64
	errMsg     string
	lastSynced time.Time
}

// NewMomentumStore creates an empty momentum store.
func NewMomentumStore(source port.MomentumSource, metrics *observability.Metrics, logger *zap.Logger) *MomentumStore {
	return &MomentumStore{
		source:  source,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchMomentum loads a fresh snapshot. A failed or partial result leaves the
// previous scorecards untouched and is reported through the state error.
func (s *MomentumStore) FetchMomentum(ctx context.Context) MomentumState {
	ctx, span := momentumTracer.Start(ctx, "MomentumStore.FetchMomentum")
	defer span.End()

	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.fetching++
	s.errMsg = ""
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.source.FetchMomentum(ctx)
	s.metrics.RecordOperationDuration("momentum.fetch", time.Since(start))
	if err == nil && !snap.Complete() {
		err = errIncompleteSnapshot
	}

	s.mu.Lock()
	s.fetching--
	switch {
	case gen < s.settledGen:
		s.logger.Debug("momentum: discarding stale fetch result", zap.Uint64("generation", gen))
	case err != nil:
		s.settledGen = gen
		s.errMsg = (&domain.ErrFetchFailed{Resource: "momentum", Err: err}).Error()
	default:
		s.settledGen = gen
		s.snapshot = snap.Clone()
		s.lastSynced = s.now()
		s.errMsg = ""
	}
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		s.metrics.IncrFetchError("momentum")
		s.metrics.IncrSourceError("momentum")
		s.logger.Error("momentum: fetch failed", zap.Error(err))
	}
	return s.State()
}

// State returns a deep copy of the current scorecards.
func (s *MomentumStore) State() MomentumState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return MomentumState{
		Scorecards: s.snapshot.Clone(),
		Loading:    s.fetching > 0,
		Error:      s.errMsg,
		LastSynced: s.lastSynced,
	}
}
