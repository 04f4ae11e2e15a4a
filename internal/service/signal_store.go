package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var signalTracer = otel.Tracer("service/signals")

// fetchSignalsFallback is reported when the source fails without a message.
const fetchSignalsFallback = "Failed to fetch signals"

// SignalState is a point-in-time copy of the signal store.
type SignalState struct {
	Signals    []domain.Signal `json:"signals"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error"`
	Viewer     domain.Viewer   `json:"viewer"`
	LastSynced time.Time       `json:"lastSynced"`
}

// SignalStore holds the role-scoped signal feed of the last fetch.
type SignalStore struct {
	source  port.SignalSource
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.RWMutex
	signals    []domain.Signal
	viewer     domain.Viewer
	fetching   int
	fetchGen   uint64
	settledGen uint64
	errMsg     string
	lastSynced time.Time
}

// NewSignalStore creates an empty signal store.
func NewSignalStore(source port.SignalSource, metrics *observability.Metrics, logger *zap.Logger) *SignalStore {
	return &SignalStore{
		source:  source,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		signals: []domain.Signal{},
	}
}

// FetchSignals loads every signal and keeps only those visible to the viewer:
// managers see all of them, any other role only the ones whose rep id matches.
// Failures are recorded in the state, previous signals are retained.
func (s *SignalStore) FetchSignals(ctx context.Context, role, userID string) SignalState {
	viewer := domain.Viewer{Role: role, UserID: userID}
	ctx, span := signalTracer.Start(ctx, "SignalStore.FetchSignals")
	defer span.End()
	span.SetAttributes(attribute.String("viewer.role", viewer.Role), attribute.String("viewer.id", viewer.UserID))

	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.fetching++
	s.errMsg = ""
	s.mu.Unlock()

	start := time.Now()
	all, err := s.source.FetchSignals(ctx)
	s.metrics.RecordOperationDuration("signals.fetch", time.Since(start))

	s.mu.Lock()
	s.fetching--
	switch {
	case gen < s.settledGen:
		s.logger.Debug("signals: discarding stale fetch result", zap.Uint64("generation", gen))
	case err != nil:
		s.settledGen = gen
		s.errMsg = err.Error()
		if s.errMsg == "" {
			s.errMsg = fetchSignalsFallback
		}
	default:
		s.settledGen = gen
		s.signals = domain.FilterSignals(all, viewer.Role, viewer.UserID)
		s.viewer = viewer
		s.lastSynced = s.now()
		s.errMsg = ""
	}
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		s.metrics.IncrFetchError("signals")
		s.metrics.IncrSourceError("signals")
		s.logger.Error("signals: fetch failed", zap.Error(err))
	} else {
		s.logger.Debug("signals: feed refreshed",
			zap.String("role", viewer.Role),
			zap.Int("visible", len(domain.FilterSignals(all, viewer.Role, viewer.UserID))),
			zap.Int("total", len(all)),
		)
	}
	return s.State()
}

// State returns a copy of the current signal feed.
func (s *SignalStore) State() SignalState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SignalState{
		Signals:    append([]domain.Signal{}, s.signals...),
		Loading:    s.fetching > 0,
		Error:      s.errMsg,
		Viewer:     s.viewer,
		LastSynced: s.lastSynced,
	}
}

// Summary computes the signal counters of the current feed.
func (s *SignalStore) Summary() domain.SignalSummary {
	return domain.SummarizeSignals(s.State().Signals)
}
