// Package service holds the dashboard state containers (deal, signal and
// momentum stores), the board controller that sits on top of the deal store,
// and the dashboard aggregator.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/pipeline-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var dealTracer = otel.Tracer("service/deals")

// DealState is a point-in-time copy of the deal store.
type DealState struct {
	Deals      []domain.Deal          `json:"deals"`
	Loading    bool                   `json:"loading"`
	Error      string                 `json:"error"`
	LastSynced time.Time              `json:"lastSynced"`
	Filters    domain.Filters         `json:"filters"`
	SortBy     domain.SortPreferences `json:"sortBy"`
}

// DealStoreOption customizes a DealStore.
type DealStoreOption func(*DealStore)

// WithTransitionPolicy sets the stage transition rule (default open).
func WithTransitionPolicy(p domain.TransitionPolicy) DealStoreOption {
	return func(s *DealStore) { s.policy = p }
}

// WithConfirmationLimit bounds the number of confirmations in flight.
func WithConfirmationLimit(n int) DealStoreOption {
	return func(s *DealStore) { s.bulkhead = resilience.NewBulkhead(n) }
}

// WithConfirmTimeout bounds how long one confirmation may take. Confirmations
// do not follow the caller's cancellation, so this is their only deadline.
func WithConfirmTimeout(d time.Duration) DealStoreOption {
	return func(s *DealStore) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

// WithClock replaces time.Now for activity stamps.
func WithClock(now func() time.Time) DealStoreOption {
	return func(s *DealStore) { s.now = now }
}

// DealStore is the authoritative in-memory deal collection.
//
// Mutations apply optimistically and are then confirmed against the source.
// Every write stamps the record with a value from a store-wide sequence; a
// failed confirmation rolls back only while the record still carries the
// version that mutation wrote, so a concurrent unrelated write is never lost.
type DealStore struct {
	source         port.DealSource
	policy         domain.TransitionPolicy
	bulkhead       *resilience.Bulkhead
	confirmTimeout time.Duration
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time

	mu         sync.RWMutex
	deals      []domain.Deal
	versions   map[string]uint64
	seq        uint64
	fetching   int
	fetchGen   uint64 // last started fetch
	settledGen uint64 // last fetch whose result was applied
	errMsg     string
	lastSynced time.Time
	filters    domain.Filters
	sortBy     domain.SortPreferences

	subMu   sync.Mutex
	subs    map[int]func(DealState)
	nextSub int

	// notifyMu orders deliveries: each snapshot is taken and handed out
	// before the next one is taken.
	notifyMu sync.Mutex
}

// MoveResult is the outcome of one stage move.
type MoveResult struct {
	Deal      domain.Deal `json:"deal"`
	Confirmed bool        `json:"confirmed"`
	Error     string      `json:"error,omitempty"`
}

// NewDealStore creates an empty store backed by source.
func NewDealStore(source port.DealSource, metrics *observability.Metrics, logger *zap.Logger, opts ...DealStoreOption) *DealStore {
	s := &DealStore{
		source:         source,
		policy:         domain.TransitionOpen,
		bulkhead:       resilience.NewBulkhead(50),
		confirmTimeout: 30 * time.Second,
		metrics:        metrics,
		logger:         logger,
		now:            time.Now,
		deals:          []domain.Deal{},
		versions:       make(map[string]uint64),
		sortBy:         domain.DefaultSortPreferences(),
		subs:           make(map[int]func(DealState)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================
// Reads
// ============================================================

// State returns a deep copy of the current store state.
func (s *DealStore) State() DealState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return DealState{
		Deals:      domain.CloneDeals(s.deals),
		Loading:    s.fetching > 0,
		Error:      s.errMsg,
		LastSynced: s.lastSynced,
		Filters:    s.filters.Clone(),
		SortBy:     s.sortBy.Clone(),
	}
}

// Deal looks up a single deal by id.
func (s *DealStore) Deal(id string) (domain.Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.deals[i].Clone(), true
	}
	return domain.Deal{}, false
}

// Subscribe registers fn to receive a state copy after every change.
// Deliveries are serialized and arrive in state order. fn runs on the
// mutating goroutine; it must not block or mutate the store.
func (s *DealStore) Subscribe(fn func(DealState)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *DealStore) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	fns := make([]func(DealState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	if len(fns) == 0 {
		return
	}
	state := s.State()
	for _, fn := range fns {
		fn(state)
	}
}

// ============================================================
// Fetch
// ============================================================

// FetchAll replaces the collection with the source's deals.
// A failure is recorded in the state error and the previous collection is kept;
// it is never returned. A fetch overtaken by a newer settled fetch is discarded.
func (s *DealStore) FetchAll(ctx context.Context) DealState {
	ctx, span := dealTracer.Start(ctx, "DealStore.FetchAll")
	defer span.End()

	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.fetching++
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	start := time.Now()
	deals, err := s.source.FetchDeals(ctx)
	s.metrics.RecordOperationDuration("deals.fetch", time.Since(start))

	s.mu.Lock()
	s.fetching--
	switch {
	case gen < s.settledGen:
		s.logger.Debug("deals: discarding stale fetch result", zap.Uint64("generation", gen))
	case err != nil:
		s.settledGen = gen
		s.errMsg = (&domain.ErrFetchFailed{Resource: "deals", Err: err}).Error()
	default:
		s.settledGen = gen
		s.deals = domain.CloneDeals(deals)
		if s.deals == nil {
			s.deals = []domain.Deal{}
		}
		s.versions = make(map[string]uint64, len(s.deals))
		for _, d := range s.deals {
			s.bump(d.ID)
		}
		s.errMsg = ""
		s.lastSynced = s.now()
	}
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		s.metrics.IncrFetchError("deals")
		s.metrics.IncrSourceError("deals")
		s.logger.Error("deals: fetch failed", zap.Error(err))
	} else {
		s.logger.Debug("deals: pipeline data refreshed", zap.Int("count", len(deals)))
	}

	s.notify()
	return s.State()
}

// ============================================================
// Mutations
// ============================================================

// MoveToStage changes a deal's stage optimistically.
//
// An unknown id returns *domain.ErrNotFound and a refused transition returns
// *domain.ErrTransitionNotAllowed, both without touching the collection.
// A failed confirmation is absorbed: the store error is set and the stage is
// rolled back, but nil is returned.
func (s *DealStore) MoveToStage(ctx context.Context, dealID string, stage domain.Stage) error {
	_, err := s.MoveDeal(ctx, dealID, stage)
	return err
}

// MoveDeal is MoveToStage reporting this move's own outcome: the record as it
// stands once the move settled and, on a failed confirmation, its error.
func (s *DealStore) MoveDeal(ctx context.Context, dealID string, stage domain.Stage) (MoveResult, error) {
	ctx, span := dealTracer.Start(ctx, "DealStore.MoveToStage")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", dealID), attribute.String("deal.stage", string(stage)))

	if !stage.Valid() {
		return MoveResult{}, &domain.ErrValidation{Field: "stage", Message: "unknown stage " + string(stage)}
	}

	s.mu.Lock()
	i := s.indexOf(dealID)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Warn("deals: deal not found for stage move", zap.String("deal_id", dealID))
		return MoveResult{}, &domain.ErrNotFound{Resource: "deal", ID: dealID}
	}
	prev := s.deals[i]
	if err := s.policy.Allow(prev.Stage, stage); err != nil {
		s.mu.Unlock()
		return MoveResult{}, err
	}
	s.deals[i].Stage = stage
	s.deals[i].LastActivity = s.now()
	moved := s.deals[i].Clone()
	ver := s.bump(dealID)
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	err := s.confirm(ctx, "move", func(ctx context.Context) error {
		return s.source.ConfirmStageMove(ctx, dealID, stage)
	})
	if err == nil {
		s.logger.Debug("deals: deal stage updated", zap.String("deal_id", dealID), zap.String("stage", string(stage)))
		return MoveResult{Deal: s.settled(dealID, moved), Confirmed: true}, nil
	}
	span.RecordError(err)

	s.mu.Lock()
	s.errMsg = err.Error()
	applied := false
	if j := s.indexOf(dealID); j >= 0 && s.versions[dealID] == ver {
		s.deals[j].Stage = prev.Stage
		s.deals[j].LastActivity = prev.LastActivity
		s.bump(dealID)
		applied = true
	}
	s.mu.Unlock()

	s.recordRollback("move", dealID, applied, err)
	s.notify()
	return MoveResult{Deal: s.settled(dealID, prev.Clone()), Error: err.Error()}, nil
}

// Add appends an already validated deal optimistically, stamping its last
// activity. A duplicate id returns *domain.ErrConflict. A failed confirmation
// removes the deal again and returns *domain.ErrMutationFailed.
func (s *DealStore) Add(ctx context.Context, deal domain.Deal) error {
	ctx, span := dealTracer.Start(ctx, "DealStore.Add")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	deal = deal.Clone()
	if deal.Signals == nil {
		deal.Signals = []domain.DealSignal{}
	}

	s.mu.Lock()
	if s.indexOf(deal.ID) >= 0 {
		s.mu.Unlock()
		return &domain.ErrConflict{Message: "deal already exists: " + deal.ID}
	}
	deal.LastActivity = s.now()
	s.deals = append(s.deals, deal)
	s.bump(deal.ID)
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	err := s.confirm(ctx, "add", func(ctx context.Context) error {
		return s.source.ConfirmAdd(ctx, deal.Clone())
	})
	if err == nil {
		s.logger.Debug("deals: new deal added", zap.String("deal_id", deal.ID))
		return nil
	}
	span.RecordError(err)

	s.mu.Lock()
	s.errMsg = err.Error()
	removed := false
	if j := s.indexOf(deal.ID); j >= 0 {
		s.deals = append(s.deals[:j], s.deals[j+1:]...)
		delete(s.versions, deal.ID)
		removed = true
	}
	s.mu.Unlock()

	s.recordRollback("add", deal.ID, removed, err)
	s.notify()
	return &domain.ErrMutationFailed{Op: "add", DealID: deal.ID, Err: err}
}

// Update replaces an existing deal optimistically with a fresh last-activity
// stamp. An unknown id returns *domain.ErrNotFound. A failed confirmation
// restores the previous record and returns *domain.ErrMutationFailed.
func (s *DealStore) Update(ctx context.Context, deal domain.Deal) error {
	ctx, span := dealTracer.Start(ctx, "DealStore.Update")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	next := deal.Clone()
	if next.Signals == nil {
		next.Signals = []domain.DealSignal{}
	}

	s.mu.Lock()
	i := s.indexOf(deal.ID)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Warn("deals: deal not found for update", zap.String("deal_id", deal.ID))
		return &domain.ErrNotFound{Resource: "deal", ID: deal.ID}
	}
	prev := s.deals[i].Clone()
	if policyErr := s.policy.Allow(prev.Stage, next.Stage); policyErr != nil {
		s.mu.Unlock()
		return policyErr
	}
	next.LastActivity = s.now()
	s.deals[i] = next
	ver := s.bump(deal.ID)
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	err := s.confirm(ctx, "update", func(ctx context.Context) error {
		return s.source.ConfirmUpdate(ctx, next.Clone())
	})
	if err == nil {
		s.logger.Debug("deals: deal updated", zap.String("deal_id", deal.ID))
		return nil
	}
	span.RecordError(err)

	s.mu.Lock()
	s.errMsg = err.Error()
	applied := false
	if j := s.indexOf(deal.ID); j >= 0 && s.versions[deal.ID] == ver {
		s.deals[j] = prev
		s.bump(deal.ID)
		applied = true
	}
	s.mu.Unlock()

	s.recordRollback("update", deal.ID, applied, err)
	s.notify()
	return &domain.ErrMutationFailed{Op: "update", DealID: deal.ID, Err: err}
}

// ============================================================
// Preferences
// ============================================================

// SetFilter sets (or with nil / "all" clears) one filter dimension.
func (s *DealStore) SetFilter(dim domain.FilterDimension, value *string) error {
	s.mu.Lock()
	f, err := s.filters.Set(dim, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.filters = f
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetSortBy selects the ordering of one stage column.
func (s *DealStore) SetSortBy(stage domain.Stage, key domain.SortKey) error {
	if !stage.Valid() {
		return &domain.ErrValidation{Field: "stage", Message: "unknown stage " + string(stage)}
	}
	if _, err := domain.ParseSortKey(string(key)); err != nil {
		return err
	}

	s.mu.Lock()
	s.sortBy[stage] = key
	s.mu.Unlock()
	s.notify()
	return nil
}

// ============================================================
// Internals
// ============================================================

// confirm runs a source confirmation inside the bulkhead and records its outcome.
// The confirmation keeps the caller's values (trace span) but not its
// cancellation: a dropped request must not roll back a shared mutation.
func (s *DealStore) confirm(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("deals."+op, time.Since(start))
	}()

	if err := s.bulkhead.Acquire(ctx); err != nil {
		s.metrics.IncrMutation(op, "failed")
		return err
	}
	defer s.bulkhead.Release()

	if err := fn(ctx); err != nil {
		s.metrics.IncrMutation(op, "failed")
		s.metrics.IncrSourceError("deals")
		return err
	}
	s.metrics.IncrMutation(op, "success")
	return nil
}

func (s *DealStore) recordRollback(op, dealID string, applied bool, cause error) {
	if applied {
		s.metrics.IncrRollback("applied")
		s.logger.Warn("deals: mutation failed, rolled back",
			zap.String("op", op),
			zap.String("deal_id", dealID),
			zap.Error(cause),
		)
		return
	}
	s.metrics.IncrRollback("skipped")
	s.logger.Warn("deals: mutation failed, rollback skipped (record changed since)",
		zap.String("op", op),
		zap.String("deal_id", dealID),
		zap.Error(cause),
	)
}

// settled returns the current record for id, or fallback when a refetch has
// dropped it in the meantime.
func (s *DealStore) settled(id string, fallback domain.Deal) domain.Deal {
	if d, ok := s.Deal(id); ok {
		return d
	}
	return fallback
}

// bump stamps id with the next sequence value. Caller holds s.mu.
func (s *DealStore) bump(id string) uint64 {
	s.seq++
	s.versions[id] = s.seq
	return s.seq
}

// indexOf returns the position of id or -1. Caller holds s.mu.
func (s *DealStore) indexOf(id string) int {
	for i := range s.deals {
		if s.deals[i].ID == id {
			return i
		}
	}
	return -1
}
