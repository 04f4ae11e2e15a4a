package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, src *fakeDealSource, opts ...service.DealStoreOption) *service.DealStore {
	t.Helper()
	opts = append([]service.DealStoreOption{service.WithClock(func() time.Time { return fixedNow })}, opts...)
	return service.NewDealStore(src, observability.NewMetrics(), zap.NewNop(), opts...)
}

func loadedStore(t *testing.T, src *fakeDealSource, opts ...service.DealStoreOption) *service.DealStore {
	t.Helper()
	s := newStore(t, src, opts...)
	state := s.FetchAll(context.Background())
	require.Empty(t, state.Error)
	return s
}

// --- FetchAll ---

func TestFetchAll_ReplacesCollection(t *testing.T) {
	src := newFakeDealSource(acmeDeal(), betaDeal())
	s := newStore(t, src)

	state := s.FetchAll(context.Background())

	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Equal(t, []domain.Deal{acmeDeal(), betaDeal()}, state.Deals)
	assert.Equal(t, fixedNow, state.LastSynced)
}

func TestFetchAll_FailureKeepsPreviousDeals(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	src.fetchErr = errors.New("backend unavailable")
	state := s.FetchAll(context.Background())

	assert.False(t, state.Loading)
	assert.Contains(t, state.Error, "backend unavailable")
	assert.Equal(t, []domain.Deal{acmeDeal()}, state.Deals)
}

func TestFetchAll_SuccessClearsPreviousError(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := newStore(t, src)

	src.fetchErr = errors.New("boom")
	require.NotEmpty(t, s.FetchAll(context.Background()).Error)

	src.fetchErr = nil
	assert.Empty(t, s.FetchAll(context.Background()).Error)
}

func TestState_ReturnsCopies(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))

	state := s.State()
	state.Deals[0].Stage = domain.StageLost
	state.Deals[0].Signals[0].Summary = "mutated"

	d, ok := s.Deal("1")
	require.True(t, ok)
	assert.Equal(t, domain.StageDiscovery, d.Stage)
	assert.Equal(t, "Requested pricing", d.Signals[0].Summary)
}

// --- MoveToStage ---

func TestMoveToStage_Success(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal(), betaDeal()))

	err := s.MoveToStage(context.Background(), "1", domain.StageCommitment)
	require.NoError(t, err)

	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageCommitment, d.Stage)
	assert.Equal(t, fixedNow, d.LastActivity)
	assert.Empty(t, s.State().Error)
}

func TestMoveToStage_UnknownDealLeavesCollectionUnchanged(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal(), betaDeal()))
	before := s.State().Deals

	err := s.MoveToStage(context.Background(), "missing", domain.StageWon)

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, before, s.State().Deals)
}

func TestMoveToStage_UnknownStage(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))

	err := s.MoveToStage(context.Background(), "1", domain.Stage("Negotiation"))

	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestMoveToStage_ConfirmationFailureRollsBack(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.moveErr = errors.New("confirm failed")

	err := s.MoveToStage(context.Background(), "1", domain.StageWon)
	require.NoError(t, err, "stage move failures are reported through state, not returned")

	d, _ := s.Deal("1")
	assert.Equal(t, acmeDeal(), d)
	assert.Contains(t, s.State().Error, "confirm failed")
}

func TestMoveToStage_LockTerminalPolicy(t *testing.T) {
	won := acmeDeal()
	won.Stage = domain.StageWon
	s := loadedStore(t, newFakeDealSource(won), service.WithTransitionPolicy(domain.TransitionLockTerminal))

	err := s.MoveToStage(context.Background(), "1", domain.StageDiscovery)

	var tna *domain.ErrTransitionNotAllowed
	require.ErrorAs(t, err, &tna)
	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageWon, d.Stage)
}

func TestMoveToStage_OpenPolicyReopensClosedDeals(t *testing.T) {
	lost := acmeDeal()
	lost.Stage = domain.StageLost
	s := loadedStore(t, newFakeDealSource(lost))

	require.NoError(t, s.MoveToStage(context.Background(), "1", domain.StageDiscovery))
	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageDiscovery, d.Stage)
}

// --- Concurrent mutations ---

// startGatedMove launches a move of deal "1" whose confirmation blocks until
// the returned release func is called with the confirmation result.
func startGatedMove(t *testing.T, s *service.DealStore, src *fakeDealSource, to domain.Stage) (release func(error)) {
	t.Helper()
	src.mu.Lock()
	src.moveGate = make(chan error)
	src.moveStarted = make(chan struct{}, 1)
	gate, started := src.moveGate, src.moveStarted
	src.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.MoveToStage(context.Background(), "1", to))
	}()
	<-started

	return func(err error) {
		gate <- err
		wg.Wait()
	}
}

func TestConcurrentAdd_SurvivesFailedMoveRollback(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	release := startGatedMove(t, s, src, domain.StageCommitment)

	d, _ := s.Deal("1")
	require.Equal(t, domain.StageCommitment, d.Stage, "move is applied before confirmation")
	require.NoError(t, s.Add(context.Background(), betaDeal()))

	release(errors.New("confirm failed"))

	a, _ := s.Deal("1")
	assert.Equal(t, domain.StageDiscovery, a.Stage)
	_, ok := s.Deal("2")
	assert.True(t, ok, "deal added during the pending move must survive the rollback")
	assert.Len(t, s.State().Deals, 2)
}

func TestConcurrentAdd_WithSuccessfulMove(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	release := startGatedMove(t, s, src, domain.StageCommitment)
	require.NoError(t, s.Add(context.Background(), betaDeal()))
	release(nil)

	a, _ := s.Deal("1")
	assert.Equal(t, domain.StageCommitment, a.Stage)
	_, ok := s.Deal("2")
	assert.True(t, ok)
	assert.Empty(t, s.State().Error)
}

func TestConcurrentUpdate_SkipsStaleMoveRollback(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	release := startGatedMove(t, s, src, domain.StageCommitment)

	edited := acmeDeal()
	edited.Stage = domain.StageConversion
	edited.Value = 200000
	require.NoError(t, s.Update(context.Background(), edited))

	release(errors.New("confirm failed"))

	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageConversion, d.Stage, "newer write is kept")
	assert.Equal(t, 200000.0, d.Value)
	assert.Contains(t, s.State().Error, "confirm failed")
}

func TestFetchDuringPendingMove_WinsOverRollback(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	release := startGatedMove(t, s, src, domain.StageWon)
	state := s.FetchAll(context.Background())
	require.Equal(t, domain.StageDiscovery, state.Deals[0].Stage)

	release(errors.New("confirm failed"))

	assert.Equal(t, []domain.Deal{acmeDeal()}, s.State().Deals)
}

// --- Add ---

func TestAdd_StampsLastActivity(t *testing.T) {
	s := service.NewDealStore(newFakeDealSource(), observability.NewMetrics(), zap.NewNop())
	callTime := time.Now()

	deal := betaDeal()
	require.NoError(t, s.Add(context.Background(), deal))

	got, ok := s.Deal(deal.ID)
	require.True(t, ok)
	assert.False(t, got.LastActivity.Before(callTime))

	got.LastActivity = deal.LastActivity
	assert.Equal(t, deal, got)
}

func TestAdd_DuplicateID(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))

	err := s.Add(context.Background(), acmeDeal())

	var ce *domain.ErrConflict
	require.ErrorAs(t, err, &ce)
	assert.Len(t, s.State().Deals, 1)
}

func TestAdd_ConfirmationFailureRemovesDeal(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.addErr = errors.New("insert failed")

	err := s.Add(context.Background(), betaDeal())

	var mf *domain.ErrMutationFailed
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "add", mf.Op)
	_, ok := s.Deal("2")
	assert.False(t, ok)
	assert.Contains(t, s.State().Error, "insert failed")
	assert.Equal(t, []domain.Deal{acmeDeal()}, s.State().Deals)
}

func TestAdd_VisibleBeforeConfirmation(t *testing.T) {
	src := newFakeDealSource()
	src.addGate = make(chan error)
	s := newStore(t, src)

	done := make(chan error, 1)
	go func() { done <- s.Add(context.Background(), betaDeal()) }()

	require.Eventually(t, func() bool {
		_, ok := s.Deal("2")
		return ok
	}, time.Second, 5*time.Millisecond)

	src.addGate <- nil
	require.NoError(t, <-done)
}

// --- Update ---

func TestUpdate_Success(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))

	edited := acmeDeal()
	edited.Name = "Renamed"
	require.NoError(t, s.Update(context.Background(), edited))

	d, _ := s.Deal("1")
	assert.Equal(t, "Renamed", d.Name)
	assert.Equal(t, fixedNow, d.LastActivity)
}

func TestUpdate_UnknownDeal(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))
	before := s.State().Deals

	missing := betaDeal()
	err := s.Update(context.Background(), missing)

	var nf *domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, before, s.State().Deals)
}

func TestUpdate_ConfirmationFailureRestoresPrevious(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.editErr = errors.New("update failed")

	edited := acmeDeal()
	edited.Value = 1
	err := s.Update(context.Background(), edited)

	var mf *domain.ErrMutationFailed
	require.ErrorAs(t, err, &mf)
	d, _ := s.Deal("1")
	assert.Equal(t, acmeDeal(), d)
	assert.Contains(t, s.State().Error, "update failed")
}

// --- Preferences ---

func TestSetFilter_Idempotent(t *testing.T) {
	s := newStore(t, newFakeDealSource())

	require.NoError(t, s.SetFilter(domain.FilterUrgency, strp("hot")))
	once := s.State().Filters
	require.NoError(t, s.SetFilter(domain.FilterUrgency, strp("hot")))

	assert.Equal(t, once, s.State().Filters)
	require.NotNil(t, once.Urgency)
	assert.Equal(t, "hot", *once.Urgency)
}

func TestSetFilter_AllClears(t *testing.T) {
	s := newStore(t, newFakeDealSource())

	require.NoError(t, s.SetFilter(domain.FilterRep, strp("rep1")))
	require.NoError(t, s.SetFilter(domain.FilterRep, strp("all")))

	assert.Nil(t, s.State().Filters.Rep)
}

func TestSetFilter_UnknownDimension(t *testing.T) {
	s := newStore(t, newFakeDealSource())

	err := s.SetFilter(domain.FilterDimension("region"), strp("emea"))

	var ve *domain.ErrValidation
	assert.ErrorAs(t, err, &ve)
}

func TestSetSortBy(t *testing.T) {
	s := newStore(t, newFakeDealSource())

	require.NoError(t, s.SetSortBy(domain.StageDiscovery, domain.SortByValue))
	assert.Equal(t, domain.SortByValue, s.State().SortBy[domain.StageDiscovery])
	assert.Equal(t, domain.SortByMomentum, s.State().SortBy[domain.StageWon])

	assert.Error(t, s.SetSortBy(domain.Stage("Nope"), domain.SortByValue))
	assert.Error(t, s.SetSortBy(domain.StageWon, domain.SortKey("size")))
}

// --- Subscribe ---

func TestSubscribe_NotifiesUntilUnsubscribed(t *testing.T) {
	s := loadedStore(t, newFakeDealSource(acmeDeal()))

	var mu sync.Mutex
	var seen []domain.Stage
	unsubscribe := s.Subscribe(func(st service.DealState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st.Deals[0].Stage)
	})

	require.NoError(t, s.MoveToStage(context.Background(), "1", domain.StageValidation))
	unsubscribe()
	require.NoError(t, s.MoveToStage(context.Background(), "1", domain.StageCommitment))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.Stage{domain.StageValidation}, seen)
}

// --- Interleaved fetches ---

func TestFetchAll_OlderFetchSettlingLastIsDiscarded(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.fetchGate = newFetchGate[[]domain.Deal]()

	older, olderDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })
	newer, newerDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })

	newer <- fetchReply[[]domain.Deal]{val: []domain.Deal{acmeDeal(), betaDeal()}}
	awaitDone(t, newerDone)
	assert.True(t, s.State().Loading, "loading until every fetch settles")

	older <- fetchReply[[]domain.Deal]{val: []domain.Deal{acmeDeal()}}
	awaitDone(t, olderDone)

	state := s.State()
	assert.False(t, state.Loading)
	assert.Equal(t, []domain.Deal{acmeDeal(), betaDeal()}, state.Deals)
}

func TestFetchAll_OlderFailureAfterNewerSuccessIsDiscarded(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.fetchGate = newFetchGate[[]domain.Deal]()

	older, olderDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })
	newer, newerDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })

	newer <- fetchReply[[]domain.Deal]{val: []domain.Deal{betaDeal()}}
	awaitDone(t, newerDone)
	older <- fetchReply[[]domain.Deal]{err: errors.New("timeout")}
	awaitDone(t, olderDone)

	state := s.State()
	assert.Empty(t, state.Error)
	assert.Equal(t, []domain.Deal{betaDeal()}, state.Deals)
}

func TestFetchAll_InOrderSettlementKeepsNewest(t *testing.T) {
	src := newFakeDealSource()
	s := newStore(t, src)
	src.fetchGate = newFetchGate[[]domain.Deal]()

	older, olderDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })
	newer, newerDone := startFetch(t, src.fetchGate, func() { s.FetchAll(context.Background()) })

	older <- fetchReply[[]domain.Deal]{val: []domain.Deal{acmeDeal()}}
	awaitDone(t, olderDone)
	newer <- fetchReply[[]domain.Deal]{val: []domain.Deal{betaDeal()}}
	awaitDone(t, newerDone)

	assert.Equal(t, []domain.Deal{betaDeal()}, s.State().Deals)
}

// --- Confirmation lifetime ---

func TestMoveToStage_CancelledCallerStillConfirms(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)
	src.moveGate = make(chan error, 1)
	src.moveStarted = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.MoveToStage(ctx, "1", domain.StageCommitment) }()

	<-src.moveStarted
	cancel()
	src.moveGate <- nil
	require.NoError(t, <-done)

	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageCommitment, d.Stage)
	assert.Empty(t, s.State().Error)
}

func TestAdd_CancelledCallerKeepsDeal(t *testing.T) {
	src := newFakeDealSource()
	src.addGate = make(chan error, 1)
	s := newStore(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Add(ctx, betaDeal()) }()

	require.Eventually(t, func() bool {
		_, ok := s.Deal("2")
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
	src.addGate <- nil

	require.NoError(t, <-done)
	_, ok := s.Deal("2")
	assert.True(t, ok)
}

func TestMoveToStage_ConfirmTimeoutRollsBack(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src, service.WithConfirmTimeout(20*time.Millisecond))
	src.moveGate = make(chan error)

	require.NoError(t, s.MoveToStage(context.Background(), "1", domain.StageWon))

	d, _ := s.Deal("1")
	assert.Equal(t, domain.StageDiscovery, d.Stage)
	assert.Contains(t, s.State().Error, context.DeadlineExceeded.Error())
}

// --- Move outcome ---

func TestMoveDeal_ReportsOwnOutcome(t *testing.T) {
	src := newFakeDealSource(acmeDeal())
	s := loadedStore(t, src)

	res, err := s.MoveDeal(context.Background(), "1", domain.StageCommitment)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Empty(t, res.Error)
	assert.Equal(t, domain.StageCommitment, res.Deal.Stage)

	src.moveErr = errors.New("confirm failed")
	res, err = s.MoveDeal(context.Background(), "1", domain.StageWon)
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, "confirm failed", res.Error)
	assert.Equal(t, domain.StageCommitment, res.Deal.Stage, "result carries the rolled back record")
}

// --- Subscriber ordering ---

func TestSubscribe_ConcurrentChangesDeliveredInOrder(t *testing.T) {
	s := newStore(t, newFakeDealSource())

	var mu sync.Mutex
	var counts []int
	s.Subscribe(func(st service.DealState) {
		mu.Lock()
		counts = append(counts, len(st.Deals))
		mu.Unlock()
	})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := betaDeal()
			d.ID = fmt.Sprintf("deal-%d", i)
			assert.NoError(t, s.Add(context.Background(), d))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, counts)
	for i := 1; i < len(counts); i++ {
		require.GreaterOrEqual(t, counts[i], counts[i-1], "delivery %d went back in time", i)
	}
	assert.Equal(t, n, counts[len(counts)-1])
}
