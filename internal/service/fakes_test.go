package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
)

// --- Mocks ---

// fakeDealSource answers from a fixed list. A non-nil gate for an operation
// blocks that confirmation until the test sends the error it should return.
type fakeDealSource struct {
	mu       sync.Mutex
	deals    []domain.Deal
	fetchErr error
	moveErr  error
	addErr   error
	editErr  error

	moveGate chan error
	addGate  chan error
	editGate chan error

	moveStarted chan struct{}
	moves       []string

	fetchGate *fetchGate[[]domain.Deal]
}

func newFakeDealSource(deals ...domain.Deal) *fakeDealSource {
	return &fakeDealSource{deals: deals}
}

func (f *fakeDealSource) FetchDeals(_ context.Context) ([]domain.Deal, error) {
	if f.fetchGate != nil {
		return f.fetchGate.wait()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return domain.CloneDeals(f.deals), nil
}

func (f *fakeDealSource) ConfirmStageMove(ctx context.Context, dealID string, stage domain.Stage) error {
	f.mu.Lock()
	f.moves = append(f.moves, dealID+"->"+string(stage))
	gate, started, err := f.moveGate, f.moveStarted, f.moveErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		return waitGate(ctx, gate)
	}
	return err
}

func (f *fakeDealSource) ConfirmAdd(ctx context.Context, _ domain.Deal) error {
	f.mu.Lock()
	gate, err := f.addGate, f.addErr
	f.mu.Unlock()
	if gate != nil {
		return waitGate(ctx, gate)
	}
	return err
}

func (f *fakeDealSource) ConfirmUpdate(ctx context.Context, _ domain.Deal) error {
	f.mu.Lock()
	gate, err := f.editGate, f.editErr
	f.mu.Unlock()
	if gate != nil {
		return waitGate(ctx, gate)
	}
	return err
}

func waitGate(ctx context.Context, gate chan error) error {
	select {
	case err := <-gate:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchGate parks every fetch until the test answers it, so tests can decide the
// order in which overlapping fetches settle.
type fetchGate[T any] struct {
	calls chan chan fetchReply[T]
}

type fetchReply[T any] struct {
	val T
	err error
}

func newFetchGate[T any]() *fetchGate[T] {
	return &fetchGate[T]{calls: make(chan chan fetchReply[T])}
}

func (g *fetchGate[T]) wait() (T, error) {
	reply := make(chan fetchReply[T])
	g.calls <- reply
	r := <-reply
	return r.val, r.err
}

// pending waits for the next fetch to reach the source.
func (g *fetchGate[T]) pending(t *testing.T) chan fetchReply[T] {
	t.Helper()
	select {
	case reply := <-g.calls:
		return reply
	case <-time.After(time.Second):
		t.Fatal("fetch never reached the source")
		return nil
	}
}

// startFetch runs fetch in the background and returns once it is parked at the gate.
func startFetch[T any](t *testing.T, g *fetchGate[T], fetch func()) (reply chan fetchReply[T], done <-chan struct{}) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fetch()
	}()
	return g.pending(t), finished
}

type fakeSignalSource struct {
	signals []domain.Signal
	err     error
	gate    *fetchGate[[]domain.Signal]
}

func (f *fakeSignalSource) FetchSignals(_ context.Context) ([]domain.Signal, error) {
	if f.gate != nil {
		return f.gate.wait()
	}
	return f.signals, f.err
}

type fakeMomentumSource struct {
	snapshot *domain.MomentumSnapshot
	err      error
	gate     *fetchGate[*domain.MomentumSnapshot]
}

func (f *fakeMomentumSource) FetchMomentum(_ context.Context) (*domain.MomentumSnapshot, error) {
	if f.gate != nil {
		return f.gate.wait()
	}
	return f.snapshot, f.err
}

// --- Fixtures ---

var lastWeek = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func acmeDeal() domain.Deal {
	return domain.Deal{
		ID:           "1",
		Name:         "Enterprise Software Deal",
		Company:      "Acme Corp",
		Value:        150000,
		Stage:        domain.StageDiscovery,
		CloseDate:    "2024-06-30",
		Momentum:     85,
		RepID:        "rep1",
		RepName:      "John Smith",
		Urgency:      domain.UrgencyHot,
		Signals:      []domain.DealSignal{{Type: domain.SignalBuyingIntent, Summary: "Requested pricing"}},
		LastActivity: lastWeek,
	}
}

func betaDeal() domain.Deal {
	return domain.Deal{
		ID:           "2",
		Name:         "Cloud Migration Project",
		Company:      "Beta Industries",
		Value:        75000,
		Stage:        domain.StageValidation,
		CloseDate:    "2024-07-15",
		Momentum:     72,
		RepID:        "rep2",
		RepName:      "Sarah Johnson",
		Urgency:      domain.UrgencyWatch,
		Signals:      []domain.DealSignal{{Type: domain.SignalEngagement, Summary: "Attended demo"}},
		LastActivity: lastWeek.Add(time.Hour),
	}
}

func scorecard(score int) *domain.ScoreData {
	return &domain.ScoreData{Score: score, Delta: 1, Trend: []int{score - 1, score}, Factors: []string{"f"}, AISuggestions: []string{"s"}}
}

func fullSnapshot(score int) *domain.MomentumSnapshot {
	return &domain.MomentumSnapshot{
		Activity:             scorecard(score),
		Quality:              scorecard(score),
		Velocity:             scorecard(score),
		Consistency:          scorecard(score),
		ConversionEfficiency: scorecard(score),
		Focus:                scorecard(score),
		OverallMomentum:      scorecard(score),
	}
}

func strp(s string) *string { return &s }

func awaitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operation did not finish")
	}
}
