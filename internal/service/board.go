package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var boardTracer = otel.Tracer("service/board")

const (
	addFailedMessage    = "Failed to add client. Please try again."
	updateFailedMessage = "Failed to update client. Please try again."
)

// DragResult describes the end of a drag gesture. A nil Destination means the
// card was dropped outside any column.
type DragResult struct {
	DealID      string  `json:"dealId"`
	Destination *string `json:"destination"`
}

// StageColumn is one board column: the filtered, ordered deals of a stage.
type StageColumn struct {
	Stage       domain.Stage   `json:"stage"`
	SortBy      domain.SortKey `json:"sortBy"`
	Deals       []domain.Deal  `json:"deals"`
	Count       int            `json:"count"`
	TotalValue  float64        `json:"totalValue"`
	AvgMomentum int            `json:"avgMomentum"`
}

// Board turns drag gestures and form submissions into deal store operations
// and groups the store's deals into stage columns.
type Board struct {
	store  *DealStore
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewBoard creates a board controller on top of store.
func NewBoard(store *DealStore, logger *zap.Logger) *Board {
	return &Board{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// HandleDragEnd moves the dragged deal into the destination column.
// Dropping outside every column does nothing.
func (b *Board) HandleDragEnd(ctx context.Context, r DragResult) error {
	ctx, span := boardTracer.Start(ctx, "Board.HandleDragEnd")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", r.DealID))

	if r.Destination == nil {
		return nil
	}
	stage, err := domain.ParseStage(*r.Destination)
	if err != nil {
		return err
	}
	return b.store.MoveToStage(ctx, r.DealID, stage)
}

// Columns partitions the current deals by exact stage, one column per stage in
// pipeline order, after applying the active filters.
func (b *Board) Columns() []StageColumn {
	return ColumnsOf(b.store.State())
}

// ColumnsOf builds the board columns from one store snapshot.
func ColumnsOf(state DealState) []StageColumn {
	byStage := make(map[domain.Stage][]domain.Deal, len(domain.Stages))
	for _, d := range state.Deals {
		if state.Filters.Match(d) {
			byStage[d.Stage] = append(byStage[d.Stage], d)
		}
	}

	cols := make([]StageColumn, 0, len(domain.Stages))
	for _, st := range domain.Stages {
		key := state.SortBy[st]
		if key == "" {
			key = domain.SortByMomentum
		}
		deals := byStage[st]
		if deals == nil {
			deals = []domain.Deal{}
		}
		sortDeals(deals, key)

		col := StageColumn{Stage: st, SortBy: key, Deals: deals, Count: len(deals)}
		momentum := 0
		for _, d := range deals {
			col.TotalValue += d.Value
			momentum += d.Momentum
		}
		col.AvgMomentum = domain.AverageMomentum(momentum, len(deals))
		cols = append(cols, col)
	}
	return cols
}

func sortDeals(deals []domain.Deal, key domain.SortKey) {
	sort.SliceStable(deals, func(i, j int) bool {
		switch key {
		case domain.SortByCloseDate:
			return deals[i].CloseDate < deals[j].CloseDate
		case domain.SortByValue:
			return deals[i].Value > deals[j].Value
		default:
			return deals[i].Momentum > deals[j].Momentum
		}
	})
}

// SetSortBy changes the ordering of one column.
func (b *Board) SetSortBy(stage domain.Stage, key domain.SortKey) error {
	return b.store.SetSortBy(stage, key)
}

// SetFilter changes one filter dimension.
func (b *Board) SetFilter(dim domain.FilterDimension, value *string) error {
	return b.store.SetFilter(dim, value)
}

// ============================================================
// Deal Editor
// ============================================================

// EditorMode tells whether an editor creates or edits a deal.
type EditorMode string

const (
	EditorCreate EditorMode = "create"
	EditorEdit   EditorMode = "edit"
)

// Editor is one open deal form. It closes only after a successful submit.
type Editor struct {
	board *Board
	base  domain.Deal

	mu          sync.Mutex
	mode        EditorMode
	form        domain.DealForm
	open        bool
	errMsg      string
	fieldErrors map[string]string
}

// EditorView is the serializable state of an editor.
type EditorView struct {
	Mode        EditorMode        `json:"mode"`
	DealID      string            `json:"dealId,omitempty"`
	Form        domain.DealForm   `json:"form"`
	Open        bool              `json:"open"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// NewEditor opens a create form with default values.
func (b *Board) NewEditor() *Editor {
	return &Editor{
		board: b,
		mode:  EditorCreate,
		form:  domain.NewDealForm(),
		open:  true,
	}
}

// OpenEditor opens an edit form pre-populated from the deal's current values.
func (b *Board) OpenEditor(dealID string) (*Editor, error) {
	d, ok := b.store.Deal(dealID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "deal", ID: dealID}
	}
	return &Editor{
		board: b,
		base:  d,
		mode:  EditorEdit,
		form:  domain.FormFromDeal(d),
		open:  true,
	}, nil
}

// View returns a copy of the editor state.
func (e *Editor) View() EditorView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := EditorView{
		Mode:   e.mode,
		DealID: e.base.ID,
		Form:   e.form,
		Open:   e.open,
		Error:  e.errMsg,
	}
	if len(e.fieldErrors) > 0 {
		v.FieldErrors = make(map[string]string, len(e.fieldErrors))
		for k, msg := range e.fieldErrors {
			v.FieldErrors[k] = msg
		}
	}
	return v
}

// Submit validates form and routes it to an add or an update. On any failure
// the editor stays open: validation problems are reported per field and a
// failed save sets the editor error.
func (e *Editor) Submit(ctx context.Context, form domain.DealForm) (domain.Deal, error) {
	ctx, span := boardTracer.Start(ctx, "Editor.Submit")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.form = form
	e.errMsg = ""
	e.fieldErrors = nil

	if err := form.Validate(); err != nil {
		var invalid *domain.ErrFormInvalid
		if errors.As(err, &invalid) {
			e.fieldErrors = invalid.Fields
		}
		return domain.Deal{}, err
	}

	base := e.base
	if e.mode == EditorCreate {
		base = domain.Deal{ID: e.board.newID()}
	}
	deal := form.Build(base, e.board.now())
	span.SetAttributes(attribute.String("deal.id", deal.ID), attribute.String("editor.mode", string(e.mode)))

	var err error
	if e.mode == EditorCreate {
		err = e.board.store.Add(ctx, deal)
	} else {
		err = e.board.store.Update(ctx, deal)
	}
	if err != nil {
		span.RecordError(err)
		e.errMsg = updateFailedMessage
		if e.mode == EditorCreate {
			e.errMsg = addFailedMessage
		}
		e.board.logger.Warn("board: deal form submit failed",
			zap.String("mode", string(e.mode)),
			zap.String("deal_id", deal.ID),
			zap.Error(err),
		)
		return domain.Deal{}, err
	}

	e.open = false
	if stored, ok := e.board.store.Deal(deal.ID); ok {
		deal = stored
	}
	return deal, nil
}

// Close discards the editor without saving.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
}
