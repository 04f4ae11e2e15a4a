package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Deals
// ============================================================

type stageMoveRequest struct {
	Stage string `json:"stage"`
}

func getDealsHandler(deals *service.DealStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deals.State())
	}
}

func syncDealsHandler(deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/deals/sync")
		defer span.End()

		state := deals.FetchAll(ctx)
		if state.Error != "" {
			logger.Warn("deals sync finished with error", zap.String("error", state.Error))
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func dealsSummaryHandler(deals *service.DealStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/deals/summary")
		defer span.End()

		writeJSON(w, http.StatusOK, domain.Summarize(deals.State().Deals))
	}
}

func moveDealStageHandler(deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/deals/{dealId}/stage")
		defer span.End()

		dealID := chi.URLParam(r, "dealId")
		span.SetAttributes(attribute.String("deal.id", dealID))

		var req stageMoveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		stage, err := domain.ParseStage(req.Stage)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := deals.MoveDeal(ctx, dealID, stage)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// a failed confirmation has already been rolled back; report it alongside the deal
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// Deal Editor
// ============================================================

func newDealFormHandler(board *service.Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, board.NewEditor().View())
	}
}

func editDealFormHandler(board *service.Board, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, err := board.OpenEditor(chi.URLParam(r, "dealId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ed.View())
	}
}

func createDealHandler(board *service.Board, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/deals")
		defer span.End()

		var form domain.DealForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ed := board.NewEditor()
		deal, err := ed.Submit(ctx, form)
		if err != nil {
			writeEditorError(w, ed, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, deal)
	}
}

func updateDealHandler(board *service.Board, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/deals/{dealId}")
		defer span.End()

		dealID := chi.URLParam(r, "dealId")
		span.SetAttributes(attribute.String("deal.id", dealID))

		var form domain.DealForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ed, err := board.OpenEditor(dealID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		deal, err := ed.Submit(ctx, form)
		if err != nil {
			writeEditorError(w, ed, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, deal)
	}
}

// writeEditorError reports a failed save with the editor's user-facing message.
func writeEditorError(w http.ResponseWriter, ed *service.Editor, err error, logger *zap.Logger) {
	var mutation *domain.ErrMutationFailed
	if errors.As(err, &mutation) {
		logger.Warn("deal not saved",
			zap.String("op", mutation.Op),
			zap.String("deal_id", mutation.DealID),
			zap.Error(mutation.Err),
		)
		writeError(w, http.StatusBadGateway, ed.View().Error)
		return
	}
	handleServiceError(w, err, logger)
}
