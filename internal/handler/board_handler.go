package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Board
// ============================================================

type boardResponse struct {
	Columns []service.StageColumn  `json:"columns"`
	Filters domain.Filters         `json:"filters"`
	SortBy  domain.SortPreferences `json:"sortBy"`
	Loading bool                   `json:"loading"`
	Error   string                 `json:"error,omitempty"`
}

type filterRequest struct {
	Value *string `json:"value"`
}

type sortRequest struct {
	SortBy string `json:"sortBy"`
}

// boardView renders columns and preferences from a single store snapshot.
func boardView(deals *service.DealStore) boardResponse {
	state := deals.State()
	return boardResponse{
		Columns: service.ColumnsOf(state),
		Filters: state.Filters,
		SortBy:  state.SortBy,
		Loading: state.Loading,
		Error:   state.Error,
	}
}

func getBoardHandler(deals *service.DealStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/board")
		defer span.End()

		writeJSON(w, http.StatusOK, boardView(deals))
	}
}

func dragEndHandler(board *service.Board, deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/board/drag")
		defer span.End()

		var req service.DragResult
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("deal.id", req.DealID))

		if err := board.HandleDragEnd(ctx, req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, boardView(deals))
	}
}

func setFilterHandler(board *service.Board, deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dim := domain.FilterDimension(chi.URLParam(r, "dimension"))

		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := board.SetFilter(dim, req.Value); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, boardView(deals))
	}
}

func setSortHandler(board *service.Board, deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := url.PathUnescape(chi.URLParam(r, "stage"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid stage")
			return
		}
		stage, err := domain.ParseStage(raw)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req sortRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		key, err := domain.ParseSortKey(req.SortBy)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := board.SetSortBy(stage, key); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, boardView(deals))
	}
}
