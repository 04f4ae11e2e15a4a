package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/mock"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Dev Tools Handlers
// ============================================================

// FaultInjector makes simulated backend operations fail on demand.
type FaultInjector interface {
	SetFault(op mock.Operation, err error)
	ClearFault(op mock.Operation)
	ClearFaults()
	Faults() map[string]string
}

type faultRequest struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

type faultResponse struct {
	Faults map[string]string `json:"faults"`
}

func listFaultsHandler(faults FaultInjector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, faultResponse{Faults: faults.Faults()})
	}
}

func setFaultHandler(faults FaultInjector, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/dev/faults")
		defer span.End()

		var req faultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		op, err := mock.ParseOperation(req.Operation)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		msg := req.Message
		if msg == "" {
			msg = "simulated " + string(op) + " failure"
		}
		faults.SetFault(op, errors.New(msg))

		writeJSON(w, http.StatusCreated, faultResponse{Faults: faults.Faults()})
	}
}

func clearFaultsHandler(faults FaultInjector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		faults.ClearFaults()
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "all faults cleared"})
	}
}

func clearFaultHandler(faults FaultInjector, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, err := mock.ParseOperation(chi.URLParam(r, "operation"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		faults.ClearFault(op)
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "fault cleared", ID: string(op)})
	}
}
