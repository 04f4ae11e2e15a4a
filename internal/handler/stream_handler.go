package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/service"

	"go.uber.org/zap"
)

const (
	streamBuffer    = 16
	streamKeepAlive = 30 * time.Second
)

// dealStreamHandler serves GET /v1/deals/stream: a Server-Sent Events feed
// carrying the deal store state after every change, starting with the current one.
func dealStreamHandler(deals *service.DealStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		updates := make(chan service.DealState, streamBuffer)
		// Deliveries arrive one at a time in state order. When the client lags,
		// the oldest queued state is shed so the newest always reaches it.
		unsubscribe := deals.Subscribe(func(st service.DealState) {
			for {
				select {
				case updates <- st:
					return
				default:
				}
				select {
				case <-updates:
					logger.Warn("deal stream: client too slow, dropping oldest update")
				default:
				}
			}
		})
		defer unsubscribe()

		logger.Info("deal stream: client connected", zap.String("remote_addr", r.RemoteAddr))
		defer logger.Info("deal stream: client disconnected", zap.String("remote_addr", r.RemoteAddr))

		if err := writeEvent(w, "state", deals.State()); err != nil {
			return
		}
		flusher.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case st := <-updates:
				if err := writeEvent(w, "state", st); err != nil {
					logger.Debug("deal stream: write failed", zap.Error(err))
					return
				}
				flusher.Flush()
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
