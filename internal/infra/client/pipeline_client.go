// Package client implements the source ports against a remote pipeline backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pipeline-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/pipeline-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

const (
	serviceName = "pipeline-backend"
	momentumKey = "momentum:latest"
)

// PipelineClient talks to the pipeline backend. It implements
// port.DealSource, port.SignalSource and port.MomentumSource.
type PipelineClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	momentum   port.Cache[*domain.MomentumSnapshot]
	metrics    *observability.Metrics
}

// NewPipelineClient creates a new PipelineClient. momentumCache may be nil to disable caching.
func NewPipelineClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	momentumCache port.Cache[*domain.MomentumSnapshot],
	metrics *observability.Metrics,
) *PipelineClient {
	return &PipelineClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		momentum:   momentumCache,
		metrics:    metrics,
	}
}

// ============================================================
// Deals
// ============================================================

// FetchDeals lists every deal.
func (c *PipelineClient) FetchDeals(ctx context.Context) ([]domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "PipelineClient.FetchDeals")
	defer span.End()

	var deals []domain.Deal
	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		deals = nil
		return c.do(ctx, http.MethodGet, "/v1/deals", nil, &deals, "")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return deals, nil
}

// ConfirmStageMove persists a deal's new stage.
func (c *PipelineClient) ConfirmStageMove(ctx context.Context, dealID string, stage domain.Stage) error {
	ctx, span := tracer.Start(ctx, "PipelineClient.ConfirmStageMove")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", dealID), attribute.String("deal.stage", string(stage)))

	body := map[string]domain.Stage{"stage": stage}
	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		return c.do(ctx, http.MethodPut, "/v1/deals/"+url.PathEscape(dealID)+"/stage", body, nil, dealID)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ConfirmAdd persists a new deal. A conflict on a retried attempt means an
// earlier attempt stored the deal before its response was lost, so it counts
// as confirmed; a conflict on the first attempt is a genuine duplicate.
func (c *PipelineClient) ConfirmAdd(ctx context.Context, deal domain.Deal) error {
	ctx, span := tracer.Start(ctx, "PipelineClient.ConfirmAdd")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	attempt := 0
	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		attempt++
		err := c.do(ctx, http.MethodPost, "/v1/deals", deal, nil, deal.ID)
		var conflict *domain.ErrConflict
		if attempt > 1 && errors.As(err, &conflict) {
			span.SetAttributes(attribute.Bool("deal.already_stored", true))
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ConfirmUpdate persists a full-record replacement.
func (c *PipelineClient) ConfirmUpdate(ctx context.Context, deal domain.Deal) error {
	ctx, span := tracer.Start(ctx, "PipelineClient.ConfirmUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", deal.ID))

	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		return c.do(ctx, http.MethodPut, "/v1/deals/"+url.PathEscape(deal.ID), deal, nil, deal.ID)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ============================================================
// Signals & Momentum
// ============================================================

// FetchSignals lists every signal; role scoping happens in the store.
func (c *PipelineClient) FetchSignals(ctx context.Context) ([]domain.Signal, error) {
	ctx, span := tracer.Start(ctx, "PipelineClient.FetchSignals")
	defer span.End()

	var signals []domain.Signal
	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		signals = nil
		return c.do(ctx, http.MethodGet, "/v1/signals", nil, &signals, "")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return signals, nil
}

// FetchMomentum returns the latest scorecards, served from cache while fresh.
func (c *PipelineClient) FetchMomentum(ctx context.Context) (*domain.MomentumSnapshot, error) {
	ctx, span := tracer.Start(ctx, "PipelineClient.FetchMomentum")
	defer span.End()

	if c.momentum != nil {
		if snap, ok := c.momentum.Get(momentumKey); ok {
			c.metrics.IncrCacheHit("momentum")
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return snap.Clone(), nil
		}
		c.metrics.IncrCacheMiss("momentum")
	}

	var snap domain.MomentumSnapshot
	err := resilience.Execute(ctx, c.cb, c.cfg, serviceName, func() error {
		snap = domain.MomentumSnapshot{}
		return c.do(ctx, http.MethodGet, "/v1/momentum", nil, &snap, "")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if c.momentum != nil && snap.Complete() {
		c.momentum.Set(momentumKey, snap.Clone())
	}
	return &snap, nil
}

// do performs one request attempt. 4xx responses are permanent; 404 and 409
// map to the matching domain errors.
func (c *PipelineClient) do(ctx context.Context, method, path string, in, out any, dealID string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return resilience.Permanent(err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: "deal", ID: dealID})
	case resp.StatusCode == http.StatusConflict:
		return resilience.Permanent(&domain.ErrConflict{Message: fmt.Sprintf("deal %s already exists", dealID)})
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resilience.Permanent(fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
