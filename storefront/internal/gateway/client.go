// Package gateway is the storefront's HTTP client for orders-service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/pkg/circuitbreaker"
	"github.com/fjod/boutique/pkg/logger"
)

var (
	// ErrSubmissionFailed covers every way an order submission can go wrong.
	ErrSubmissionFailed = errors.New("order submission failed")
	ErrOrderNotFound    = errors.New("order not found")
	ErrFetchFailed      = errors.New("order lookup failed")
)

const (
	ordersPath = "/api/v1/orders"
	detailPath = "/api/v1/orders/detail"
)

type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRetryCount(0). // retries are the shopper's decision; the idempotency key makes them safe
			SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
			SetHeader("Accept", "application/json"),
		breaker: circuitbreaker.New[*resty.Response](circuitbreaker.DefaultSettings("orders-service")),
	}
}

// Submit posts the order. Any failure is reported as ErrSubmissionFailed; the
// cause is logged only.
func (c *Client) Submit(ctx context.Context, req api.CreateOrderRequest) (*api.OrderAck, error) {
	entry := logger.FromContext(ctx).WithField("idempotency_key", req.IdempotencyKey)

	resp, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader(api.IdempotencyHeader, req.IdempotencyKey).
			SetBody(req).
			Post(ordersPath)
	})
	if err != nil {
		entry.WithError(err).Warn("order submission transport failure")
		return nil, ErrSubmissionFailed
	}

	var body api.Envelope[api.OrderAck]
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		entry.WithError(err).WithField("status", resp.StatusCode()).Warn("malformed order submission response")
		return nil, ErrSubmissionFailed
	}
	if !resp.IsSuccess() || !body.Success || body.Data == nil {
		entry.WithFields(log.Fields{
			"status":  resp.StatusCode(),
			"message": body.Message,
		}).Warn("order submission rejected")
		return nil, ErrSubmissionFailed
	}
	return body.Data, nil
}

// FetchOrder reads the order detail for id.
func (c *Client) FetchOrder(ctx context.Context, id string) (*api.OrderDetail, error) {
	entry := logger.FromContext(ctx).WithField("order_id", id)

	resp, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("id", id).Get(detailPath)
	})
	if err != nil {
		entry.WithError(err).Warn("order lookup transport failure")
		return nil, ErrFetchFailed
	}

	// proxies answer 404 with their own bodies
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	var body api.Envelope[api.OrderDetail]
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		entry.WithError(err).WithField("status", resp.StatusCode()).Warn("malformed order detail response")
		return nil, ErrFetchFailed
	}
	if !resp.IsSuccess() || !body.Success || body.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, body.Message)
	}
	return body.Data, nil
}

// do runs one request through the breaker. Transport errors and 5xx responses
// count against orders-service; 4xx answers do not.
func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	var rejected *resty.Response
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			rejected = resp
			return nil, fmt.Errorf("orders-service returned status %d", resp.StatusCode())
		}
		return resp, nil
	})
	if rejected != nil {
		// server errors still carry the uniform body
		return rejected, nil
	}
	return resp, err
}
