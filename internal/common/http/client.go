// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"

	"project-desk/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client is an instrumented HTTP client. Every request gets a span and a
// latency sample labelled with its route template.
type Client struct {
	httpClient *http.Client
	obs        *observability.Observability
}

func NewClient(timeout time.Duration, obs *observability.Observability) *Client {
	if obs == nil {
		obs = observability.NewNoop("http-client")
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		obs: obs,
	}
}

// DoWithContext sends req under ctx. route is the low-cardinality template
// (for example "GET /projects/{id}") used for telemetry.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request, route string) (*http.Response, error) {
	ctx, span := c.obs.StartSpan(ctx, route,
		attribute.String("http.method", req.Method),
		attribute.String("http.route", route),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.obs.RecordRequest(ctx, req.Method, route, status, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	return resp, nil
}
