// Package engine sends job events to the external workflow engine.
//
// The engine owns execution semantics (retries, fan-out, scheduling);
// flowdeck only fires events at its ingestion endpoint.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "flowdeck/engine"

// Event is a single engine event.
type Event struct {
	// Name identifies the event, e.g. "workflow.generate.requested".
	Name string `json:"name"`

	// Data is the event payload.
	Data map[string]any `json:"data,omitempty"`

	// Timestamp is the event time in unix milliseconds; zero means now.
	Timestamp int64 `json:"ts,omitempty"`
}

// Client dispatches events to the engine's ingestion endpoint:
//
//	POST {base}/e/{key}  [Event, ...]  -> 2xx
type Client struct {
	baseURL string
	key     string
	client  *http.Client
	tracer  trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.client = c }
}

// NewClient creates an engine client. key is the event key the engine
// issued for this application.
func NewClient(baseURL, key string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		key:     key,
		client:  &http.Client{Timeout: 15 * time.Second},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch sends one event. The engine acknowledges receipt only; delivery
// to downstream functions is its own concern.
func (c *Client) Dispatch(ctx context.Context, event Event) error {
	ctx, span := c.tracer.Start(ctx, "engine.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("engine.event", event.Name)))
	defer span.End()

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	body, err := json.Marshal([]Event{event})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine dispatch: %w", err)
	}

	url := fmt.Sprintf("%s/e/%s", c.baseURL, c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine dispatch: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("engine dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("engine dispatch: status %d", resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
