package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/metrics"
)

// ErrModelNotFound is returned by Load when the engine has no model by that name.
var ErrModelNotFound = errors.New("model not found")

// Handle identifies a fitted model on the engine.
type Handle struct {
	Model   string `json:"model"`
	Version string `json:"version"`
}

// Predictions are aligned 1:1 with the rows of the predicted table.
// Probabilities[i][j] is the probability of Classes[j] for row i.
type Predictions struct {
	Classes       []string    `json:"classes"`
	Labels        []string    `json:"labels"`
	Probabilities [][]float64 `json:"probabilities"`
}

// Probability returns each row's probability of class, or an error if the
// engine did not report that class or a probability row for every label.
func (p *Predictions) Probability(class string) ([]float64, error) {
	if len(p.Probabilities) != len(p.Labels) {
		return nil, fmt.Errorf("engine returned %d probability rows for %d predictions", len(p.Probabilities), len(p.Labels))
	}
	for j, c := range p.Classes {
		if c != class {
			continue
		}
		out := make([]float64, len(p.Probabilities))
		for i, row := range p.Probabilities {
			if j >= len(row) {
				return nil, fmt.Errorf("row %d has %d probabilities, want at least %d", i, len(row), j+1)
			}
			out[i] = row[j]
		}
		return out, nil
	}
	return nil, fmt.Errorf("engine reported no class %q", class)
}

// Engine is the external tabular learning engine.
type Engine interface {
	Fit(ctx context.Context, name string, t *features.Table, label string) (Handle, error)
	Load(ctx context.Context, name string) (Handle, error)
	Predict(ctx context.Context, h Handle, t *features.Table) (*Predictions, error)
}

// StatusError is a non-2xx engine response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine responded %d: %s", e.Code, e.Body)
}

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	BreakerThreshold int     // consecutive failures before the breaker opens
}

// HTTPClient talks JSON to the engine over HTTP with rate limiting and a circuit breaker.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
}

func NewHTTPClient(cfg ClientConfig, logger *logrus.Logger) *HTTPClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	threshold := uint32(cfg.BreakerThreshold)
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "learning-engine",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 404s from Load do not count toward tripping.
		IsSuccessful: func(err error) bool {
			var status *StatusError
			return err == nil || (errors.As(err, &status) && status.Code == http.StatusNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Engine circuit breaker state changed")
		},
	})

	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(limit, 1),
		breaker:     cb,
		logger:      logger,
	}
}

// column is one table column on the wire. Missing values are null.
type column struct {
	Name   string        `json:"name"`
	Values []interface{} `json:"values"`
}

type fitRequest struct {
	Columns []column `json:"columns"`
	Label   string   `json:"label"`
}

type predictRequest struct {
	Version string   `json:"version"`
	Columns []column `json:"columns"`
}

func encodeColumns(t *features.Table, names []string) ([]column, error) {
	out := make([]column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("table has no column %q", name)
		}
		values := make([]interface{}, t.Rows())
		for i := range values {
			if c.IsCategorical() {
				if v := c.Categorical[i]; v != "" {
					values[i] = v
				}
				continue
			}
			if v := c.Numeric[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				values[i] = v
			}
		}
		out = append(out, column{Name: name, Values: values})
	}
	return out, nil
}

// Fit sends the table's feature columns and the label column.
func (c *HTTPClient) Fit(ctx context.Context, name string, t *features.Table, label string) (Handle, error) {
	cols, err := encodeColumns(t, append(t.ColumnsByRole(features.RoleFeature), label))
	if err != nil {
		return Handle{}, err
	}
	var h Handle
	path := "/models/" + url.PathEscape(name) + "/fit"
	if err := c.do(ctx, "fit", http.MethodPost, path, fitRequest{Columns: cols, Label: label}, &h); err != nil {
		return Handle{}, fmt.Errorf("failed to fit model %s: %w", name, err)
	}
	return h, nil
}

// Load returns the handle of the latest fitted model by name.
func (c *HTTPClient) Load(ctx context.Context, name string) (Handle, error) {
	var h Handle
	err := c.do(ctx, "load", http.MethodGet, "/models/"+url.PathEscape(name), nil, &h)
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusNotFound {
		return Handle{}, fmt.Errorf("%s: %w", name, ErrModelNotFound)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	return h, nil
}

// Predict sends only the table's feature columns.
func (c *HTTPClient) Predict(ctx context.Context, h Handle, t *features.Table) (*Predictions, error) {
	cols, err := encodeColumns(t, t.ColumnsByRole(features.RoleFeature))
	if err != nil {
		return nil, err
	}
	var p Predictions
	path := "/models/" + url.PathEscape(h.Model) + "/predict"
	if err := c.do(ctx, "predict", http.MethodPost, path, predictRequest{Version: h.Version, Columns: cols}, &p); err != nil {
		return nil, fmt.Errorf("failed to predict with model %s: %w", h.Model, err)
	}
	if len(p.Labels) != t.Rows() {
		return nil, fmt.Errorf("engine returned %d predictions for %d rows", len(p.Labels), t.Rows())
	}
	if len(p.Probabilities) != t.Rows() {
		return nil, fmt.Errorf("engine returned %d probability rows for %d rows", len(p.Probabilities), t.Rows())
	}
	return &p, nil
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.EngineRequests.WithLabelValues(operation, status).Inc()
	c.logger.WithFields(logrus.Fields{
		"operation": operation,
		"path":      path,
		"duration":  time.Since(start),
		"status":    status,
	}).Debug("Engine request")
	return err
}
