package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/choked/choked/pkg/rate"
)

// RemoteStore delegates bucket evaluation to a managed rate-limit service
// over HTTPS. The service performs the atomic consume on its side; this
// client only ships the bucket parameters and interprets the decision.
type RemoteStore struct {
	endpoint string
	token    string
	client   *http.Client
}

// RemoteConfig configures a RemoteStore.
type RemoteConfig struct {
	// Endpoint is the service base URL, for example
	// "https://api.choked.dev". Required.
	Endpoint string

	// Token is the access token presented as a bearer credential. Required.
	Token string

	// Timeout bounds each HTTP request. Default: 10 seconds.
	Timeout time.Duration

	// MaxIdleConnsPerHost tunes the connection pool. Default: 8.
	MaxIdleConnsPerHost int
}

type consumeRequest struct {
	Key             string  `json:"key"`
	Cost            float64 `json:"cost"`
	Capacity        float64 `json:"capacity"`
	RefillPerSecond float64 `json:"refill_per_second"`
}

type consumeResponse struct {
	Granted     bool    `json:"granted"`
	Available   float64 `json:"available"`
	WaitSeconds float64 `json:"wait_seconds"`
}

type refundRequest struct {
	Key             string  `json:"key"`
	Units           float64 `json:"units"`
	Capacity        float64 `json:"capacity"`
	RefillPerSecond float64 `json:"refill_per_second"`
}

// NewRemoteStore creates a client for the managed service.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote store: endpoint cannot be empty")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("remote store: access token cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 8
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &RemoteStore{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// TryConsume implements Store.
func (s *RemoteStore) TryConsume(ctx context.Context, key string, cost float64, limit rate.Limit) (Result, error) {
	var resp consumeResponse
	err := s.post(ctx, "/v1/buckets/consume", consumeRequest{
		Key:             key,
		Cost:            cost,
		Capacity:        limit.Capacity,
		RefillPerSecond: limit.RefillPerSecond,
	}, &resp)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Granted:   resp.Granted,
		Available: resp.Available,
		Wait:      time.Duration(resp.WaitSeconds * float64(time.Second)),
	}, nil
}

// Refund implements Store.
func (s *RemoteStore) Refund(ctx context.Context, key string, units float64, limit rate.Limit) error {
	return s.post(ctx, "/v1/buckets/refund", refundRequest{
		Key:             key,
		Units:           units,
		Capacity:        limit.Capacity,
		RefillPerSecond: limit.RefillPerSecond,
	}, nil)
}

// Close implements Store.
func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// post sends one JSON request and decodes the response into out when it is
// non-nil. Transport failures and non-2xx statuses come back wrapping
// ErrUnavailable; the caller's retry policy decides what happens next.
func (s *RemoteStore) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("remote store: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("remote store: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for the error message; the service
		// returns short JSON problems.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrUnavailable, path, err)
	}
	return nil
}
