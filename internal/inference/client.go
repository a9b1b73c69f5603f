// Package inference provides the HTTP client for the text-generation backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxNewTokens = 150
	DefaultTemperature  = 0.7
)

type Config struct {
	BaseURL            string
	RequestTimeout     time.Duration
	RequestsPerSecond  float64
	BreakerMaxFailures uint32
	BreakerResetAfter  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout:     60 * time.Second,
		RequestsPerSecond:  10,
		BreakerMaxFailures: 5,
		BreakerResetAfter:  30 * time.Second,
	}
}

// Params are the generation knobs forwarded to the backend. A non-positive
// MaxNewTokens falls back to DefaultMaxNewTokens; temperature is passed as-is
// since zero is a valid setting.
type Params struct {
	MaxNewTokens int
	Temperature  float64
}

type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Client is stateless between calls apart from its rate limiter and circuit
// breaker. Every Generate is a single attempt; there is no retry.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewClient(config Config) *Client {
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "inference",
			Timeout: config.BreakerResetAfter,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.BreakerMaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		}),
	}
}

// Generate sends one generation request to the backend. An empty
// generated_text is a legitimate backend answer and is returned as success;
// any transport, timeout, or backend error comes back as a wrapped failure.
func (c *Client) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	if params.MaxNewTokens <= 0 {
		params.MaxNewTokens = DefaultMaxNewTokens
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limiter wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, prompt, params)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (c *Client) send(ctx context.Context, prompt string, params Params) (string, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:       prompt,
		MaxNewTokens: params.MaxNewTokens,
		Temperature:  params.Temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal generation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build generation request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "inference backend unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read backend response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("inference backend returned %s: %s", resp.Status, truncate(respBody, 512))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", errors.Wrap(err, "failed to decode backend response")
	}

	return out.GeneratedText, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
