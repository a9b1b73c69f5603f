// Package chat mediates between an inbound chat request, the inference
// backend, and the conversation log store.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/inference"
	"chatrelay/pkg/types"
)

// Generator produces text for a prompt. Satisfied by *inference.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, params inference.Params) (string, error)
}

// Recorder persists completed exchanges. Satisfied by the logstore stores.
type Recorder interface {
	Log(ctx context.Context, prompt, response, model string) error
}

// Request lifecycle, used in diagnostics.
type state string

const (
	stateGenerating       state = "generating"
	stateGenerated        state = "generated"
	stateGenerationFailed state = "generation_failed"
)

type Config struct {
	DefaultMaxNewTokens int
	DefaultTemperature  float64
	// SupportedModels restricts the model field to an enumerated set. Empty
	// means any identifier passes through to the backend untouched.
	SupportedModels []string
}

func DefaultConfig() Config {
	return Config{
		DefaultMaxNewTokens: inference.DefaultMaxNewTokens,
		DefaultTemperature:  inference.DefaultTemperature,
	}
}

type Orchestrator struct {
	generator Generator
	recorder  Recorder
	config    Config
	supported map[string]bool
}

func New(generator Generator, recorder Recorder, config Config) *Orchestrator {
	supported := make(map[string]bool, len(config.SupportedModels))
	for _, m := range config.SupportedModels {
		supported[strings.TrimSpace(m)] = true
	}

	return &Orchestrator{
		generator: generator,
		recorder:  recorder,
		config:    config,
		supported: supported,
	}
}

// Chat runs one request through the generation path: validate, generate,
// record, respond. The conversation is recorded only after a successful
// generation, and a failed record write never fails the request.
func (o *Orchestrator) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	requestID := "chat_" + uuid.New().String()
	logger := log.With().Str("request_id", requestID).Str("model", req.Model).Logger()
	logger.Debug().Str("state", string(stateGenerating)).Msg("forwarding prompt to inference backend")

	start := time.Now()
	text, err := o.generator.Generate(ctx, req.Prompt, inference.Params{
		MaxNewTokens: o.config.DefaultMaxNewTokens,
		Temperature:  o.config.DefaultTemperature,
	})
	if err != nil {
		logger.Error().Err(err).Str("state", string(stateGenerationFailed)).Msg("generation failed")
		return nil, &GenerationError{Cause: err}
	}

	logger.Debug().Str("state", string(stateGenerated)).Dur("elapsed", time.Since(start)).Msg("generation complete")

	// Post-condition of a successful generation: record the exchange. The
	// write outcome never reaches the caller.
	if err := o.recorder.Log(ctx, req.Prompt, text, req.Model); err != nil {
		logger.Error().Err(err).Msg("failed to record conversation")
	}

	return &types.ChatResponse{Response: text, Model: req.Model}, nil
}

func (o *Orchestrator) validate(req types.ChatRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &ValidationError{Reason: "prompt must not be empty"}
	}

	if len(o.supported) > 0 && !o.supported[req.Model] {
		return &ValidationError{Reason: "unsupported model: " + req.Model}
	}

	return nil
}
