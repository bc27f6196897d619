package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// DefaultPrompt asks for a short motivational quote. Length guidance
// is soft; nothing is truncated locally.
const DefaultPrompt = "Generate a short, inspiring quote that would motivate someone to achieve their goals. Keep it under 100 characters and make it meaningful."

var errEmptyGeneration = errors.New("generator returned no text")

// GenerateAIQuote opens the confirmation surface, asks the generator
// for a quote and stages the result. Concurrent calls share a single
// generation. On failure the staging slot is left unchanged and a
// *quotify.GenerationError is returned; a suggestion that arrives after
// the surface was discarded is dropped with ErrGenerationDiscarded.
func (s *Session) GenerateAIQuote(ctx context.Context) (string, error) {
	if s.generator == nil {
		return "", &quotify.GenerationError{Err: quotify.ErrNoGenerator}
	}
	v, err, shared := s.aiGroup.Do("generate", func() (any, error) {
		return s.generate(ctx)
	})
	if shared {
		s.log.Debug("joined in-flight generation")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) generate(ctx context.Context) (string, error) {
	account, _ := s.bound()
	s.machine.BeginGeneration(account)

	text, err := s.generator.GenerateText(ctx, s.prompt)
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errEmptyGeneration
	}
	if err != nil {
		s.machine.GenerationFailed(account)
		s.log.Warn("quote generation failed", zap.Error(err))
		s.notify(types.LevelError, "Failed to generate AI quote")
		return "", &quotify.GenerationError{Err: err}
	}

	if !s.machine.StageAIQuote(account, text) {
		s.log.Debug("suggestion arrived after discard or rebind")
		return "", &quotify.GenerationError{Err: quotify.ErrGenerationDiscarded}
	}
	s.log.Debug("quote staged", zap.Int("length", len(text)))
	return text, nil
}

// AcceptAIQuote copies the staged quote into the pending AddQuote
// input and closes the confirmation surface. Nothing is submitted.
func (s *Session) AcceptAIQuote(_ context.Context) (string, error) {
	return s.machine.AcceptStaged()
}

// DiscardAIQuote drops the staged quote and closes the surface.
func (s *Session) DiscardAIQuote(_ context.Context) error {
	s.machine.DiscardStaged()
	return nil
}
