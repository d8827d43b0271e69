package ai

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// MockProvider implements a mock AI generation provider for testing and
// local runs without a real model behind the server.
type MockProvider struct {
	logger *logrus.Logger
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock AI provider initialized")
	return nil
}

// GenerateResponse returns canned responses shaped like real model output,
// including the conversational wrapping the extraction layer must handle.
func (p *MockProvider) GenerateResponse(ctx context.Context, prompt string, language string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p.logger.WithField("language", language).Debug("Mock AI provider generating response")

	if strings.Contains(strings.ToLower(prompt), "grammar") {
		// Grammar analysis expects a JSON array of error objects.
		return "Here is the grammar analysis you asked for:\n" +
			"```json\n" +
			"[]\n" +
			"```\n" +
			"No errors were found in the text.", nil
	}

	// Pronunciation analysis expects a single JSON object.
	return "Sure! Here is the pronunciation assessment:\n" +
		"```json\n" +
		`{
  "phonetic_transcription": "",
  "expected_phonemes": [],
  "actual_phonemes": [],
  "score": 82,
  "errors": [],
  "suggestions": ["Keep practicing vowel length"],
  "confidence": 0.9
}` + "\n```", nil
}
