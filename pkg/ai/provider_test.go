package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestManagerFallsBackToDefault(t *testing.T) {
	manager := NewManager(newTestLogger(), "mock")
	if err := manager.RegisterProvider(NewMockProvider(newTestLogger())); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	response, err := manager.Generate(context.Background(), "no-such-provider", "analyze pronunciation quality", "en")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if response == "" {
		t.Fatal("expected a response from the default provider")
	}
}

func TestManagerNoProviders(t *testing.T) {
	manager := NewManager(newTestLogger(), "mock")

	if _, err := manager.Generate(context.Background(), "anything", "prompt", "en"); err == nil {
		t.Fatal("expected an error with no providers registered")
	}
}

func TestMockProviderResponseShapes(t *testing.T) {
	provider := NewMockProvider(newTestLogger())

	grammar, err := provider.GenerateResponse(context.Background(), "Analyze the grammar of this en text", "en")
	if err != nil {
		t.Fatalf("grammar generation failed: %v", err)
	}
	if !strings.Contains(grammar, "```json") || !strings.Contains(grammar, "[") {
		t.Errorf("grammar response must carry a fenced JSON array, got: %s", grammar)
	}

	pronunciation, err := provider.GenerateResponse(context.Background(), "Analyze the pronunciation quality", "en")
	if err != nil {
		t.Fatalf("pronunciation generation failed: %v", err)
	}
	if !strings.Contains(pronunciation, "\"score\"") {
		t.Errorf("pronunciation response must carry a score field, got: %s", pronunciation)
	}
}

func TestMockProviderHonorsCancelledContext(t *testing.T) {
	provider := NewMockProvider(newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := provider.GenerateResponse(ctx, "prompt", "en"); err == nil {
		t.Fatal("expected context error")
	}
}
