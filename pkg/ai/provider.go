package ai

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fluently-server/pkg/errors"
)

// Provider defines the interface for AI text-generation providers
type Provider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// GenerateResponse sends a prompt to the provider and returns the raw
	// response text, which may wrap structured data in prose or markdown
	GenerateResponse(ctx context.Context, prompt string, language string) (string, error)
}

// Manager manages all AI generation providers
type Manager struct {
	logger          *logrus.Logger
	providers       map[string]Provider
	defaultProvider string
}

// NewManager creates a new provider manager
func NewManager(logger *logrus.Logger, defaultProvider string) *Manager {
	return &Manager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider registers an AI generation provider
func (m *Manager) RegisterProvider(provider Provider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize AI provider")
		return err
	}

	m.providers[provider.Name()] = provider
	m.logger.WithField("provider", provider.Name()).Info("Registered AI provider")

	return nil
}

// GetProvider returns a provider by name
func (m *Manager) GetProvider(name string) (Provider, bool) {
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *Manager) GetDefaultProvider() (Provider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// Generate routes a prompt to the named provider, falling back to the default
func (m *Manager) Generate(ctx context.Context, providerName, prompt, language string) (string, error) {
	startTime := time.Now()

	provider, exists := m.GetProvider(providerName)
	if !exists {
		m.logger.WithFields(logrus.Fields{
			"provider":         providerName,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")

		provider, exists = m.GetDefaultProvider()
		if !exists {
			return "", errors.Wrap(errors.ErrProviderFailure, "no AI provider available")
		}
	}

	response, err := provider.GenerateResponse(ctx, prompt, language)

	elapsed := time.Since(startTime)
	m.logger.WithFields(logrus.Fields{
		"provider":    provider.Name(),
		"language":    language,
		"duration_ms": elapsed.Milliseconds(),
		"error":       err != nil,
	}).Debug("AI generation completed")

	return response, err
}
