package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fluently-server/pkg/ai"
	"fluently-server/pkg/analysis"
	httpserver "fluently-server/pkg/http"
	"fluently-server/pkg/messaging"
	"fluently-server/pkg/metrics"
)

var (
	logger = logrus.New() // Using logrus for structured logging
)

func init() {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	loadConfig()

	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Invalid log level %q, keeping info", config.LogLevel)
	}
}

func main() {
	logger.WithFields(logrus.Fields{
		"http_port":   config.HTTPPort,
		"ai_provider": config.AIProvider,
	}).Info("Starting real-time analysis server")

	if config.EnableMetrics {
		metrics.Init(logger)
	}

	provider := selectAIProvider()

	analyzer := analysis.NewAnalyzer(logger, provider, analysis.NewSessionStore(),
		analysis.WithCallTimeout(config.AnalysisTimeout))

	hub := httpserver.NewFeedbackHub(logger, analyzer)
	hub.Start()

	var publisher httpserver.EventPublisher
	amqpClient := messaging.NewClient(logger, messaging.Config{
		URL:       config.AMQPURL,
		QueueName: config.AMQPQueueName,
	})
	if amqpClient.Enabled() {
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP connection failed, events will not be published")
		}
		publisher = amqpClient
	}

	server := httpserver.NewServer(logger, &httpserver.Config{
		Port:          config.HTTPPort,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		EnableMetrics: config.EnableMetrics,
	}, analyzer, hub, publisher)
	server.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if amqpClient.IsConnected() {
		amqpClient.Disconnect()
	}

	logger.Info("Shutdown complete")
}

// selectAIProvider builds the provider manager from configuration. Only the
// mock provider ships today; real model backends register here.
func selectAIProvider() ai.Provider {
	manager := ai.NewManager(logger, "mock")
	if err := manager.RegisterProvider(ai.NewMockProvider(logger)); err != nil {
		logger.Fatalf("Failed to register AI provider: %v", err)
	}

	provider, ok := manager.GetProvider(config.AIProvider)
	if !ok {
		logger.Warnf("Unsupported AI provider: %v, defaulting to mock", config.AIProvider)
		provider, _ = manager.GetDefaultProvider()
	}
	return provider
}
