package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort        int
	LogLevel        string
	AIProvider      string
	AnalysisTimeout time.Duration
	AMQPURL         string
	AMQPQueueName   string
	EnableMetrics   bool
}

var config Config

func loadConfig() {
	// Load environment variables; a missing .env file is fine in production
	// where the environment is set by the orchestrator.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	config.HTTPPort = envInt("HTTP_PORT", 8080)
	config.LogLevel = envString("LOG_LEVEL", "info")
	config.AIProvider = envString("AI_PROVIDER", "mock")
	config.AMQPURL = os.Getenv("AMQP_URL")
	config.AMQPQueueName = envString("AMQP_QUEUE_NAME", "analysis_events")
	config.EnableMetrics = os.Getenv("ENABLE_METRICS") != "false"

	timeoutSec := envInt("ANALYSIS_TIMEOUT", 10)
	config.AnalysisTimeout = time.Duration(timeoutSec) * time.Second
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warnf("Invalid value for %s: %v, using default %d", key, err, fallback)
		return fallback
	}
	return value
}
